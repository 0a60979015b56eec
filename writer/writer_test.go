package writer

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/internal/pdftest"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/parser"
)

func parse(t *testing.T, data []byte) *raw.Document {
	t.Helper()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func save(t *testing.T, cfg Config, base []byte, doc *raw.Document, changed map[raw.ObjectRef]raw.Object) []byte {
	t.Helper()
	var out bytes.Buffer
	if err := New(cfg).Write(context.Background(), &out, base, doc, changed); err != nil {
		t.Fatalf("write: %v", err)
	}
	return out.Bytes()
}

// overlay appends a content stream to page 4 (the first page of a
// pdftest.Document).
func overlay(doc *raw.Document, content string) map[raw.ObjectRef]raw.Object {
	pageRef := raw.ObjectRef{Num: 4}
	page := doc.Objects[pageRef].(*raw.DictObj).Clone()
	n := doc.MaxObjectNumber() + 1
	page.Set("Contents", raw.NewArray(raw.Ref(5, 0), raw.Ref(n, 0)))
	return map[raw.ObjectRef]raw.Object{
		pageRef:  page,
		{Num: n}: raw.NewStream(raw.Dict(), []byte(content)),
	}
}

func TestIncrementalUpdateKeepsOriginalBytes(t *testing.T) {
	base := pdftest.Document(pdftest.Page{Width: 200, Height: 100, Content: "BT /F1 12 Tf 10 10 Td (Old) Tj ET"})
	doc := parse(t, base)
	out := save(t, Config{Deterministic: true}, base, doc, overlay(doc, "1 0 0 rg 0 0 5 5 re f"))
	if !bytes.HasPrefix(out, base) {
		t.Fatalf("original bytes were not preserved")
	}
	if !bytes.Contains(out[len(base):], []byte(fmt.Sprintf("/Prev %d", doc.StartXRef))) {
		t.Fatalf("update trailer lacks /Prev:\n%s", out[len(base):])
	}

	again := parse(t, out)
	pages, err := parser.Pages(again)
	if err != nil || len(pages) != 1 {
		t.Fatalf("pages: %v", err)
	}
	content, err := parser.Contents(context.Background(), again, pages[0])
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	if !bytes.Contains(content, []byte("(Old) Tj")) || !bytes.Contains(content, []byte("0 0 5 5 re f")) {
		t.Fatalf("content = %q", content)
	}
	if size, _ := raw.DictInt(again.Trailer, "Size"); size != 7 {
		t.Fatalf("/Size = %d", size)
	}
}

func TestIncrementalUpdateCompressesNewStreams(t *testing.T) {
	base := pdftest.Document(pdftest.Page{Width: 50, Height: 50})
	doc := parse(t, base)
	out := save(t, Config{Compress: true}, base, doc, overlay(doc, "0 g 1 1 2 2 re f"))
	again := parse(t, out)
	st := again.Objects[raw.ObjectRef{Num: 6}].(*raw.StreamObj)
	if name, _ := raw.DictName(st.Dict, "Filter"); name != "FlateDecode" {
		t.Fatalf("filter = %q", name)
	}
	data, err := filters.DefaultPipeline().DecodeStream(context.Background(), again, st)
	if err != nil || string(data) != "0 g 1 1 2 2 re f" {
		t.Fatalf("decoded = %q, %v", data, err)
	}
}

func TestIncrementalUpdateKeepsIDPrefix(t *testing.T) {
	base := pdftest.Document(pdftest.Page{Width: 50, Height: 50})
	base = bytes.Replace(base, []byte("/Root 1 0 R"), []byte("/Root 1 0 R /ID [<00112233> <00112233>]"), 1)
	doc := parse(t, base)
	again := parse(t, save(t, Config{}, base, doc, overlay(doc, "")))
	ids := again.ResolveArray(dictValue(again.Trailer, "ID"))
	if ids == nil || ids.Len() != 2 {
		t.Fatalf("ID = %v", ids)
	}
	if first, _ := raw.BytesOf(ids.Items[0]); !bytes.Equal(first, []byte{0x00, 0x11, 0x22, 0x33}) {
		t.Fatalf("first id = %x", first)
	}
}

func TestIncrementalUpdateAfterXRefStream(t *testing.T) {
	base := pdftest.Document(pdftest.Page{Width: 50, Height: 50})
	doc := parse(t, base)
	doc.XRefStream = true
	out := save(t, Config{}, base, doc, overlay(doc, "0 g 0 0 1 1 re f"))
	if !bytes.Contains(out[len(base):], []byte("/Type /XRef")) {
		t.Fatalf("expected xref stream section")
	}
	again := parse(t, out)
	if !again.XRefStream {
		t.Fatalf("reparsed newest section is not a stream")
	}
	if _, ok := again.Objects[raw.ObjectRef{Num: 6}]; !ok {
		t.Fatalf("new object missing after reparse")
	}
}

func TestFullRewriteForRepairedDocument(t *testing.T) {
	base := pdftest.Document(pdftest.Page{Width: 50, Height: 50, Content: "BT /F1 9 Tf 1 1 Td (Kept) Tj ET"})
	broken := bytes.Replace(base, []byte("%PDF-1.7\n"), []byte("%PDF-1.7\n% shifted\n"), 1)
	doc := parse(t, broken)
	if doc.StartXRef != 0 {
		t.Fatalf("expected repaired document")
	}
	out := save(t, Config{}, broken, doc, overlay(doc, "0 g 0 0 1 1 re f"))
	if bytes.HasPrefix(out, broken) {
		t.Fatalf("repaired document was appended to")
	}
	again := parse(t, out)
	if again.StartXRef == 0 {
		t.Fatalf("rewritten file still needs repair")
	}
	pages, _ := parser.Pages(again)
	content, err := parser.Contents(context.Background(), again, pages[0])
	if err != nil || !bytes.Contains(content, []byte("(Kept)")) || !bytes.Contains(content, []byte("re f")) {
		t.Fatalf("content = %q, %v", content, err)
	}
}

func TestWriteRequiresRoot(t *testing.T) {
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}, Trailer: raw.Dict()}
	if err := New(Config{}).Write(context.Background(), &bytes.Buffer{}, nil, doc, nil); err != ErrNoCatalog {
		t.Fatalf("err = %v", err)
	}
}

func TestSegments(t *testing.T) {
	got := segments(map[int]int64{4: 1, 5: 1, 9: 1, 1: 1})
	want := [][2]int{{1, 1}, {4, 2}, {9, 1}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("segments = %v", got)
	}
}
