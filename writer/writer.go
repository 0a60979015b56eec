// Package writer serializes an edited document. A document parsed from an
// intact file is saved as an incremental update: the original bytes are
// kept verbatim and only new or replaced objects are appended, followed by
// a cross-reference section of the same form as the previous one. A
// document whose cross-reference data had to be repaired is rewritten in
// full.
package writer

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
)

// ErrNoCatalog is returned when the trailer carries no /Root.
var ErrNoCatalog = errors.New("trailer has no /Root")

type Config struct {
	// Compress flate-encodes new streams that carry no filter yet.
	Compress bool
	// Deterministic derives the file identifier from the content instead
	// of random bytes.
	Deterministic bool
	Logger        observability.Logger
}

type Writer struct {
	cfg Config
	log observability.Logger
}

func New(cfg Config) *Writer {
	return &Writer{cfg: cfg, log: observability.OrNop(cfg.Logger)}
}

// Write saves doc with the changed objects merged in. base must be the
// bytes doc was parsed from.
func (w *Writer) Write(ctx context.Context, out io.Writer, base []byte, doc *raw.Document, changed map[raw.ObjectRef]raw.Object) error {
	start := time.Now()
	if _, ok := doc.Trailer.Get("Root"); !ok {
		return ErrNoCatalog
	}
	objs, err := w.prepare(changed)
	if err != nil {
		return err
	}
	var data []byte
	if doc.StartXRef > 0 && len(base) > 0 {
		data, err = w.incremental(ctx, base, doc, objs)
	} else {
		data, err = w.full(ctx, doc, objs)
	}
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	w.log.Debug("document written",
		observability.Bool("incremental", doc.StartXRef > 0),
		observability.Int("objects", len(objs)),
		observability.Int64(observability.MetricWriteTime, time.Since(start).Milliseconds()))
	return nil
}

// prepare compresses new streams and fixes their /Length.
func (w *Writer) prepare(changed map[raw.ObjectRef]raw.Object) (map[raw.ObjectRef]raw.Object, error) {
	out := make(map[raw.ObjectRef]raw.Object, len(changed))
	for ref, obj := range changed {
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			out[ref] = obj
			continue
		}
		dict := st.Dict.Clone()
		data := st.Data
		if _, filtered := dict.Get("Filter"); w.cfg.Compress && !filtered {
			enc, err := filters.FlateEncode(data)
			if err != nil {
				return nil, fmt.Errorf("compress object %d: %w", ref.Num, err)
			}
			data = enc
			dict.Set("Filter", raw.NameLiteral("FlateDecode"))
		}
		dict.Set("Length", raw.NumberInt(int64(len(data))))
		out[ref] = raw.NewStream(dict, data)
	}
	return out, nil
}

func (w *Writer) incremental(ctx context.Context, base []byte, doc *raw.Document, objs map[raw.ObjectRef]raw.Object) ([]byte, error) {
	buf := append([]byte(nil), base...)
	if n := len(buf); n > 0 && buf[n-1] != '\n' && buf[n-1] != '\r' {
		buf = append(buf, '\n')
	}
	offsets := make(map[int]int64, len(objs))
	buf, err := appendObjects(ctx, buf, objs, offsets)
	if err != nil {
		return nil, err
	}
	size := doc.MaxObjectNumber()
	for ref := range objs {
		size = max(size, ref.Num)
	}
	if s, ok := raw.DictInt(doc.Trailer, "Size"); ok && s-1 > size {
		size = s - 1
	}
	size++
	trailer := w.trailer(doc, size, buf)
	trailer.Set("Prev", raw.NumberInt(doc.StartXRef))
	if doc.XRefStream {
		return appendXRefStream(buf, offsets, trailer, size)
	}
	return appendXRefTable(buf, offsets, trailer, false), nil
}

// full renumbers nothing: every live object keeps its number and the gaps
// become free entries.
func (w *Writer) full(ctx context.Context, doc *raw.Document, objs map[raw.ObjectRef]raw.Object) ([]byte, error) {
	all := make(map[raw.ObjectRef]raw.Object, len(doc.Objects)+len(objs))
	for ref, obj := range doc.Objects {
		if isXRefStream(obj) || isObjectStream(obj) {
			continue
		}
		all[ref] = obj
	}
	for ref, obj := range objs {
		all[ref] = obj
	}
	version := doc.Version
	if version == "" {
		version = "1.7"
	}
	buf := []byte("%PDF-" + version + "\n%\xe2\xe3\xcf\xd3\n")
	offsets := make(map[int]int64, len(all))
	buf, err := appendObjects(ctx, buf, all, offsets)
	if err != nil {
		return nil, err
	}
	size := 0
	for ref := range all {
		size = max(size, ref.Num)
	}
	size++
	trailer := w.trailer(doc, size, buf)
	return appendXRefTable(buf, offsets, trailer, true), nil
}

func (w *Writer) trailer(doc *raw.Document, size int, content []byte) *raw.DictObj {
	t := raw.Dict()
	t.Set("Size", raw.NumberInt(int64(size)))
	for _, key := range []string{"Root", "Info"} {
		if v, ok := doc.Trailer.Get(key); ok {
			t.Set(key, v)
		}
	}
	first := w.newID(content)
	if ids := doc.ResolveArray(dictValue(doc.Trailer, "ID")); ids != nil && ids.Len() == 2 {
		if b, ok := raw.BytesOf(ids.Items[0]); ok {
			first = b
		}
	}
	t.Set("ID", raw.NewArray(raw.HexStr(first), raw.HexStr(w.newID(content))))
	return t
}

func (w *Writer) newID(content []byte) []byte {
	sum := sha256.Sum256(content)
	if w.cfg.Deterministic {
		return sum[:16]
	}
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return sum[:16]
	}
	return id
}

func appendObjects(ctx context.Context, buf []byte, objs map[raw.ObjectRef]raw.Object, offsets map[int]int64) ([]byte, error) {
	refs := make([]raw.ObjectRef, 0, len(objs))
	for ref := range objs {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offsets[ref.Num] = int64(len(buf))
		buf = appendIndirect(buf, ref, objs[ref])
	}
	return buf, nil
}

func appendIndirect(buf []byte, ref raw.ObjectRef, obj raw.Object) []byte {
	buf = fmt.Appendf(buf, "%d %d obj\n", ref.Num, ref.Gen)
	buf = raw.AppendObject(buf, obj)
	return append(buf, "\nendobj\n"...)
}

func isXRefStream(obj raw.Object) bool {
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	t, _ := raw.DictName(st.Dict, "Type")
	return t == "XRef"
}

func isObjectStream(obj raw.Object) bool {
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	t, _ := raw.DictName(st.Dict, "Type")
	return t == "ObjStm"
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}
