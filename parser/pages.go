package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
)

// Box is a PDF rectangle in default user space.
type Box struct {
	LLX, LLY, URX, URY float64
}

func (b Box) Width() float64  { return b.URX - b.LLX }
func (b Box) Height() float64 { return b.URY - b.LLY }

func (b Box) intersect(o Box) Box {
	out := Box{
		LLX: math.Max(b.LLX, o.LLX), LLY: math.Max(b.LLY, o.LLY),
		URX: math.Min(b.URX, o.URX), URY: math.Min(b.URY, o.URY),
	}
	if out.Width() <= 0 || out.Height() <= 0 {
		return b
	}
	return out
}

// LetterBox is used when a page carries no usable MediaBox.
var LetterBox = Box{0, 0, 612, 792}

// Page is a leaf of the page tree with inherited attributes applied.
type Page struct {
	Ref       raw.ObjectRef
	Dict      *raw.DictObj
	MediaBox  Box
	CropBox   Box
	Rotate    int // normalized to 0, 90, 180 or 270
	Resources *raw.DictObj
}

// View is the visible region: the crop box clipped to the media box.
func (p Page) View() Box { return p.CropBox.intersect(p.MediaBox) }

// Size returns the displayed page size with rotation applied.
func (p Page) Size() (w, h float64) {
	v := p.View()
	if p.Rotate == 90 || p.Rotate == 270 {
		return v.Height(), v.Width()
	}
	return v.Width(), v.Height()
}

type inherited struct {
	mediaBox  *Box
	cropBox   *Box
	rotate    int
	resources *raw.DictObj
}

// Pages walks the page tree in document order.
func Pages(doc *raw.Document) ([]Page, error) {
	root, _ := doc.Trailer.Get("Root")
	catalog := doc.ResolveDict(root)
	if catalog == nil {
		return nil, ErrNoCatalog
	}
	pagesObj, ok := catalog.Get("Pages")
	if !ok {
		return nil, errors.New("catalog has no page tree")
	}
	var out []Page
	visited := make(map[raw.ObjectRef]bool)
	if err := walkPages(doc, pagesObj, inherited{}, visited, &out, 0); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("document has no pages")
	}
	return out, nil
}

func walkPages(doc *raw.Document, node raw.Object, inh inherited, visited map[raw.ObjectRef]bool, out *[]Page, depth int) error {
	if depth > 64 {
		return errors.New("page tree too deep")
	}
	var ref raw.ObjectRef
	if r, ok := node.(raw.RefObj); ok {
		if visited[r.R] {
			return fmt.Errorf("page tree cycle at %s", r.R)
		}
		visited[r.R] = true
		ref = r.R
	}
	dict := doc.ResolveDict(node)
	if dict == nil {
		return nil
	}
	if b, ok := boxOf(doc, dict, "MediaBox"); ok {
		inh.mediaBox = &b
	}
	if b, ok := boxOf(doc, dict, "CropBox"); ok {
		inh.cropBox = &b
	}
	if v, ok := dict.Get("Rotate"); ok {
		if n, ok := raw.IntOf(doc.Resolve(v)); ok {
			inh.rotate = n
		}
	}
	if v, ok := dict.Get("Resources"); ok {
		if res := doc.ResolveDict(v); res != nil {
			inh.resources = res
		}
	}
	kidsObj, hasKids := dict.Get("Kids")
	typ, _ := raw.DictName(dict, "Type")
	if typ == "Pages" || (typ == "" && hasKids) {
		kids := doc.ResolveArray(kidsObj)
		if kids == nil {
			return nil
		}
		for _, kid := range kids.Items {
			if err := walkPages(doc, kid, inh, visited, out, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	p := Page{Ref: ref, Dict: dict, MediaBox: LetterBox, Resources: inh.resources}
	if inh.mediaBox != nil {
		p.MediaBox = *inh.mediaBox
	}
	p.CropBox = p.MediaBox
	if inh.cropBox != nil {
		p.CropBox = *inh.cropBox
	}
	p.Rotate = ((inh.rotate%360)+360)%360 / 90 * 90
	if p.Resources == nil {
		p.Resources = raw.Dict()
	}
	*out = append(*out, p)
	return nil
}

func boxOf(doc *raw.Document, dict *raw.DictObj, key string) (Box, bool) {
	v, ok := dict.Get(key)
	if !ok {
		return Box{}, false
	}
	vals, ok := raw.Floats(doc.ResolveArray(v))
	if !ok || len(vals) != 4 {
		return Box{}, false
	}
	b := Box{
		LLX: math.Min(vals[0], vals[2]), LLY: math.Min(vals[1], vals[3]),
		URX: math.Max(vals[0], vals[2]), URY: math.Max(vals[1], vals[3]),
	}
	if b.Width() <= 0 || b.Height() <= 0 {
		return Box{}, false
	}
	return b, true
}

// Contents returns the page's content streams decoded and joined with a
// newline, as PDF readers concatenate them.
func Contents(ctx context.Context, doc *raw.Document, page Page) ([]byte, error) {
	v, ok := page.Dict.Get("Contents")
	if !ok {
		return nil, nil
	}
	var streams []*raw.StreamObj
	switch c := doc.Resolve(v).(type) {
	case *raw.StreamObj:
		streams = append(streams, c)
	case *raw.ArrayObj:
		for _, item := range c.Items {
			if st, ok := doc.Resolve(item).(*raw.StreamObj); ok {
				streams = append(streams, st)
			}
		}
	}
	pipeline := filters.DefaultPipeline()
	var buf bytes.Buffer
	for i, st := range streams {
		data, err := pipeline.DecodeStream(ctx, doc, st)
		if err != nil {
			return nil, fmt.Errorf("content stream %d: %w", i, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
