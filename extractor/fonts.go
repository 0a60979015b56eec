package extractor

import (
	"context"
	"strings"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
	"golang.org/x/text/encoding/charmap"
	"seehuhn.de/go/postscript/type1/names"
)

// font decodes shown strings for one font dictionary.
type font struct {
	name      string
	composite bool
	encoding  *cmap // code splitting for composite fonts
	toUnicode *cmap
	simple    [256]string
	widths    map[uint32]float64
	missing   float64
}

var _ contentstream.Font = (*font)(nil)

func (f *font) Decode(s []byte) []contentstream.Glyph {
	var codes [][]byte
	if f.composite {
		codes = f.encoding.split(s, 2)
	} else {
		codes = make([][]byte, len(s))
		for i := range s {
			codes[i] = s[i : i+1]
		}
	}
	out := make([]contentstream.Glyph, 0, len(codes))
	for _, code := range codes {
		g := contentstream.Glyph{Space: len(code) == 1 && code[0] == ' '}
		if text, ok := f.toUnicode.lookup(code); ok {
			g.Text = text
		} else if !f.composite {
			g.Text = f.simple[code[0]]
		}
		if w, ok := f.widths[codeValue(code)]; ok {
			g.Width = w
		} else {
			g.Width = f.missing
		}
		out = append(out, g)
	}
	return out
}

func (e *Extractor) loadFont(ctx context.Context, dict *raw.DictObj) *font {
	doc := e.doc
	base, _ := raw.DictName(dict, "BaseFont")
	if i := strings.IndexByte(base, '+'); i == 6 {
		base = base[i+1:]
	}
	f := &font{name: base, widths: make(map[uint32]float64)}
	if tu, ok := doc.Resolve(dictValue(dict, "ToUnicode")).(*raw.StreamObj); ok {
		data, err := e.cfg.Pipeline.DecodeStream(ctx, doc, tu)
		if err != nil {
			e.log.Warn("decode ToUnicode failed", observability.String("font", base), observability.Error("error", err))
		} else {
			f.toUnicode = parseCMap(data)
		}
	}
	subtype, _ := raw.DictName(dict, "Subtype")
	if subtype == "Type0" {
		e.loadComposite(ctx, f, dict)
		return f
	}
	f.simple = simpleEncoding(doc, dict)
	first, _ := raw.DictInt(dict, "FirstChar")
	if widths := doc.ResolveArray(dictValue(dict, "Widths")); widths != nil {
		for i, item := range widths.Items {
			if w, ok := raw.FloatOf(doc.Resolve(item)); ok {
				f.widths[uint32(first+i)] = w
			}
		}
		desc := doc.ResolveDict(dictValue(dict, "FontDescriptor"))
		f.missing, _ = raw.FloatOf(doc.Resolve(dictValue(desc, "MissingWidth")))
		return f
	}
	standardWidths(f, base)
	return f
}

func (e *Extractor) loadComposite(ctx context.Context, f *font, dict *raw.DictObj) {
	doc := e.doc
	f.composite = true
	switch enc := doc.Resolve(dictValue(dict, "Encoding")).(type) {
	case *raw.StreamObj:
		if data, err := e.cfg.Pipeline.DecodeStream(ctx, doc, enc); err == nil {
			f.encoding = parseCMap(data)
		}
	case raw.NameObj:
		if !strings.HasPrefix(enc.Val, "Identity") {
			e.log.Debug("predefined CMap treated as two-byte", observability.String("cmap", enc.Val))
		}
	}
	f.missing = 1000
	descendants := doc.ResolveArray(dictValue(dict, "DescendantFonts"))
	if descendants == nil || descendants.Len() == 0 {
		return
	}
	cid := doc.ResolveDict(descendants.Items[0])
	if dw, ok := raw.FloatOf(doc.Resolve(dictValue(cid, "DW"))); ok {
		f.missing = dw
	}
	w := doc.ResolveArray(dictValue(cid, "W"))
	if w == nil {
		return
	}
	// [c [w1 w2 ...]] or [cfirst clast w]
	items := w.Items
	for i := 0; i < len(items); {
		start, ok := raw.IntOf(doc.Resolve(items[i]))
		if !ok || i+1 >= len(items) {
			return
		}
		if arr := doc.ResolveArray(items[i+1]); arr != nil {
			for k, item := range arr.Items {
				if width, ok := raw.FloatOf(doc.Resolve(item)); ok {
					f.widths[uint32(start+k)] = width
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(items) {
			return
		}
		end, ok1 := raw.IntOf(doc.Resolve(items[i+1]))
		width, ok2 := raw.FloatOf(doc.Resolve(items[i+2]))
		if ok1 && ok2 && end >= start && end-start <= 0xffff {
			for c := start; c <= end; c++ {
				f.widths[uint32(c)] = width
			}
		}
		i += 3
	}
}

// simpleEncoding builds the code to text table of a simple font from its
// base encoding and /Differences.
func simpleEncoding(doc *raw.Document, dict *raw.DictObj) [256]string {
	var table [256]string
	cm := charmap.Windows1252
	var diffs *raw.ArrayObj
	switch enc := doc.Resolve(dictValue(dict, "Encoding")).(type) {
	case raw.NameObj:
		if enc.Val == "MacRomanEncoding" {
			cm = charmap.Macintosh
		}
	case *raw.DictObj:
		if name, _ := raw.DictName(enc, "BaseEncoding"); name == "MacRomanEncoding" {
			cm = charmap.Macintosh
		}
		diffs = doc.ResolveArray(dictValue(enc, "Differences"))
	}
	for i := range table {
		if i < 32 {
			continue
		}
		if r := cm.DecodeByte(byte(i)); r != '�' {
			table[i] = string(r)
		}
	}
	if diffs == nil {
		return table
	}
	code := 0
	for _, item := range diffs.Items {
		switch v := doc.Resolve(item).(type) {
		case raw.NumberObj:
			code = int(v.Int())
		case raw.NameObj:
			if code >= 0 && code < 256 {
				table[code] = names.ToUnicode(v.Val, "")
			}
			code++
		}
	}
	return table
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}
