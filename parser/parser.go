// Package parser loads a raw.Document from PDF bytes and exposes its page
// tree.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/xref"
)

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	XRef        xref.ResolverConfig
	MaxIndirect int
	Logger      observability.Logger
}

var (
	ErrNotPDF    = errors.New("not a PDF file")
	ErrEncrypted = errors.New("encrypted documents are not supported")
	ErrNoCatalog = errors.New("document catalog not found")
)

// DocumentParser builds a raw.Document using xref tables/streams and the
// object loader.
type DocumentParser struct {
	cfg Config
	log observability.Logger
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.MaxIndirect == 0 {
		cfg.MaxIndirect = 64
	}
	log := observability.OrNop(cfg.Logger)
	if cfg.XRef.Logger == nil {
		cfg.XRef.Logger = log
	}
	return &DocumentParser{cfg: cfg, log: log}
}

func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	start := time.Now()
	version, err := headerVersion(data)
	if err != nil {
		return nil, err
	}
	resolver := xref.NewResolver(p.cfg.XRef)
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	if _, ok := table.Trailer().Get("Encrypt"); ok {
		return nil, ErrEncrypted
	}
	doc, err := p.load(ctx, data, table)
	if err != nil && !table.Repaired() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.Warn("object load failed, retrying with repaired xref", observability.Error("error", err))
		if table, err = resolver.Repair(ctx, data); err != nil {
			return nil, fmt.Errorf("repair xref: %w", err)
		}
		doc, err = p.load(ctx, data, table)
	}
	if err != nil {
		return nil, err
	}
	doc.Version = version
	if err := ensureCatalog(doc); err != nil {
		return nil, err
	}
	p.log.Debug("document parsed",
		observability.Int("objects", len(doc.Objects)),
		observability.Bool("xref_stream", doc.XRefStream),
		observability.Int64(observability.MetricParseTime, time.Since(start).Milliseconds()),
	)
	return doc, nil
}

func (p *DocumentParser) load(ctx context.Context, data []byte, table *xref.Table) (*raw.Document, error) {
	loader := newObjectLoader(data, table, p.cfg.MaxIndirect)
	doc := &raw.Document{
		Objects:    make(map[raw.ObjectRef]raw.Object),
		Trailer:    table.Trailer().Clone(),
		XRefStream: table.IsStream(),
		StartXRef:  table.StartXRef(),
	}
	if table.Repaired() {
		// offsets of a repaired file cannot anchor an incremental update
		doc.StartXRef = 0
	}
	for _, num := range table.Objects() {
		if num == 0 {
			continue
		}
		ref, obj, err := loader.Load(ctx, num)
		if err != nil {
			if table.Repaired() && ctx.Err() == nil {
				p.log.Warn("skipping unreadable object", observability.Int("object", num), observability.Error("error", err))
				continue
			}
			return nil, fmt.Errorf("load object %d: %w", num, err)
		}
		doc.Objects[ref] = obj
	}
	if table.Repaired() {
		p.expandAllObjectStreams(ctx, loader, doc)
	}
	return doc, nil
}

// expandAllObjectStreams recovers compressed objects that a repair scan
// cannot see.
func (p *DocumentParser) expandAllObjectStreams(ctx context.Context, loader *objectLoader, doc *raw.Document) {
	for ref, obj := range doc.Objects {
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if typ, _ := raw.DictName(st.Dict, "Type"); typ != "ObjStm" {
			continue
		}
		objs, err := loader.expandObjectStream(ctx, st)
		if err != nil {
			p.log.Warn("skipping unreadable object stream", observability.Int("object", ref.Num), observability.Error("error", err))
			continue
		}
		for num, inner := range objs {
			key := raw.ObjectRef{Num: num}
			if _, exists := doc.Objects[key]; !exists {
				doc.Objects[key] = inner
			}
		}
	}
}

func ensureCatalog(doc *raw.Document) error {
	root, ok := doc.Trailer.Get("Root")
	if ok {
		if cat := doc.ResolveDict(root); cat != nil {
			return nil
		}
	}
	for ref, obj := range doc.Objects {
		d, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if typ, _ := raw.DictName(d, "Type"); typ == "Catalog" {
			doc.Trailer.Set("Root", raw.RefObj{R: ref})
			return nil
		}
	}
	return ErrNoCatalog
}

func headerVersion(data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	v := head[idx+5:]
	end := 0
	for end < len(v) && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	if end == 0 {
		return "", ErrNotPDF
	}
	return string(v[:end]), nil
}
