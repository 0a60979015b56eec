package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/scanner"
	"github.com/wudi/pdfedit/xref"
)

// objectLoader reads indirect objects on demand through the xref table.
type objectLoader struct {
	data     []byte
	table    *xref.Table
	pipeline *filters.Pipeline
	maxDepth int
	cache    map[raw.ObjectRef]raw.Object
	objstm   map[int]map[int]raw.Object
	loading  map[int]bool
}

func newObjectLoader(data []byte, table *xref.Table, maxDepth int) *objectLoader {
	return &objectLoader{
		data:     data,
		table:    table,
		pipeline: filters.DefaultPipeline(),
		maxDepth: maxDepth,
		cache:    make(map[raw.ObjectRef]raw.Object),
		objstm:   make(map[int]map[int]raw.Object),
		loading:  make(map[int]bool),
	}
}

func (o *objectLoader) Load(ctx context.Context, num int) (raw.ObjectRef, raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	e, ok := o.table.Lookup(num)
	if !ok || e.Kind == xref.EntryFree {
		return raw.ObjectRef{}, nil, fmt.Errorf("object %d not in xref", num)
	}
	ref := raw.ObjectRef{Num: num, Gen: e.Gen}
	if e.Kind == xref.EntryCompressed {
		ref.Gen = 0
	}
	if obj, ok := o.cache[ref]; ok {
		return ref, obj, nil
	}
	if o.loading[num] {
		return ref, nil, fmt.Errorf("object %d references itself while loading", num)
	}
	o.loading[num] = true
	defer delete(o.loading, num)

	var obj raw.Object
	var err error
	if e.Kind == xref.EntryCompressed {
		obj, err = o.loadFromObjectStream(ctx, num, e.Stream, e.Index)
	} else {
		obj, err = o.loadAtOffset(ctx, num, e.Offset)
	}
	if err != nil {
		return ref, nil, err
	}
	o.cache[ref] = obj
	return ref, obj, nil
}

func (o *objectLoader) loadAtOffset(ctx context.Context, num int, offset int64) (raw.Object, error) {
	s := scanner.New(o.data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	ref, obj, err := s.ReadIndirect(func(l raw.Object) int64 { return o.streamLength(ctx, l) })
	if err != nil {
		return nil, err
	}
	if ref.Num != num {
		return nil, fmt.Errorf("xref points object %d at object %d", num, ref.Num)
	}
	return obj, nil
}

func (o *objectLoader) streamLength(ctx context.Context, l raw.Object) int64 {
	if r, ok := l.(raw.RefObj); ok {
		_, obj, err := o.Load(ctx, r.R.Num)
		if err != nil {
			return -1
		}
		l = obj
	}
	n, ok := raw.IntOf(l)
	if !ok || n < 0 {
		return -1
	}
	return int64(n)
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, num, streamNum, idx int) (raw.Object, error) {
	objs, ok := o.objstm[streamNum]
	if !ok {
		_, obj, err := o.Load(ctx, streamNum)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
		}
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			return nil, fmt.Errorf("object stream %d is not a stream", streamNum)
		}
		objs, err = o.expandObjectStream(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
		}
		o.objstm[streamNum] = objs
	}
	obj, ok := objs[num]
	if !ok {
		return nil, fmt.Errorf("object %d not found in object stream %d (index %d)", num, streamNum, idx)
	}
	return obj, nil
}

// expandObjectStream parses every object of an /ObjStm stream.
func (o *objectLoader) expandObjectStream(ctx context.Context, st *raw.StreamObj) (map[int]raw.Object, error) {
	data, err := o.pipeline.DecodeStream(ctx, nil, st)
	if err != nil {
		return nil, err
	}
	n, _ := raw.DictInt(st.Dict, "N")
	first, _ := raw.DictInt(st.Dict, "First")
	if first < 0 || first > len(data) {
		return nil, errors.New("object stream First exceeds length")
	}
	header := scanner.New(data[:first], scanner.Config{})
	pairs := make([]int, 0, 2*n)
	for len(pairs) < 2*n {
		tok, err := header.Next()
		if err != nil {
			break
		}
		if tok.Type == scanner.TokenNumber && tok.IsInt {
			pairs = append(pairs, int(tok.Int))
		}
	}
	body := data[first:]
	objs := make(map[int]raw.Object, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		off := pairs[i+1]
		if off < 0 || off > len(body) {
			continue
		}
		s := scanner.New(body, scanner.Config{MaxDepth: o.maxDepth})
		if err := s.Seek(int64(off)); err != nil {
			continue
		}
		obj, err := s.ReadObject()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", pairs[i], err)
		}
		objs[pairs[i]] = obj
	}
	return objs, nil
}
