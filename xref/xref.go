// Package xref locates the cross-reference information of a PDF file:
// classic tables, cross-reference streams, hybrid files and /Prev chains.
// Damaged files are recovered by scanning for object headers.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/scanner"
)

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	// EntryCompressed objects live inside an object stream.
	EntryCompressed
)

type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int // object stream number for compressed entries
	Index  int // index inside the object stream
}

// Table is the merged view over every cross-reference section of a file.
type Table struct {
	entries   map[int]Entry
	trailer   *raw.DictObj
	stream    bool
	startXRef int64
	repaired  bool
}

func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok
}

// Objects returns the in-use and compressed object numbers in order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *Table) Trailer() *raw.DictObj { return t.trailer }

// IsStream reports whether the newest section is a cross-reference stream.
func (t *Table) IsStream() bool { return t.stream }

// StartXRef is the offset named by the last startxref keyword.
func (t *Table) StartXRef() int64 { return t.startXRef }

// Repaired reports whether the table was rebuilt by scanning the file.
func (t *Table) Repaired() bool { return t.repaired }

func (t *Table) add(num int, e Entry) {
	if _, exists := t.entries[num]; !exists {
		t.entries[num] = e
	}
}

type ResolverConfig struct {
	MaxXRefDepth int
	Logger       observability.Logger
}

type Resolver struct {
	cfg      ResolverConfig
	pipeline *filters.Pipeline
	log      observability.Logger
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxXRefDepth == 0 {
		cfg.MaxXRefDepth = 64
	}
	return &Resolver{cfg: cfg, pipeline: filters.DefaultPipeline(), log: observability.OrNop(cfg.Logger)}
}

// ErrNoXRef is returned when neither the cross-reference chain nor a repair
// scan yields any objects.
var ErrNoXRef = errors.New("no cross-reference information")

// Resolve follows the startxref chain and falls back to Repair when it is
// broken.
func (r *Resolver) Resolve(ctx context.Context, data []byte) (*Table, error) {
	table, err := r.resolveChain(ctx, data)
	if err == nil {
		return table, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	r.log.Warn("xref chain unusable, scanning for objects", observability.Error("error", err))
	return r.Repair(ctx, data)
}

func (r *Resolver) resolveChain(ctx context.Context, data []byte) (*Table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	table := &Table{entries: make(map[int]Entry), startXRef: start}
	visited := make(map[int64]bool)
	offset := start
	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, errors.New("xref chain too deep")
		}
		if visited[offset] {
			return nil, fmt.Errorf("xref loop at offset %d", offset)
		}
		visited[offset] = true
		if offset <= 0 || offset >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset out of range: %d", offset)
		}
		trailer, isStream, err := r.readSection(ctx, data, offset, table)
		if err != nil {
			return nil, fmt.Errorf("xref at %d: %w", offset, err)
		}
		if depth == 0 {
			table.stream = isStream
		}
		mergeTrailer(table, trailer)
		prev, ok := raw.DictInt(trailer, "Prev")
		if !ok {
			break
		}
		offset = int64(prev)
	}
	if len(table.entries) == 0 {
		return nil, ErrNoXRef
	}
	return table, nil
}

// readSection parses one classic table (plus its hybrid XRefStm) or one
// cross-reference stream at offset.
func (r *Resolver) readSection(ctx context.Context, data []byte, offset int64, table *Table) (*raw.DictObj, bool, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, false, err
	}
	tok, err := s.Next()
	if err != nil {
		return nil, false, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		trailer, err := readTable(s, table)
		if err != nil {
			return nil, false, err
		}
		if stm, ok := raw.DictInt(trailer, "XRefStm"); ok {
			if _, _, err := r.readSection(ctx, data, int64(stm), table); err != nil {
				r.log.Warn("ignoring broken hybrid xref stream", observability.Int64("offset", int64(stm)), observability.Error("error", err))
			}
		}
		return trailer, false, nil
	}
	if err := s.Seek(offset); err != nil {
		return nil, false, err
	}
	_, obj, err := s.ReadIndirect(func(o raw.Object) int64 {
		n, ok := raw.IntOf(o)
		if !ok {
			return -1
		}
		return int64(n)
	})
	if err != nil {
		return nil, false, err
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, false, errors.New("expected xref keyword or stream")
	}
	if typ, _ := raw.DictName(stream.Dict, "Type"); typ != "XRef" {
		return nil, false, errors.New("stream is not a cross-reference stream")
	}
	if err := r.readStream(ctx, stream, table); err != nil {
		return nil, false, err
	}
	return stream.Dict, true, nil
}

func readTable(s *scanner.Scanner, table *Table) (*raw.DictObj, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, errors.New("unexpected end of xref section")
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := s.ReadObject()
			if err != nil {
				return nil, fmt.Errorf("trailer: %w", err)
			}
			dict, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			return dict, nil
		}
		countTok, err := s.Next()
		if err != nil || tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("invalid xref subsection header at %d", tok.Pos)
		}
		first, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			off, err1 := s.Next()
			gen, err2 := s.Next()
			kind, err3 := s.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, errors.New("unexpected end of xref section")
			}
			if off.Type != scanner.TokenNumber || gen.Type != scanner.TokenNumber || kind.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("invalid xref entry at %d", off.Pos)
			}
			e := Entry{Kind: EntryFree, Offset: off.Int, Gen: int(gen.Int)}
			if kind.Str == "n" {
				e.Kind = EntryInUse
			}
			num := first + i
			// a few writers start numbering at 1 with a leading free entry
			if num == 0 && e.Kind == EntryInUse {
				continue
			}
			table.add(num, e)
		}
	}
}

func (r *Resolver) readStream(ctx context.Context, stream *raw.StreamObj, table *Table) error {
	decoded, err := r.pipeline.DecodeStream(ctx, nil, stream)
	if err != nil {
		return fmt.Errorf("decode xref stream: %w", err)
	}
	wObj, _ := stream.Dict.Get("W")
	warr, _ := wObj.(*raw.ArrayObj)
	widths, ok := raw.Floats(warr)
	if !ok || len(widths) != 3 {
		return errors.New("xref stream /W must hold three widths")
	}
	w := [3]int{int(widths[0]), int(widths[1]), int(widths[2])}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return errors.New("xref stream /W is empty")
	}
	size, _ := raw.DictInt(stream.Dict, "Size")
	index := []float64{0, float64(size)}
	if idxObj, ok := stream.Dict.Get("Index"); ok {
		arr, _ := idxObj.(*raw.ArrayObj)
		if vals, ok := raw.Floats(arr); ok && len(vals)%2 == 0 {
			index = vals
		}
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(decoded) {
				return nil
			}
			row := decoded[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			num := first + j
			switch typ {
			case 0:
				table.add(num, Entry{Kind: EntryFree, Gen: int(f3)})
			case 1:
				table.add(num, Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)})
			case 2:
				table.add(num, Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)})
			}
		}
	}
	return nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func mergeTrailer(t *Table, d *raw.DictObj) {
	if t.trailer == nil {
		t.trailer = raw.Dict()
	}
	for _, k := range d.Keys() {
		switch k {
		case "Prev", "XRefStm", "Length", "Filter", "DecodeParms", "W", "Index", "Type":
			continue
		}
		if _, ok := t.trailer.Get(k); !ok {
			v, _ := d.Get(k)
			t.trailer.Set(k, v)
		}
	}
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	return off, nil
}
