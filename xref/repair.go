package xref

import (
	"bytes"
	"context"
	"regexp"
	"strconv"

	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/scanner"
)

var objHeader = regexp.MustCompile(`(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)

// Repair rebuilds the table by scanning for "<num> <gen> obj" headers and
// the last trailer dictionary. Later definitions of the same object win, as
// they would in an incremental update chain.
func (r *Resolver) Repair(ctx context.Context, data []byte) (*Table, error) {
	table := &Table{entries: make(map[int]Entry), repaired: true}
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// header must start a line or follow a delimiter
		if m[0] > 0 && !isBoundary(data[m[0]-1]) {
			continue
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		table.entries[num] = Entry{Kind: EntryInUse, Offset: int64(m[0]), Gen: gen}
	}
	if len(table.entries) == 0 {
		return nil, ErrNoXRef
	}

	if idx := bytes.LastIndex(data, []byte("trailer")); idx >= 0 {
		s := scanner.New(data, scanner.Config{})
		if err := s.Seek(int64(idx + len("trailer"))); err == nil {
			if obj, err := s.ReadObject(); err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					mergeTrailer(table, dict)
				}
			}
		}
	}
	if table.trailer == nil {
		table.trailer = raw.Dict()
	}
	if _, ok := table.trailer.Get("Size"); !ok {
		max := 0
		for n := range table.entries {
			if n > max {
				max = n
			}
		}
		table.trailer.Set("Size", raw.NumberInt(int64(max+1)))
	}
	r.log.Info("xref repaired", observability.Int("objects", len(table.entries)))
	return table, nil
}

func isBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '>', ']', ')':
		return true
	}
	return false
}
