package writer

import (
	"fmt"
	"sort"

	"github.com/wudi/pdfedit/ir/raw"
)

// appendXRefTable writes a classic table with one subsection per run of
// consecutive object numbers. A complete table also lists object 0 and the
// free gaps.
func appendXRefTable(buf []byte, offsets map[int]int64, trailer *raw.DictObj, complete bool) []byte {
	start := len(buf)
	buf = append(buf, "xref\n"...)
	if complete {
		size, _ := raw.DictInt(trailer, "Size")
		buf = fmt.Appendf(buf, "0 %d\n", size)
		buf = append(buf, "0000000000 65535 f \n"...)
		for n := 1; n < size; n++ {
			if off, ok := offsets[n]; ok {
				buf = fmt.Appendf(buf, "%010d 00000 n \n", off)
			} else {
				buf = append(buf, "0000000000 00001 f \n"...)
			}
		}
	} else {
		for _, seg := range segments(offsets) {
			buf = fmt.Appendf(buf, "%d %d\n", seg[0], seg[1])
			for n := seg[0]; n < seg[0]+seg[1]; n++ {
				buf = fmt.Appendf(buf, "%010d 00000 n \n", offsets[n])
			}
		}
	}
	buf = append(buf, "trailer\n"...)
	buf = raw.AppendObject(buf, trailer)
	return fmt.Appendf(buf, "\nstartxref\n%d\n%%%%EOF\n", start)
}

// appendXRefStream writes the section as a cross-reference stream object
// numbered size, with 1-4-2 byte fields.
func appendXRefStream(buf []byte, offsets map[int]int64, trailer *raw.DictObj, size int) ([]byte, error) {
	start := int64(len(buf))
	offsets[size] = start
	index := raw.NewArray()
	var entries []byte
	for _, seg := range segments(offsets) {
		index.Append(raw.NumberInt(int64(seg[0])))
		index.Append(raw.NumberInt(int64(seg[1])))
		for n := seg[0]; n < seg[0]+seg[1]; n++ {
			off := offsets[n]
			entries = append(entries, 1, byte(off>>24), byte(off>>16), byte(off>>8), byte(off), 0, 0)
		}
	}
	dict := trailer.Clone()
	dict.Set("Size", raw.NumberInt(int64(size+1)))
	dict.Set("Type", raw.NameLiteral("XRef"))
	dict.Set("W", raw.NewArray(raw.NumberInt(1), raw.NumberInt(4), raw.NumberInt(2)))
	dict.Set("Index", index)
	dict.Set("Length", raw.NumberInt(int64(len(entries))))
	buf = appendIndirect(buf, raw.ObjectRef{Num: size}, raw.NewStream(dict, entries))
	return fmt.Appendf(buf, "startxref\n%d\n%%%%EOF\n", start), nil
}

// segments groups object numbers into [first, count] runs.
func segments(offsets map[int]int64) [][2]int {
	nums := make([]int, 0, len(offsets))
	for n := range offsets {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	var out [][2]int
	for _, n := range nums {
		if k := len(out); k > 0 && out[k-1][0]+out[k-1][1] == n {
			out[k-1][1]++
			continue
		}
		out = append(out, [2]int{n, 1})
	}
	return out
}
