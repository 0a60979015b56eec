package extractor

import (
	"bytes"
	"sort"

	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/scanner"
	"golang.org/x/text/encoding/unicode"
)

// cmap holds the parts of a CMap needed for text extraction: codespace
// ranges for splitting strings into codes and bfchar/bfrange mappings from
// codes to Unicode text.
type cmap struct {
	space  []codespace
	chars  map[string]string
	ranges []bfrange
}

type codespace struct {
	lo, hi []byte
}

type bfrange struct {
	lo, hi uint32
	n      int
	dst    []byte   // UTF-16BE for lo; later codes increment the last unit
	list   []string // array form: one entry per code
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// parseCMap reads begin/end sections from a CMap program. Unknown
// operators are skipped; a malformed program yields whatever parsed so far.
func parseCMap(data []byte) *cmap {
	c := &cmap{chars: make(map[string]string)}
	s := scanner.New(data, scanner.Config{})
	var operands []raw.Object
	for {
		tok, err := s.Next()
		if err != nil {
			break
		}
		if tok.Type != scanner.TokenKeyword {
			obj, err := s.ReadObjectFrom(tok)
			if err != nil {
				break
			}
			operands = append(operands, obj)
			continue
		}
		switch tok.Str {
		case "endcodespacerange":
			for i := 0; i+1 < len(operands); i += 2 {
				lo, ok1 := raw.BytesOf(operands[i])
				hi, ok2 := raw.BytesOf(operands[i+1])
				if ok1 && ok2 && len(lo) == len(hi) && len(lo) > 0 {
					c.space = append(c.space, codespace{lo: lo, hi: hi})
				}
			}
		case "endbfchar":
			for i := 0; i+1 < len(operands); i += 2 {
				src, ok1 := raw.BytesOf(operands[i])
				dst, ok2 := raw.BytesOf(operands[i+1])
				if ok1 && ok2 {
					c.chars[string(src)] = decodeUTF16(dst)
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(operands); i += 3 {
				c.addRange(operands[i], operands[i+1], operands[i+2])
			}
		}
		operands = operands[:0]
	}
	sort.SliceStable(c.space, func(i, j int) bool { return len(c.space[i].lo) < len(c.space[j].lo) })
	return c
}

func (c *cmap) addRange(loObj, hiObj, dstObj raw.Object) {
	lo, ok1 := raw.BytesOf(loObj)
	hi, ok2 := raw.BytesOf(hiObj)
	if !ok1 || !ok2 || len(lo) != len(hi) || len(lo) == 0 || len(lo) > 4 {
		return
	}
	r := bfrange{lo: codeValue(lo), hi: codeValue(hi), n: len(lo)}
	if r.hi < r.lo {
		return
	}
	switch dst := dstObj.(type) {
	case raw.StringObj:
		r.dst = dst.Bytes
	case *raw.ArrayObj:
		for _, item := range dst.Items {
			b, _ := raw.BytesOf(item)
			r.list = append(r.list, decodeUTF16(b))
		}
	default:
		return
	}
	c.ranges = append(c.ranges, r)
}

// lookup maps one character code to text.
func (c *cmap) lookup(code []byte) (string, bool) {
	if c == nil {
		return "", false
	}
	if s, ok := c.chars[string(code)]; ok {
		return s, true
	}
	v := codeValue(code)
	for _, r := range c.ranges {
		if r.n != len(code) || v < r.lo || v > r.hi {
			continue
		}
		off := v - r.lo
		if r.list != nil {
			if int(off) < len(r.list) {
				return r.list[off], true
			}
			return "", false
		}
		dst := append([]byte(nil), r.dst...)
		if len(dst) >= 2 {
			last := uint32(dst[len(dst)-2])<<8 | uint32(dst[len(dst)-1])
			last += off
			dst[len(dst)-2], dst[len(dst)-1] = byte(last>>8), byte(last)
		} else if len(dst) == 1 {
			dst[0] += byte(off)
		}
		return decodeUTF16(dst), true
	}
	return "", false
}

// split cuts s into character codes using the codespace ranges, shortest
// matching range first. Bytes that match no range are consumed
// fallback bytes at a time.
func (c *cmap) split(s []byte, fallback int) [][]byte {
	var codes [][]byte
	for i := 0; i < len(s); {
		n := 0
		if c != nil {
			for _, sp := range c.space {
				l := len(sp.lo)
				if i+l <= len(s) && inRange(s[i:i+l], sp) {
					n = l
					break
				}
			}
		}
		if n == 0 {
			n = fallback
		}
		if i+n > len(s) {
			n = len(s) - i
		}
		codes = append(codes, s[i:i+n])
		i += n
	}
	return codes
}

func inRange(code []byte, sp codespace) bool {
	for k := range code {
		if code[k] < sp.lo[k] || code[k] > sp.hi[k] {
			return false
		}
	}
	return true
}

func codeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func decodeUTF16(b []byte) string {
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	out, err := utf16be.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(bytes.TrimRight(out, "\x00"))
}
