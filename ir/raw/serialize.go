package raw

import (
	"encoding/hex"
	"math"
	"strconv"
)

// Serialize renders a direct object in PDF syntax. Streams render their
// dictionary and data; /Length is the caller's responsibility.
func Serialize(o Object) []byte { return AppendObject(nil, o) }

func AppendObject(b []byte, o Object) []byte {
	switch v := o.(type) {
	case NameObj:
		return append(b, NameLiteralText(v.Val)...)
	case NumberObj:
		if v.IsInt {
			return strconv.AppendInt(b, v.I, 10)
		}
		return AppendFloat(b, v.F)
	case BoolObj:
		return strconv.AppendBool(b, v.V)
	case NullObj:
		return append(b, "null"...)
	case StringObj:
		if v.Hex {
			b = append(b, '<')
			dst := make([]byte, hex.EncodedLen(len(v.Bytes)))
			hex.Encode(dst, v.Bytes)
			b = append(b, dst...)
			return append(b, '>')
		}
		return AppendLiteralString(b, v.Bytes)
	case *ArrayObj:
		b = append(b, '[')
		for i, it := range v.Items {
			if i > 0 {
				b = append(b, ' ')
			}
			b = AppendObject(b, it)
		}
		return append(b, ']')
	case *DictObj:
		b = append(b, "<<"...)
		for _, k := range v.Keys() {
			b = append(b, NameLiteralText(k)...)
			b = append(b, ' ')
			b = AppendObject(b, v.KV[k])
		}
		return append(b, ">>"...)
	case *StreamObj:
		b = AppendObject(b, v.Dict)
		b = append(b, "\nstream\n"...)
		b = append(b, v.Data...)
		return append(b, "\nendstream"...)
	case RefObj:
		b = strconv.AppendInt(b, int64(v.R.Num), 10)
		b = append(b, ' ')
		b = strconv.AppendInt(b, int64(v.R.Gen), 10)
		return append(b, " R"...)
	}
	return append(b, "null"...)
}

// AppendFloat writes f in plain decimal notation (PDF has no exponents),
// rounded to six places.
func AppendFloat(b []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(b, '0')
	}
	f = math.Round(f*1e6) / 1e6
	if f == 0 {
		return append(b, '0')
	}
	return strconv.AppendFloat(b, f, 'f', -1, 64)
}

// NameLiteralText returns "/"+value with delimiters and non-regular
// characters escaped as #XX.
func NameLiteralText(value string) string {
	out := make([]byte, 0, len(value)+1)
	out = append(out, '/')
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7f && !isNameDelimiter(ch) {
			out = append(out, ch)
			continue
		}
		out = append(out, '#', "0123456789ABCDEF"[ch>>4], "0123456789ABCDEF"[ch&15])
	}
	return string(out)
}

func isNameDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%', '#':
		return true
	}
	return false
}

func AppendLiteralString(b []byte, s []byte) []byte {
	b = append(b, '(')
	for _, ch := range s {
		switch ch {
		case '\\', '(', ')':
			b = append(b, '\\', ch)
		case '\n':
			b = append(b, `\n`...)
		case '\r':
			b = append(b, `\r`...)
		case '\t':
			b = append(b, `\t`...)
		case '\b':
			b = append(b, `\b`...)
		case '\f':
			b = append(b, `\f`...)
		default:
			if ch < 0x20 || ch >= 0x80 {
				b = append(b, '\\', '0'+ch>>6, '0'+(ch>>3)&7, '0'+ch&7)
			} else {
				b = append(b, ch)
			}
		}
	}
	return append(b, ')')
}
