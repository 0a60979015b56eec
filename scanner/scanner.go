// Package scanner tokenizes PDF file bodies and content streams and
// assembles tokens into raw objects.
package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenKeyword                  // obj, endobj, stream, >>, ], operators
)

type Token struct {
	Type  TokenType
	Str   string // names and keywords
	Bytes []byte // string payloads
	Hex   bool
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Num   int // TokenRef object number
	Gen   int // TokenRef generation
	Pos   int64
}

// Number returns the numeric value of a TokenNumber.
func (t Token) Number() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

type Config struct {
	MaxStringLength int64
	MaxDepth        int
}

// ErrSyntax marks malformed input.
var ErrSyntax = errors.New("pdf syntax error")

// Scanner reads tokens from an in-memory buffer.
type Scanner struct {
	data []byte
	pos  int64
	cfg  Config
}

func New(data []byte, cfg Config) *Scanner {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 64
	}
	return &Scanner{data: data, cfg: cfg}
}

func (s *Scanner) Position() int64 { return s.pos }
func (s *Scanner) Data() []byte    { return s.data }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek %d: out of range", offset)
	}
	s.pos = offset
	return nil
}

// Next returns the next token or io.EOF.
func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenKeyword, Str: "]", Pos: start}, nil
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName(), nil
	case ')':
		s.pos++
		return Token{}, fmt.Errorf("%w: unbalanced ')' at %d", ErrSyntax, start)
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	return s.scanKeyword(), nil
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

// SkipEOL consumes a single CR, LF or CRLF if present.
func (s *Scanner) SkipEOL() {
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
}

func (s *Scanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName() Token {
	start := s.pos
	s.pos++
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		switch c {
		case '\\':
			s.pos++
			if s.pos >= int64(len(s.data)) {
				continue
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r' || esc == '\n':
				s.SkipEOL()
			case esc >= '0' && esc <= '7':
				val := 0
				for k := 0; k < 3 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
				s.pos++
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				s.pos++
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
			}
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("%w: literal string too long at %d", ErrSyntax, start)
		}
	}
	return Token{}, fmt.Errorf("%w: unterminated literal string at %d", ErrSyntax, start)
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++
	var out []byte
	var hi byte
	odd := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if odd {
				out = append(out, hi<<4)
			}
			return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			return Token{}, fmt.Errorf("%w: bad hex digit %q at %d", ErrSyntax, c, s.pos-1)
		}
		if odd {
			out = append(out, hi<<4|fromHex(c))
		} else {
			hi = fromHex(c)
		}
		odd = !odd
	}
	return Token{}, fmt.Errorf("%w: unterminated hex string at %d", ErrSyntax, start)
}

func (s *Scanner) scanKeyword() Token {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		// lone delimiter we do not otherwise handle
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Pos: start}
	case "null":
		return Token{Type: TokenNull, Pos: start}
	}
	return Token{Type: TokenKeyword, Str: kw, Pos: start}
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	first := s.scanNumberString()
	if first == "" {
		return s.scanKeyword(), nil
	}
	tok := numberToken(first, start)
	if !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}
	// lookahead for "gen R"
	save := s.pos
	s.skipWSAndComments()
	second := s.scanNumberString()
	if second != "" {
		gen, err := strconv.Atoi(second)
		s.skipWSAndComments()
		if err == nil && s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
			(s.pos+1 == int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
			s.pos++
			return Token{Type: TokenRef, Num: int(tok.Int), Gen: gen, Pos: start}, nil
		}
	}
	s.pos = save
	return tok, nil
}

func numberToken(text string, pos int64) Token {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, IsInt: true, Pos: pos}
	}
	// tolerate producer noise such as "--3" or "1.2.3"
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		f = lenientFloat(text)
	}
	return Token{Type: TokenNumber, Float: f, Pos: pos}
}

func lenientFloat(text string) float64 {
	neg := false
	i := 0
	for i < len(text) && (text[i] == '-' || text[i] == '+') {
		neg = neg || text[i] == '-'
		i++
	}
	j := i
	dot := false
	for j < len(text) && (text[j] >= '0' && text[j] <= '9' || (text[j] == '.' && !dot)) {
		dot = dot || text[j] == '.'
		j++
	}
	f, _ := strconv.ParseFloat(text[i:j], 64)
	if neg {
		return -f
	}
	return f
}

func (s *Scanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			seenDigit = seenDigit || (c >= '0' && c <= '9')
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool        { return c == '\r' || c == '\n' }
func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }
func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
