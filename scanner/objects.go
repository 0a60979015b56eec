package scanner

import (
	"bytes"
	"fmt"

	"github.com/wudi/pdfedit/ir/raw"
)

// LengthFunc resolves a stream's /Length entry, which may be an indirect
// reference. It returns -1 when the length is unknown.
type LengthFunc func(raw.Object) int64

// ReadObject parses one complete object at the current position.
func (s *Scanner) ReadObject() (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return s.ReadObjectFrom(tok)
}

// ReadObjectFrom completes the object that begins with tok.
func (s *Scanner) ReadObjectFrom(tok Token) (raw.Object, error) {
	return s.object(tok, 0)
}

func (s *Scanner) object(tok Token, depth int) (raw.Object, error) {
	if depth > s.cfg.MaxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d at %d", ErrSyntax, s.cfg.MaxDepth, tok.Pos)
	}
	switch tok.Type {
	case TokenName:
		return raw.NameLiteral(tok.Str), nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		return raw.Ref(tok.Num, tok.Gen), nil
	case TokenArray:
		arr := raw.NewArray()
		for {
			next, err := s.Next()
			if err != nil {
				return nil, fmt.Errorf("%w: unterminated array at %d", ErrSyntax, tok.Pos)
			}
			if next.Type == TokenKeyword && next.Str == "]" {
				return arr, nil
			}
			item, err := s.object(next, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case TokenDict:
		dict := raw.Dict()
		for {
			key, err := s.Next()
			if err != nil {
				return nil, fmt.Errorf("%w: unterminated dictionary at %d", ErrSyntax, tok.Pos)
			}
			if key.Type == TokenKeyword && key.Str == ">>" {
				return dict, nil
			}
			if key.Type != TokenName {
				return nil, fmt.Errorf("%w: dictionary key is not a name at %d", ErrSyntax, key.Pos)
			}
			valTok, err := s.Next()
			if err != nil {
				return nil, fmt.Errorf("%w: unterminated dictionary at %d", ErrSyntax, tok.Pos)
			}
			if valTok.Type == TokenKeyword && valTok.Str == ">>" {
				// key without value; treat as null and close
				return dict, nil
			}
			val, err := s.object(valTok, depth+1)
			if err != nil {
				return nil, err
			}
			if _, isNull := val.(raw.NullObj); !isNull {
				dict.Set(key.Str, val)
			}
		}
	}
	return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, tok.Str, tok.Pos)
}

// ReadIndirect parses "num gen obj ... endobj" at the current position,
// including any stream body.
func (s *Scanner) ReadIndirect(length LengthFunc) (raw.ObjectRef, raw.Object, error) {
	var ref raw.ObjectRef
	numTok, err := s.Next()
	if err != nil {
		return ref, nil, err
	}
	genTok, err := s.Next()
	if err != nil {
		return ref, nil, err
	}
	objTok, err := s.Next()
	if err != nil {
		return ref, nil, err
	}
	if numTok.Type != TokenNumber || !numTok.IsInt || genTok.Type != TokenNumber || !genTok.IsInt ||
		objTok.Type != TokenKeyword || objTok.Str != "obj" {
		return ref, nil, fmt.Errorf("%w: expected object header at %d", ErrSyntax, numTok.Pos)
	}
	ref = raw.ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}
	obj, err := s.ReadObject()
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	save := s.pos
	next, err := s.Next()
	if err != nil {
		return ref, obj, nil
	}
	if next.Type == TokenKeyword && next.Str == "stream" {
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			return ref, nil, fmt.Errorf("%w: stream without dictionary in object %s", ErrSyntax, ref)
		}
		data, err := s.readStreamBody(dict, length)
		if err != nil {
			return ref, nil, fmt.Errorf("object %s: %w", ref, err)
		}
		obj = raw.NewStream(dict, data)
		save = s.pos
		next, err = s.Next()
		if err != nil {
			return ref, obj, nil
		}
	}
	if next.Type != TokenKeyword || next.Str != "endobj" {
		// tolerate a missing endobj
		s.pos = save
	}
	return ref, obj, nil
}

var endstream = []byte("endstream")

func (s *Scanner) readStreamBody(dict *raw.DictObj, length LengthFunc) ([]byte, error) {
	for s.pos < int64(len(s.data)) && s.data[s.pos] == ' ' {
		s.pos++
	}
	s.SkipEOL()
	start := s.pos
	n := int64(-1)
	if v, ok := dict.Get("Length"); ok && length != nil {
		n = length(v)
	}
	if n >= 0 && start+n <= int64(len(s.data)) {
		end := start + n
		rest := s.data[end:]
		trimmed := bytes.TrimLeft(rest, "\r\n \t")
		if bytes.HasPrefix(trimmed, endstream) {
			s.pos = end + int64(len(rest)-len(trimmed)) + int64(len(endstream))
			return s.data[start:end], nil
		}
	}
	idx := bytes.Index(s.data[start:], endstream)
	if idx < 0 {
		return nil, fmt.Errorf("%w: endstream not found", ErrSyntax)
	}
	end := start + int64(idx)
	s.pos = end + int64(len(endstream))
	if end > start && s.data[end-1] == '\n' {
		end--
	}
	if end > start && s.data[end-1] == '\r' {
		end--
	}
	return s.data[start:end], nil
}

// ReadInlineImage consumes inline image data after the ID operator and
// returns it. The scanner is left after the closing EI.
func (s *Scanner) ReadInlineImage() ([]byte, error) {
	if s.pos < int64(len(s.data)) && isWhitespace(s.data[s.pos]) {
		s.pos++
	}
	start := s.pos
	for i := start; i+2 <= int64(len(s.data)); i++ {
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		before := i == start || isWhitespace(s.data[i-1])
		after := i+2 == int64(len(s.data)) || isDelimiter(s.data[i+2])
		if before && after {
			s.pos = i + 2
			end := i
			if end > start && isWhitespace(s.data[end-1]) {
				end--
			}
			return s.data[start:end], nil
		}
	}
	return nil, fmt.Errorf("%w: unterminated inline image at %d", ErrSyntax, start)
}
