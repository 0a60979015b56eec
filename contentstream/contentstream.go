// Package contentstream parses and serializes page content streams and
// traces text placement through the graphics and text state.
package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/scanner"
)

// Operation is one operator with its operands. Inline images are stored as
// operator "BI" with the image dictionary and the raw data as operands.
type Operation struct {
	Operator string
	Operands []raw.Object
}

func Op(operator string, operands ...raw.Object) Operation {
	return Operation{Operator: operator, Operands: operands}
}

// Parse splits a decoded content stream into operations. Trailing operands
// without an operator are dropped.
func Parse(data []byte) ([]Operation, error) {
	s := scanner.New(data, scanner.Config{})
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return ops, fmt.Errorf("content stream: %w", err)
		}
		if tok.Type != scanner.TokenKeyword || tok.Str == "{" || tok.Str == "}" {
			obj, err := s.ReadObjectFrom(tok)
			if err != nil {
				if tok.Type == scanner.TokenKeyword {
					continue
				}
				return ops, fmt.Errorf("content stream: %w", err)
			}
			operands = append(operands, obj)
			continue
		}
		if tok.Str == "BI" {
			op, err := readInlineImage(s)
			if err != nil {
				return ops, fmt.Errorf("content stream: %w", err)
			}
			ops = append(ops, op)
			operands = nil
			continue
		}
		ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
		operands = nil
	}
}

func readInlineImage(s *scanner.Scanner) (Operation, error) {
	dict := raw.Dict()
	for {
		tok, err := s.Next()
		if err != nil {
			return Operation{}, fmt.Errorf("inline image: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "ID" {
			break
		}
		if tok.Type != scanner.TokenName {
			return Operation{}, fmt.Errorf("inline image: key is not a name at %d", tok.Pos)
		}
		val, err := s.ReadObject()
		if err != nil {
			return Operation{}, fmt.Errorf("inline image: %w", err)
		}
		dict.Set(tok.Str, val)
	}
	data, err := s.ReadInlineImage()
	if err != nil {
		return Operation{}, err
	}
	return Operation{Operator: "BI", Operands: []raw.Object{dict, raw.Str(data)}}, nil
}

// Serialize writes operations one per line.
func Serialize(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" && len(op.Operands) == 2 {
			writeInlineImage(&buf, op)
			continue
		}
		var line []byte
		for _, operand := range op.Operands {
			line = raw.AppendObject(line, operand)
			line = append(line, ' ')
		}
		buf.Write(line)
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeInlineImage(buf *bytes.Buffer, op Operation) {
	buf.WriteString("BI")
	if d, ok := op.Operands[0].(*raw.DictObj); ok {
		for _, k := range d.Keys() {
			buf.WriteByte(' ')
			buf.WriteString(raw.NameLiteralText(k))
			buf.WriteByte(' ')
			buf.Write(raw.Serialize(d.KV[k]))
		}
	}
	buf.WriteString(" ID ")
	if s, ok := op.Operands[1].(raw.StringObj); ok {
		buf.Write(s.Bytes)
	}
	buf.WriteString("\nEI\n")
}

// Number returns the numeric value of operand i, or 0.
func (op Operation) Number(i int) float64 {
	if i >= len(op.Operands) {
		return 0
	}
	f, _ := raw.FloatOf(op.Operands[i])
	return f
}

func (op Operation) Matrix() coords.Matrix {
	var m coords.Matrix
	for i := 0; i < 6; i++ {
		m[i] = op.Number(i)
	}
	return m
}

func Num(f float64) raw.Object { return raw.NumberFloat(f) }

// Wrap encloses ops in a q/Q pair so that graphics state changes made by
// ops cannot leak into what follows.
func Wrap(ops []Operation) []Operation {
	out := make([]Operation, 0, len(ops)+2)
	out = append(out, Op("q"))
	out = append(out, ops...)
	return append(out, Op("Q"))
}
