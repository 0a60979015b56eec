package filters

import (
	"bytes"
	"compress/flate"
	stdlzw "compress/lzw"
	"context"
	stdascii85 "encoding/ascii85"
	"errors"
	"testing"

	"github.com/wudi/pdfedit/ir/raw"
)

func TestFlateRoundTrip(t *testing.T) {
	enc, err := FlateEncode([]byte("BT /F1 12 Tf (hello) Tj ET"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := NewFlateDecoder().Decode(context.Background(), enc, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "BT /F1 12 Tf (hello) Tj ET" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithoutZlibHeader(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()
	out, err := NewFlateDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	comp, _ := FlateEncode([]byte{1, 10, 12, 20, 2, 1, 1, 1})
	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(3))

	out, err := NewFlateDecoder().Decode(context.Background(), comp, params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42, 11, 23, 43}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := stdlzw.NewWriter(&buf, stdlzw.MSB, 8)
	w.Write([]byte("-----A---B"))
	w.Close()
	out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "-----A---B" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIFilters(t *testing.T) {
	enc := make([]byte, stdascii85.MaxEncodedLen(5))
	n := stdascii85.Encode(enc, []byte("hello"))
	a85 := append(append([]byte("<~"), enc[:n]...), "~>"...)
	out, err := NewASCII85Decoder().Decode(context.Background(), a85, nil)
	if err != nil || string(out) != "hello" {
		t.Fatalf("ascii85 = %q, %v", out, err)
	}
	out, err = NewASCIIHexDecoder().Decode(context.Background(), []byte("48 65 6C6C 6F7>"), nil)
	if err != nil || string(out) != "Hello\x70" {
		t.Fatalf("asciihex = %q, %v", out, err)
	}
}

func TestRunLengthDecode(t *testing.T) {
	in := []byte{2, 'a', 'b', 'c', 254, 'x', 128, 'z'}
	out, err := NewRunLengthDecoder().Decode(context.Background(), in, nil)
	if err != nil || string(out) != "abcxxx" {
		t.Fatalf("runlength = %q, %v", out, err)
	}
}

func TestPipelineChainsAndAbbreviations(t *testing.T) {
	comp, _ := FlateEncode([]byte("data"))
	hexed := []byte{}
	for _, b := range comp {
		hexed = append(hexed, "0123456789ABCDEF"[b>>4], "0123456789ABCDEF"[b&15])
	}
	hexed = append(hexed, '>')

	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.NameLiteral("AHx"), raw.NameLiteral("Fl")))
	out, err := DefaultPipeline().DecodeStream(context.Background(), nil, raw.NewStream(dict, hexed))
	if err != nil || string(out) != "data" {
		t.Fatalf("pipeline = %q, %v", out, err)
	}
}

func TestPipelineUnsupported(t *testing.T) {
	_, err := DefaultPipeline().Decode(context.Background(), []byte{0xff}, []string{"DCTDecode"}, nil)
	if !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("expected ErrUnsupportedFilter, got %v", err)
	}
}
