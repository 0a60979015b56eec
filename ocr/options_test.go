package ocr

import (
	"context"
	"reflect"
	"testing"
)

func TestTesseractOptions(t *testing.T) {
	in := Input{}
	WithTesseractPSM(6)(&in)
	if got := in.Metadata["tessedit_pageseg_mode"]; got != "6" {
		t.Fatalf("expected PSM to be set, got %q", got)
	}
	WithTesseractWhitelist("ABC")(&in)
	if got := in.Metadata["tessedit_char_whitelist"]; got != "ABC" {
		t.Fatalf("expected whitelist to be set, got %q", got)
	}
}

func TestPageInput(t *testing.T) {
	region := Region{X: 0, Y: 0, Width: 1, Height: 1}
	meta := map[string]string{"psm": "6"}
	in := PageInput(2, []byte{0x89, 'P', 'N', 'G'},
		WithLanguages("eng", "spa"),
		WithRegion(region),
		WithDPI(144),
		WithMetadata(meta),
	)
	if in.Format != ImageFormatPNG || in.PageIndex != 2 || in.ID != "page-2" {
		t.Fatalf("unexpected input: %+v", in)
	}
	if !reflect.DeepEqual(in.Languages, []string{"eng", "spa"}) {
		t.Fatalf("unexpected languages: %+v", in.Languages)
	}
	if in.Region == nil || *in.Region != region {
		t.Fatalf("unexpected region: %#v", in.Region)
	}
	meta["psm"] = "7"
	if in.Metadata["psm"] != "6" {
		t.Fatalf("metadata was not copied: %+v", in.Metadata)
	}
}

func TestWithRegionClearsEmpty(t *testing.T) {
	in := Input{Region: &Region{X: 1, Y: 1, Width: 2, Height: 2}}
	WithRegion(Region{})(&in)
	if in.Region != nil {
		t.Fatalf("expected nil region for empty input, got %#v", in.Region)
	}
}

func TestRegionScale(t *testing.T) {
	got := Region{X: 20, Y: 40, Width: 100, Height: 24}.Scale(2)
	if got != (Region{X: 10, Y: 20, Width: 50, Height: 12}) {
		t.Fatalf("scaled = %+v", got)
	}
}

func TestNopEchoesID(t *testing.T) {
	res, err := Nop{}.Recognize(context.Background(), Input{ID: "page-0"})
	if err != nil || res.InputID != "page-0" || len(res.Lines) != 0 {
		t.Fatalf("nop = %+v, %v", res, err)
	}
}
