package annotation

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNextID(t *testing.T) {
	s := NewStore()
	if got := s.NextID(); got != 1 {
		t.Fatalf("empty store NextID = %d, want 1", got)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.Create(1, 0, 0, &Whiteout{Width: 10, Height: 10}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	s.Remove(2)
	var ids []int
	for _, a := range s.All() {
		ids = append(ids, a.ID)
	}
	if diff := cmp.Diff([]int{1, 3, 4}, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if got := s.NextID(); got != 5 {
		t.Fatalf("NextID = %d, want 5", got)
	}
}

func TestCreateThenRemove(t *testing.T) {
	s := NewStore()
	a, err := s.Create(2, 10, 20, &Text{Content: "x", Size: 12})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !s.Remove(a.ID) {
		t.Fatalf("remove reported missing id")
	}
	if got := s.ListByPage(2); len(got) != 0 {
		t.Fatalf("page still lists %+v", got)
	}
	if s.Remove(a.ID) {
		t.Fatalf("second remove should report false")
	}
}

func TestValidationRejectsDegenerateGeometry(t *testing.T) {
	cases := []struct {
		name string
		page int
		x    float64
		body Body
	}{
		{"nan width", 1, 0, &Whiteout{Width: math.NaN(), Height: 10}},
		{"sub-minimum height", 1, 0, &Shape{Width: 10, Height: 0.5}},
		{"negative width", 1, 0, &Image{Width: -5, Height: 10}},
		{"zero text size", 1, 0, &Text{Content: "a"}},
		{"negative stroke", 1, 0, &Shape{Width: 10, Height: 10, StrokeWidth: -1}},
		{"page zero", 0, 0, &Whiteout{Width: 10, Height: 10}},
		{"infinite x", 1, math.Inf(1), &Whiteout{Width: 10, Height: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			_, err := s.Create(tc.page, tc.x, 0, tc.body)
			if !errors.Is(err, ErrInvalidGeometry) {
				t.Fatalf("err = %v, want ErrInvalidGeometry", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field == "" {
				t.Fatalf("err %v is not a ValidationError with a field", err)
			}
			if s.Len() != 0 {
				t.Fatalf("store changed on invalid create")
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	s := NewStore()
	w, _ := s.Create(1, 0, 0, &Whiteout{Width: 10, Height: 10})
	sh, _ := s.Create(1, 0, 0, &Shape{Width: 10, Height: 10, StrokeWidth: 2})

	if err := s.Update(99, Patch{X: Ptr(5.0)}); err != nil {
		t.Fatalf("unknown id should be a no-op, got %v", err)
	}
	if err := s.Update(w.ID, Patch{Color: &Black}); !errors.Is(err, ErrFieldNotApplicable) {
		t.Fatalf("colour on whiteout: err = %v", err)
	}
	if err := s.Update(sh.ID, Patch{Width: Ptr(0.0)}); !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("zero width: err = %v", err)
	}
	if err := s.Update(sh.ID, Patch{X: Ptr(3.0), Fill: Ptr(true), Color: &White}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.Get(sh.ID)
	want := Annotation{ID: sh.ID, Page: 1, X: 3, Body: &Shape{Width: 10, Height: 10, StrokeWidth: 2, Fill: true, Color: White}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("updated (-want +got):\n%s", diff)
	}
}

func TestInsertIsAtomic(t *testing.T) {
	s := NewStore()
	_, err := s.Insert(
		Annotation{Page: 1, Body: &Whiteout{Width: 10, Height: 10}},
		Annotation{Page: 1, Body: &Text{Content: "x", Size: -1}},
	)
	if err == nil || s.Len() != 0 {
		t.Fatalf("partial insert: err=%v len=%d", err, s.Len())
	}
	out, err := s.Insert(
		Annotation{Page: 1, Body: &Whiteout{Width: 10, Height: 10}},
		Annotation{Page: 1, Body: &Text{Content: "x", Size: 9}},
	)
	if err != nil || out[0].ID != 1 || out[1].ID != 2 {
		t.Fatalf("insert = %+v, %v", out, err)
	}
}

func TestReturnedAnnotationsAreCopies(t *testing.T) {
	s := NewStore()
	a, _ := s.Create(1, 0, 0, &Text{Content: "keep", Size: 10})
	a.Body.(*Text).Content = "changed"
	got, _ := s.Get(a.ID)
	if got.Body.(*Text).Content != "keep" {
		t.Fatalf("store shares body with caller")
	}
}

func TestJSONInterchange(t *testing.T) {
	in := []Annotation{
		{ID: 1, Page: 1, X: 10, Y: 20, Body: &Text{Content: "Invoice", Size: 12, Color: Black, FontFamily: "Helvetica"}},
		{ID: 2, Page: 1, X: 8, Y: 18, Body: &Whiteout{Width: 54, Height: 16}},
		{ID: 3, Page: 2, X: 0, Y: 0, Body: &Shape{Width: 100, Height: 100, Color: Indigo, StrokeWidth: 2}},
		{ID: 4, Page: 2, X: 5, Y: 5, Body: &Image{Width: 150, Height: 75, Data: []byte{1, 2, 3}, MIMEType: "image/png", Signature: true}},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []Annotation
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
	if out[3].Kind() != KindSignature {
		t.Fatalf("kind = %s", out[3].Kind())
	}
}

func TestUnmarshalDefaultsAndErrors(t *testing.T) {
	var a Annotation
	if err := json.Unmarshal([]byte(`{"id":7,"type":"text","page":1,"x":1,"y":2,"text":"New Text"}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if txt := a.Body.(*Text); txt.Size != 16 || txt.Color != Indigo {
		t.Fatalf("defaults not applied: %+v", txt)
	}
	if err := json.Unmarshal([]byte(`{"type":"circle","page":1}`), &a); err == nil {
		t.Fatalf("unknown type accepted")
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#6366f1")
	if err != nil || c != Indigo || c.Hex() != "#6366f1" {
		t.Fatalf("ParseHex = %v, %v", c, err)
	}
	if c, _ := ParseHex("fff"); c != White {
		t.Fatalf("short form = %v", c)
	}
	if _, err := ParseHex("#12345"); err == nil {
		t.Fatalf("expected error for bad length")
	}
}
