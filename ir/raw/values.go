package raw

// Value accessors shared by the parser, extractor and builder. They return
// ok=false instead of erroring so callers can fall back to PDF defaults.

func NameOf(obj Object) (string, bool) {
	n, ok := obj.(NameObj)
	return n.Val, ok
}

func FloatOf(obj Object) (float64, bool) {
	n, ok := obj.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

func IntOf(obj Object) (int, bool) {
	n, ok := obj.(NumberObj)
	if !ok {
		return 0, false
	}
	return int(n.Int()), true
}

func BytesOf(obj Object) ([]byte, bool) {
	s, ok := obj.(StringObj)
	if !ok {
		return nil, false
	}
	return s.Bytes, true
}

// Floats converts an array of numbers. Non-numeric items make it fail.
func Floats(arr *ArrayObj) ([]float64, bool) {
	if arr == nil {
		return nil, false
	}
	out := make([]float64, 0, len(arr.Items))
	for _, it := range arr.Items {
		f, ok := FloatOf(it)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// DictName reads a name entry from d.
func DictName(d *DictObj, key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	return NameOf(v)
}

// DictInt reads an integer entry from d.
func DictInt(d *DictObj, key string) (int, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	return IntOf(v)
}
