package extractor

import "strings"

// helveticaWidths are the Helvetica advance widths for WinAnsi codes 32-126.
var helveticaWidths = [95]float64{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

// standardWidths fills widths for a simple font without /Widths, which is
// only legal for the standard 14 fonts. Courier is monospaced; every other
// face is approximated with Helvetica.
func standardWidths(f *font, base string) {
	if strings.HasPrefix(base, "Courier") {
		f.missing = 600
		return
	}
	f.missing = 556
	for i, w := range helveticaWidths {
		f.widths[uint32(i+32)] = w
	}
}
