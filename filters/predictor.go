package filters

import (
	"errors"

	"github.com/wudi/pdfedit/ir/raw"
)

func predictorParams(params *raw.DictObj) (predictor, colors, bpc, columns int) {
	predictor, colors, bpc, columns = 1, 1, 8, 1
	if v, ok := raw.DictInt(params, "Predictor"); ok {
		predictor = v
	}
	if v, ok := raw.DictInt(params, "Colors"); ok && v > 0 {
		colors = v
	}
	if v, ok := raw.DictInt(params, "BitsPerComponent"); ok && v > 0 {
		bpc = v
	}
	if v, ok := raw.DictInt(params, "Columns"); ok && v > 0 {
		columns = v
	}
	return
}

// applyPredictor reverses TIFF (2) and PNG (>=10) predictors.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	predictor, colors, bpc, columns := predictorParams(params)
	if predictor <= 1 {
		return data, nil
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if predictor == 2 {
		if bpc != 8 {
			return nil, errors.New("TIFF predictor only supported for 8-bit components")
		}
		out := append([]byte(nil), data...)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	}
	if predictor < 10 {
		return nil, errors.New("unknown predictor")
	}
	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	for i := 0; i+1 <= len(data); i += rowLen + 1 {
		filter := data[i]
		end := i + 1 + rowLen
		if end > len(data) {
			end = len(data)
		}
		row := make([]byte, rowLen)
		copy(row, data[i+1:end])
		for x := 0; x < rowLen; x++ {
			var left, upLeft byte
			if x >= bpp {
				left = row[x-bpp]
				upLeft = prev[x-bpp]
			}
			up := prev[x]
			switch filter {
			case 0:
			case 1:
				row[x] += left
			case 2:
				row[x] += up
			case 3:
				row[x] += byte((int(left) + int(up)) / 2)
			case 4:
				row[x] += paeth(left, up, upLeft)
			default:
				return nil, errors.New("invalid PNG predictor row filter")
			}
		}
		out = append(out, row[:end-i-1]...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
