package pixel

import (
	"math"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/errs"
)

// Inputs describes one frame's worth of preprocessing work (spec §4.5).
type Inputs struct {
	Raw       []byte // raw acquisition buffer, rows may be strided.
	RawType   RawType
	RawStride int // bytes between successive raw rows; 0 = tightly packed.
	Width     int
	Height    int

	Level   Level
	OutType array.ElementType // must be Float32 or Float64.

	// A, B, Q, R are contiguous OutType arrays of Width*Height elements,
	// required only by the levels that read them (Level.RequiresArray).
	A, B, Q, R []byte
}

// Outputs holds a preprocessed frame's contiguous `dat` array and, for
// LevelFull, its `wgt` array.
type Outputs struct {
	Dat []byte
	Wgt []byte
}

func rawRowBytes(t RawType, width int) int {
	if t == RawPacked12 {
		return width / 2 * 3
	}
	return width * t.BytesPerSample()
}

// decodeRawRow decodes one row of width raw samples into float64s,
// transparently unpacking packed-12-bit rows.
func decodeRawRow(raw []byte, rawType RawType, width int) ([]float64, error) {
	out := make([]float64, width)
	if rawType == RawPacked12 {
		samples, err := array.Unpack12(raw, width)
		if err != nil {
			return nil, err
		}
		for i, s := range samples {
			out[i] = float64(s)
		}
		return out, nil
	}

	elemSize := rawType.BytesPerSample()
	elemType := rawType.ElementType()
	for i := 0; i < width; i++ {
		out[i] = array.ReadElement(raw[i*elemSize:], elemType)
	}
	return out, nil
}

// Preprocess runs the raw-to-processed pipeline of spec §4.5: for every
// pixel, `dat[i] = convert(raw[i])` (level none), `dat[i] =
// (convert(raw[i]) - b[i]) * a[i]` (affine), and additionally `wgt[i] =
// q[i] / (max(dat[i], 0) + r[i])` (full) — Open Question (b)'s resolved
// variant, which preserves NaN through `max` by construction (Go's
// math.Max returns NaN whenever either operand is NaN).
//
// One kernel table-dispatches over every (RawType, OutType, Level)
// combination spec §4.5 requires, rather than 24 hand-written functions
// per combination; RawType.ElementType/array.ReadElement/WriteElement
// already form the per-element-type table the combinatorial requirement
// calls for.
func Preprocess(in Inputs) (Outputs, error) {
	if in.Width <= 0 || in.Height <= 0 {
		return Outputs{}, errs.Record{Func: "pixel.Preprocess", Code: errs.BadROI, Message: "width and height must be positive"}
	}
	if in.OutType != array.Float32 && in.OutType != array.Float64 {
		return Outputs{}, errs.Record{Func: "pixel.Preprocess", Code: errs.Unsupported, Message: "preprocessing output must be float32 or float64"}
	}
	if in.Level != LevelNone && (in.A == nil || in.B == nil) {
		return Outputs{}, errs.Record{Func: "pixel.Preprocess", Code: errs.BadArgument, Message: "affine/full preprocessing requires a and b arrays"}
	}
	if in.Level == LevelFull && (in.Q == nil || in.R == nil) {
		return Outputs{}, errs.Record{Func: "pixel.Preprocess", Code: errs.BadArgument, Message: "full preprocessing requires q and r arrays"}
	}

	elemSize := in.OutType.Size()
	rowBytes := rawRowBytes(in.RawType, in.Width)
	stride := in.RawStride
	if stride == 0 {
		stride = rowBytes
	}
	if stride < rowBytes {
		return Outputs{}, errs.Record{Func: "pixel.Preprocess", Code: errs.BadROI, Message: "raw row stride smaller than row width"}
	}

	dat := make([]byte, in.Width*in.Height*elemSize)
	var wgt []byte
	if in.Level == LevelFull {
		wgt = make([]byte, len(dat))
	}

	for y := 0; y < in.Height; y++ {
		rowStart := y * stride
		if rowStart+rowBytes > len(in.Raw) {
			return Outputs{}, errs.Record{Func: "pixel.Preprocess", Code: errs.BadROI, Message: "raw buffer shorter than width*height implies"}
		}
		row, err := decodeRawRow(in.Raw[rowStart:], in.RawType, in.Width)
		if err != nil {
			return Outputs{}, err
		}

		for x := 0; x < in.Width; x++ {
			idx := y*in.Width + x
			off := idx * elemSize

			datVal := row[x]
			if in.Level == LevelAffine || in.Level == LevelFull {
				a := array.ReadElement(in.A[off:], in.OutType)
				b := array.ReadElement(in.B[off:], in.OutType)
				datVal = (row[x] - b) * a
			}
			array.WriteElement(dat[off:], in.OutType, datVal)

			if in.Level == LevelFull {
				q := array.ReadElement(in.Q[off:], in.OutType)
				r := array.ReadElement(in.R[off:], in.OutType)
				wgtVal := q / (math.Max(datVal, 0) + r)
				array.WriteElement(wgt[off:], in.OutType, wgtVal)
			}
		}
	}

	return Outputs{Dat: dat, Wgt: wgt}, nil
}
