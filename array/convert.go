package array

import (
	"math"

	"github.com/WitIOT/tao/errs"
)

// ReadElement decodes the element at the start of b according to t,
// widening it to a float64. It is the building block package pixel's
// preprocessing kernels use to read a raw pixel regardless of its wire
// element type.
func ReadElement(b []byte, t ElementType) float64 { return readFloat64(b, t) }

// WriteElement narrows v and encodes it at the start of b according to
// t, the Encode counterpart of ReadElement.
func WriteElement(b []byte, t ElementType, v float64) { writeFloat64(b, t, v) }

// readFloat64 decodes the element at the start of b according to t.
func readFloat64(b []byte, t ElementType) float64 {
	switch t {
	case Int8:
		return float64(int8(b[0]))
	case Uint8:
		return float64(b[0])
	case Int16:
		return float64(int16(le16(b)))
	case Uint16:
		return float64(le16(b))
	case Int32:
		return float64(int32(le32(b)))
	case Uint32:
		return float64(le32(b))
	case Int64:
		return float64(int64(le64(b)))
	case Uint64:
		return float64(le64(b))
	case Float32:
		return float64(math.Float32frombits(uint32(le32(b))))
	case Float64:
		return math.Float64frombits(le64(b))
	default:
		panic("array: unknown element type in readFloat64")
	}
}

// writeFloat64 narrows v and encodes it at the start of b according to t.
func writeFloat64(b []byte, t ElementType, v float64) {
	switch t {
	case Int8:
		b[0] = byte(int8(v))
	case Uint8:
		b[0] = byte(uint8(v))
	case Int16:
		putLe16(b, uint16(int16(v)))
	case Uint16:
		putLe16(b, uint16(v))
	case Int32:
		putLe32(b, uint32(int32(v)))
	case Uint32:
		putLe32(b, uint32(v))
	case Int64:
		putLe64(b, uint64(int64(v)))
	case Uint64:
		putLe64(b, uint64(v))
	case Float32:
		putLe32(b, math.Float32bits(float32(v)))
	case Float64:
		putLe64(b, math.Float64bits(v))
	default:
		panic("array: unknown element type in writeFloat64")
	}
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64(b []byte) uint64 {
	return uint64(le32(b)) | uint64(le32(b[4:]))<<32
}

func putLe16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putLe64(b []byte, v uint64) {
	putLe32(b, uint32(v))
	putLe32(b[4:], uint32(v>>32))
}

// CopyConvertRegion copies a width x height region from src (row stride
// srcStride bytes, element type srcType) into dst (row stride dstStride
// bytes, element type dstType), converting each element through a
// float64 intermediate. Rows may be strided on either side; this is the
// generic region copy/convert spec component 7 names, underneath the
// photometric preprocessing package `pixel` layers on top.
func CopyConvertRegion(dst []byte, dstType ElementType, dstStride int, src []byte, srcType ElementType, srcStride int, width, height int) error {
	if width <= 0 || height <= 0 {
		return errs.Record{Func: "array.CopyConvertRegion", Code: errs.BadROI, Message: "region dimensions must be positive"}
	}
	srcElem, dstElem := srcType.Size(), dstType.Size()
	if srcStride < width*srcElem || dstStride < width*dstElem {
		return errs.Record{Func: "array.CopyConvertRegion", Code: errs.BadROI, Message: "stride smaller than row width"}
	}
	for row := 0; row < height; row++ {
		srcRow := src[row*srcStride:]
		dstRow := dst[row*dstStride:]
		for col := 0; col < width; col++ {
			v := readFloat64(srcRow[col*srcElem:], srcType)
			writeFloat64(dstRow[col*dstElem:], dstType, v)
		}
	}
	return nil
}

// Unpack12 expands a packed-12-bit row (2 pixels per 3 bytes, little-
// endian nibble order: byte0 = p0[7:0], byte1 = p0[11:8] | p1[3:0]<<4,
// byte2 = p1[11:4]) into width uint16 samples.
func Unpack12(packed []byte, width int) ([]uint16, error) {
	if width%2 != 0 {
		return nil, errs.Record{Func: "array.Unpack12", Code: errs.BadArgument, Message: "packed-12 rows must have an even pixel count"}
	}
	need := width / 2 * 3
	if len(packed) < need {
		return nil, errs.Record{Func: "array.Unpack12", Code: errs.BadROI, Message: "packed row too short"}
	}
	out := make([]uint16, width)
	for i := 0; i < width/2; i++ {
		b0, b1, b2 := packed[i*3], packed[i*3+1], packed[i*3+2]
		out[2*i] = uint16(b0) | uint16(b1&0x0F)<<8
		out[2*i+1] = uint16(b1>>4) | uint16(b2)<<4
	}
	return out, nil
}

// Pack12 packs width uint16 samples (only the low 12 bits of each are
// used) into the packed-12-bit row layout Unpack12 decodes.
func Pack12(samples []uint16) ([]byte, error) {
	if len(samples)%2 != 0 {
		return nil, errs.Record{Func: "array.Pack12", Code: errs.BadArgument, Message: "packed-12 rows must have an even pixel count"}
	}
	out := make([]byte, len(samples)/2*3)
	for i := 0; i < len(samples)/2; i++ {
		p0, p1 := samples[2*i]&0x0FFF, samples[2*i+1]&0x0FFF
		out[i*3] = byte(p0)
		out[i*3+1] = byte(p0>>8) | byte(p1<<4)
		out[i*3+2] = byte(p1 >> 4)
	}
	return out, nil
}
