// Package pixel implements the buffer-encoding descriptor and the
// raw-to-processed preprocessing kernels of spec §3.3 and §4.5: turning
// a camera's raw acquisition buffer into the floating-point `dat`/`wgt`
// arrays a remote camera publishes.
package pixel

import (
	"fmt"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/errs"
)

// Colorant is the pixel-layout tag carried in an Encoding (spec §3.3).
type Colorant uint8

const (
	Raw Colorant = iota
	Mono
	RGB
	BGR
	ARGB
	RGBA
	ABGR
	BGRA
	BayerRGGB
	BayerBGGR
	BayerGRBG
	BayerGBRG
	YUV411
	YUV422
	YUV444
	YUYV
	Signed
	Float
)

// Flag bits for Encoding's top byte (spec §3.3): MSB/LSB bit-packing
// padding and the two Andor-specific transfer modes.
type Flag uint8

const (
	FlagMSBPadding Flag = 1 << iota
	FlagLSBPadding
	FlagAndorCoded
	FlagAndorParallel
)

// Encoding is the 32-bit value `flags<<24 | colorant<<16 |
// bits_per_packet<<8 | bits_per_pixel` (spec §3.3).
type Encoding uint32

// NewEncoding assembles an Encoding from its four fields.
func NewEncoding(colorant Colorant, bitsPerPacket, bitsPerPixel uint8, flags Flag) Encoding {
	return Encoding(uint32(flags)<<24 | uint32(colorant)<<16 | uint32(bitsPerPacket)<<8 | uint32(bitsPerPixel))
}

func (e Encoding) Flags() Flag          { return Flag(e >> 24) }
func (e Encoding) Colorant() Colorant   { return Colorant((e >> 16) & 0xFF) }
func (e Encoding) BitsPerPacket() uint8 { return uint8((e >> 8) & 0xFF) }
func (e Encoding) BitsPerPixel() uint8  { return uint8(e & 0xFF) }

func (e Encoding) String() string {
	return fmt.Sprintf("encoding(colorant=%d, bpp=%d/%d, flags=%#x)", e.Colorant(), e.BitsPerPacket(), e.BitsPerPixel(), e.Flags())
}

// Required mono encodings (spec §4.5: "8-bit, 16-bit, 32-bit unsigned
// integers and packed-12-bit are required inputs").
var (
	Mono8    = NewEncoding(Mono, 8, 8, 0)
	Mono16   = NewEncoding(Mono, 16, 16, 0)
	Mono32   = NewEncoding(Mono, 32, 32, 0)
	MonoP12  = NewEncoding(Mono, 12, 16, 0)
)

// RawType is the logical raw-sample representation a preprocessing
// kernel reads, independent of Encoding's bit-level layout.
type RawType int

const (
	RawUint8 RawType = iota
	RawUint16
	RawUint32
	RawPacked12
)

// RawTypeOf maps an Encoding to the RawType a kernel should use to read
// it, rejecting anything outside the required raw/mono unsigned-integer
// set (spec §4.5's preprocessing contract only binds that set; color and
// float encodings are out of scope for the preprocessing pipeline).
func RawTypeOf(e Encoding) (RawType, error) {
	if e.Colorant() != Mono && e.Colorant() != Raw {
		return 0, errs.Record{Func: "pixel.RawTypeOf", Code: errs.Unsupported, Message: "preprocessing requires a raw or mono encoding"}
	}
	switch {
	case e.BitsPerPacket() == 12 && e.BitsPerPixel() == 16:
		return RawPacked12, nil
	case e.BitsPerPixel() == 8:
		return RawUint8, nil
	case e.BitsPerPixel() == 16:
		return RawUint16, nil
	case e.BitsPerPixel() == 32:
		return RawUint32, nil
	default:
		return 0, errs.Record{Func: "pixel.RawTypeOf", Code: errs.Unsupported, Message: "unsupported bits-per-pixel for preprocessing"}
	}
}

// ElementType returns the array.ElementType a RawType decodes as when
// stored unpacked (used to size intermediate buffers).
func (r RawType) ElementType() array.ElementType {
	switch r {
	case RawUint8:
		return array.Uint8
	case RawUint16, RawPacked12:
		return array.Uint16
	case RawUint32:
		return array.Uint32
	default:
		panic("pixel: unknown raw type")
	}
}

// BytesPerSample returns the wire byte width of one raw sample's packed
// representation: 1 for 8-bit, 2 for 16-bit, 4 for 32-bit. Packed-12 has
// no fixed per-sample width (3 bytes per 2 samples) and must be unpacked
// a full row at a time via array.Unpack12.
func (r RawType) BytesPerSample() int {
	switch r {
	case RawUint8:
		return 1
	case RawUint16:
		return 2
	case RawUint32:
		return 4
	case RawPacked12:
		return 0
	default:
		panic("pixel: unknown raw type")
	}
}

// Level is the preprocessing level (spec §4.5, §3.3).
type Level int

const (
	LevelNone Level = iota
	LevelAffine
	LevelFull
)

// RequiresArray reports whether level L reads the preprocessing array at
// index idx (0=a, 1=b, 2=q, 3=r), for camera.preprocessing_shmid's "bad"
// sentinel when the level doesn't use it.
func (l Level) RequiresArray(idx int) bool {
	switch l {
	case LevelNone:
		return false
	case LevelAffine:
		return idx == 0 || idx == 1
	case LevelFull:
		return true
	default:
		return false
	}
}
