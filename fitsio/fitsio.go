// Package fitsio implements the narrow FITS I/O collaborator of
// SPEC_FULL.md §6: reading and writing a package array.Array as a
// single-HDU FITS image. It is deliberately not a general FITS
// library — only enough of the IMAGE-HDU convention (80-byte cards,
// 2880-byte block padding, SIMPLE/BITPIX/NAXIS*/BSCALE/BZERO) to
// round-trip every element type package array supports, grounded on
// the original C library's include/tao-fits.h
// (tao_load_array_from_fits_file / tao_save_array_to_fits_file) with
// its fitsfile*/cfitsio handle replaced by plain io.Reader/io.Writer
// and its header-customization callback kept as a Go func(*Header)
// error editing a narrow struct instead of raw FITS keyword cards.
package fitsio

import (
	"fmt"
	"io"

	"github.com/WitIOT/tao/array"
)

const (
	cardSize  = 80
	blockSize = 2880
)

// Card is a single FITS header keyword record the edit callback may
// add, beyond the mandatory SIMPLE/BITPIX/NAXIS*/BSCALE/BZERO cards
// Save always writes itself.
type Card struct {
	Key     string
	Value   string
	Comment string
}

// Header is the narrow view of a FITS IMAGE HDU's header an edit
// callback can inspect or customize, corresponding to the original
// library's fitsfile* handle passed to its header-customization
// callback.
type Header struct {
	// Bitpix is the FITS BITPIX value package array derived from the
	// array's element type; changing it is not supported (Save
	// returns an error if BITPIX no longer matches the array's type
	// after Edit runs).
	Bitpix int

	// Naxis holds NAXIS1..NAXISn in FITS order, which is the same
	// column-major (fastest-varying-first) order package array
	// already uses, so no axis reversal is needed.
	Naxis []int64

	// Bscale and Bzero implement FITS's standard unsigned-integer
	// convention (physical = Bzero + Bscale*stored); Save sets them
	// from the array's element type and Load reports the values it
	// parsed.
	Bscale float64
	Bzero  float64

	// Extname is written as an EXTNAME card if non-empty.
	Extname string

	// Extra holds additional keyword cards a caller's edit callback
	// appends; Load populates it with every card besides the
	// mandatory ones it already parsed into the typed fields above.
	Extra []Card
}

// Codec loads and saves a package array.Array as a FITS image.
type Codec interface {
	Load(r io.Reader, edit func(h *Header) error) (*array.Array, error)
	Save(w io.Writer, a *array.Array, edit func(h *Header) error) error
}

func bitpixBzeroFor(t array.ElementType) (bitpix int, bzero float64, err error) {
	switch t {
	case array.Uint8:
		return 8, 0, nil
	case array.Int8:
		return 8, -128, nil
	case array.Int16:
		return 16, 0, nil
	case array.Uint16:
		return 16, 32768, nil
	case array.Int32:
		return 32, 0, nil
	case array.Uint32:
		return 32, 2147483648, nil
	case array.Int64:
		return 64, 0, nil
	case array.Uint64:
		// FITS's BZERO convention is only standardized for 16- and
		// 32-bit integers; extending it to 64 bits loses precision
		// beyond 2^53 through the float64 BZERO arithmetic. Acceptable
		// here since this codec's callers are camera/sensor frame
		// buffers (8-16 bit samples), never full-range uint64 data.
		return 64, 9223372036854775808, nil
	case array.Float32:
		return -32, 0, nil
	case array.Float64:
		return -64, 0, nil
	default:
		return 0, 0, fmt.Errorf("fitsio: unsupported element type %s", t)
	}
}

func elementTypeFor(bitpix int, bzero float64) (array.ElementType, error) {
	const eps = 0.5
	near := func(v, want float64) bool {
		d := v - want
		return d > -eps && d < eps
	}
	switch bitpix {
	case 8:
		if near(bzero, -128) {
			return array.Int8, nil
		}
		return array.Uint8, nil
	case 16:
		if near(bzero, 32768) {
			return array.Uint16, nil
		}
		return array.Int16, nil
	case 32:
		if near(bzero, 2147483648) {
			return array.Uint32, nil
		}
		return array.Int32, nil
	case 64:
		if near(bzero, 9223372036854775808) {
			return array.Uint64, nil
		}
		return array.Int64, nil
	case -32:
		return array.Float32, nil
	case -64:
		return array.Float64, nil
	default:
		return 0, fmt.Errorf("fitsio: unsupported BITPIX %d", bitpix)
	}
}
