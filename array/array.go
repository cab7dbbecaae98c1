// Package array implements the multi-dimensional array (spec §3.1): a
// column-major, up-to-5-dimensional typed buffer, both as a plain
// in-process value (used for staging and FITS round-tripping) and as the
// read/write-locked shared object `array.Shared` in which a camera
// publishes each frame's preprocessed data.
package array

import (
	"fmt"

	"github.com/WitIOT/tao/errs"
)

// ElementType is one of the 10 numeric element variants (spec §3.3).
type ElementType int32

const (
	Int8 ElementType = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

var elementNames = map[ElementType]string{
	Int8: "int8", Uint8: "uint8",
	Int16: "int16", Uint16: "uint16",
	Int32: "int32", Uint32: "uint32",
	Int64: "int64", Uint64: "uint64",
	Float32: "float32", Float64: "float64",
}

func (t ElementType) String() string {
	if name, ok := elementNames[t]; ok {
		return name
	}
	return fmt.Sprintf("element-type(%d)", int32(t))
}

// Size returns the element's byte size.
func (t ElementType) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		panic(fmt.Sprintf("array: unknown element type %d", int32(t)))
	}
}

// Float reports whether t is a floating-point element type.
func (t ElementType) Float() bool { return t == Float32 || t == Float64 }

// MaxDims is the maximum supported number of dimensions (spec §3.1).
const MaxDims = 5

// MaxTimestamps is the size of the shared array's fixed timestamp table.
const MaxTimestamps = 5

// Alignment is the byte alignment element storage begins at, after the
// header (spec §3.1, §6): it minimizes false sharing between the header's
// cache line and the data a reader may touch without the mutex.
const Alignment = 64

// Dims is a fixed-size per-dimension length vector. Entries at index >=
// ndims are always 1 (spec §3.1's "dims beyond ndims are treated as 1").
type Dims [MaxDims]int64

// NElem returns the product of the first ndims entries (the others are 1
// by construction and don't change the product).
func (d Dims) NElem(ndims int) int64 {
	n := int64(1)
	for i := 0; i < ndims; i++ {
		n *= d[i]
	}
	return n
}

func validateDims(dims []int64) (Dims, error) {
	var d Dims
	for i := range d {
		d[i] = 1
	}
	if len(dims) < 1 || len(dims) > MaxDims {
		return d, errs.Record{Func: "array.validateDims", Code: errs.BadArgument, Message: "ndims must be between 1 and 5"}
	}
	for i, v := range dims {
		if v <= 0 {
			return d, errs.Record{Func: "array.validateDims", Code: errs.BadArgument, Message: "every dimension length must be positive"}
		}
		d[i] = v
	}
	return d, nil
}

// Array is a plain in-process column-major typed array (element order:
// first index varies fastest).
type Array struct {
	Eltype ElementType
	Ndims  int
	Dims   Dims
	Data   []byte
}

// New allocates a zero-filled array of the given element type and shape.
func New(eltype ElementType, dims ...int64) (*Array, error) {
	d, err := validateDims(dims)
	if err != nil {
		return nil, err
	}
	n := d.NElem(len(dims))
	return &Array{
		Eltype: eltype,
		Ndims:  len(dims),
		Dims:   d,
		Data:   make([]byte, n*int64(eltype.Size())),
	}, nil
}

// NElem returns the total element count (product of the active dims).
func (a *Array) NElem() int64 { return a.Dims.NElem(a.Ndims) }

// offset computes the column-major byte offset of element idx.
func (a *Array) offset(idx []int64) int64 {
	var off, stride int64 = 0, 1
	for i := 0; i < a.Ndims; i++ {
		off += idx[i] * stride
		stride *= a.Dims[i]
	}
	return off * int64(a.Eltype.Size())
}

// At reads element idx as a float64, widening/narrowing as needed. It
// panics when the computed offset falls outside Data, consistent with
// the teacher's own panic-on-contract-violation helpers (e.g.
// bitset.Insert); individual indices are not range-checked against
// their dimension.
func (a *Array) At(idx ...int64) float64 {
	off := a.offset(idx)
	return readFloat64(a.Data[off:], a.Eltype)
}

// Set writes v into element idx, narrowing to the array's element type.
func (a *Array) Set(v float64, idx ...int64) {
	off := a.offset(idx)
	writeFloat64(a.Data[off:], a.Eltype, v)
}
