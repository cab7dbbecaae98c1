// Package layout implements the 2-D index-map helpers of spec §4.8: the
// bridge between a boolean active/inactive mask over a grid and the
// consecutive integer indices a remote mirror's actuator layout (or a
// sensor's sub-image grid) uses to name active cells in a command or
// measurement vector. Grounded on the teacher's small, allocation-light
// integer helpers in common/go/bitset and common/go/numa; unlike those,
// these functions report bad arguments as errs records instead of
// panicking.
package layout

import (
	"sort"

	"github.com/WitIOT/tao/errs"
)

// Orientation bits for BuildIndexedLayout (spec §4.8): the lower three
// bits invert numbering along axis 1, invert numbering along axis 2, and
// swap row-major/column-major numbering order, respectively.
const (
	OrientInvertAxis1 = 1 << 0
	OrientInvertAxis2 = 1 << 1
	OrientTranspose    = 1 << 2
)

func validateGrid(dim1, dim2 int) error {
	if dim1 <= 0 || dim2 <= 0 {
		return errs.Record{Func: "layout", Code: errs.BadArgument, Message: "grid dimensions must be positive"}
	}
	return nil
}

// BuildIndexedLayout assigns consecutive indices (in traversal order) to
// the active (true) cells of mask, a dim1 x dim2 grid stored
// column-major (first index varies fastest), honoring orient, and
// returns the populated index grid plus the active count. Inactive
// cells receive -1.
func BuildIndexedLayout(mask []bool, dim1, dim2, orient int) ([]int32, int, error) {
	if err := validateGrid(dim1, dim2); err != nil {
		return nil, 0, err
	}
	n := dim1 * dim2
	if len(mask) != n {
		return nil, 0, errs.Record{Func: "layout.BuildIndexedLayout", Code: errs.BadArgument, Message: "mask length must equal dim1*dim2"}
	}

	invert1 := orient&OrientInvertAxis1 != 0
	invert2 := orient&OrientInvertAxis2 != 0
	transpose := orient&OrientTranspose != 0

	out := make([]int32, n)
	idx := int32(0)

	visit := func(i, j int) {
		ii, jj := i, j
		if invert1 {
			ii = dim1 - 1 - i
		}
		if invert2 {
			jj = dim2 - 1 - j
		}
		pos := jj*dim1 + ii
		if mask[pos] {
			out[pos] = idx
			idx++
		} else {
			out[pos] = -1
		}
	}

	if transpose {
		for i := 0; i < dim1; i++ {
			for j := 0; j < dim2; j++ {
				visit(i, j)
			}
		}
	} else {
		for j := 0; j < dim2; j++ {
			for i := 0; i < dim1; i++ {
				visit(i, j)
			}
		}
	}

	return out, int(idx), nil
}

// CheckIndexedLayout verifies inds is a well-formed index grid — every
// active (non-negative) entry lies in [0, count), with no gaps or
// duplicates — and returns count, the number of active nodes.
func CheckIndexedLayout(inds []int32, dim1, dim2 int) (int, error) {
	if err := validateGrid(dim1, dim2); err != nil {
		return 0, err
	}
	n := dim1 * dim2
	if len(inds) != n {
		return 0, errs.Record{Func: "layout.CheckIndexedLayout", Code: errs.BadArgument, Message: "inds length must equal dim1*dim2"}
	}

	maxIdx := int32(-1)
	active := 0
	for _, v := range inds {
		if v == -1 {
			continue
		}
		if v < 0 {
			return 0, errs.Record{Func: "layout.CheckIndexedLayout", Code: errs.Corrupted, Message: "index entries must be -1 or non-negative"}
		}
		active++
		if v > maxIdx {
			maxIdx = v
		}
	}
	count := int(maxIdx) + 1
	if active != count {
		return 0, errs.Record{Func: "layout.CheckIndexedLayout", Code: errs.Corrupted, Message: "active index range has gaps or duplicates"}
	}

	seen := make([]bool, count)
	for _, v := range inds {
		if v == -1 {
			continue
		}
		if int(v) >= count || seen[v] {
			return 0, errs.Record{Func: "layout.CheckIndexedLayout", Code: errs.Corrupted, Message: "active index out of range or duplicated"}
		}
		seen[v] = true
	}

	return count, nil
}

// InstantiateMask places targetNacts active nodes centred on a dim1 x
// dim2 grid, selecting the pixels with the largest value of
// f(i,j) = (dim1+1-i)*i + (dim2+1-j)*j (1-based i,j), raising an integer
// threshold until the active count matches targetNacts exactly; if no
// threshold produces an exact match, the smallest threshold giving at
// least targetNacts nodes is used (spec §4.8).
func InstantiateMask(dim1, dim2, targetNacts int) ([]bool, error) {
	if err := validateGrid(dim1, dim2); err != nil {
		return nil, err
	}
	n := dim1 * dim2
	if targetNacts < 0 || targetNacts > n {
		return nil, errs.Record{Func: "layout.InstantiateMask", Code: errs.BadArgument, Message: "target node count out of range"}
	}

	mask := make([]bool, n)
	if targetNacts == 0 {
		return mask, nil
	}

	scores := make([]int, n)
	for j := 1; j <= dim2; j++ {
		for i := 1; i <= dim1; i++ {
			scores[(j-1)*dim1+(i-1)] = (dim1+1-i)*i + (dim2+1-j)*j
		}
	}

	uniqueDesc := uniqueSortedDescending(scores)

	threshold := uniqueDesc[0]
	for _, t := range uniqueDesc {
		count := countAtLeast(scores, t)
		threshold = t
		if count >= targetNacts {
			break
		}
	}

	for idx, s := range scores {
		if s >= threshold {
			mask[idx] = true
		}
	}
	return mask, nil
}

func uniqueSortedDescending(values []int) []int {
	seen := make(map[int]bool, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func countAtLeast(values []int, threshold int) int {
	n := 0
	for _, v := range values {
		if v >= threshold {
			n++
		}
	}
	return n
}
