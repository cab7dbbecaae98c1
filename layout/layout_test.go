package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/layout"
)

func Test_BuildThenCheckAgree(t *testing.T) {
	mask := []bool{
		true, false, true, true,
		false, true, false, true,
	}
	inds, built, err := layout.BuildIndexedLayout(mask, 4, 2, 0)
	require.NoError(t, err)

	checked, err := layout.CheckIndexedLayout(inds, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, built, checked)
}

func Test_BuildIndexedLayoutConsecutiveInColumnMajorOrder(t *testing.T) {
	mask := []bool{true, true, true, true}
	inds, count, err := layout.BuildIndexedLayout(mask, 2, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, []int32{0, 1, 2, 3}, inds)
}

func Test_BuildIndexedLayoutInactiveAreMinusOne(t *testing.T) {
	mask := []bool{true, false}
	inds, count, err := layout.BuildIndexedLayout(mask, 2, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, int32(0), inds[0])
	assert.Equal(t, int32(-1), inds[1])
}

func Test_CheckIndexedLayoutRejectsGaps(t *testing.T) {
	_, err := layout.CheckIndexedLayout([]int32{0, 2, -1}, 3, 1)
	assert.Error(t, err)
}

func Test_CheckIndexedLayoutRejectsDuplicates(t *testing.T) {
	_, err := layout.CheckIndexedLayout([]int32{0, 0}, 2, 1)
	assert.Error(t, err)
}

func Test_InstantiateMaskCentering(t *testing.T) {
	mask, err := layout.InstantiateMask(10, 10, 60)
	require.NoError(t, err)

	count := 0
	for _, v := range mask {
		if v {
			count++
		}
	}
	assert.GreaterOrEqual(t, count, 60)

	at := func(i, j int) bool { return mask[j*10+i] } // 0-based, column-major

	// bilaterally symmetric under both axis reflections.
	for j := 0; j < 10; j++ {
		for i := 0; i < 10; i++ {
			assert.Equal(t, at(i, j), at(9-i, j), "axis-1 reflection symmetry at (%d,%d)", i, j)
			assert.Equal(t, at(i, j), at(i, 9-j), "axis-2 reflection symmetry at (%d,%d)", i, j)
		}
	}

	// the central 2x2 block (indices 4,5 on each axis) is active.
	assert.True(t, at(4, 4))
	assert.True(t, at(5, 4))
	assert.True(t, at(4, 5))
	assert.True(t, at(5, 5))
}

func Test_InstantiateMaskZeroTarget(t *testing.T) {
	mask, err := layout.InstantiateMask(4, 4, 0)
	require.NoError(t, err)
	for _, v := range mask {
		assert.False(t, v)
	}
}

func Test_InstantiateMaskRejectsOutOfRangeTarget(t *testing.T) {
	_, err := layout.InstantiateMask(2, 2, 5)
	assert.Error(t, err)
}
