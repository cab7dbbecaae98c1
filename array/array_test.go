package array_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/shm"
)

func Test_NewArrayShapeAndColumnMajorOrder(t *testing.T) {
	a, err := array.New(array.Uint16, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(6), a.NElem())

	a.Set(1, 0, 0)
	a.Set(2, 1, 0)
	a.Set(3, 2, 0)
	a.Set(4, 0, 1)

	assert.Equal(t, float64(1), a.At(0, 0))
	assert.Equal(t, float64(2), a.At(1, 0))
	assert.Equal(t, float64(4), a.At(0, 1))

	// column-major: index (1,0) must be the second raw element, not (0,1).
	second, err := array.New(array.Uint16, 6)
	require.NoError(t, err)
	copy(second.Data, a.Data)
	assert.Equal(t, float64(2), second.At(1))
}

func Test_NewRejectsBadShape(t *testing.T) {
	_, err := array.New(array.Float64)
	assert.Error(t, err)
	_, err = array.New(array.Float64, 1, 2, 3, 4, 5, 6)
	assert.Error(t, err)
	_, err = array.New(array.Float64, 0)
	assert.Error(t, err)
}

func Test_DimsBeyondNdimsAreOne(t *testing.T) {
	a, err := array.New(array.Int32, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Dims[1])
	assert.Equal(t, int64(1), a.Dims[4])
}

func Test_CopyConvertRegionStridedToContiguous(t *testing.T) {
	src, err := array.New(array.Uint16, 4, 2)
	require.NoError(t, err)
	for x := int64(0); x < 4; x++ {
		for y := int64(0); y < 2; y++ {
			src.Set(float64(10*y+x), x, y)
		}
	}

	dstStride := 4 * 8
	dst := make([]byte, dstStride*2)
	err = array.CopyConvertRegion(dst, array.Float64, dstStride, src.Data, array.Uint16, 4*2, 4, 2)
	require.NoError(t, err)

	readBack, err := array.New(array.Float64, 4, 2)
	require.NoError(t, err)
	copy(readBack.Data, dst)
	assert.Equal(t, float64(11), readBack.At(1, 1))
}

func Test_CopyConvertRegionRejectsShortStride(t *testing.T) {
	src, err := array.New(array.Uint8, 4)
	require.NoError(t, err)
	dst := make([]byte, 2)
	err = array.CopyConvertRegion(dst, array.Uint8, 2, src.Data, array.Uint8, 4, 4, 1)
	assert.Error(t, err)
}

func Test_Pack12RoundTrip(t *testing.T) {
	samples := []uint16{0, 1, 4095, 2048}
	packed, err := array.Pack12(samples)
	require.NoError(t, err)
	unpacked, err := array.Unpack12(packed, len(samples))
	require.NoError(t, err)
	assert.Equal(t, samples, unpacked)
}

func Test_SharedArrayCreateAttachPublish(t *testing.T) {
	s, err := array.Create(array.Float32, shm.Perm{}, 8, 8)
	require.NoError(t, err)
	defer s.Detach()

	require.Equal(t, ipc.OK, s.WLock(context.Background()))
	view, err := array.New(array.Float32, s.NElem())
	require.NoError(t, err)
	view.Set(3.5, 2)
	copy(s.Data(), view.Data)
	s.SetTimestamp(0, clock.Now())
	s.PublishSerial(1)
	s.WUnlock()

	shmid := int(s.Header.Shmid)
	other, err := array.Attach(shmid)
	require.NoError(t, err)
	defer other.Detach()

	require.Equal(t, ipc.OK, other.RLock(context.Background()))
	readBack, err := array.New(array.Float32, other.NElem())
	require.NoError(t, err)
	copy(readBack.Data, other.Data())
	assert.InDelta(t, 3.5, readBack.At(2), 1e-6)
	assert.Equal(t, int64(1), other.Serial())
	other.RUnlock()
}

func Test_OpenAcceptsSharedArray(t *testing.T) {
	s, err := array.Create(array.Int8, shm.Perm{}, 2)
	require.NoError(t, err)
	shmid := int(s.Header.Shmid)
	defer s.Detach()

	same, err := array.Open(shmid)
	require.NoError(t, err)
	require.NoError(t, same.Detach())
}
