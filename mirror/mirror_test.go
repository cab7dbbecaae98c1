package mirror_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/mirror"
	"github.com/WitIOT/tao/remote"
	"github.com/WitIOT/tao/shm"
)

// a 2x2 fully-populated actuator grid, indices 0..3 in column-major order.
func testLayout() (dim1, dim2 int64, inds []int32) {
	return 2, 2, []int32{0, 1, 2, 3}
}

func newTestMirror(t *testing.T) *mirror.Object {
	t.Helper()
	dim1, dim2, inds := testLayout()
	obj, err := mirror.Create("test", dim1, dim2, inds, -1, 1, 4, shm.Perm{})
	require.NoError(t, err)
	obj.Remote().Header().State.Store(int32(remote.StateWaiting))
	t.Cleanup(func() { _ = obj.Detach() })
	return obj
}

func Test_CreateRejectsTooFewBuffers(t *testing.T) {
	_, _, inds := testLayout()
	_, err := mirror.Create("test", 2, 2, inds, -1, 1, 1, shm.Perm{})
	assert.Error(t, err)
}

func Test_CreateRejectsBadLayout(t *testing.T) {
	_, err := mirror.Create("test", 2, 2, []int32{0, 0, 1, 2}, -1, 1, 4, shm.Perm{})
	assert.Error(t, err)
}

func Test_ReferenceInitializesToMidpoint(t *testing.T) {
	m := newTestMirror(t)
	ref := m.Reference()
	require.Len(t, ref, 4)
	for _, v := range ref {
		assert.Equal(t, 0.0, v)
	}
}

func Test_OpenRoundTripByShmid(t *testing.T) {
	m := newTestMirror(t)
	shmid := m.Remote().Segment.Shmid
	other, err := mirror.Open(shmid)
	require.NoError(t, err)
	defer other.Detach()
	assert.Equal(t, m.Nacts(), other.Nacts())
}

func Test_SetReferenceRoundTrip(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()
	want := []float64{0.1, 0.2, 0.3, 0.4}
	_, status := m.SetReference(ctx, clock.AfterSeconds(1), want)
	require.Equal(t, ipc.OK, status)
	assert.True(t, cmp.Equal(want, m.Reference()))
}

func Test_SetReferenceRejectsWrongLength(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()
	_, status := m.SetReference(ctx, clock.AfterSeconds(1), []float64{1, 2})
	assert.Equal(t, ipc.ERROR, status)
}

func Test_SetPerturbationRoundTrip(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()
	want := []float64{-0.1, 0, 0.1, 0.2}
	_, status := m.SetPerturbation(ctx, clock.AfterSeconds(1), want)
	require.Equal(t, ipc.OK, status)
	assert.True(t, cmp.Equal(want, m.Perturbation()))
}
