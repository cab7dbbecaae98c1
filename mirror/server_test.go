package mirror_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/mirror"
	"github.com/WitIOT/tao/mirror/simdriver"
	"github.com/WitIOT/tao/remote"
	"github.com/WitIOT/tao/shm"
)

func newRunningMirror(t *testing.T) (*mirror.Object, context.CancelFunc) {
	t.Helper()
	dim1, dim2, inds := testLayout()
	obj, err := mirror.Create("test", dim1, dim2, inds, -1, 1, 4, shm.Perm{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := mirror.NewServer(obj, simdriver.New("sim0"))
	go func() { _ = srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		return obj.Remote().State() == remote.StateWaiting
	}, time.Second, time.Millisecond)

	t.Cleanup(func() {
		cancel()
		_ = obj.Detach()
	})
	return obj, cancel
}

// 97-actuator-style closed loop, scaled down to a 2x2 grid for the test:
// a send_commands request that exceeds cmax is clamped element-wise, the
// effective commands in the published frame equal the clamp bound, and
// the mark travels through untouched.
func Test_SendCommandsClampsToBounds(t *testing.T) {
	obj, _ := newRunningMirror(t)
	ctx := context.Background()

	requested := []float64{1.5, 1.5, 1.5, 1.5}
	datnum, status := obj.SendCommands(ctx, clock.AfterSeconds(2), requested, 42, false)
	require.Equal(t, ipc.OK, status)

	got := obj.WaitOutput(ctx, datnum, clock.AfterSeconds(2))
	require.Equal(t, datnum, got)

	reference, perturbation, reqd, effective, mark, ok := obj.FrameVectors(datnum)
	require.True(t, ok)
	assert.Equal(t, int64(42), mark)
	for _, v := range reference {
		assert.Equal(t, 0.0, v)
	}
	for _, v := range perturbation {
		assert.Equal(t, 0.0, v)
	}
	assert.Equal(t, requested, reqd)
	for _, v := range effective {
		assert.Equal(t, 1.0, v)
	}
}

// A non-zero reference is a standing offset: it must show up in
// effective on every subsequent send, not just be recorded in the
// frame payload for bookkeeping.
func Test_SendCommandsIncludesReferenceOffset(t *testing.T) {
	obj, _ := newRunningMirror(t)
	ctx := context.Background()

	_, status := obj.SetReference(ctx, clock.AfterSeconds(2), []float64{0.3, 0.3, 0.3, 0.3})
	require.Equal(t, ipc.OK, status)

	requested := []float64{0.1, 0.1, 0.1, 0.1}
	datnum, status := obj.SendCommands(ctx, clock.AfterSeconds(2), requested, 7, false)
	require.Equal(t, ipc.OK, status)
	obj.WaitOutput(ctx, datnum, clock.AfterSeconds(2))

	reference, _, reqd, effective, _, ok := obj.FrameVectors(datnum)
	require.True(t, ok)
	for _, v := range reference {
		assert.Equal(t, 0.3, v)
	}
	assert.Equal(t, requested, reqd)
	for _, v := range effective {
		assert.InDelta(t, 0.4, v, 1e-9)
	}
}

func Test_SetPerturbationIsConsumedByNextSend(t *testing.T) {
	obj, _ := newRunningMirror(t)
	ctx := context.Background()

	_, status := obj.SetPerturbation(ctx, clock.AfterSeconds(2), []float64{0.2, 0.2, 0.2, 0.2})
	require.Equal(t, ipc.OK, status)

	requested := []float64{0, 0, 0, 0}
	datnum, status := obj.SendCommands(ctx, clock.AfterSeconds(2), requested, 1, false)
	require.Equal(t, ipc.OK, status)
	obj.WaitOutput(ctx, datnum, clock.AfterSeconds(2))

	_, _, _, effective, _, ok := obj.FrameVectors(datnum)
	require.True(t, ok)
	for _, v := range effective {
		assert.InDelta(t, 0.2, v, 1e-9)
	}

	// the perturbation was consumed: the following send sees none.
	assert.Equal(t, []float64{0, 0, 0, 0}, obj.Perturbation())
}

func Test_KillStopsTheLoop(t *testing.T) {
	obj, _ := newRunningMirror(t)
	ctx := context.Background()

	status := obj.Kill(ctx, clock.AfterSeconds(2))
	require.Equal(t, ipc.OK, status)

	require.Eventually(t, func() bool {
		return !remote.Alive(obj.Remote().State())
	}, time.Second, time.Millisecond)
}
