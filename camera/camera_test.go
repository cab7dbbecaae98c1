package camera_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/camera"
	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/pixel"
	"github.com/WitIOT/tao/remote"
	"github.com/WitIOT/tao/shm"
)

func testConfig() camera.Config {
	return camera.Config{
		Xmin: 0, Xmax: 8, Ymin: 0, Ymax: 4,
		Encoding: pixel.MonoP12,
		Level:    pixel.LevelNone,
		OutType:  array.Float32,
		Nbufs:    4,
		Drop:     camera.DropOldestPending,
	}
}

func newTestCamera(t *testing.T) *camera.Object {
	t.Helper()
	obj, err := camera.Create("test", testConfig(), shm.Perm{})
	require.NoError(t, err)
	obj.Remote().Header().State.Store(int32(remote.StateWaiting))
	t.Cleanup(func() { _ = obj.Detach() })
	return obj
}

func Test_CreateRejectsTooFewBuffers(t *testing.T) {
	cfg := testConfig()
	cfg.Nbufs = 1
	_, err := camera.Create("test", cfg, shm.Perm{})
	assert.Error(t, err)
}

func Test_CreateRejectsEmptyROI(t *testing.T) {
	cfg := testConfig()
	cfg.Xmax = cfg.Xmin
	_, err := camera.Create("test", cfg, shm.Perm{})
	assert.Error(t, err)
}

func Test_CreateRejectsNonFloatOutput(t *testing.T) {
	cfg := testConfig()
	cfg.OutType = array.Uint16
	_, err := camera.Create("test", cfg, shm.Perm{})
	assert.Error(t, err)
}

func Test_ConfigRoundTrip(t *testing.T) {
	cam := newTestCamera(t)
	got := cam.Config()
	assert.Equal(t, int64(8), got.Xmax)
	assert.Equal(t, int64(4), got.Ymax)
	assert.Equal(t, pixel.MonoP12, got.Encoding)
	assert.Equal(t, array.Float32, got.OutType)
	assert.Equal(t, 8, got.Width())
	assert.Equal(t, 4, got.Height())
}

func Test_OpenRoundTripByShmid(t *testing.T) {
	cam := newTestCamera(t)
	shmid := int(cam.Remote().Header().Shmid)

	same, err := camera.Open(shmid)
	require.NoError(t, err)
	require.NoError(t, same.Detach())
}

func Test_PreprocessingShmidNotRequiredAtLevelNone(t *testing.T) {
	cam := newTestCamera(t)
	_, ok := cam.PreprocessingShmid(0)
	assert.False(t, ok)
}

func Test_SetPreprocessingShmidHiddenWhenLevelDoesNotRequireIt(t *testing.T) {
	cam := newTestCamera(t)
	cam.SetPreprocessingShmid(0, 123)
	// still not visible: LevelNone never reads array 0.
	_, ok := cam.PreprocessingShmid(0)
	assert.False(t, ok)
}

func Test_ImageShmidUnknownBeforeFirstPublish(t *testing.T) {
	cam := newTestCamera(t)
	_, ok := cam.ImageShmid(1)
	assert.False(t, ok)
}

func Test_PublishFrameThenImageShmidSucceeds(t *testing.T) {
	cam := newTestCamera(t)
	ctx := context.Background()

	serial := cam.PublishFrame(ctx, 42, -1, 7)
	require.Equal(t, int64(1), serial)

	shmid, ok := cam.ImageShmid(serial)
	require.True(t, ok)
	assert.Equal(t, 42, shmid)

	_, ok = cam.WeightShmid(serial)
	assert.False(t, ok)
}

func Test_WaitOutputDeliversPublishedSerial(t *testing.T) {
	cam := newTestCamera(t)
	ctx := context.Background()

	resultCh := make(chan int64, 1)
	go func() { resultCh <- cam.WaitOutput(ctx, 0, clock.AfterSeconds(2)) }()

	time.Sleep(20 * time.Millisecond)
	serial := cam.PublishFrame(ctx, 1, -1, 1)

	select {
	case got := <-resultCh:
		assert.Equal(t, serial, got)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitOutput never returned")
	}
}

func Test_StartRoundTrip(t *testing.T) {
	cam := newTestCamera(t)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		num, cmd, _, status := cam.Remote().WaitForCommand(ctx, clock.Forever)
		require.Equal(t, ipc.OK, status)
		assert.Equal(t, remote.CommandStart, cmd)
		cam.Remote().CompleteCommand(num, remote.StateWaiting)
		close(done)
	}()

	status := cam.Start(ctx, clock.AfterSeconds(2))
	assert.Equal(t, ipc.OK, status)
	<-done
}
