package camera_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/camera"
	"github.com/WitIOT/tao/camera/simdevice"
	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/remote"
	"github.com/WitIOT/tao/shm"
)

func newRunningServer(t *testing.T) (*camera.Object, *camera.Server, context.CancelFunc) {
	t.Helper()
	cfg := testConfig()
	obj, err := camera.Create("test", cfg, shm.Perm{})
	require.NoError(t, err)
	obj.Remote().Header().State.Store(int32(remote.StateWaiting))
	t.Cleanup(func() { _ = obj.Detach() })

	dev := simdevice.New("sim0", 200)
	srv := camera.NewServer(obj, dev)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return obj, srv, cancel
}

func Test_ServerAcquiresAndPublishesFrames(t *testing.T) {
	obj, srv, _ := newRunningServer(t)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		return srv.RunLevel() == camera.RunIdle
	}, 2*time.Second, 5*time.Millisecond)

	status := obj.Start(ctx, clock.AfterSeconds(2))
	require.Equal(t, ipc.OK, status)
	assert.Equal(t, camera.RunAcquiring, srv.RunLevel())

	serial := obj.WaitOutput(ctx, 0, clock.AfterSeconds(2))
	require.Greater(t, serial, int64(0))

	shmid, ok := obj.ImageShmid(serial)
	assert.True(t, ok)
	assert.Greater(t, shmid, 0)

	status = obj.Stop(ctx, clock.AfterSeconds(2))
	assert.Equal(t, ipc.OK, status)
	assert.Equal(t, camera.RunIdle, srv.RunLevel())
}

func Test_ServerConfigureRejectedWhileAcquiring(t *testing.T) {
	obj, srv, _ := newRunningServer(t)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		return srv.RunLevel() == camera.RunIdle
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, ipc.OK, obj.Start(ctx, clock.AfterSeconds(2)))

	cfg := testConfig()
	cfg.Xmax = 16
	status := obj.Configure(ctx, clock.AfterSeconds(2), cfg)
	require.Equal(t, ipc.OK, status)
	assert.Equal(t, remote.StateError, obj.Remote().State())

	// StateError still accepts new commands (spec §4.3), so acquisition
	// can be stopped normally after a rejected reconfiguration.
	require.Equal(t, ipc.OK, obj.Stop(ctx, clock.AfterSeconds(2)))
}

func Test_ServerKillStopsTheLoop(t *testing.T) {
	obj, srv, _ := newRunningServer(t)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		return srv.RunLevel() == camera.RunIdle
	}, 2*time.Second, 5*time.Millisecond)

	status := obj.Kill(ctx, clock.AfterSeconds(2))
	assert.Equal(t, ipc.OK, status)

	require.Eventually(t, func() bool {
		return !remote.Alive(obj.Remote().State())
	}, 2*time.Second, 5*time.Millisecond)
}
