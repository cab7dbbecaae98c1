package remote_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/object"
	"github.com/WitIOT/tao/remote"
	"github.com/WitIOT/tao/shm"
)

const payloadSize = 32

func newTestObject(t *testing.T) *remote.Object {
	t.Helper()
	stride := remote.SlotStride(payloadSize)
	obj, err := remote.Create(object.TypeRemoteCamera, "test", 4, stride, int(remote.HeaderSize), shm.Perm{})
	require.NoError(t, err)
	obj.Header().State.Store(int32(remote.StateWaiting))
	t.Cleanup(func() { _ = obj.Detach() })
	return obj
}

func Test_CommandRoundTrip(t *testing.T) {
	obj := newTestObject(t)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		num, cmd, _, status := obj.WaitForCommand(ctx, clock.Forever)
		require.Equal(t, ipc.OK, status)
		assert.Equal(t, remote.CommandStart, cmd)
		assert.Equal(t, remote.StateStarting, obj.State())
		obj.CompleteCommand(num, remote.StateWorking)
		close(done)
	}()

	num, status := obj.SubmitSimple(ctx, clock.Forever, remote.CommandStart)
	require.Equal(t, ipc.OK, status)

	require.Equal(t, ipc.OK, obj.WaitCommand(ctx, num, clock.AfterSeconds(2)))
	<-done
	assert.Equal(t, remote.StateWorking, obj.State())
}

func Test_ComplexCommandCarriesArguments(t *testing.T) {
	obj := newTestObject(t)
	ctx := context.Background()

	args, status := obj.BeginComplex(ctx, clock.Forever)
	require.Equal(t, ipc.OK, status)
	args[0] = 0x42
	num := obj.FinishComplex(remote.CommandConfig)

	gotNum, cmd, gotArgs, status := obj.WaitForCommand(ctx, clock.Forever)
	require.Equal(t, ipc.OK, status)
	assert.Equal(t, num, gotNum)
	assert.Equal(t, remote.CommandConfig, cmd)
	assert.Equal(t, byte(0x42), gotArgs[0])
	obj.CompleteCommand(gotNum, remote.StateWaiting)
}

func Test_PublishAndFetch(t *testing.T) {
	obj := newTestObject(t)
	ctx := context.Background()

	serial, slot, status := obj.BeginPublish(ctx)
	require.Equal(t, ipc.OK, status)
	require.Equal(t, int64(1), serial)
	copy(slot[remote.FrameHeaderSize:], []byte("hello frame payload!"))
	obj.FinishPublish(serial, slot, 7)

	out := make([]byte, payloadSize)
	got := obj.Fetch(serial, out)
	assert.Equal(t, serial, got)
	assert.Equal(t, "hello frame payload!", string(out[:len("hello frame payload!")]))
}

func Test_WaitOutputDeliversNextFrame(t *testing.T) {
	obj := newTestObject(t)
	ctx := context.Background()

	resultCh := make(chan int64, 1)
	go func() {
		resultCh <- obj.WaitOutput(ctx, 0, clock.AfterSeconds(2))
	}()

	time.Sleep(20 * time.Millisecond)
	serial, slot, status := obj.BeginPublish(ctx)
	require.Equal(t, ipc.OK, status)
	obj.FinishPublish(serial, slot, 1)

	select {
	case got := <-resultCh:
		assert.Equal(t, serial, got)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitOutput never returned")
	}
}

func Test_WaitOutputTimesOutWithoutAFrame(t *testing.T) {
	obj := newTestObject(t)
	got := obj.WaitOutput(context.Background(), 1, clock.AfterSeconds(0.05))
	assert.Equal(t, int64(0), got)
}

func Test_WaitOutputReportsServerDeath(t *testing.T) {
	obj := newTestObject(t)
	obj.SetState(remote.StateUnreachable)
	got := obj.WaitOutput(context.Background(), 1, clock.AfterSeconds(2))
	assert.Equal(t, int64(-2), got)
}

func Test_OpenRejectsMismatchedConcreteType(t *testing.T) {
	obj := newTestObject(t)
	shmid := int(obj.Header().Shmid)

	_, err := remote.Open(shmid, object.TypeRemoteMirror)
	assert.Error(t, err)

	same, err := remote.Open(shmid, object.TypeRemoteCamera)
	require.NoError(t, err)
	require.NoError(t, same.Detach())
}
