package rwobject_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/object"
	"github.com/WitIOT/tao/rwobject"
	"github.com/WitIOT/tao/shm"
)

func Test_ReadersConcurrentWritersExclusive(t *testing.T) {
	obj, err := rwobject.Create(object.TypeSharedArray, 4096, shm.Perm{})
	require.NoError(t, err)
	defer obj.Detach()

	require.Equal(t, ipc.OK, obj.RLock(context.Background()))
	require.Equal(t, ipc.OK, obj.RLock(context.Background()))

	writerAcquired := make(chan struct{})
	go func() {
		obj.WLock(context.Background())
		close(writerAcquired)
		obj.WUnlock()
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-writerAcquired:
		t.Fatal("writer must not acquire while readers hold the lock")
	default:
	}

	obj.RUnlock()
	obj.RUnlock()

	select {
	case <-writerAcquired:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never acquired after readers released")
	}
}

func Test_AttachSharesLockState(t *testing.T) {
	obj, err := rwobject.Create(object.TypeSharedArray, 4096, shm.Perm{})
	require.NoError(t, err)
	shmid := int(obj.Header.Shmid)
	defer obj.Detach()

	other, err := rwobject.Attach(shmid)
	require.NoError(t, err)
	defer other.Detach()

	require.Equal(t, ipc.OK, obj.WLock(context.Background()))
	status := other.RLockTimeout(context.Background(), 0.05)
	assert.Equal(t, ipc.TIMEOUT, status)
	obj.WUnlock()
}
