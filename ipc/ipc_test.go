package ipc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/ipc"
)

func Test_MutexTryLockContention(t *testing.T) {
	var mu ipc.Mutex
	mu.Init(ipc.ProcessShared)

	assert.Equal(t, ipc.OK, mu.TryLock())
	assert.Equal(t, ipc.TIMEOUT, mu.TryLock())
	mu.Unlock()
	assert.Equal(t, ipc.OK, mu.TryLock())
	mu.Unlock()
}

func Test_MutexLockUnlockAcrossGoroutines(t *testing.T) {
	var mu ipc.Mutex
	mu.Init(ipc.Private)
	require.Equal(t, ipc.OK, mu.Lock(context.Background()))

	unlocked := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		mu.Unlock()
		close(unlocked)
	}()

	status := mu.LockTimeout(context.Background(), 2)
	assert.Equal(t, ipc.OK, status)
	<-unlocked
	mu.Unlock()
}

func Test_MutexLockTimesOut(t *testing.T) {
	var mu ipc.Mutex
	mu.Init(ipc.Private)
	require.Equal(t, ipc.OK, mu.TryLock())

	status := mu.LockTimeout(context.Background(), 0.05)
	assert.Equal(t, ipc.TIMEOUT, status)
}

func Test_CondSignalWakesWaiter(t *testing.T) {
	var mu ipc.Mutex
	var cond ipc.Cond
	mu.Init(ipc.ProcessShared)
	cond.Init(ipc.ProcessShared)

	ready := false
	done := make(chan struct{})

	go func() {
		mu.Lock(context.Background())
		for !ready {
			cond.Wait(context.Background(), &mu)
		}
		mu.Unlock()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock(context.Background())
	ready = true
	mu.Unlock()
	cond.Signal()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("condition wait was never woken")
	}
}

func Test_RWLockWriterPreference(t *testing.T) {
	var lock ipc.RWLock
	lock.Init(ipc.ProcessShared)

	require.Equal(t, ipc.OK, lock.RLock(context.Background()))
	require.Equal(t, ipc.OK, lock.RLock(context.Background()))

	blocked := make(chan struct{})
	go func() {
		lock.WLock(context.Background())
		close(blocked)
		lock.WUnlock()
	}()
	time.Sleep(20 * time.Millisecond)

	// A third reader must be refused while the writer is waiting.
	status := lock.RLockTimeout(context.Background(), 0.05)
	assert.Equal(t, ipc.TIMEOUT, status)

	lock.RUnlock()
	lock.RUnlock()

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never acquired despite readers releasing")
	}
}

func Test_SemaphoreAcquireRelease(t *testing.T) {
	var sem ipc.Semaphore
	sem.Init(ipc.ProcessShared, 2)

	assert.Equal(t, ipc.OK, sem.TryAcquire())
	assert.Equal(t, ipc.OK, sem.TryAcquire())
	assert.Equal(t, ipc.TIMEOUT, sem.TryAcquire())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		sem.Release(1)
	}()

	status := sem.AcquireTimeout(context.Background(), 2)
	assert.Equal(t, ipc.OK, status)
	wg.Wait()
}

func Test_MutexLockCancelledByContext(t *testing.T) {
	var mu ipc.Mutex
	mu.Init(ipc.Private)
	require.Equal(t, ipc.OK, mu.TryLock())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	status := mu.Lock(ctx)
	assert.Equal(t, ipc.ERROR, status)
}
