package shm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/shm"
)

func Test_CreateAttachDetachDestroy(t *testing.T) {
	seg, err := shm.Create(4096, shm.Perm{})
	require.NoError(t, err)
	defer func() {
		_ = shm.Destroy(seg.Shmid)
		_ = seg.Detach()
	}()

	assert.Len(t, seg.Data, 4096)
	for _, b := range seg.Data {
		assert.Equal(t, byte(0), b)
	}

	info, err := shm.Stat(seg.Shmid)
	require.NoError(t, err)
	assert.Equal(t, 4096, info.Size)
	assert.GreaterOrEqual(t, info.Nattach, 1)

	other, err := shm.Attach(seg.Shmid)
	require.NoError(t, err)

	info, err = shm.Stat(seg.Shmid)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Nattach)

	require.NoError(t, other.Detach())
	require.NoError(t, shm.Destroy(seg.Shmid))
	require.NoError(t, seg.Detach())
}

func Test_StatUnknownShmidFails(t *testing.T) {
	_, err := shm.Stat(0x7fffffff)
	assert.Error(t, err)
}
