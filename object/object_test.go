package object_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/object"
	"github.com/WitIOT/tao/shm"
)

func Test_FamilyOf(t *testing.T) {
	assert.Equal(t, object.FamilyRWLocked, object.FamilyOf(object.TypeSharedArray))
	assert.Equal(t, object.FamilyRemote, object.FamilyOf(object.TypeRemoteCamera))
	assert.Equal(t, object.FamilyRemote, object.FamilyOf(object.TypeRemoteMirror))
	assert.Equal(t, object.FamilyRemote, object.FamilyOf(object.TypeRemoteSensor))
}

func Test_CreateAttachDetachRefcount(t *testing.T) {
	obj, err := object.Create(object.TypeRemoteCamera, 4096, shm.Perm{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), obj.Nrefs())

	shmid := int(obj.Header.Shmid)

	other, err := object.Attach(shmid)
	require.NoError(t, err)
	assert.Equal(t, int64(2), obj.Nrefs())

	require.NoError(t, other.Detach())
	assert.Equal(t, int64(1), obj.Nrefs())

	require.NoError(t, obj.Detach())

	_, err = shm.Stat(shmid)
	assert.Error(t, err, "segment must be destroyed once nrefs reaches 0")
}

func Test_PersistentSurvivesLastDetach(t *testing.T) {
	obj, err := object.Create(object.TypeRemoteMirror, 4096, shm.Perm{Persistent: true})
	require.NoError(t, err)
	shmid := int(obj.Header.Shmid)

	require.NoError(t, obj.Detach())

	info, err := shm.Stat(shmid)
	require.NoError(t, err, "persistent segment must survive last detach")
	assert.Equal(t, 0, info.Nattach)

	require.NoError(t, shm.Destroy(shmid))
}

func Test_OpenRejectsWrongFamily(t *testing.T) {
	obj, err := object.Create(object.TypeRemoteCamera, 4096, shm.Perm{})
	require.NoError(t, err)
	shmid := int(obj.Header.Shmid)
	defer obj.Detach()

	_, err = object.Open(shmid, object.FamilyRWLocked)
	assert.Error(t, err)
}
