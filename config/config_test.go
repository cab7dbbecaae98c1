package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/config"
)

func Test_ShmidRoundTrip(t *testing.T) {
	dir := config.NewDirectoryAt(t.TempDir())

	_, ok := dir.ReadShmid("camera/cam1/shmid")
	assert.False(t, ok)

	require.NoError(t, dir.WriteShmid("camera/cam1/shmid", 42))
	shmid, ok := dir.ReadShmid("camera/cam1/shmid")
	require.True(t, ok)
	assert.Equal(t, 42, shmid)
}

func Test_ReadInt64RejectsMalformedFile(t *testing.T) {
	dir := config.NewDirectoryAt(t.TempDir())
	require.NoError(t, dir.WriteFormatted("mirror/dm1/nact", "not-a-number"))

	_, ok := dir.ReadInt64("mirror/dm1/nact")
	assert.False(t, ok)
}

func Test_ReadFormattedRoundTrip(t *testing.T) {
	dir := config.NewDirectoryAt(t.TempDir())
	require.NoError(t, dir.WriteFormatted("sensor/wfs1/grid", "%d %d", 16, 16))

	var w, h int
	ok := dir.ReadFormatted("sensor/wfs1/grid", "%d %d", &w, &h)
	require.True(t, ok)
	assert.Equal(t, 16, w)
	assert.Equal(t, 16, h)
}

func Test_WriteOverwritesCachedValue(t *testing.T) {
	dir := config.NewDirectoryAt(t.TempDir())
	require.NoError(t, dir.WriteShmid("camera/cam1/shmid", 1))

	v, ok := dir.ReadShmid("camera/cam1/shmid")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.NoError(t, dir.WriteShmid("camera/cam1/shmid", 2))
	v, ok = dir.ReadShmid("camera/cam1/shmid")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func Test_RemoveDropsFileAndCache(t *testing.T) {
	dir := config.NewDirectoryAt(t.TempDir())
	require.NoError(t, dir.WriteShmid("camera/cam1/shmid", 7))

	require.NoError(t, dir.Remove("camera/cam1/shmid"))
	_, ok := dir.ReadShmid("camera/cam1/shmid")
	assert.False(t, ok)
}

func Test_ProcessConfigParsesExplicitFieldsOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taocamd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owner: cam1\nadvertise_path: camera/cam1/shmid\n"), 0o644))

	cfg, err := config.LoadProcessConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "cam1", cfg.Owner)
	assert.Equal(t, "camera/cam1/shmid", cfg.AdvertisePath)
}
