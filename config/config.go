// Package config implements the directory-based parameter store of
// spec §6: a small tree of human-readable files rooted at /tmp/tao,
// the advertised way for a client to discover a server's remote
// object shmid (and other small scalars) at boot without a discovery
// service. Grounded on spec.md §6 and SPEC_FULL.md §6's unchanged
// contract.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
)

// Root is the directory the store is rooted at.
const Root = "/tmp/tao"

// cacheTTL bounds how long a read is served from the in-process cache
// before the next lookup goes back to disk. Short enough that a
// server rewriting its shmid file is visible to a polling client
// within one scheduling quantum, long enough to keep a busy
// configure/attach retry loop off the filesystem.
const cacheTTL = 50 * time.Millisecond

type cacheEntry struct {
	content string
	expires time.Time
}

// Directory is an in-process read cache over the /tmp/tao/<path>
// store. Path components are hashed with xxhash only to build the
// cache key; the hash never appears in the on-disk path, which stays
// human-readable so an operator can `cat` it directly.
type Directory struct {
	root  string
	mu    sync.Mutex
	cache map[uint64]cacheEntry
}

// NewDirectory returns a Directory rooted at Root with an empty cache.
func NewDirectory() *Directory {
	return NewDirectoryAt(Root)
}

// NewDirectoryAt returns a Directory rooted at an arbitrary directory,
// for tests that must not touch the real /tmp/tao tree.
func NewDirectoryAt(root string) *Directory {
	return &Directory{root: root, cache: make(map[uint64]cacheEntry)}
}

// Default is the package-level Directory used by the package-level
// Read*/Write* functions below, which is all most cmd/ binaries need.
var Default = NewDirectory()

func cacheKey(path string) uint64 {
	return xxhash.ChecksumString64(path)
}

func (d *Directory) fullPath(path string) string {
	return filepath.Join(d.root, filepath.FromSlash(path))
}

// readRaw returns the trimmed file contents at path, serving from the
// cache when the entry hasn't expired. ok is false on any read error
// (missing file, permission, directory), in which case the stale
// cache entry for path is dropped rather than left to be served again.
func (d *Directory) readRaw(path string) (string, bool) {
	key := cacheKey(path)

	d.mu.Lock()
	if e, found := d.cache[key]; found && time.Now().Before(e.expires) {
		d.mu.Unlock()
		return e.content, true
	}
	d.mu.Unlock()

	data, err := os.ReadFile(d.fullPath(path))
	if err != nil {
		d.mu.Lock()
		delete(d.cache, key)
		d.mu.Unlock()
		return "", false
	}

	content := strings.TrimSpace(string(data))
	d.mu.Lock()
	d.cache[key] = cacheEntry{content: content, expires: time.Now().Add(cacheTTL)}
	d.mu.Unlock()
	return content, true
}

func (d *Directory) writeRaw(path, content string) error {
	full := d.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", full, err)
	}

	d.mu.Lock()
	d.cache[cacheKey(path)] = cacheEntry{content: content, expires: time.Now().Add(cacheTTL)}
	d.mu.Unlock()
	return nil
}

// ReadShmid reads the shmid advertised at path. A missing or
// malformed file yields the "bad" sentinel (ok == false); the
// underlying error is discarded, per spec §6.
func (d *Directory) ReadShmid(path string) (shmid int, ok bool) {
	v, ok := d.ReadInt64(path)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// WriteShmid advertises shmid at path.
func (d *Directory) WriteShmid(path string, shmid int) error {
	return d.WriteInt64(path, int64(shmid))
}

// ReadInt64 reads a decimal integer at path.
func (d *Directory) ReadInt64(path string) (int64, bool) {
	raw, ok := d.readRaw(path)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// WriteInt64 writes a decimal integer at path.
func (d *Directory) WriteInt64(path string, v int64) error {
	return d.writeRaw(path, strconv.FormatInt(v, 10))
}

// ReadFormatted scans the file at path with format, in the manner of
// fmt.Sscanf, into args. It reports false if the file is missing or
// does not match format.
func (d *Directory) ReadFormatted(path, format string, args ...interface{}) bool {
	raw, ok := d.readRaw(path)
	if !ok {
		return false
	}
	n, err := fmt.Sscanf(raw, format, args...)
	return err == nil && n == len(args)
}

// WriteFormatted writes fmt.Sprintf(format, args...) at path.
func (d *Directory) WriteFormatted(path, format string, args ...interface{}) error {
	return d.writeRaw(path, fmt.Sprintf(format, args...))
}

// Remove deletes the file at path, if any, and drops its cache entry.
func (d *Directory) Remove(path string) error {
	d.mu.Lock()
	delete(d.cache, cacheKey(path))
	d.mu.Unlock()

	if err := os.Remove(d.fullPath(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: remove %s: %w", d.fullPath(path), err)
	}
	return nil
}

// ReadShmid, WriteShmid, ReadInt64, WriteInt64, ReadFormatted and
// WriteFormatted mirror the Directory methods of the same name on
// Default, for callers that don't need their own cache instance.

func ReadShmid(path string) (int, bool)      { return Default.ReadShmid(path) }
func WriteShmid(path string, shmid int) error { return Default.WriteShmid(path, shmid) }
func ReadInt64(path string) (int64, bool)    { return Default.ReadInt64(path) }
func WriteInt64(path string, v int64) error  { return Default.WriteInt64(path, v) }

func ReadFormatted(path, format string, args ...interface{}) bool {
	return Default.ReadFormatted(path, format, args...)
}

func WriteFormatted(path, format string, args ...interface{}) error {
	return Default.WriteFormatted(path, format, args...)
}
