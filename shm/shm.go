// Package shm implements the shared-memory segment layer: create, attach,
// detach, destroy and stat named (by integer shmid) System V shared memory
// segments, grounded on golang.org/x/sys/unix's SysV bindings — the same
// golang.org/x/sys dependency the teacher already requires for low-level OS
// access throughout its controlplane and agent binaries.
package shm

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/WitIOT/tao/errs"
)

// Perm is the permission bit-set a segment is created with (spec §6): the
// owner always has read+write; additional bits grant group/others read
// and/or write independently; Persistent marks the segment as not
// destroyed on last detach.
type Perm struct {
	GroupRead  bool
	GroupWrite bool
	OtherRead  bool
	OtherWrite bool
	Persistent bool
}

// bits renders Perm into the low 9 permission bits SysV shmget expects,
// always granting the owner rw (spec §6: "the owner always has read+write").
func (p Perm) bits() int {
	const ownerRW = 0o600
	bits := ownerRW
	if p.GroupRead {
		bits |= 0o040
	}
	if p.GroupWrite {
		bits |= 0o020
	}
	if p.OtherRead {
		bits |= 0o004
	}
	if p.OtherWrite {
		bits |= 0o002
	}
	return bits
}

// Segment is a handle to an attached shared-memory segment.
type Segment struct {
	Shmid int
	Data  []byte
}

// Create allocates a new, zero-filled segment of the given size and
// returns it already attached. SysV shmget zero-fills new segments, so no
// extra pass over Data is required.
func Create(size int, perm Perm) (*Segment, error) {
	if size <= 0 {
		return nil, errs.Record{Func: "shm.Create", Code: errs.BadArgument, Message: "size must be positive"}
	}

	flags := unix.IPC_CREAT | unix.IPC_EXCL | perm.bits()
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, flags)
	if err != nil {
		return nil, errs.Record{Func: "shm.Create", Code: errs.SystemError, Message: err.Error()}
	}

	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, errs.Record{Func: "shm.Create", Code: errs.SystemError, Message: err.Error()}
	}

	return &Segment{Shmid: id, Data: data}, nil
}

// Attach maps an existing segment, identified by shmid, into the calling
// process's address space.
func Attach(shmid int) (*Segment, error) {
	data, err := unix.SysvShmAttach(shmid, 0, 0)
	if err != nil {
		return nil, errs.Record{Func: "shm.Attach", Code: errs.NotFound, Message: err.Error()}
	}
	return &Segment{Shmid: shmid, Data: data}, nil
}

// Detach unmaps the segment from this process. It does not destroy the
// segment; destruction happens on the kernel's own last-detach bookkeeping
// once Destroy has been called (spec §4.1: "destruction is deferred to
// last detach").
func (s *Segment) Detach() error {
	if s.Data == nil {
		return nil
	}
	if err := unix.SysvShmDetach(s.Data); err != nil {
		return errs.Record{Func: "shm.Detach", Code: errs.SystemError, Message: err.Error()}
	}
	s.Data = nil
	return nil
}

// Destroy marks the segment for removal. On Linux this only takes effect
// once every attached process has detached, so it is safe (and required)
// to call while still attached — matching spec §4.1 exactly.
func Destroy(shmid int) error {
	if _, err := unix.SysvShmCtl(shmid, unix.IPC_RMID, nil); err != nil {
		return errs.Record{Func: "shm.Destroy", Code: errs.SystemError, Message: err.Error()}
	}
	return nil
}

// Info is the result of Stat.
type Info struct {
	Size    int
	Nattach int
}

// Stat queries a segment's size and attach count without attaching to it.
// On a destroyed or unknown shmid it returns ERROR and leaves the output
// zero-valued, per spec §4.1.
func Stat(shmid int) (Info, error) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(shmid, unix.IPC_STAT, &desc); err != nil {
		return Info{}, errs.Record{Func: "shm.Stat", Code: errs.NotFound, Message: err.Error()}
	}
	return Info{Size: int(desc.Segsz), Nattach: int(desc.Nattch)}, nil
}

// String implements fmt.Stringer for diagnostics.
func (s *Segment) String() string {
	return fmt.Sprintf("shm(shmid=%d, size=%d)", s.Shmid, len(s.Data))
}
