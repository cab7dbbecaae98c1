// Package camera implements the remote camera of spec §4.5: a remote
// object extended with a ROI/encoding/preprocessing configuration,
// a, b, q, r preprocessing arrays, and a ring that publishes the
// shmid of each frame's preprocessed `dat` (and, at LevelFull,
// `wgt`) array rather than inline pixel data. Grounded on
// package remote for the command/ring engine and package pixel for
// the raw-to-processed conversion.
package camera

import (
	"context"
	"unsafe"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/errs"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/object"
	"github.com/WitIOT/tao/pixel"
	"github.com/WitIOT/tao/remote"
	"github.com/WitIOT/tao/shm"
)

// DropPolicy selects what WaitBuffer does when the acquisition can't
// keep up with the consumer (spec §4.5.1).
type DropPolicy int32

const (
	DropOldestPending DropPolicy = iota
	DropLatestPending
	DropFreshOnly
)

// Config is the client-facing configuration carried by configure()
// (spec §4.5).
type Config struct {
	Xmin, Xmax, Ymin, Ymax int64
	Encoding               pixel.Encoding
	Level                  pixel.Level
	OutType                array.ElementType
	Nbufs                  int64
	Drop                   DropPolicy
}

func (c Config) validate() error {
	if c.Nbufs < 2 {
		return errs.Record{Func: "camera.Configure", Code: errs.BadBuffers, Message: "a remote camera requires at least 2 ring slots"}
	}
	if c.Xmax <= c.Xmin || c.Ymax <= c.Ymin {
		return errs.Record{Func: "camera.Configure", Code: errs.BadROI, Message: "ROI must have xmax > xmin and ymax > ymin"}
	}
	if c.OutType != array.Float32 && c.OutType != array.Float64 {
		return errs.Record{Func: "camera.Configure", Code: errs.BadArgument, Message: "output type must be float32 or float64"}
	}
	if _, err := pixel.RawTypeOf(c.Encoding); err != nil {
		return err
	}
	return nil
}

// Width and Height return the ROI's pixel dimensions.
func (c Config) Width() int  { return int(c.Xmax - c.Xmin) }
func (c Config) Height() int { return int(c.Ymax - c.Ymin) }

// header is the remote camera's family-specific body, laid out
// immediately after remote.Header in the shared segment (spec §6:
// "shared-object header; then family-specific fixed-size fields").
type header struct {
	remote.Header

	Xmin, Xmax, Ymin, Ymax int64
	Encoding               uint32
	Level                  int32
	OutType                int32
	Drop                   int32

	// PrepShmids holds the a, b, q, r preprocessing array shmids, -1
	// when unset or not required by Level.
	PrepShmids [4]int32
}

const headerSize = unsafe.Sizeof(header{})

func headerAt(b []byte) *header {
	return (*header)(unsafe.Pointer(&b[0]))
}

// frameShmids is the fixed-size ring payload: the shmid of the
// frame's `dat` array and, when applicable, its `wgt` array.
type frameShmids struct {
	Dat int32
	Wgt int32
}

const frameShmidsSize = unsafe.Sizeof(frameShmids{})

// configWire overlays remote.Header.CommandArgs for the `config`
// command, mirroring the unsafe-pointer-over-fixed-layout idiom
// package remote and package array already use for shared memory.
type configWire struct {
	Xmin, Xmax, Ymin, Ymax int64
	Encoding               uint32
	Level                  int32
	OutType                int32
	Nbufs                  int64
	Drop                   int32
	_                      int32
}

func configWireAt(args []byte) *configWire {
	return (*configWire)(unsafe.Pointer(&args[0]))
}

// Object is a process's handle to an attached remote camera.
type Object struct {
	remote *remote.Object
	header *header
}

// Remote exposes the underlying generic remote-object handle, for
// callers that need the raw command/ring primitives package camera
// doesn't wrap (e.g. WaitState for tests).
func (o *Object) Remote() *remote.Object { return o.remote }

// Create allocates a new remote camera.
func Create(owner string, cfg Config, perm shm.Perm) (*Object, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	stride := remote.SlotStride(int(frameShmidsSize))
	base, err := remote.Create(object.TypeRemoteCamera, owner, int(cfg.Nbufs), stride, int(headerSize), perm)
	if err != nil {
		return nil, err
	}

	h := headerAt(base.Segment.Data)
	h.Xmin, h.Xmax, h.Ymin, h.Ymax = cfg.Xmin, cfg.Xmax, cfg.Ymin, cfg.Ymax
	h.Encoding = uint32(cfg.Encoding)
	h.Level = int32(cfg.Level)
	h.OutType = int32(cfg.OutType)
	h.Drop = int32(cfg.Drop)
	h.PrepShmids = [4]int32{-1, -1, -1, -1}

	return &Object{remote: base, header: h}, nil
}

// Attach maps an existing remote camera by shmid.
func Attach(shmid int) (*Object, error) {
	base, err := remote.Attach(shmid)
	if err != nil {
		return nil, err
	}
	return &Object{remote: base, header: headerAt(base.Segment.Data)}, nil
}

// Open attaches by shmid, verifying the object is a remote camera.
func Open(shmid int) (*Object, error) {
	base, err := remote.Open(shmid, object.TypeRemoteCamera)
	if err != nil {
		return nil, err
	}
	return &Object{remote: base, header: headerAt(base.Segment.Data)}, nil
}

// Detach releases this process's handle on the camera.
func (o *Object) Detach() error { return o.remote.Detach() }

// Config reads back the camera's currently published configuration.
func (o *Object) Config() Config {
	return Config{
		Xmin: o.header.Xmin, Xmax: o.header.Xmax,
		Ymin: o.header.Ymin, Ymax: o.header.Ymax,
		Encoding: pixel.Encoding(o.header.Encoding),
		Level:    pixel.Level(o.header.Level),
		OutType:  array.ElementType(o.header.OutType),
		Nbufs:    o.header.Nbufs,
		Drop:     DropPolicy(o.header.Drop),
	}
}

// Configure validates cfg and issues a `config` command, blocking
// until the server has completed it (spec §4.5: "validates cfg ...
// then issues a config command carrying cfg").
func (o *Object) Configure(ctx context.Context, deadline clock.Deadline, cfg Config) ipc.Status {
	if err := cfg.validate(); err != nil {
		return ipc.ERROR
	}
	args, status := o.remote.BeginComplex(ctx, deadline)
	if status != ipc.OK {
		return status
	}
	w := configWireAt(args)
	w.Xmin, w.Xmax, w.Ymin, w.Ymax = cfg.Xmin, cfg.Xmax, cfg.Ymin, cfg.Ymax
	w.Encoding = uint32(cfg.Encoding)
	w.Level = int32(cfg.Level)
	w.OutType = int32(cfg.OutType)
	w.Nbufs = cfg.Nbufs
	w.Drop = int32(cfg.Drop)
	num := o.remote.FinishComplex(remote.CommandConfig)
	return o.remote.WaitCommand(ctx, num, deadline)
}

func (o *Object) simple(ctx context.Context, deadline clock.Deadline, cmd remote.Command) ipc.Status {
	num, status := o.remote.SubmitSimple(ctx, deadline, cmd)
	if status != ipc.OK {
		return status
	}
	return o.remote.WaitCommand(ctx, num, deadline)
}

// Start begins acquisition.
func (o *Object) Start(ctx context.Context, deadline clock.Deadline) ipc.Status {
	return o.simple(ctx, deadline, remote.CommandStart)
}

// Stop ends acquisition gracefully, draining any pending frame.
func (o *Object) Stop(ctx context.Context, deadline clock.Deadline) ipc.Status {
	return o.simple(ctx, deadline, remote.CommandStop)
}

// Abort ends acquisition immediately, discarding any pending frame.
func (o *Object) Abort(ctx context.Context, deadline clock.Deadline) ipc.Status {
	return o.simple(ctx, deadline, remote.CommandAbort)
}

// Reset clears a recoverable device error.
func (o *Object) Reset(ctx context.Context, deadline clock.Deadline) ipc.Status {
	return o.simple(ctx, deadline, remote.CommandReset)
}

// Kill requests a cooperative shutdown of the owning server.
func (o *Object) Kill(ctx context.Context, deadline clock.Deadline) ipc.Status {
	return o.simple(ctx, deadline, remote.CommandKill)
}

// PreprocessingShmid returns the shmid of preprocessing array a|b|q|r
// (idx in 0..3), or ok=false if the published level doesn't use that
// array (spec §4.5).
func (o *Object) PreprocessingShmid(idx int) (shmid int, ok bool) {
	if idx < 0 || idx > 3 {
		return 0, false
	}
	if !pixel.Level(o.header.Level).RequiresArray(idx) {
		return 0, false
	}
	v := o.header.PrepShmids[idx]
	if v < 0 {
		return 0, false
	}
	return int(v), true
}

// SetPreprocessingShmid publishes the shmid of preprocessing array
// a|b|q|r; called by the owning server when (re)configuring.
func (o *Object) SetPreprocessingShmid(idx int, shmid int) {
	if idx < 0 || idx > 3 {
		return
	}
	o.header.PrepShmids[idx] = int32(shmid)
}

// ImageShmid returns the shmid of the `dat` array published for
// serial, or ok=false if serial is 0, out of range, or not yet
// acquired (spec §4.5).
func (o *Object) ImageShmid(serial int64) (shmid int, ok bool) {
	fs, ok := o.frameShmids(serial)
	if !ok || fs.Dat < 0 {
		return 0, false
	}
	return int(fs.Dat), true
}

// WeightShmid returns the shmid of the `wgt` array published for
// serial (only meaningful at LevelFull), or ok=false if unavailable.
func (o *Object) WeightShmid(serial int64) (shmid int, ok bool) {
	fs, ok := o.frameShmids(serial)
	if !ok || fs.Wgt < 0 {
		return 0, false
	}
	return int(fs.Wgt), true
}

func (o *Object) frameShmids(serial int64) (frameShmids, bool) {
	if serial <= 0 {
		return frameShmids{}, false
	}
	published := o.header.Serial.Load()
	if serial > published {
		return frameShmids{}, false
	}
	slot := o.remote.Slot(serial)
	fh := remote.FrameHeaderAt(slot)
	if fh.Serial.Load() != serial {
		return frameShmids{}, false
	}
	payload := slot[remote.FrameHeaderSize:]
	fs := (*frameShmids)(unsafe.Pointer(&payload[0]))
	return *fs, true
}

// PublishFrame reserves the next ring slot and stamps it with the
// dat/wgt shmids of a just-preprocessed frame, returning the serial
// assigned. Called by the owning server's acquisition loop.
func (o *Object) PublishFrame(ctx context.Context, datShmid, wgtShmid int, mark int64) int64 {
	serial, slot, status := o.remote.BeginPublish(ctx)
	if status != ipc.OK {
		return 0
	}
	payload := slot[remote.FrameHeaderSize:]
	fs := (*frameShmids)(unsafe.Pointer(&payload[0]))
	fs.Dat = int32(datShmid)
	fs.Wgt = int32(wgtShmid)
	o.remote.FinishPublish(serial, slot, mark)
	return serial
}

// WaitOutput blocks for the frame named by requested to be published,
// returning the same sentinel contract as remote.Object.WaitOutput.
func (o *Object) WaitOutput(ctx context.Context, requested int64, deadline clock.Deadline) int64 {
	return o.remote.WaitOutput(ctx, requested, deadline)
}
