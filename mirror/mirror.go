// Package mirror implements the remote deformable mirror of spec §4.6:
// a remote object extended with an actuator layout (package layout),
// element-wise command clamping to [cmin, cmax], and the
// reference/perturbation/requested/effective vector quadruple every
// published frame carries. Grounded on package remote for the
// command/ring engine.
package mirror

import (
	"context"
	"unsafe"

	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/errs"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/layout"
	"github.com/WitIOT/tao/object"
	"github.com/WitIOT/tao/remote"
	"github.com/WitIOT/tao/shm"
)

// header is the remote mirror's family-specific body: fixed scalar
// fields plus the byte offsets of two variable-length tables that
// follow it in the shared segment (spec §6: "family-specific
// fixed-size fields; then variable-length tables").
type header struct {
	remote.Header

	Dim1, Dim2 int64
	Nacts      int64
	Cmin, Cmax float64

	// IndsOffset locates the Dim1*Dim2 int32 actuator index grid.
	IndsOffset int64
	// VecOffset locates three consecutive Nacts-float64 tables:
	// reference, perturbation, requested (in that order). The fourth
	// vector, effective, is never held outside a published frame since
	// it is recomputed by on_send for every send_commands.
	VecOffset int64
}

const headerSize = unsafe.Sizeof(header{})

func headerAt(b []byte) *header { return (*header)(unsafe.Pointer(&b[0])) }

func align8(n int64) int64 { return (n + 7) &^ 7 }

func int32SliceAt(data []byte, offset, n int64) []int32 {
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[offset])), n)
}

func float64SliceAt(data []byte, offset, n int64) []float64 {
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[offset])), n)
}

const (
	vecReference = iota
	vecPerturbation
	vecRequested
)

// sendWire overlays remote.Header.CommandArgs for the `send` command,
// carrying the supplemental best_effort flag of
// original_source/include/tao-remote-mirrors.h alongside the user mark.
type sendWire struct {
	Mark       int64
	BestEffort int32
	_          int32
}

func sendWireAt(args []byte) *sendWire { return (*sendWire)(unsafe.Pointer(&args[0])) }

// Object is a process's handle to an attached remote mirror.
type Object struct {
	remote *remote.Object
	header *header
}

// Remote exposes the underlying generic remote-object handle.
func (o *Object) Remote() *remote.Object { return o.remote }

// Create allocates a new remote mirror. inds is the actuator index grid
// (spec §4.6: "-1 meaning no actuator, non-negative entries giving the
// 0-based position in the command vector"), checked with
// layout.CheckIndexedLayout to derive the actuator count.
func Create(owner string, dim1, dim2 int64, inds []int32, cmin, cmax float64, nbufs int, perm shm.Perm) (*Object, error) {
	if nbufs < 2 {
		return nil, errs.Record{Func: "mirror.Create", Code: errs.BadBuffers, Message: "a remote mirror requires at least 2 ring slots"}
	}
	nacts, err := layout.CheckIndexedLayout(inds, int(dim1), int(dim2))
	if err != nil {
		return nil, err
	}

	indsOffset := align8(int64(headerSize))
	indsBytes := int64(len(inds)) * 4
	vecOffset := align8(indsOffset + indsBytes)
	vecBytes := int64(nacts) * 8 * 3
	bodySize := vecOffset + vecBytes

	framePayload := int64(nacts) * 8 * 4 // reference, perturbation, requested, effective
	stride := remote.SlotStride(int(framePayload))

	base, err := remote.Create(object.TypeRemoteMirror, owner, nbufs, stride, int(bodySize), perm)
	if err != nil {
		return nil, err
	}

	h := headerAt(base.Segment.Data)
	h.Dim1, h.Dim2, h.Nacts = dim1, dim2, int64(nacts)
	h.Cmin, h.Cmax = cmin, cmax
	h.IndsOffset, h.VecOffset = indsOffset, vecOffset

	copy(int32SliceAt(base.Segment.Data, indsOffset, int64(len(inds))), inds)

	mid := (cmin + cmax) / 2
	ref := float64SliceAt(base.Segment.Data, vecOffset, int64(nacts))
	for i := range ref {
		ref[i] = mid
	}

	return &Object{remote: base, header: h}, nil
}

// Attach maps an existing remote mirror by shmid.
func Attach(shmid int) (*Object, error) {
	base, err := remote.Attach(shmid)
	if err != nil {
		return nil, err
	}
	return &Object{remote: base, header: headerAt(base.Segment.Data)}, nil
}

// Open attaches by shmid, verifying the object is a remote mirror.
func Open(shmid int) (*Object, error) {
	base, err := remote.Open(shmid, object.TypeRemoteMirror)
	if err != nil {
		return nil, err
	}
	return &Object{remote: base, header: headerAt(base.Segment.Data)}, nil
}

// Detach releases this process's handle on the mirror.
func (o *Object) Detach() error { return o.remote.Detach() }

// Nacts reports the number of active actuators.
func (o *Object) Nacts() int64 { return o.header.Nacts }

// Bounds returns the [cmin, cmax] command clamp.
func (o *Object) Bounds() (cmin, cmax float64) { return o.header.Cmin, o.header.Cmax }

// Layout returns a copy of the actuator index grid.
func (o *Object) Layout() []int32 {
	n := o.header.Dim1 * o.header.Dim2
	src := int32SliceAt(o.remote.Segment.Data, o.header.IndsOffset, n)
	return append([]int32(nil), src...)
}

func (o *Object) vecSlice(which int) []float64 {
	off := o.header.VecOffset + int64(which)*o.header.Nacts*8
	return float64SliceAt(o.remote.Segment.Data, off, o.header.Nacts)
}

func (o *Object) lockedCopy(which int) []float64 {
	ctx := context.Background()
	_ = o.remote.Header().Mutex.Lock(ctx)
	defer o.remote.Header().Mutex.Unlock()
	return append([]float64(nil), o.vecSlice(which)...)
}

// Reference returns a copy of the currently published reference vector.
func (o *Object) Reference() []float64 { return o.lockedCopy(vecReference) }

// Perturbation returns a copy of the currently pending perturbation.
func (o *Object) Perturbation() []float64 { return o.lockedCopy(vecPerturbation) }

func (o *Object) checkLen(vals []float64) error {
	if int64(len(vals)) != o.header.Nacts {
		return errs.Record{Func: "mirror", Code: errs.BadArgument, Message: "vector length must equal the actuator count"}
	}
	return nil
}

// SetReference overwrites the reference vector (spec §4.6). datnum is
// the serial of the first frame in which the new reference takes
// effect: since set_reference only updates shared state and never
// itself publishes, that is the next serial a subsequent send_commands
// will produce.
func (o *Object) SetReference(ctx context.Context, deadline clock.Deadline, vals []float64) (datnum int64, status ipc.Status) {
	if err := o.checkLen(vals); err != nil {
		return 0, ipc.ERROR
	}
	_, status = o.remote.BeginComplex(ctx, deadline)
	if status != ipc.OK {
		return 0, status
	}
	copy(o.vecSlice(vecReference), vals)
	num := o.remote.FinishComplex(remote.CommandSetReference)
	if status = o.remote.WaitCommand(ctx, num, deadline); status != ipc.OK {
		return 0, status
	}
	return o.remote.Header().Serial.Load() + 1, ipc.OK
}

// SetPerturbation overwrites the perturbation vector (spec §4.6 and
// Open Question (c): last writer wins, no queuing). The perturbation is
// consumed — reset to zero — by the next send_commands.
func (o *Object) SetPerturbation(ctx context.Context, deadline clock.Deadline, vals []float64) (datnum int64, status ipc.Status) {
	if err := o.checkLen(vals); err != nil {
		return 0, ipc.ERROR
	}
	_, status = o.remote.BeginComplex(ctx, deadline)
	if status != ipc.OK {
		return 0, status
	}
	copy(o.vecSlice(vecPerturbation), vals)
	num := o.remote.FinishComplex(remote.CommandSetPerturbation)
	if status = o.remote.WaitCommand(ctx, num, deadline); status != ipc.OK {
		return 0, status
	}
	return o.remote.Header().Serial.Load() + 1, ipc.OK
}

// SendCommands queues one frame of requested actuator commands (spec
// §4.6). bestEffort relaxes a driver-reported shortfall from a hard
// failure to a clipped success (supplemented from
// original_source/include/tao-remote-mirrors.h). datnum is the serial
// of the published frame.
func (o *Object) SendCommands(ctx context.Context, deadline clock.Deadline, vals []float64, mark int64, bestEffort bool) (datnum int64, status ipc.Status) {
	if err := o.checkLen(vals); err != nil {
		return 0, ipc.ERROR
	}
	args, status := o.remote.BeginComplex(ctx, deadline)
	if status != ipc.OK {
		return 0, status
	}
	copy(o.vecSlice(vecRequested), vals)
	w := sendWireAt(args)
	w.Mark = mark
	w.BestEffort = 0
	if bestEffort {
		w.BestEffort = 1
	}
	num := o.remote.FinishComplex(remote.CommandSend)
	if status = o.remote.WaitCommand(ctx, num, deadline); status != ipc.OK {
		return 0, status
	}
	return o.remote.Header().Serial.Load(), ipc.OK
}

// Reset is shorthand for SendCommands with an all-zero request vector
// (spec §4.6).
func (o *Object) Reset(ctx context.Context, deadline clock.Deadline, mark int64) (datnum int64, status ipc.Status) {
	zero := make([]float64, o.header.Nacts)
	return o.SendCommands(ctx, deadline, zero, mark, false)
}

// Kill requests a cooperative shutdown of the owning server.
func (o *Object) Kill(ctx context.Context, deadline clock.Deadline) ipc.Status {
	num, status := o.remote.SubmitSimple(ctx, deadline, remote.CommandKill)
	if status != ipc.OK {
		return status
	}
	return o.remote.WaitCommand(ctx, num, deadline)
}

type frameVectors struct {
	reference, perturbation, requested, effective []float64
}

func (o *Object) frameAt(serial int64) (frameVectors, int64, bool) {
	if serial <= 0 {
		return frameVectors{}, 0, false
	}
	published := o.header.Serial.Load()
	if serial > published {
		return frameVectors{}, 0, false
	}
	slot := o.remote.Slot(serial)
	fh := remote.FrameHeaderAt(slot)
	if fh.Serial.Load() != serial {
		return frameVectors{}, 0, false
	}
	payload := slot[remote.FrameHeaderSize:]
	n := o.header.Nacts
	return frameVectors{
		reference:    float64SliceAt(payload, 0, n),
		perturbation: float64SliceAt(payload, n*8, n),
		requested:    float64SliceAt(payload, n*8*2, n),
		effective:    float64SliceAt(payload, n*8*3, n),
	}, fh.Mark, true
}

// FrameVectors returns copies of the reference, perturbation, requested
// and effective vectors published for serial, plus its mark, or
// ok=false if serial is unknown or has been overwritten.
func (o *Object) FrameVectors(serial int64) (reference, perturbation, requested, effective []float64, mark int64, ok bool) {
	fv, mark, ok := o.frameAt(serial)
	if !ok {
		return nil, nil, nil, nil, 0, false
	}
	return append([]float64(nil), fv.reference...),
		append([]float64(nil), fv.perturbation...),
		append([]float64(nil), fv.requested...),
		append([]float64(nil), fv.effective...),
		mark, true
}

// WaitOutput blocks for the frame named by requested to be published,
// returning the same sentinel contract as remote.Object.WaitOutput.
func (o *Object) WaitOutput(ctx context.Context, requested int64, deadline clock.Deadline) int64 {
	return o.remote.WaitOutput(ctx, requested, deadline)
}
