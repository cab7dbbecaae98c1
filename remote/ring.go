package remote

import (
	"context"

	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/ipc"
)

// Slot returns the byte range of the ring slot holding the frame with the
// given serial (1-based, monotonically increasing). Serial must be >= 1.
func (o *Object) Slot(serial int64) []byte {
	idx := (serial - 1) % o.header.Nbufs
	off := o.header.Offset + idx*o.header.Stride
	return o.Segment.Data[off : off+o.header.Stride]
}

// BeginPublish reserves the next serial number and returns its slot for
// the caller to fill in (spec §4.4: "the publisher computes the next
// serial, writes the frame body into the corresponding slot, then
// publishes"). The caller must follow with FinishPublish.
func (o *Object) BeginPublish(ctx context.Context) (serial int64, slot []byte, status ipc.Status) {
	status = o.header.Mutex.Lock(ctx)
	if status != ipc.OK {
		return 0, nil, status
	}
	serial = o.header.Serial.Load() + 1
	o.header.Mutex.Unlock()
	return serial, o.Slot(serial), ipc.OK
}

// FinishPublish stamps the slot's FrameHeader and publishes serial on the
// remote object itself, then wakes every waiter. mark is the publisher-
// supplied sequence number carried alongside the timestamp (e.g. a camera
// frame counter or a mirror command counter); it is opaque to package
// remote.
func (o *Object) FinishPublish(serial int64, slot []byte, mark int64) {
	fh := FrameHeaderAt(slot)
	fh.Mark = mark
	fh.Time = clock.Now()
	fh.Serial.Store(serial)

	o.header.Serial.Store(serial)
	o.header.Cond.Broadcast()
}

// Fetch result codes, mirroring the wait_output/fetch return-value table
// (spec §4.4): a non-negative serial names the frame actually delivered,
// -1 means the requested frame was overwritten before it could be read.
const (
	FetchOverwritten int64 = -1
)

// Fetch copies the payload of the slot holding serial into out (truncating
// or zero-padding to len(out)) and reports which frame was actually
// delivered: serial itself on success, 0 if that frame has not been
// published yet, or FetchOverwritten if it was published but has since
// been overwritten by a newer one.
func (o *Object) Fetch(serial int64, out []byte) int64 {
	slot := o.Slot(serial)
	fh := FrameHeaderAt(slot)

	payload := slot[FrameHeaderSize:]
	n := copy(out, payload)
	for i := n; i < len(out); i++ {
		out[i] = 0
	}

	after := fh.Serial.Load()
	switch {
	case after == serial:
		return serial
	case after < serial:
		return 0
	default:
		return FetchOverwritten
	}
}

// WaitOutput blocks until the frame named by requested (or, if requested
// <= 0, the next frame to be published) is available, the server becomes
// unreachable, or ctx/deadline cuts it short. It returns the
// wait_output/fetch return-value table of spec §4.4: the delivered serial,
// 0 on timeout, -1 if overwritten before the wait resolved, -2 if the
// server died first, or -3 on an internal (context-cancellation) error.
func (o *Object) WaitOutput(ctx context.Context, requested int64, deadline clock.Deadline) int64 {
	status := o.header.Mutex.LockUntil(ctx, deadline)
	if status == ipc.ERROR {
		return -3
	}
	if status == ipc.TIMEOUT {
		return 0
	}

	if requested <= 0 {
		requested = o.header.Serial.Load() + 1
	}

	for {
		serial := o.header.Serial.Load()
		if serial >= requested {
			break
		}
		if !Alive(State(o.header.State.Load())) {
			o.header.Mutex.Unlock()
			return -2
		}
		status = o.header.Cond.WaitUntil(ctx, &o.header.Mutex, deadline)
		switch status {
		case ipc.TIMEOUT:
			o.header.Mutex.Unlock()
			return 0
		case ipc.ERROR:
			o.header.Mutex.Unlock()
			return -3
		}
	}
	o.header.Mutex.Unlock()

	slot := o.Slot(requested)
	fh := FrameHeaderAt(slot)
	got := fh.Serial.Load()
	switch {
	case got == requested:
		return requested
	case got > requested:
		return FetchOverwritten
	default:
		// The ring advanced past requested's slot but the frame's own
		// stamp has not landed yet; treat as not-yet-available rather
		// than misreport an overwrite.
		return 0
	}
}
