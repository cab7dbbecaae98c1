package camera

import (
	"context"

	"github.com/WitIOT/tao/pixel"
)

// RunLevel is the camera device's 5-level state machine (spec
// §4.5.1): transitions are driven by the owning Server, never by the
// Device implementation itself.
type RunLevel int32

const (
	RunUninitialized   RunLevel = iota // 0: before Initialize
	RunIdle                            // 1: initialized, not acquiring
	RunAcquiring                        // 2: Start has succeeded
	RunRecoverableError                 // 3: an operation failed; Reset may recover
	RunFatal                            // 4: unrecoverable; only Finalize is safe
)

// Device is the virtual-operations table of spec §4.5.1. Each method
// is called by Server only at the run level the spec documents for
// it; Device implementations must not attempt their own state
// tracking beyond what each call needs to do its job.
type Device interface {
	// Name identifies the device for logging (supplemented from
	// original_source/include/tao-cameras.h; not present in the
	// distilled spec, needed so a server process running several
	// cameras can tell them apart in its logs).
	Name() string

	// BufferEncoding reports the encoding of the buffers WaitBuffer
	// fills, so the server can size its raw staging buffer before
	// the first WaitBuffer call (supplemented from the same header).
	BufferEncoding() pixel.Encoding

	Initialize(ctx context.Context) error
	Finalize() error
	Reset() error
	UpdateConfig(cfg Config) error
	CheckConfig(cfg Config) error
	SetConfig(cfg Config) error
	Start() error
	Stop() error

	// WaitBuffer blocks until a raw frame is available (or the
	// deadline elapses), copies it into out, and returns the number
	// of bytes written. It must increment the device's internal
	// frame counter regardless of outcome (spec §4.5.1); drop
	// selects the policy used when the caller can't keep up.
	WaitBuffer(ctx context.Context, out []byte, secs float64, drop DropPolicy) (n int, err error)
}
