package mirror

import "context"

// Driver is the virtual-operations table for a physical deformable
// mirror (supplemented from original_source/include/tao-remote-mirrors.h's
// on_send callback, generalized into a collaborator interface the way
// package camera's Device generalizes a physical sensor).
type Driver interface {
	Name() string
	Initialize(ctx context.Context) error
	Finalize() error

	// Send applies requested (already clamped to [cmin, cmax]) to the
	// actuators and returns the commands that actually took effect.
	// applied reports how many of len(requested) actuators were
	// successfully set; applied < len(requested) is a shortfall, which
	// Server treats as forbidden-change unless the caller's
	// send_commands set best_effort.
	Send(ctx context.Context, requested []float64) (effective []float64, applied int, err error)
}
