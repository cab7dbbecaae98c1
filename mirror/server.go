package mirror

import (
	"context"

	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/errs"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/remote"
)

// Server runs the command loop of spec §4.6. Unlike package camera's
// two-goroutine split, a mirror command either reads/writes shared
// state directly or calls Driver.Send synchronously, so a single loop
// suffices: there is no continuous acquisition to interleave with.
type Server struct {
	Object *Object
	Driver Driver
}

// NewServer returns a Server ready for Run, owning obj and drv.
func NewServer(obj *Object, drv Driver) *Server {
	return &Server{Object: obj, Driver: drv}
}

// Run drives the command loop until a Kill command is processed or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Driver.Initialize(ctx); err != nil {
		return err
	}
	s.Object.remote.SetState(remote.StateWaiting)

	for {
		num, cmd, args, status := s.Object.remote.WaitForCommand(ctx, clock.Forever)
		if status != ipc.OK {
			return ctx.Err()
		}
		if cmd == remote.CommandNone {
			continue
		}

		next, err := s.handle(ctx, cmd, args)

		if cmd == remote.CommandKill {
			s.Object.remote.CompleteCommand(num, next)
			s.Object.remote.MarkUnreachable()
			return s.Driver.Finalize()
		}
		s.Object.remote.CompleteCommand(num, next)
		_ = err
	}
}

func (s *Server) handle(ctx context.Context, cmd remote.Command, args [remote.MaxCommandArgs]byte) (remote.State, error) {
	switch cmd {
	case remote.CommandSetReference, remote.CommandSetPerturbation:
		// The client already wrote the new vector directly into shared
		// memory under the header mutex (mirror.Object.SetReference/
		// SetPerturbation); nothing left to do here but acknowledge.
		return remote.StateWaiting, nil

	case remote.CommandSend, remote.CommandReset:
		w := sendWireAt(args[:])
		err := s.send(ctx, w.Mark, w.BestEffort != 0)
		if err != nil {
			return remote.StateError, err
		}
		return remote.StateWaiting, nil

	case remote.CommandKill:
		return remote.StateQuitting, nil

	default:
		return remote.StateWaiting, nil
	}
}

// send clamps the requested vector, asks the Driver to apply it, and
// publishes the resulting frame — the part of send_commands spec §4.6
// describes as "queues one frame".
func (s *Server) send(ctx context.Context, mark int64, bestEffort bool) error {
	h := s.Object.header
	cmin, cmax := h.Cmin, h.Cmax

	status := h.Mutex.Lock(ctx)
	if status != ipc.OK {
		return errs.Record{Func: "mirror.server", Code: errs.Timeout, Message: "could not lock header to read vectors"}
	}
	reference := append([]float64(nil), s.Object.vecSlice(vecReference)...)
	perturbation := append([]float64(nil), s.Object.vecSlice(vecPerturbation)...)
	requested := append([]float64(nil), s.Object.vecSlice(vecRequested)...)
	h.Mutex.Unlock()

	clamped := make([]float64, len(requested))
	for i, v := range requested {
		v += reference[i] + perturbation[i]
		switch {
		case v < cmin:
			v = cmin
		case v > cmax:
			v = cmax
		}
		clamped[i] = v
	}

	effective, applied, err := s.Driver.Send(ctx, clamped)
	if err != nil {
		return err
	}
	if applied < len(clamped) && !bestEffort {
		return errs.Record{Func: "mirror.server", Code: errs.ForbiddenChange, Message: "driver could not apply all commands and best_effort is unset"}
	}

	// The perturbation is consumed by this send (spec §4.6).
	status = h.Mutex.Lock(ctx)
	if status != ipc.OK {
		return errs.Record{Func: "mirror.server", Code: errs.Timeout, Message: "could not lock header to clear perturbation"}
	}
	zero := s.Object.vecSlice(vecPerturbation)
	for i := range zero {
		zero[i] = 0
	}
	h.Mutex.Unlock()

	serial, slot, status := s.Object.remote.BeginPublish(ctx)
	if status != ipc.OK {
		return errs.Record{Func: "mirror.server", Code: errs.Timeout, Message: "could not reserve a ring slot"}
	}
	payload := slot[remote.FrameHeaderSize:]
	n := h.Nacts
	copy(float64SliceAt(payload, 0, n), reference)
	copy(float64SliceAt(payload, n*8, n), perturbation)
	copy(float64SliceAt(payload, n*8*2, n), requested)
	copy(float64SliceAt(payload, n*8*3, n), effective)
	s.Object.remote.FinishPublish(serial, slot, mark)
	return nil
}
