package sensor

import (
	"context"
	"sync/atomic"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/camera"
	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/errs"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/remote"
)

// pollInterval bounds how quickly the worker notices a Stop/Kill while
// blocked waiting on the upstream camera, the same bounded busy-poll
// package camera's server uses for the same reason (no single
// primitive blocks on both a futex wait and a Go channel receive).
const pollInterval = 0.02

// Server runs the two-goroutine measurement loop of spec §4.7: a
// server goroutine owning the remote sensor's command/ring protocol,
// and a worker goroutine that attaches the camera named by each accepted
// configuration and, once started, measures every frame it publishes.
type Server struct {
	Object *Object

	mailbox *mailbox
	running atomic.Bool
}

// NewServer returns a Server ready for Run, owning obj.
func NewServer(obj *Object) *Server {
	return &Server{Object: obj, mailbox: newMailbox()}
}

// Running reports whether the measurement loop is currently attached
// to a camera and producing frames.
func (s *Server) Running() bool { return s.running.Load() }

// Run drives the server until a Kill command is processed or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.Object.remote.SetState(remote.StateWaiting)

	workerDone := make(chan error, 1)
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go func() { workerDone <- s.workerLoop(workerCtx) }()

	for {
		num, cmd, args, status := s.Object.remote.WaitForCommand(ctx, clock.AfterSeconds(pollInterval))
		switch status {
		case ipc.TIMEOUT:
			continue
		case ipc.ERROR:
			return ctx.Err()
		}
		if cmd == remote.CommandNone {
			continue
		}

		s.mailbox.push(cmd, args)
		cmdErr := s.mailbox.waitDone()

		next := remote.StateWaiting
		if cmdErr != nil {
			next = remote.StateError
		}
		s.Object.remote.CompleteCommand(num, next)

		if cmd == remote.CommandKill {
			s.Object.remote.MarkUnreachable()
			cancelWorker()
			return <-workerDone
		}
	}
}

func (s *Server) workerLoop(ctx context.Context) error {
	var cam *camera.Object
	defer func() {
		if cam != nil {
			_ = cam.Detach()
		}
	}()

	for {
		var cmd remote.Command
		var args [remote.MaxCommandArgs]byte

		if s.running.Load() {
			var ok bool
			cmd, args, ok = s.mailbox.tryPop()
			if !ok {
				if err := s.measureOne(ctx, cam); err != nil {
					// A transient measurement failure (e.g. the camera
					// hasn't produced a frame yet) is not fatal; keep
					// polling until Stop/Kill arrives.
					_ = err
				}
				continue
			}
		} else {
			cmd, args = s.mailbox.popBlocking()
		}

		switch cmd {
		case remote.CommandConfig:
			proposed := s.Object.header.Secondary
			width, height, err := cameraFrameSize(int(proposed.CameraShmid))
			if err == nil {
				inds := append([]int32(nil), int32SliceAt(s.Object.remote.Segment.Data, s.Object.header.SIndsOffset, proposed.Dim1*proposed.Dim2)...)
				subs := append([]SubImage(nil), subImageSliceAt(s.Object.remote.Segment.Data, s.Object.header.SSubsOffset, proposed.Nsubs)...)
				err = checkLayout(proposed.config(), inds, subs, s.Object.header.MaxNinds, s.Object.header.MaxNsubs, width, height)
			}
			if err == nil && s.running.Load() {
				err = errs.Record{Func: "sensor.server", Code: errs.ForbiddenChange, Message: "cannot reconfigure while measuring"}
			}
			if err == nil {
				s.installConfig(ctx, &cam)
			}
			s.mailbox.complete(err)

		case remote.CommandTuneConfig:
			w := tuneWireAt(args[:])
			s.Object.header.Primary.Forgetting = w.Forgetting
			s.Object.header.Primary.Restoring = w.Restoring
			s.Object.header.Primary.MaxExcursion = w.MaxExcursion
			s.mailbox.complete(nil)

		case remote.CommandStart:
			var err error
			if s.running.Load() {
				err = errs.Record{Func: "sensor.server", Code: errs.AcquisitionRunning, Message: "already measuring"}
			} else if cam == nil {
				err = errs.Record{Func: "sensor.server", Code: errs.NotReady, Message: "not configured"}
			} else {
				s.running.Store(true)
			}
			s.mailbox.complete(err)

		case remote.CommandStop:
			s.running.Store(false)
			s.mailbox.complete(nil)

		case remote.CommandKill:
			s.running.Store(false)
			s.mailbox.complete(nil)
			return nil
		}
	}
}

// installConfig swaps the validated secondary configuration into
// primary and (re)attaches the configured camera (spec §4.7's
// publish-then-swap).
func (s *Server) installConfig(ctx context.Context, cam **camera.Object) {
	h := s.Object.header
	_ = h.Mutex.Lock(ctx)
	h.Primary = h.Secondary
	copy(
		int32SliceAt(s.Object.remote.Segment.Data, h.PIndsOffset, h.Primary.Dim1*h.Primary.Dim2),
		int32SliceAt(s.Object.remote.Segment.Data, h.SIndsOffset, h.Primary.Dim1*h.Primary.Dim2),
	)
	copy(
		subImageSliceAt(s.Object.remote.Segment.Data, h.PSubsOffset, h.Primary.Nsubs),
		subImageSliceAt(s.Object.remote.Segment.Data, h.SSubsOffset, h.Primary.Nsubs),
	)
	h.Mutex.Unlock()

	if *cam != nil {
		_ = (*cam).Detach()
		*cam = nil
	}
	opened, err := camera.Open(int(h.Primary.CameraShmid))
	if err == nil {
		*cam = opened
	}
}

// measureOne waits for the next camera frame and publishes one
// measurement frame derived from it.
func (s *Server) measureOne(ctx context.Context, cam *camera.Object) error {
	if cam == nil {
		return errs.Record{Func: "sensor.server", Code: errs.NotReady, Message: "no camera attached"}
	}
	serial := cam.WaitOutput(ctx, 0, clock.AfterSeconds(pollInterval))
	if serial <= 0 {
		return nil
	}
	shmid, ok := cam.ImageShmid(serial)
	if !ok {
		return errs.Record{Func: "sensor.server", Code: errs.NotReady, Message: "camera frame not available"}
	}

	img, err := array.Attach(shmid)
	if err != nil {
		return err
	}
	defer img.Detach()

	cfg := s.Object.header.Primary
	subs := subImageSliceAt(s.Object.remote.Segment.Data, s.Object.header.PSubsOffset, cfg.Nsubs)
	strategy := centroiderFor(Algorithm(cfg.AlgorithmTag))

	slotSerial, slot, status := s.Object.remote.BeginPublish(ctx)
	if status != ipc.OK {
		return errs.Record{Func: "sensor.server", Code: errs.Timeout, Message: "could not reserve a ring slot"}
	}
	payload := slot[remote.FrameHeaderSize:]
	out := dataElementSliceAt(payload, 0, s.Object.header.MaxNsubs)

	prior, _, _ := s.Object.FetchData(s.Object.header.Serial.Load())
	for i, sub := range subs {
		var p DataElement
		if i < len(prior) {
			p = prior[i]
		}
		out[i] = strategy.compute(img, sub.Box, sub.Ref, p)
	}

	s.Object.remote.FinishPublish(slotSerial, slot, serial)
	return nil
}
