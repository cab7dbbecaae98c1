package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/errs"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/pixel"
	"github.com/WitIOT/tao/remote"
	"github.com/WitIOT/tao/shm"
)

// pollInterval bounds both how quickly the server notices a raw frame
// the worker has handed off and how quickly the worker notices a
// Stop/Abort/Kill command while acquiring — the Go stand-in for a
// true OS-level multiplexed wait (there is no single primitive that
// blocks on both a futex-backed remote.WaitForCommand and a Go
// channel receive at once).
const pollInterval = 0.02

// mailbox is the single-slot, in-process command channel coupling the
// server goroutine to the worker goroutine (spec §4.5.2: "a command
// slot in the server's own mutex/condvar" — plain sync.Mutex/sync.Cond,
// never package ipc, since only one process ever runs a given
// camera's worker and server goroutines).
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	cmd    remote.Command
	args   [remote.MaxCommandArgs]byte
	hasCmd bool
	done   bool
	err    error
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) push(cmd remote.Command, args [remote.MaxCommandArgs]byte) {
	m.mu.Lock()
	m.cmd, m.args, m.hasCmd = cmd, args, true
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *mailbox) popBlocking() (remote.Command, [remote.MaxCommandArgs]byte) {
	m.mu.Lock()
	for !m.hasCmd {
		m.cond.Wait()
	}
	cmd, args := m.cmd, m.args
	m.hasCmd = false
	m.mu.Unlock()
	return cmd, args
}

func (m *mailbox) tryPop() (remote.Command, [remote.MaxCommandArgs]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasCmd {
		return remote.CommandNone, [remote.MaxCommandArgs]byte{}, false
	}
	cmd, args := m.cmd, m.args
	m.hasCmd = false
	return cmd, args, true
}

func (m *mailbox) complete(err error) {
	m.mu.Lock()
	m.err, m.done = err, true
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *mailbox) waitDone() error {
	m.mu.Lock()
	for !m.done {
		m.cond.Wait()
	}
	err := m.err
	m.done = false
	m.mu.Unlock()
	return err
}

func decodeConfigWire(args []byte) Config {
	w := configWireAt(args)
	return Config{
		Xmin: w.Xmin, Xmax: w.Xmax, Ymin: w.Ymin, Ymax: w.Ymax,
		Encoding: pixel.Encoding(w.Encoding),
		Level:    pixel.Level(w.Level),
		OutType:  array.ElementType(w.OutType),
		Nbufs:    w.Nbufs,
		Drop:     DropPolicy(w.Drop),
	}
}

type rawFrame struct {
	data []byte
	mark int64
}

// Server runs the two-goroutine camera server loop of spec §4.5.2: a
// server goroutine (Run's caller side) that owns the remote camera,
// forwards commands to the worker, and publishes preprocessed frames;
// a worker goroutine that drives Device through its run levels and, at
// RunAcquiring, repeatedly calls Device.WaitBuffer.
type Server struct {
	Object *Object
	Device Device

	mailbox *mailbox
	frames  chan rawFrame

	level        atomic.Int32
	frameCounter atomic.Int64

	rawBuf     []byte
	prepArrays [4]*array.Shared
}

// NewServer returns a Server ready for Run, owning obj and dev.
func NewServer(obj *Object, dev Device) *Server {
	s := &Server{
		Object:  obj,
		Device:  dev,
		mailbox: newMailbox(),
		frames:  make(chan rawFrame, 4),
	}
	s.level.Store(int32(RunUninitialized))
	return s
}

// RunLevel reports the device's current run level.
func (s *Server) RunLevel() RunLevel { return RunLevel(s.level.Load()) }

// Run drives the server until a Kill command is processed or ctx is
// cancelled. After a Kill it returns the worker's terminal error (nil
// on a clean shutdown); after cancellation it returns ctx's error.
func (s *Server) Run(ctx context.Context) error {
	workerDone := make(chan error, 1)
	go func() { workerDone <- s.workerLoop(ctx) }()
	return s.serverLoop(ctx, workerDone)
}

func (s *Server) serverLoop(ctx context.Context, workerDone <-chan error) error {
	for {
		select {
		case raw := <-s.frames:
			s.publish(ctx, raw)
			continue
		default:
		}

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
			// Drain any frame the worker handed off while Finalize
			// was running, then publish the terminal state.
			s.drainFrames(ctx)
			s.Object.remote.MarkUnreachable()
			return <-workerDone
		}
	}
}

func (s *Server) drainFrames(ctx context.Context) {
	for {
		select {
		case raw := <-s.frames:
			s.publish(ctx, raw)
		default:
			return
		}
	}
}

func (s *Server) currentDrop() DropPolicy {
	return s.Object.Config().Drop
}

func (s *Server) workerLoop(ctx context.Context) error {
	if err := s.Device.Initialize(ctx); err != nil {
		s.level.Store(int32(RunFatal))
		return fmt.Errorf("camera: %s: initialize: %w", s.Device.Name(), err)
	}
	s.level.Store(int32(RunIdle))
	if cfg := s.Object.Config(); s.Device.SetConfig(cfg) == nil {
		s.ensurePrepArrays(cfg)
		s.rawBuf = make([]byte, rawBufferSize(cfg))
	}
	s.Object.remote.SetState(remote.StateWaiting)

	acquiring := false
	for {
		var cmd remote.Command
		var args [remote.MaxCommandArgs]byte

		if acquiring {
			var ok bool
			cmd, args, ok = s.mailbox.tryPop()
			if !ok {
				n, err := s.Device.WaitBuffer(ctx, s.rawBuf, pollInterval, s.currentDrop())
				if err != nil {
					s.level.Store(int32(RunRecoverableError))
				}
				if n > 0 {
					mark := s.frameCounter.Add(1)
					frame := append([]byte(nil), s.rawBuf[:n]...)
					select {
					case s.frames <- rawFrame{data: frame, mark: mark}:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				continue
			}
		} else {
			cmd, args = s.mailbox.popBlocking()
		}

		switch cmd {
		case remote.CommandConfig:
			cfg := decodeConfigWire(args[:])
			var err error
			switch {
			case acquiring:
				err = errs.Record{Func: "camera.server", Code: errs.ForbiddenChange, Message: "cannot reconfigure while acquiring"}
			default:
				if err = s.Device.CheckConfig(cfg); err == nil {
					if err = s.Device.SetConfig(cfg); err == nil {
						s.installConfig(ctx, cfg)
					}
				}
			}
			s.mailbox.complete(err)

		case remote.CommandStart:
			var err error
			if acquiring {
				err = errs.Record{Func: "camera.server", Code: errs.AcquisitionRunning, Message: "already acquiring"}
			} else if err = s.Device.Start(); err == nil {
				acquiring = true
				s.level.Store(int32(RunAcquiring))
			}
			s.mailbox.complete(err)

		case remote.CommandStop, remote.CommandAbort:
			var err error
			if acquiring {
				err = s.Device.Stop()
				acquiring = false
				s.level.Store(int32(RunIdle))
				if cmd == remote.CommandAbort {
					// The server goroutine is blocked in waitDone, so
					// nothing else reads frames while they are discarded.
					for len(s.frames) > 0 {
						<-s.frames
					}
				}
			} else {
				err = errs.Record{Func: "camera.server", Code: errs.NotAcquiring, Message: "not acquiring"}
			}
			s.mailbox.complete(err)

		case remote.CommandReset:
			err := s.Device.Reset()
			if err == nil {
				s.level.Store(int32(RunIdle))
			}
			s.mailbox.complete(err)

		case remote.CommandKill:
			if acquiring {
				_ = s.Device.Stop()
			}
			err := s.Device.Finalize()
			s.mailbox.complete(nil)
			return err
		}
	}
}

// installConfig applies cfg to the shared header fields under the
// object's mutex, called by the worker once Device.SetConfig has
// succeeded (ordering rule (c): layout-altering configuration is
// installed before the command's ncmds advances).
func (s *Server) installConfig(ctx context.Context, cfg Config) {
	h := s.Object.remote.Header()
	_ = h.Mutex.Lock(ctx)
	s.Object.header.Xmin, s.Object.header.Xmax = cfg.Xmin, cfg.Xmax
	s.Object.header.Ymin, s.Object.header.Ymax = cfg.Ymin, cfg.Ymax
	s.Object.header.Encoding = uint32(cfg.Encoding)
	s.Object.header.Level = int32(cfg.Level)
	s.Object.header.OutType = int32(cfg.OutType)
	s.Object.header.Drop = int32(cfg.Drop)
	h.Mutex.Unlock()

	s.ensurePrepArrays(cfg)
	s.rawBuf = make([]byte, rawBufferSize(cfg))
}

// ensurePrepArrays allocates a preprocessing array for each a/b/q/r
// slot cfg.Level reads that doesn't already have one published,
// zero-filled for the caller to overwrite with real calibration data.
func (s *Server) ensurePrepArrays(cfg Config) {
	for idx := 0; idx < 4; idx++ {
		if !cfg.Level.RequiresArray(idx) {
			continue
		}
		if _, ok := s.Object.PreprocessingShmid(idx); ok {
			continue
		}
		shared, err := array.Create(cfg.OutType, shm.Perm{}, int64(cfg.Width()), int64(cfg.Height()))
		if err != nil {
			continue
		}
		s.prepArrays[idx] = shared
		s.Object.SetPreprocessingShmid(idx, shared.Segment.Shmid)
	}
}

func rawBufferSize(cfg Config) int {
	rawType, err := pixel.RawTypeOf(cfg.Encoding)
	if err != nil {
		return 0
	}
	n := cfg.Width() * cfg.Height()
	if rawType == pixel.RawPacked12 {
		return n / 2 * 3
	}
	return n * rawType.BytesPerSample()
}

// publish preprocesses one raw frame and appends it to the camera's
// ring, the server side of spec §4.5.2's "publishes preprocessed
// frames".
func (s *Server) publish(ctx context.Context, raw rawFrame) {
	cfg := s.Object.Config()
	rawType, err := pixel.RawTypeOf(cfg.Encoding)
	if err != nil {
		return
	}

	in := pixel.Inputs{
		Raw:     raw.data,
		RawType: rawType,
		Width:   cfg.Width(),
		Height:  cfg.Height(),
		Level:   cfg.Level,
		OutType: cfg.OutType,
	}
	for idx, dst := range []*[]byte{&in.A, &in.B, &in.Q, &in.R} {
		if cfg.Level.RequiresArray(idx) && s.prepArrays[idx] != nil {
			*dst = s.prepArrays[idx].Data()
		}
	}

	out, err := pixel.Preprocess(in)
	if err != nil {
		return
	}

	datShmid := s.publishArray(cfg, out.Dat)
	wgtShmid := -1
	if cfg.Level == pixel.LevelFull {
		wgtShmid = s.publishArray(cfg, out.Wgt)
	}
	if datShmid < 0 {
		return
	}
	s.Object.PublishFrame(ctx, datShmid, wgtShmid, raw.mark)
}

func (s *Server) publishArray(cfg Config, data []byte) int {
	shared, err := array.Create(cfg.OutType, shm.Perm{}, int64(cfg.Width()), int64(cfg.Height()))
	if err != nil {
		return -1
	}
	copy(shared.Data(), data)
	shared.PublishSerial(shared.Serial() + 1)
	return shared.Segment.Shmid
}
