// Package simdevice is a software stand-in for camera.Device: it
// synthesizes raw frames instead of driving real hardware, the way
// the teacher pack's software dataplane mock stands in for a real
// NIC. Useful for exercising camera.Server end to end without a
// physical camera.
package simdevice

import (
	"context"
	"time"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/camera"
	"github.com/WitIOT/tao/errs"
	"github.com/WitIOT/tao/pixel"
)

// Device synthesizes a moving-ramp test pattern at a fixed frame rate.
// Not safe for concurrent use from more than one goroutine; camera.Server
// only ever drives a Device from its single worker goroutine.
type Device struct {
	name     string
	encoding pixel.Encoding
	fps      float64

	cfg     camera.Config
	running bool
	frame   int64
}

// New returns a Device producing 12-bit-packed mono frames at fps
// frames per second (spec §4.5's acquisition rate is device-specific;
// this stand-in exposes it directly since there's no real sensor
// clock to read).
func New(name string, fps float64) *Device {
	return &Device{name: name, encoding: pixel.MonoP12, fps: fps}
}

func (d *Device) Name() string                         { return d.name }
func (d *Device) BufferEncoding() pixel.Encoding        { return d.encoding }
func (d *Device) Initialize(ctx context.Context) error  { return nil }
func (d *Device) Finalize() error                       { return nil }

func (d *Device) Reset() error {
	d.running = false
	return nil
}

func (d *Device) UpdateConfig(cfg camera.Config) error {
	return d.CheckConfig(cfg)
}

func (d *Device) CheckConfig(cfg camera.Config) error {
	if cfg.Encoding != d.encoding {
		return errs.Record{Func: "simdevice.CheckConfig", Code: errs.BadEncoding, Message: "simulated device only produces 12-bit packed mono frames"}
	}
	return nil
}

func (d *Device) SetConfig(cfg camera.Config) error {
	if err := d.CheckConfig(cfg); err != nil {
		return err
	}
	d.cfg = cfg
	return nil
}

func (d *Device) Start() error {
	if d.running {
		return errs.Record{Func: "simdevice.Start", Code: errs.AcquisitionRunning, Message: "already acquiring"}
	}
	d.running = true
	return nil
}

func (d *Device) Stop() error {
	d.running = false
	return nil
}

// WaitBuffer synthesizes one frame after sleeping for one frame
// period (bounded by secs), filling out with a 12-bit packed ramp
// pattern that shifts by one count per frame so consumers can tell
// frames apart. drop is accepted for interface conformance; this
// device never falls behind since it only ever produces on demand.
func (d *Device) WaitBuffer(ctx context.Context, out []byte, secs float64, drop camera.DropPolicy) (int, error) {
	d.frame++
	if !d.running {
		return 0, errs.Record{Func: "simdevice.WaitBuffer", Code: errs.NotAcquiring, Message: "device is not acquiring"}
	}

	period := time.Duration(0)
	if d.fps > 0 {
		period = time.Duration(float64(time.Second) / d.fps)
	}
	wait := period
	if bound := time.Duration(secs * float64(time.Second)); bound < wait {
		wait = bound
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}

	width, height := d.cfg.Width(), d.cfg.Height()
	n := width * height
	if n%2 != 0 {
		n--
	}

	offset := uint16(d.frame % 4096)
	samples := make([]uint16, n)
	for i := range samples {
		samples[i] = (uint16(i) + offset) % 4096
	}
	packed, err := array.Pack12(samples)
	if err != nil {
		return 0, err
	}
	return copy(out, packed), nil
}
