// Package sensor implements the remote Shack-Hartmann wavefront sensor
// of spec §4.7: a remote object extended with a sub-image layout (an
// index grid over a camera frame, each active cell naming a sub-image
// box/reference pair) and publish-then-swap configuration — a client
// writes a proposed configuration into a secondary area, and the
// server validates and swaps it into the active primary configuration
// rather than mutating it in place. Grounded on package remote for the
// command/ring engine and package camera for the upstream frame source
// a sensor measures against.
package sensor

import (
	"context"
	"unsafe"

	"github.com/WitIOT/tao/camera"
	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/errs"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/layout"
	"github.com/WitIOT/tao/object"
	"github.com/WitIOT/tao/remote"
	"github.com/WitIOT/tao/shm"
)

// Algorithm selects a sub-image's centroiding strategy (spec §4.7).
type Algorithm int32

const (
	AlgorithmCenterOfGravity Algorithm = iota
	AlgorithmLinearizedMatchedFilter
)

func (a Algorithm) valid() bool {
	return a == AlgorithmCenterOfGravity || a == AlgorithmLinearizedMatchedFilter
}

// BoundingBox is an inclusive pixel range on the upstream camera frame.
type BoundingBox struct {
	Xmin, Xmax, Ymin, Ymax int32
}

// Position is a 2-D location in pixel space.
type Position struct {
	X, Y float64
}

// SubImage is a sub-image descriptor: its bounding box and the
// reference position centroiding is measured against.
type SubImage struct {
	Box BoundingBox
	Ref Position
}

// DataElement is one sub-image's measurement: the centroid, a 2x2
// symmetric precision matrix, an intensity factor and a quality factor
// (spec §4.7).
type DataElement struct {
	X, Y          float64
	Wxx, Wxy, Wyy float64
	Alpha         float64
	Eta           float64
}

const dataElementSize = unsafe.Sizeof(DataElement{})

// Config is the client-facing, runtime-tunable-plus-layout
// configuration carried by configure() (spec §4.7).
type Config struct {
	ForgettingFactor float64
	RestoringForce   float64
	MaxExcursion     float64
	Algorithm        Algorithm
	Dim1, Dim2       int64
	Nsubs            int64
}

func (c Config) validate(maxNinds, maxNsubs int64) error {
	if !c.Algorithm.valid() {
		return errs.Record{Func: "sensor.Configure", Code: errs.Unsupported, Message: "unknown centroiding algorithm"}
	}
	if c.Nsubs <= 0 || c.Nsubs > maxNsubs {
		return errs.Record{Func: "sensor.Configure", Code: errs.BadArgument, Message: "sub-image count exceeds max_nsubs"}
	}
	if c.Dim1 <= 0 || c.Dim2 <= 0 || c.Dim1*c.Dim2 > maxNinds {
		return errs.Record{Func: "sensor.Configure", Code: errs.BadArgument, Message: "index-grid product exceeds max_ninds"}
	}
	return nil
}

// subConfig is a configuration's fixed-size body, duplicated for the
// primary (active) and secondary (proposed) slots (spec §4.7: "a
// secondary config of identical layout, at a fixed offset").
type subConfig struct {
	Forgetting, Restoring, MaxExcursion float64
	AlgorithmTag                        int32
	_                                   int32
	Dim1, Dim2                          int64
	Nsubs                               int64
	CameraShmid                         int32
	_                                   int32
	CameraOwner                         [remote.MaxOwnerLen]byte
}

func (s *subConfig) config() Config {
	return Config{
		ForgettingFactor: s.Forgetting,
		RestoringForce:   s.Restoring,
		MaxExcursion:     s.MaxExcursion,
		Algorithm:        Algorithm(s.AlgorithmTag),
		Dim1:             s.Dim1,
		Dim2:             s.Dim2,
		Nsubs:            s.Nsubs,
	}
}

func (s *subConfig) setConfig(cfg Config, cameraShmid int, cameraOwner string) {
	s.Forgetting, s.Restoring, s.MaxExcursion = cfg.ForgettingFactor, cfg.RestoringForce, cfg.MaxExcursion
	s.AlgorithmTag = int32(cfg.Algorithm)
	s.Dim1, s.Dim2, s.Nsubs = cfg.Dim1, cfg.Dim2, cfg.Nsubs
	s.CameraShmid = int32(cameraShmid)
	max := len(s.CameraOwner) - 1
	if len(cameraOwner) > max {
		cameraOwner = cameraOwner[:max]
	}
	n := copy(s.CameraOwner[:], cameraOwner)
	s.CameraOwner[n] = 0
}

func (s *subConfig) ownerString() string {
	n := 0
	for n < len(s.CameraOwner) && s.CameraOwner[n] != 0 {
		n++
	}
	return string(s.CameraOwner[:n])
}

// header is the remote sensor's family-specific body: immutable
// capacities, the primary/secondary configuration pair, and the byte
// offsets of the four variable-length tables that follow it (primary
// index grid, primary sub-image table, secondary index grid, secondary
// sub-image table).
type header struct {
	remote.Header

	MaxNinds, MaxNsubs int64

	Primary   subConfig
	Secondary subConfig

	PIndsOffset, PSubsOffset int64
	SIndsOffset, SSubsOffset int64
}

const headerSize = unsafe.Sizeof(header{})

func headerAt(b []byte) *header { return (*header)(unsafe.Pointer(&b[0])) }

func align8(n int64) int64 { return (n + 7) &^ 7 }

func int32SliceAt(data []byte, offset, n int64) []int32 {
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[offset])), n)
}

func subImageSliceAt(data []byte, offset, n int64) []SubImage {
	return unsafe.Slice((*SubImage)(unsafe.Pointer(&data[offset])), n)
}

func dataElementSliceAt(data []byte, offset, n int64) []DataElement {
	return unsafe.Slice((*DataElement)(unsafe.Pointer(&data[offset])), n)
}

// Object is a process's handle to an attached remote sensor.
type Object struct {
	remote *remote.Object
	header *header
}

// Remote exposes the underlying generic remote-object handle.
func (o *Object) Remote() *remote.Object { return o.remote }

// Create allocates a new remote sensor with the given immutable
// capacities (spec §4.7: "creation parameters: owner name, ring
// length, max_ninds, max_nsubs").
func Create(owner string, nbufs int, maxNinds, maxNsubs int64, perm shm.Perm) (*Object, error) {
	if nbufs < 2 {
		return nil, errs.Record{Func: "sensor.Create", Code: errs.BadBuffers, Message: "a remote sensor requires at least 2 ring slots"}
	}
	if maxNinds <= 0 || maxNsubs <= 0 {
		return nil, errs.Record{Func: "sensor.Create", Code: errs.BadArgument, Message: "max_ninds and max_nsubs must be positive"}
	}

	indsBytes := maxNinds * 4
	subsBytes := maxNsubs * int64(unsafe.Sizeof(SubImage{}))

	pIndsOffset := align8(int64(headerSize))
	pSubsOffset := align8(pIndsOffset + indsBytes)
	sIndsOffset := align8(pSubsOffset + subsBytes)
	sSubsOffset := align8(sIndsOffset + indsBytes)
	bodySize := align8(sSubsOffset + subsBytes)

	framePayload := maxNsubs * int64(dataElementSize)
	stride := remote.SlotStride(int(framePayload))

	base, err := remote.Create(object.TypeRemoteSensor, owner, nbufs, stride, int(bodySize), perm)
	if err != nil {
		return nil, err
	}

	h := headerAt(base.Segment.Data)
	h.MaxNinds, h.MaxNsubs = maxNinds, maxNsubs
	h.PIndsOffset, h.PSubsOffset = pIndsOffset, pSubsOffset
	h.SIndsOffset, h.SSubsOffset = sIndsOffset, sSubsOffset
	h.Primary.CameraShmid = -1
	h.Secondary.CameraShmid = -1

	return &Object{remote: base, header: h}, nil
}

// Attach maps an existing remote sensor by shmid.
func Attach(shmid int) (*Object, error) {
	base, err := remote.Attach(shmid)
	if err != nil {
		return nil, err
	}
	return &Object{remote: base, header: headerAt(base.Segment.Data)}, nil
}

// Open attaches by shmid, verifying the object is a remote sensor.
func Open(shmid int) (*Object, error) {
	base, err := remote.Open(shmid, object.TypeRemoteSensor)
	if err != nil {
		return nil, err
	}
	return &Object{remote: base, header: headerAt(base.Segment.Data)}, nil
}

// Detach releases this process's handle on the sensor.
func (o *Object) Detach() error { return o.remote.Detach() }

// Config reads back the sensor's currently active (primary)
// configuration.
func (o *Object) Config() Config { return o.header.Primary.config() }

// Layout returns a copy of the active index grid and sub-image table.
func (o *Object) Layout() ([]int32, []SubImage) {
	cfg := o.header.Primary
	inds := append([]int32(nil), int32SliceAt(o.remote.Segment.Data, o.header.PIndsOffset, cfg.Dim1*cfg.Dim2)...)
	subs := append([]SubImage(nil), subImageSliceAt(o.remote.Segment.Data, o.header.PSubsOffset, cfg.Nsubs)...)
	return inds, subs
}

// CameraSource returns the owner name and shmid of the camera the
// active configuration measures against.
func (o *Object) CameraSource() (owner string, shmid int) {
	return o.header.Primary.ownerString(), int(o.header.Primary.CameraShmid)
}

func checkLayout(cfg Config, inds []int32, subs []SubImage, maxNinds, maxNsubs int64, cameraWidth, cameraHeight int) error {
	if err := cfg.validate(maxNinds, maxNsubs); err != nil {
		return err
	}
	if int64(len(inds)) != cfg.Dim1*cfg.Dim2 {
		return errs.Record{Func: "sensor.Configure", Code: errs.BadArgument, Message: "index grid length must equal dim1*dim2"}
	}
	if int64(len(subs)) != cfg.Nsubs {
		return errs.Record{Func: "sensor.Configure", Code: errs.BadArgument, Message: "sub-image table length must equal nsubs"}
	}
	active, err := layout.CheckIndexedLayout(inds, int(cfg.Dim1), int(cfg.Dim2))
	if err != nil {
		return err
	}
	if int64(active) > cfg.Nsubs {
		return errs.Record{Func: "sensor.Configure", Code: errs.BadArgument, Message: "index grid entry out of range for nsubs"}
	}
	for _, s := range subs {
		if s.Box.Xmin < 0 || s.Box.Ymin < 0 || int(s.Box.Xmax) >= cameraWidth || int(s.Box.Ymax) >= cameraHeight || s.Box.Xmax < s.Box.Xmin || s.Box.Ymax < s.Box.Ymin {
			return errs.Record{Func: "sensor.Configure", Code: errs.BadROI, Message: "sub-image box does not fit inside the camera frame"}
		}
	}
	return nil
}

// Configure validates cfg/inds/subs against the sensor's capacities and
// issues a `config` command carrying the proposal in the secondary
// area; the server validates again against the live camera frame size
// and, on success, swaps it into the primary configuration (spec
// §4.7's publish-then-swap).
func (o *Object) Configure(ctx context.Context, deadline clock.Deadline, cfg Config, cameraOwner string, cameraShmid int, inds []int32, subs []SubImage) ipc.Status {
	if err := cfg.validate(o.header.MaxNinds, o.header.MaxNsubs); err != nil {
		return ipc.ERROR
	}
	if int64(len(inds)) != cfg.Dim1*cfg.Dim2 || int64(len(subs)) != cfg.Nsubs {
		return ipc.ERROR
	}

	// The proposal is written directly into the secondary tables while
	// BeginComplex holds the header mutex, the same technique package
	// mirror uses for its vectors: CommandArgs is far too small for an
	// index grid or sub-image table.
	_, status := o.remote.BeginComplex(ctx, deadline)
	if status != ipc.OK {
		return status
	}
	o.header.Secondary.setConfig(cfg, cameraShmid, cameraOwner)
	copy(int32SliceAt(o.remote.Segment.Data, o.header.SIndsOffset, int64(len(inds))), inds)
	copy(subImageSliceAt(o.remote.Segment.Data, o.header.SSubsOffset, int64(len(subs))), subs)
	num := o.remote.FinishComplex(remote.CommandConfig)
	return o.remote.WaitCommand(ctx, num, deadline)
}

// tuneWire overlays CommandArgs for tune_config: only the three
// runtime-tunable scalars (spec §4.7: "writable only for runtime-
// tunable fields ... must not change layout").
type tuneWire struct {
	Forgetting, Restoring, MaxExcursion float64
}

func tuneWireAt(args []byte) *tuneWire { return (*tuneWire)(unsafe.Pointer(&args[0])) }

// TuneConfig updates the forgetting factor, restoring force and max
// excursion of the live configuration without touching layout.
func (o *Object) TuneConfig(ctx context.Context, deadline clock.Deadline, forgetting, restoring, maxExcursion float64) ipc.Status {
	args, status := o.remote.BeginComplex(ctx, deadline)
	if status != ipc.OK {
		return status
	}
	w := tuneWireAt(args)
	w.Forgetting, w.Restoring, w.MaxExcursion = forgetting, restoring, maxExcursion
	num := o.remote.FinishComplex(remote.CommandTuneConfig)
	return o.remote.WaitCommand(ctx, num, deadline)
}

func (o *Object) simple(ctx context.Context, deadline clock.Deadline, cmd remote.Command) ipc.Status {
	num, status := o.remote.SubmitSimple(ctx, deadline, cmd)
	if status != ipc.OK {
		return status
	}
	return o.remote.WaitCommand(ctx, num, deadline)
}

// Start begins the measurement loop.
func (o *Object) Start(ctx context.Context, deadline clock.Deadline) ipc.Status {
	return o.simple(ctx, deadline, remote.CommandStart)
}

// Stop ends the measurement loop gracefully.
func (o *Object) Stop(ctx context.Context, deadline clock.Deadline) ipc.Status {
	return o.simple(ctx, deadline, remote.CommandStop)
}

// Kill requests a cooperative shutdown of the owning server.
func (o *Object) Kill(ctx context.Context, deadline clock.Deadline) ipc.Status {
	return o.simple(ctx, deadline, remote.CommandKill)
}

func (o *Object) frameAt(serial int64) ([]DataElement, int64, bool) {
	if serial <= 0 {
		return nil, 0, false
	}
	published := o.header.Serial.Load()
	if serial > published {
		return nil, 0, false
	}
	slot := o.remote.Slot(serial)
	fh := remote.FrameHeaderAt(slot)
	if fh.Serial.Load() != serial {
		return nil, 0, false
	}
	payload := slot[remote.FrameHeaderSize:]
	elems := dataElementSliceAt(payload, 0, o.header.Primary.Nsubs)
	return elems, fh.Mark, true
}

// FetchData returns a copy of the data-element table published for
// serial, plus its mark, or ok=false if serial is unknown or has been
// overwritten (spec §4.7's fetch_data).
func (o *Object) FetchData(serial int64) (elems []DataElement, mark int64, ok bool) {
	fv, mark, ok := o.frameAt(serial)
	if !ok {
		return nil, 0, false
	}
	return append([]DataElement(nil), fv...), mark, true
}

// WaitOutput blocks for the measurement frame named by requested to be
// published, returning the same sentinel contract as
// remote.Object.WaitOutput.
func (o *Object) WaitOutput(ctx context.Context, requested int64, deadline clock.Deadline) int64 {
	return o.remote.WaitOutput(ctx, requested, deadline)
}

// cameraFrameSize attaches shmid just long enough to read its camera
// configuration's ROI dimensions, used by the server to validate a
// proposed layout against the actual upstream frame size.
func cameraFrameSize(shmid int) (width, height int, err error) {
	cam, err := camera.Open(shmid)
	if err != nil {
		return 0, 0, err
	}
	defer cam.Detach()
	cfg := cam.Config()
	return cfg.Width(), cfg.Height(), nil
}
