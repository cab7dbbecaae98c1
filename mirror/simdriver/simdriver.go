// Package simdriver is a software stand-in for mirror.Driver, letting a
// remote mirror server run without a physical deformable mirror
// attached (the same role camera/simdevice plays for package camera).
package simdriver

import "context"

// Driver is a perfect simulated mirror: it applies every requested
// actuator command exactly, reporting no shortfall.
type Driver struct {
	name string
}

// New returns a Driver named name.
func New(name string) *Driver {
	return &Driver{name: name}
}

func (d *Driver) Name() string                        { return d.name }
func (d *Driver) Initialize(ctx context.Context) error { return nil }
func (d *Driver) Finalize() error                      { return nil }

// Send echoes requested back as the effective commands applied.
func (d *Driver) Send(ctx context.Context, requested []float64) (effective []float64, applied int, err error) {
	effective = append([]float64(nil), requested...)
	return effective, len(requested), nil
}
