package sensor

import (
	"github.com/WitIOT/tao/array"
)

// centroider computes one sub-image's DataElement from the pixels
// inside its bounding box. Supplemented from
// original_source/include/tao-shackhartmann.h and
// include/tao-remote-sensors.h, which name the two algorithm tags but
// leave the centroiding math to this package's discretion.
type centroider interface {
	compute(img *array.Shared, box BoundingBox, ref Position, prior DataElement) DataElement
}

func centroiderFor(a Algorithm) centroider {
	switch a {
	case AlgorithmLinearizedMatchedFilter:
		return linearizedMatchedFilter{}
	default:
		return centerOfGravity{}
	}
}

func pixelAt(img *array.Shared, x, y int64) float64 {
	width := img.Header.Dims[0]
	off := (x + y*width) * int64(img.Header.Eltype.Size())
	data := img.Data()
	return array.ReadElement(data[off:], img.Header.Eltype)
}

// centerOfGravity computes the intensity-weighted first moment over
// the sub-image box (spec §4.7's plain center-of-gravity variant).
type centerOfGravity struct{}

func (centerOfGravity) compute(img *array.Shared, box BoundingBox, ref Position, _ DataElement) DataElement {
	var sum, sumX, sumY float64
	for y := int64(box.Ymin); y <= int64(box.Ymax); y++ {
		for x := int64(box.Xmin); x <= int64(box.Xmax); x++ {
			v := pixelAt(img, x, y)
			if v < 0 {
				v = 0
			}
			sum += v
			sumX += v * float64(x)
			sumY += v * float64(y)
		}
	}
	if sum <= 0 {
		return DataElement{X: ref.X, Y: ref.Y, Eta: 0}
	}
	cx, cy := sumX/sum, sumY/sum

	n := float64((int64(box.Xmax) - int64(box.Xmin) + 1) * (int64(box.Ymax) - int64(box.Ymin) + 1))
	variance := 1.0 / sum
	return DataElement{
		X: cx, Y: cy,
		Wxx: 1 / variance, Wxy: 0, Wyy: 1 / variance,
		Alpha: sum / n,
		Eta:   1,
	}
}

// linearizedMatchedFilter takes intensity-weighted first and second
// moments about the prior measurement (or about the sub-image's
// reference position when the prior is zero) and applies one
// Gauss-Newton-style correction step rather than a full nonlinear
// matched-filter search, which is cheap enough to run every
// frame (spec §4.7's linearized-matched-filter variant).
type linearizedMatchedFilter struct{}

func (linearizedMatchedFilter) compute(img *array.Shared, box BoundingBox, ref Position, prior DataElement) DataElement {
	cx, cy := prior.X, prior.Y
	if cx == 0 && cy == 0 {
		cx, cy = ref.X, ref.Y
	}

	var sum, sumX, sumY, sumXX, sumYY float64
	for y := int64(box.Ymin); y <= int64(box.Ymax); y++ {
		for x := int64(box.Xmin); x <= int64(box.Xmax); x++ {
			v := pixelAt(img, x, y)
			if v < 0 {
				v = 0
			}
			dx, dy := float64(x)-cx, float64(y)-cy
			w := v
			sum += w
			sumX += w * dx
			sumY += w * dy
			sumXX += w * dx * dx
			sumYY += w * dy * dy
		}
	}
	if sum <= 0 {
		return DataElement{X: cx, Y: cy, Eta: 0}
	}

	// One linearized (Gauss-Newton) correction step from the prior
	// estimate, rather than re-centering from scratch each frame.
	nx := cx + sumX/sum
	ny := cy + sumY/sum
	varX := sumXX/sum + 1e-9
	varY := sumYY/sum + 1e-9

	return DataElement{
		X: nx, Y: ny,
		Wxx: 1 / varX, Wxy: 0, Wyy: 1 / varY,
		Alpha: sum,
		Eta:   1,
	}
}
