// Package interpolation resamples CT volumes to a uniform voxel spacing.
package interpolation

import (
	"fmt"
	"math"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/interp"

	"ctslicesto3d/internal/models"
	"ctslicesto3d/internal/x"
)

// Method selects the 1-D interpolant applied along each axis
type Method int

const (
	// MethodCubic fits a natural cubic spline along each axis
	MethodCubic Method = iota

	// MethodLinear interpolates linearly between neighbouring samples
	MethodLinear
)

func (m Method) String() string {
	switch m {
	case MethodCubic:
		return "cubic"
	case MethodLinear:
		return "linear"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod converts a configuration name into a Method
func ParseMethod(name string) (Method, error) {
	switch name {
	case "cubic", "":
		return MethodCubic, nil
	case "linear":
		return MethodLinear, nil
	}
	return 0, fmt.Errorf("unknown interpolation method %q", name)
}

// TargetShape computes the voxel counts for resampling a volume of the
// given shape and spacing to target, and the spacing actually achieved
// once the counts are rounded.
func TargetShape(shape [3]int, spacing, target models.Spacing) ([3]int, models.Spacing) {
	var newShape [3]int
	var achieved models.Spacing
	for i := 0; i < 3; i++ {
		factor := spacing[i] / target[i]
		n := int(math.Round(float64(shape[i]) * factor))
		if n < 1 {
			n = 1
		}
		newShape[i] = n

		// The rounded count changes the effective zoom factor
		realFactor := float64(n) / float64(shape[i])
		achieved[i] = spacing[i] / realFactor
	}
	return newShape, achieved
}

// Resample interpolates vol onto a grid whose spacing is as close to target
// as whole voxel counts allow. It returns a new volume and the achieved
// spacing; vol is not modified.
func Resample(vol *models.Volume, target models.Spacing, method Method) (*models.Volume, models.Spacing, error) {
	if vol == nil || len(vol.Data) == 0 {
		return nil, models.Spacing{}, x.InputErrorf("cannot resample an empty volume")
	}
	for i := 0; i < 3; i++ {
		if !(target[i] > 0) {
			return nil, models.Spacing{}, x.InputErrorf("target spacing %v must be positive", target)
		}
		if !(vol.Spacing[i] > 0) {
			return nil, models.Spacing{}, x.InputErrorf("volume spacing %v must be positive", vol.Spacing)
		}
	}

	shape := vol.Shape()
	newShape, achieved := TargetShape(shape, vol.Spacing, target)

	if newShape == shape {
		out := vol.Clone()
		out.Spacing = achieved
		return out, achieved, nil
	}

	glog.Infof("Resampling %v voxels at %.3f mm to %v voxels at %.3f mm (%s)",
		shape, vol.Spacing[:], newShape, achieved[:], method)

	data := make([]float64, len(vol.Data))
	for i, v := range vol.Data {
		data[i] = float64(v)
	}

	// Separable zoom: Z, then Y, then X
	dims := shape
	for axis := 0; axis < 3; axis++ {
		if dims[axis] == newShape[axis] {
			continue
		}
		data, dims = zoomAxis(data, dims, axis, newShape[axis], method)
	}

	out := models.NewVolume(newShape[0], newShape[1], newShape[2], achieved)
	for i, v := range data {
		out.Data[i] = clampInt16(v)
	}

	return out, achieved, nil
}

// zoomAxis resizes one axis of a (Z, Y, X) row-major grid to n samples
func zoomAxis(data []float64, dims [3]int, axis, n int, method Method) ([]float64, [3]int) {
	newDims := dims
	newDims[axis] = n

	// Strides of the axis in the input and output grids
	stride := func(d [3]int, a int) int {
		switch a {
		case 0:
			return d[1] * d[2]
		case 1:
			return d[2]
		}
		return 1
	}
	inStride, outStride := stride(dims, axis), stride(newDims, axis)

	out := make([]float64, newDims[0]*newDims[1]*newDims[2])
	line := make([]float64, dims[axis])
	res := make([]float64, n)
	z := newLineZoomer(dims[axis], n, method)

	// Iterate over the two remaining axes
	var others [2]int
	k := 0
	for a := 0; a < 3; a++ {
		if a != axis {
			others[k] = a
			k++
		}
	}

	for i := 0; i < dims[others[0]]; i++ {
		for j := 0; j < dims[others[1]]; j++ {
			var idx [3]int
			idx[others[0]], idx[others[1]] = i, j

			inBase := idx[0]*dims[1]*dims[2] + idx[1]*dims[2] + idx[2]
			outBase := idx[0]*newDims[1]*newDims[2] + idx[1]*newDims[2] + idx[2]

			for s := range line {
				line[s] = data[inBase+s*inStride]
			}
			z.zoom(line, res)
			for s, v := range res {
				out[outBase+s*outStride] = v
			}
		}
	}

	return out, newDims
}

// lineZoomer maps n input samples onto m output samples with the end
// points aligned
type lineZoomer struct {
	xs     []float64
	coords []float64
	method Method
}

func newLineZoomer(n, m int, method Method) *lineZoomer {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	coords := make([]float64, m)
	if m > 1 {
		for i := range coords {
			coords[i] = float64(i) * float64(n-1) / float64(m-1)
		}
	}
	return &lineZoomer{xs: xs, coords: coords, method: method}
}

func (z *lineZoomer) zoom(in, out []float64) {
	if len(in) == 1 {
		for i := range out {
			out[i] = in[0]
		}
		return
	}

	var p interp.FittablePredictor
	if z.method == MethodCubic && len(in) >= 3 {
		p = &interp.NaturalCubic{}
	} else {
		p = &interp.PiecewiseLinear{}
	}
	if err := p.Fit(z.xs, in); err != nil {
		// xs is strictly increasing and len(in) >= 2, so Fit cannot fail
		panic(err)
	}
	for i, c := range z.coords {
		out[i] = p.Predict(c)
	}
}

func clampInt16(v float64) int16 {
	v = math.Round(v)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
