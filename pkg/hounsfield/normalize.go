// Package hounsfield converts the stored pixel values of a scan into a
// volume of calibrated Hounsfield units.
package hounsfield

import (
	"math"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ctslicesto3d/internal/models"
	"ctslicesto3d/internal/x"
)

// DefaultSentinel is the stored value scanners use outside the field of view
const DefaultSentinel = -2000

// Options controls the normalization
type Options struct {
	// Sentinel is replaced by zero before calibration
	Sentinel int32
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() Options {
	return Options{Sentinel: DefaultSentinel}
}

// Calibrate maps one stored value to HU: the sentinel becomes zero, then
// value*slope + intercept is clamped to the int16 range and truncated.
func Calibrate(stored, sentinel int32, slope, intercept float64) int16 {
	if stored == sentinel {
		stored = 0
	}
	v := float64(stored)*slope + intercept
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// Normalize stacks the slices of scan along Z and calibrates every voxel
// with the rescale coefficients of the first slice. The scan is not
// modified.
func Normalize(scan *models.Scan, opts Options) (*models.Volume, error) {
	if scan == nil || len(scan.Slices) == 0 {
		return nil, x.InputErrorf("scan has no slices")
	}

	first := scan.Slices[0]
	if !first.HasRescale {
		return nil, x.CalibrationErrorf("slice %s has no RescaleIntercept/RescaleSlope", first.Filename)
	}
	if !first.HasPixelSpacing {
		return nil, x.InputErrorf("slice %s has no PixelSpacing", first.Filename)
	}

	rows, cols := first.Rows, first.Cols
	for _, s := range scan.Slices {
		if s.Rows != rows || s.Cols != cols || len(s.Pixels) != rows*cols {
			return nil, x.InputErrorf("slice %s is %dx%d with %d pixels, expected %dx%d",
				s.Filename, s.Cols, s.Rows, len(s.Pixels), cols, rows)
		}
	}

	spacing := models.Spacing{scan.Thickness, first.PixelSpacing[0], first.PixelSpacing[1]}
	vol := models.NewVolume(len(scan.Slices), rows, cols, spacing)

	slope, intercept := first.Slope, first.Intercept
	plane := rows * cols
	for z, s := range scan.Slices {
		out := vol.Data[z*plane : (z+1)*plane]
		for i, stored := range s.Pixels {
			out[i] = Calibrate(stored, opts.Sentinel, slope, intercept)
		}
	}

	glog.Infof("Calibrated %dx%dx%d volume with slope %g, intercept %g",
		cols, rows, len(scan.Slices), slope, intercept)

	return vol, nil
}

// Summary holds intensity statistics of a volume
type Summary struct {
	Min, Max     float64
	Mean, StdDev float64
}

// Summarize computes the intensity statistics of vol
func Summarize(vol *models.Volume) Summary {
	if vol == nil || len(vol.Data) == 0 {
		return Summary{}
	}
	values := make([]float64, len(vol.Data))
	for i, v := range vol.Data {
		values[i] = float64(v)
	}
	mean, std := stat.MeanStdDev(values, nil)
	return Summary{
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
	}
}

// Window returns the global intensity range of vol
func Window(vol *models.Volume) (lo, hi int16) {
	if vol == nil || len(vol.Data) == 0 {
		return 0, 0
	}
	lo, hi = vol.Data[0], vol.Data[0]
	for _, v := range vol.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
