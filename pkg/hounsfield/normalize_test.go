package hounsfield

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctslicesto3d/internal/models"
	"ctslicesto3d/internal/x"
)

// testScan builds a scan of depth slices of rows x cols filled by pattern
func testScan(depth, rows, cols int, slope, intercept float64, pattern func(z, i int) int32) *models.Scan {
	scan := &models.Scan{Thickness: 2.5}
	for z := 0; z < depth; z++ {
		s := &models.Slice{
			Pixels:          make([]int32, rows*cols),
			Rows:            rows,
			Cols:            cols,
			Index:           z,
			PixelSpacing:    [2]float64{0.7, 0.6},
			HasPixelSpacing: true,
			Slope:           slope,
			Intercept:       intercept,
			HasRescale:      true,
		}
		for i := range s.Pixels {
			s.Pixels[i] = pattern(z, i)
		}
		scan.Slices = append(scan.Slices, s)
	}
	return scan
}

// TestNormalizeFormula verifies every voxel equals clamp(raw*slope + intercept)
func TestNormalizeFormula(t *testing.T) {
	pattern := func(z, i int) int32 {
		switch i % 5 {
		case 0:
			return DefaultSentinel
		case 1:
			return 40000 // clamps high
		case 2:
			return -30000 // clamps low
		}
		return int32(z*100 + i)
	}
	scan := testScan(3, 4, 5, 1.5, -1024, pattern)

	vol, err := Normalize(scan, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, [3]int{3, 4, 5}, vol.Shape())

	for z, s := range scan.Slices {
		for i, raw := range s.Pixels {
			if raw == DefaultSentinel {
				raw = 0
			}
			want := math.Max(math.MinInt16, math.Min(math.MaxInt16, float64(raw)*1.5-1024))
			got := vol.Data[z*20+i]
			assert.Equal(t, int16(want), got, "voxel %d of slice %d", i, z)
		}
	}

	assert.Equal(t, models.Spacing{2.5, 0.7, 0.6}, vol.Spacing)
}

// TestNormalizeAllSentinel verifies an all-sentinel scan becomes the intercept
func TestNormalizeAllSentinel(t *testing.T) {
	scan := testScan(2, 3, 3, 1, -1024, func(int, int) int32 { return DefaultSentinel })

	vol, err := Normalize(scan, DefaultOptions())
	require.NoError(t, err)
	for _, v := range vol.Data {
		require.Equal(t, int16(-1024), v)
	}
}

// TestNormalizeUsesFirstSliceCalibration verifies later coefficients are ignored
func TestNormalizeUsesFirstSliceCalibration(t *testing.T) {
	scan := testScan(2, 1, 2, 1, -1000, func(int, int) int32 { return 10 })
	scan.Slices[1].Slope, scan.Slices[1].Intercept = 3, 0

	vol, err := Normalize(scan, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []int16{-990, -990, -990, -990}, vol.Data)
}

// TestNormalizeDoesNotModifyScan verifies the input is left untouched
func TestNormalizeDoesNotModifyScan(t *testing.T) {
	scan := testScan(1, 2, 2, 1, 0, func(int, int) int32 { return DefaultSentinel })

	_, err := Normalize(scan, DefaultOptions())
	require.NoError(t, err)
	for _, p := range scan.Slices[0].Pixels {
		assert.Equal(t, int32(DefaultSentinel), p)
	}
}

// TestNormalizeErrors verifies the error classification
func TestNormalizeErrors(t *testing.T) {
	_, err := Normalize(&models.Scan{}, DefaultOptions())
	assert.True(t, errors.Is(err, x.ErrInput))

	noRescale := testScan(2, 2, 2, 1, 0, func(int, int) int32 { return 0 })
	noRescale.Slices[0].HasRescale = false
	_, err = Normalize(noRescale, DefaultOptions())
	assert.True(t, errors.Is(err, x.ErrCalibration))

	mismatched := testScan(2, 2, 2, 1, 0, func(int, int) int32 { return 0 })
	mismatched.Slices[1].Rows = 1
	_, err = Normalize(mismatched, DefaultOptions())
	assert.True(t, errors.Is(err, x.ErrInput))
}

// TestCalibrate covers the scalar conversion edge cases
func TestCalibrate(t *testing.T) {
	assert.Equal(t, int16(-1024), Calibrate(-2000, -2000, 1, -1024))
	assert.Equal(t, int16(-1), Calibrate(-2000, 0, 1, 1999))
	assert.Equal(t, int16(math.MaxInt16), Calibrate(math.MaxInt32, -2000, 1, 0))
	assert.Equal(t, int16(math.MinInt16), Calibrate(math.MinInt32, -2000, 1, 0))
	// Truncation towards zero like an integer cast
	assert.Equal(t, int16(1), Calibrate(1, -2000, 1.9, 0))
	assert.Equal(t, int16(-1), Calibrate(-1, -2000, 1.9, 0))
}

// TestSummarizeAndWindow verifies the statistics helpers
func TestSummarizeAndWindow(t *testing.T) {
	vol := models.NewVolume(1, 1, 4, models.Uniform(1))
	copy(vol.Data, []int16{-10, 0, 10, 20})

	sum := Summarize(vol)
	assert.Equal(t, -10.0, sum.Min)
	assert.Equal(t, 20.0, sum.Max)
	assert.InDelta(t, 5.0, sum.Mean, 1e-9)
	assert.Greater(t, sum.StdDev, 0.0)

	lo, hi := Window(vol)
	assert.Equal(t, int16(-10), lo)
	assert.Equal(t, int16(20), hi)

	assert.Equal(t, Summary{}, Summarize(nil))
}
