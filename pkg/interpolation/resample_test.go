package interpolation

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctslicesto3d/internal/models"
	"ctslicesto3d/internal/x"
)

// sphereVolume creates a test volume holding a bright ball in dark air
func sphereVolume(depth, height, width int, spacing models.Spacing) *models.Volume {
	vol := models.NewVolume(depth, height, width, spacing)
	cz, cy, cx := float64(depth-1)/2, float64(height-1)/2, float64(width-1)/2
	r := math.Min(cx*spacing[2], math.Min(cy*spacing[1], cz*spacing[0])) * 0.7
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				dz := (float64(z) - cz) * spacing[0]
				dy := (float64(y) - cy) * spacing[1]
				dx := (float64(x) - cx) * spacing[2]
				v := int16(-1000)
				if math.Sqrt(dx*dx+dy*dy+dz*dz) <= r {
					v = 40
				}
				vol.Set(z, y, x, v)
			}
		}
	}
	return vol
}

func TestTargetShape(t *testing.T) {
	shape, achieved := TargetShape([3]int{12, 32, 32}, models.Spacing{2.5, 0.8, 0.8}, models.Uniform(1))
	assert.Equal(t, [3]int{30, 26, 26}, shape)
	assert.InDelta(t, 1.0, achieved[0], 1e-12)
	assert.InDelta(t, 0.8*32/26, achieved[1], 1e-12)
	assert.InDelta(t, 0.8*32/26, achieved[2], 1e-12)

	// Never collapses an axis to zero voxels
	shape, _ = TargetShape([3]int{2, 2, 2}, models.Uniform(1), models.Uniform(100))
	assert.Equal(t, [3]int{1, 1, 1}, shape)
}

func TestResampleShapeAndSpacing(t *testing.T) {
	vol := sphereVolume(12, 32, 32, models.Spacing{2.5, 0.8, 0.8})

	out, achieved, err := Resample(vol, models.Uniform(1), MethodCubic)
	require.NoError(t, err)

	assert.Equal(t, [3]int{30, 26, 26}, out.Shape())
	assert.Equal(t, achieved, out.Spacing)
	assert.Len(t, out.Data, 30*26*26)

	// Input untouched
	assert.Equal(t, [3]int{12, 32, 32}, vol.Shape())
	assert.Equal(t, models.Spacing{2.5, 0.8, 0.8}, vol.Spacing)
}

// TestResampleRoundTrip verifies resampling and resampling back restores
// the shape to within one voxel per axis
func TestResampleRoundTrip(t *testing.T) {
	original := models.Spacing{2.5, 0.8, 0.8}
	vol := sphereVolume(12, 32, 32, original)

	for _, method := range []Method{MethodCubic, MethodLinear} {
		t.Run(method.String(), func(t *testing.T) {
			up, _, err := Resample(vol, models.Uniform(1), method)
			require.NoError(t, err)

			back, _, err := Resample(up, original, method)
			require.NoError(t, err)

			for i, n := range vol.Shape() {
				assert.InDelta(t, n, back.Shape()[i], 1, "axis %d", i)
			}
		})
	}
}

// TestResampleIdempotent verifies resampling to the achieved spacing again
// keeps the shape
func TestResampleIdempotent(t *testing.T) {
	vol := sphereVolume(10, 20, 24, models.Spacing{3, 0.7, 0.7})

	once, _, err := Resample(vol, models.Uniform(1), MethodCubic)
	require.NoError(t, err)
	twice, _, err := Resample(once, models.Uniform(1), MethodCubic)
	require.NoError(t, err)

	assert.Equal(t, once.Shape(), twice.Shape())
	assert.Equal(t, once.Data, twice.Data)
}

// TestResampleIdentityCopies verifies an unchanged shape yields an
// independent copy
func TestResampleIdentityCopies(t *testing.T) {
	vol := sphereVolume(4, 6, 6, models.Uniform(1))

	out, achieved, err := Resample(vol, models.Uniform(1), MethodCubic)
	require.NoError(t, err)
	assert.Equal(t, models.Uniform(1), achieved)
	assert.Equal(t, vol.Data, out.Data)

	out.Data[0] = 123
	assert.NotEqual(t, int16(123), vol.Data[0])
}

// TestResampleLinearRamp verifies linear interpolation reproduces a linear
// ramp exactly, end points aligned
func TestResampleLinearRamp(t *testing.T) {
	vol := models.NewVolume(3, 1, 1, models.Spacing{2, 1, 1})
	vol.Set(0, 0, 0, 0)
	vol.Set(1, 0, 0, 100)
	vol.Set(2, 0, 0, 200)

	out, _, err := Resample(vol, models.Spacing{1, 1, 1}, MethodLinear)
	require.NoError(t, err)
	require.Equal(t, [3]int{6, 1, 1}, out.Shape())

	// Six samples spanning [0, 2] in steps of 0.4
	want := []int16{0, 40, 80, 120, 160, 200}
	assert.Equal(t, want, out.Data)
}

func TestResampleConstantVolume(t *testing.T) {
	vol := models.NewVolume(5, 7, 9, models.Spacing{2, 1.5, 1.5})
	for i := range vol.Data {
		vol.Data[i] = -1024
	}

	out, _, err := Resample(vol, models.Uniform(1), MethodCubic)
	require.NoError(t, err)
	for i, v := range out.Data {
		if v != -1024 {
			t.Fatalf("voxel %d = %d, want -1024", i, v)
		}
	}
}

func TestResampleSingleSliceAxis(t *testing.T) {
	vol := models.NewVolume(1, 4, 4, models.Spacing{2, 1, 1})
	for i := range vol.Data {
		vol.Data[i] = int16(i)
	}

	out, _, err := Resample(vol, models.Uniform(1), MethodCubic)
	require.NoError(t, err)
	require.Equal(t, [3]int{2, 4, 4}, out.Shape())
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, vol.At(0, y, x), out.At(1, y, x))
		}
	}
}

func TestResampleClampsToInt16(t *testing.T) {
	assert.Equal(t, int16(math.MaxInt16), clampInt16(1e9))
	assert.Equal(t, int16(math.MinInt16), clampInt16(-1e9))
	assert.Equal(t, int16(0), clampInt16(math.NaN()))
	assert.Equal(t, int16(3), clampInt16(2.5))
	assert.Equal(t, int16(-3), clampInt16(-2.5))
}

func TestResampleRejectsBadInput(t *testing.T) {
	vol := sphereVolume(2, 2, 2, models.Uniform(1))

	_, _, err := Resample(vol, models.Spacing{1, 0, 1}, MethodCubic)
	assert.True(t, errors.Is(err, x.ErrInput))

	_, _, err = Resample(vol, models.Spacing{1, math.NaN(), 1}, MethodCubic)
	assert.True(t, errors.Is(err, x.ErrInput))

	_, _, err = Resample(&models.Volume{}, models.Uniform(1), MethodCubic)
	assert.True(t, errors.Is(err, x.ErrInput))

	bad := sphereVolume(2, 2, 2, models.Spacing{0, 1, 1})
	_, _, err = Resample(bad, models.Uniform(1), MethodCubic)
	assert.True(t, errors.Is(err, x.ErrInput))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("linear")
	require.NoError(t, err)
	assert.Equal(t, MethodLinear, m)

	m, err = ParseMethod("cubic")
	require.NoError(t, err)
	assert.Equal(t, MethodCubic, m)

	_, err = ParseMethod("kriging")
	assert.Error(t, err)
}

func BenchmarkResample(b *testing.B) {
	vol := sphereVolume(24, 64, 64, models.Spacing{2.5, 0.8, 0.8})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Resample(vol, models.Uniform(1), MethodCubic); err != nil {
			b.Fatal(err)
		}
	}
}
