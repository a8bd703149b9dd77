package dicomio

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPhantomRoundTrip writes a synthetic series and loads it back through
// the DICOM decoder
func TestPhantomRoundTrip(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultPhantomOptions()

	paths, err := WritePhantom(dir, opts)
	require.NoError(t, err)
	require.Len(t, paths, opts.Slices)

	scan, err := NewLoader(".dcm", 4).Load(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, scan.Slices, opts.Slices)
	assert.InDelta(t, opts.SliceThickness, scan.Thickness, 1e-6)

	for i, s := range scan.Slices {
		// Sorted by instance number regardless of file names
		assert.Equal(t, i+1, s.InstanceNumber)
		assert.Equal(t, opts.Rows, s.Rows)
		assert.Equal(t, opts.Cols, s.Cols)
		assert.True(t, s.HasRescale)
		assert.Equal(t, opts.Intercept, s.Intercept)
		assert.Equal(t, opts.Slope, s.Slope)
		assert.InDelta(t, opts.PixelSpacing, s.PixelSpacing[0], 1e-9)
	}

	// Decoded pixels carry the signed stored values, sentinel included
	mid := scan.Slices[opts.Slices/2]
	z := opts.Slices / 2
	for _, p := range [][2]int{{0, 0}, {opts.Rows / 2, opts.Cols / 2}, {opts.Rows / 2, 1}} {
		y, x := p[0], p[1]
		want := int32(PhantomStored(opts, z, y, x))
		assert.Equal(t, want, mid.Pixels[y*mid.Cols+x], "pixel (%d,%d)", y, x)
	}
	assert.Equal(t, int32(opts.Sentinel), mid.Pixels[0])
}

// TestPhantomWithoutLocation verifies the loader drops slices lacking a
// SliceLocation from a real DICOM series
func TestPhantomWithoutLocation(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultPhantomOptions()
	opts.Slices = 4
	opts.WithoutLocation = []int{4}

	_, err := WritePhantom(dir, opts)
	require.NoError(t, err)

	scan, err := NewLoader(".dcm", 1).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, scan.Slices, 3)
}

// TestPhantomFileNamesDifferFromOrder verifies the shuffle is effective
func TestPhantomFileNamesDifferFromOrder(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultPhantomOptions()

	_, err := WritePhantom(dir, opts)
	require.NoError(t, err)

	scan, err := NewLoader(".dcm", 2).Load(context.Background(), dir)
	require.NoError(t, err)

	inNameOrder := true
	for i, s := range scan.Slices {
		if s.Filename != fmt.Sprintf("IMG%04d.dcm", i) {
			inNameOrder = false
		}
	}
	assert.False(t, inNameOrder, "instance order should not follow file names")
}

// TestWritePhantomRejectsBadOptions verifies option validation
func TestWritePhantomRejectsBadOptions(t *testing.T) {
	opts := DefaultPhantomOptions()
	opts.Rows = 0
	_, err := WritePhantom(t.TempDir(), opts)
	assert.Error(t, err)

	opts = DefaultPhantomOptions()
	opts.Slope = 0
	_, err = WritePhantom(t.TempDir(), opts)
	assert.Error(t, err)
}
