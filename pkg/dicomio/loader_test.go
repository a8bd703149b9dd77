package dicomio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctslicesto3d/internal/models"
	"ctslicesto3d/internal/x"
)

// fakeDecoder returns prepared slices keyed by file name
type fakeDecoder map[string]*models.Slice

func (f fakeDecoder) Decode(path string) (*models.Slice, error) {
	s, ok := f[filepath.Base(path)]
	if !ok {
		return nil, errors.Errorf("unexpected file %s", path)
	}
	// Hand out a copy so tests can reuse the map
	c := *s
	return &c, nil
}

// failingDecoder fails on every file
type failingDecoder struct{}

func (failingDecoder) Decode(path string) (*models.Slice, error) {
	return nil, x.InputErrorf("cannot parse %s", path)
}

// slice builds a 2x2 slice at the given z position
func slice(instance int, z float64) *models.Slice {
	return &models.Slice{
		Pixels:            []int32{0, 1, 2, 3},
		Rows:              2,
		Cols:              2,
		InstanceNumber:    instance,
		HasInstanceNumber: true,
		ImagePosition:     []float64{0, 0, z},
		SliceLocation:     z,
		HasSliceLocation:  true,
		PixelSpacing:      [2]float64{0.5, 0.5},
		HasPixelSpacing:   true,
		Intercept:         -1024,
		Slope:             1,
		HasRescale:        true,
	}
}

// scanDir creates empty files for every name in dec and returns the directory
func scanDir(t *testing.T, dec fakeDecoder, extra ...string) string {
	dir := t.TempDir()
	for name := range dec {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	for _, name := range extra {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	return dir
}

func newFakeLoader(dec SliceDecoder) *Loader {
	return &Loader{Extension: ".dcm", Workers: 2, Decoder: dec}
}

// TestLoadDiscardsSlicesWithoutLocation covers three valid slices plus one
// lacking a position
func TestLoadDiscardsSlicesWithoutLocation(t *testing.T) {
	invalid := slice(4, 3)
	invalid.HasSliceLocation = false
	invalid.ImagePosition = nil

	dec := fakeDecoder{
		"a.dcm": slice(1, 0),
		"b.dcm": slice(2, 1),
		"c.dcm": slice(3, 2),
		"d.dcm": invalid,
	}
	dir := scanDir(t, dec, "notes.txt")

	scan, err := newFakeLoader(dec).Load(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, scan.Slices, 3)
	assert.Equal(t, 1.0, scan.Thickness)
	for i, s := range scan.Slices {
		assert.Equal(t, i+1, s.InstanceNumber)
		assert.Equal(t, i, s.Index)
		assert.Equal(t, 1.0, s.Thickness)
	}
}

// TestThicknessUsesSortedOrder verifies thickness is taken after sorting
// by instance number, not in file order
func TestThicknessUsesSortedOrder(t *testing.T) {
	dec := fakeDecoder{
		"a.dcm": slice(3, 10),
		"b.dcm": slice(1, 0),
		"c.dcm": slice(2, 2.5),
	}
	dir := scanDir(t, dec)

	scan, err := newFakeLoader(dec).Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"b.dcm", "c.dcm", "a.dcm"},
		[]string{scan.Slices[0].Filename, scan.Slices[1].Filename, scan.Slices[2].Filename})
	assert.InDelta(t, 2.5, scan.Thickness, 1e-9)
}

// TestThicknessFallsBackToSliceLocation verifies the scalar fallback
func TestThicknessFallsBackToSliceLocation(t *testing.T) {
	a, b := slice(1, 0), slice(2, 0)
	a.ImagePosition, b.ImagePosition = nil, nil
	a.SliceLocation, b.SliceLocation = -4, -1

	thickness, err := SliceThickness([]*models.Slice{a, b})
	require.NoError(t, err)
	assert.Equal(t, 3.0, thickness)

	// Only one slice carrying a 3D position also falls back
	c := slice(2, 40)
	c.SliceLocation = 2
	thickness, err = SliceThickness([]*models.Slice{a, c})
	require.NoError(t, err)
	assert.Equal(t, 6.0, thickness)
}

// TestThicknessPrefersImagePosition verifies the primary attribute wins on
// disagreement
func TestThicknessPrefersImagePosition(t *testing.T) {
	a, b := slice(1, 0), slice(2, 2)
	b.SliceLocation = 5

	thickness, err := SliceThickness([]*models.Slice{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2.0, thickness)

	_, err = SliceThickness([]*models.Slice{a})
	assert.True(t, errors.Is(err, x.ErrInput))
}

// TestLoadInputErrors verifies the precondition failures
func TestLoadInputErrors(t *testing.T) {
	t.Run("MissingDirectory", func(t *testing.T) {
		_, err := newFakeLoader(fakeDecoder{}).Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
		assert.True(t, errors.Is(err, x.ErrInput), "got %v", err)
	})

	t.Run("NotADirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file.dcm")
		require.NoError(t, os.WriteFile(path, nil, 0644))
		_, err := newFakeLoader(fakeDecoder{}).Load(context.Background(), path)
		assert.True(t, errors.Is(err, x.ErrInput), "got %v", err)
	})

	t.Run("EmptyDirectory", func(t *testing.T) {
		_, err := newFakeLoader(fakeDecoder{}).Load(context.Background(), t.TempDir())
		assert.True(t, errors.Is(err, x.ErrInput), "got %v", err)
	})

	t.Run("SingleUsableSlice", func(t *testing.T) {
		invalid := slice(2, 1)
		invalid.HasSliceLocation = false
		dec := fakeDecoder{"a.dcm": slice(1, 0), "b.dcm": invalid}
		_, err := newFakeLoader(dec).Load(context.Background(), scanDir(t, dec))
		assert.True(t, errors.Is(err, x.ErrInput), "got %v", err)
	})

	t.Run("MismatchedShape", func(t *testing.T) {
		odd := slice(2, 1)
		odd.Rows, odd.Cols, odd.Pixels = 1, 3, []int32{0, 0, 0}
		dec := fakeDecoder{"a.dcm": slice(1, 0), "b.dcm": odd}
		_, err := newFakeLoader(dec).Load(context.Background(), scanDir(t, dec))
		assert.True(t, errors.Is(err, x.ErrInput), "got %v", err)
	})

	t.Run("MissingInstanceNumber", func(t *testing.T) {
		anon := slice(0, 1)
		anon.HasInstanceNumber = false
		dec := fakeDecoder{"a.dcm": slice(1, 0), "b.dcm": anon}
		_, err := newFakeLoader(dec).Load(context.Background(), scanDir(t, dec))
		assert.True(t, errors.Is(err, x.ErrInput), "got %v", err)
	})

	t.Run("DecodeFailure", func(t *testing.T) {
		dir := scanDir(t, fakeDecoder{"a.dcm": nil, "b.dcm": nil})
		_, err := newFakeLoader(failingDecoder{}).Load(context.Background(), dir)
		assert.True(t, errors.Is(err, x.ErrInput), "got %v", err)
	})
}

// TestLoadMatchesExtensionCaseInsensitively verifies upper-case extensions
func TestLoadMatchesExtensionCaseInsensitively(t *testing.T) {
	dec := fakeDecoder{"A.DCM": slice(1, 0), "b.Dcm": slice(2, 1.5)}
	scan, err := newFakeLoader(dec).Load(context.Background(), scanDir(t, dec))
	require.NoError(t, err)
	assert.Len(t, scan.Slices, 2)
	assert.Equal(t, 1.5, scan.Thickness)
}

// TestLoadHonoursCancellation verifies a cancelled context stops decoding
func TestLoadHonoursCancellation(t *testing.T) {
	dec := fakeDecoder{"a.dcm": slice(1, 0), "b.dcm": slice(2, 1)}
	dir := scanDir(t, dec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newFakeLoader(dec).Load(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestLoadDoesNotChangeWorkingDirectory verifies no ambient state is touched
func TestLoadDoesNotChangeWorkingDirectory(t *testing.T) {
	before, err := os.Getwd()
	require.NoError(t, err)

	dec := fakeDecoder{"a.dcm": slice(1, 0), "b.dcm": slice(2, 1)}
	_, err = newFakeLoader(dec).Load(context.Background(), scanDir(t, dec))
	require.NoError(t, err)

	after, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
