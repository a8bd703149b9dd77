// Package dicomio loads CT series from a directory of DICOM files and
// writes synthetic phantom series for testing and demonstrations.
package dicomio

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"ctslicesto3d/internal/models"
	"ctslicesto3d/internal/x"
)

// positionTolerance is the largest disagreement in mm between the two
// position attributes that is not reported
const positionTolerance = 1e-3

// Loader reads the slices of one scan from a directory
type Loader struct {
	// Extension selects the slice files, compared case-insensitively
	Extension string

	// Workers is the number of files decoded concurrently
	Workers int

	// Decoder parses a single file
	Decoder SliceDecoder
}

// NewLoader creates a loader using the DICOM decoder
func NewLoader(extension string, workers int) *Loader {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Loader{
		Extension: extension,
		Workers:   workers,
		Decoder:   DICOMDecoder{},
	}
}

// Load enumerates the slice files of dir, discards slices without a
// SliceLocation, sorts the rest by instance number and infers the slice
// thickness from the first two sorted slices.
//
// The directory is read through its path; the process working directory
// is never changed.
func (l *Loader) Load(ctx context.Context, dir string) (*models.Scan, error) {
	files, err := l.listFiles(dir)
	if err != nil {
		return nil, err
	}
	glog.Infof("Found %d %s files in %s", len(files), l.Extension, dir)

	decoded, err := l.decodeAll(ctx, files)
	if err != nil {
		return nil, err
	}

	// Keep slices which carry a position along the scan axis
	slices := make([]*models.Slice, 0, len(decoded))
	for _, s := range decoded {
		if !s.HasSliceLocation {
			glog.V(1).Infof("Discarding %s: no SliceLocation", s.Filename)
			continue
		}
		slices = append(slices, s)
	}

	if len(slices) < 2 {
		return nil, x.InputErrorf("%s has %d usable slices, need at least 2", dir, len(slices))
	}

	for _, s := range slices {
		if !s.HasInstanceNumber {
			return nil, x.InputErrorf("%s has no InstanceNumber", s.Filename)
		}
	}

	// Files were listed by name, so ties keep file name order
	sort.SliceStable(slices, func(i, j int) bool {
		return slices[i].InstanceNumber < slices[j].InstanceNumber
	})

	if err := checkGeometry(slices); err != nil {
		return nil, err
	}

	thickness, err := SliceThickness(slices)
	if err != nil {
		return nil, err
	}

	for i, s := range slices {
		s.Index = i
		s.Thickness = thickness
	}

	voxels := uint64(len(slices) * slices[0].Rows * slices[0].Cols)
	glog.Infof("Loaded %d slices of %dx%d (%s voxels), slice thickness %.3f mm",
		len(slices), slices[0].Cols, slices[0].Rows, humanize.Comma(int64(voxels)), thickness)

	return &models.Scan{Dir: dir, Slices: slices, Thickness: thickness}, nil
}

// listFiles returns the matching files of dir sorted by name
func (l *Loader) listFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, x.InputWrapf(err, "scan directory %s", dir)
	}
	if !info.IsDir() {
		return nil, x.InputErrorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, x.InputWrapf(err, "reading scan directory %s", dir)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), l.Extension) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	if len(files) == 0 {
		return nil, x.InputErrorf("no %s files found in %s", l.Extension, dir)
	}
	return files, nil
}

// decodeAll decodes files on l.Workers goroutines, keeping input order
func (l *Loader) decodeAll(ctx context.Context, files []string) ([]*models.Slice, error) {
	out := make([]*models.Slice, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, l.Workers))

	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := l.Decoder.Decode(path)
			if err != nil {
				return err
			}
			if s.Filename == "" {
				s.Filename = filepath.Base(path)
			}
			glog.V(2).Infof("Decoded %s: instance %d, %dx%d", s.Filename, s.InstanceNumber, s.Cols, s.Rows)
			out[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// checkGeometry verifies all slices share the in-plane shape of the first.
// Differing pixel spacing is only reported.
func checkGeometry(slices []*models.Slice) error {
	first := slices[0]
	for _, s := range slices[1:] {
		if s.Rows != first.Rows || s.Cols != first.Cols {
			return x.InputErrorf("slice %s is %dx%d, expected %dx%d like %s",
				s.Filename, s.Cols, s.Rows, first.Cols, first.Rows, first.Filename)
		}
		if len(s.Pixels) != s.Rows*s.Cols {
			return x.InputErrorf("slice %s has %d pixels for a %dx%d matrix",
				s.Filename, len(s.Pixels), s.Cols, s.Rows)
		}
		if s.PixelSpacing != first.PixelSpacing {
			glog.Warningf("Slice %s has pixel spacing %v, %s has %v",
				s.Filename, s.PixelSpacing, first.Filename, first.PixelSpacing)
		}
	}
	return nil
}

// SliceThickness returns the distance between the first two slices.
// ImagePositionPatient z is used when both slices carry it, SliceLocation
// otherwise. The slices must already be sorted.
func SliceThickness(slices []*models.Slice) (float64, error) {
	if len(slices) < 2 {
		return 0, x.InputErrorf("need at least 2 slices to infer thickness, got %d", len(slices))
	}
	a, b := slices[0], slices[1]

	byLocation := math.Abs(a.SliceLocation - b.SliceLocation)
	if !a.HasImagePosition() || !b.HasImagePosition() {
		return byLocation, nil
	}

	byPosition := math.Abs(a.ImagePosition[2] - b.ImagePosition[2])
	if a.HasSliceLocation && b.HasSliceLocation && math.Abs(byPosition-byLocation) > positionTolerance {
		// Not reconciled: ImagePositionPatient wins
		glog.Warningf("Slice thickness from ImagePositionPatient (%.4f mm) differs from SliceLocation (%.4f mm)",
			byPosition, byLocation)
	}
	return byPosition, nil
}
