package dicomio

import (
	"fmt"
	"math"
	"math/big"
	randv2 "math/rand/v2"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
	ctImageStorage         = "1.2.840.10008.5.1.4.1.1.2"
)

// PhantomOptions describes a synthetic CT series: a sphere of tissue in
// air, inside a circular field of view whose outside holds the sentinel.
type PhantomOptions struct {
	Rows, Cols, Slices int

	// PixelSpacing and SliceThickness are in mm
	PixelSpacing   float64
	SliceThickness float64

	// Radius of the sphere in mm, centred in the volume
	Radius float64

	// TissueHU and AirHU are the calibrated values inside and outside the sphere
	TissueHU float64
	AirHU    float64

	// Sentinel is stored outside the circular field of view
	Sentinel int

	// Intercept and Slope are written as rescale coefficients
	Intercept float64
	Slope     float64

	// Seed shuffles instance numbers relative to file names
	Seed uint64

	// WithoutLocation lists instance numbers written without SliceLocation
	WithoutLocation []int
}

// DefaultPhantomOptions returns a small series suitable for tests
func DefaultPhantomOptions() PhantomOptions {
	return PhantomOptions{
		Rows:           32,
		Cols:           32,
		Slices:         12,
		PixelSpacing:   0.8,
		SliceThickness: 2.5,
		Radius:         8,
		TissueHU:       40,
		AirHU:          -1000,
		Sentinel:       -2000,
		Intercept:      -1024,
		Slope:          1,
		Seed:           7,
	}
}

// PhantomStored returns the stored value of the phantom at voxel (z, y, x)
// before it is written, so tests can compare decoded pixels directly.
func PhantomStored(opts PhantomOptions, z, y, x int) int16 {
	cx, cy := float64(opts.Cols-1)/2, float64(opts.Rows-1)/2
	fov := math.Min(cx, cy) + 0.5

	// Outside the reconstruction circle
	if math.Hypot(float64(x)-cx, float64(y)-cy) > fov {
		return int16(opts.Sentinel)
	}

	cz := float64(opts.Slices-1) / 2
	dx := (float64(x) - cx) * opts.PixelSpacing
	dy := (float64(y) - cy) * opts.PixelSpacing
	dz := (float64(z) - cz) * opts.SliceThickness

	hu := opts.AirHU
	if math.Sqrt(dx*dx+dy*dy+dz*dz) <= opts.Radius {
		hu = opts.TissueHU
	}
	return int16(math.Round((hu - opts.Intercept) / opts.Slope))
}

// WritePhantom writes the series described by opts into dir, one file per
// slice, and returns the file paths in file name order.
func WritePhantom(dir string, opts PhantomOptions) ([]string, error) {
	if opts.Rows < 1 || opts.Cols < 1 || opts.Slices < 1 {
		return nil, errors.Errorf("phantom dimensions must be positive, got %dx%dx%d",
			opts.Cols, opts.Rows, opts.Slices)
	}
	if opts.Slope == 0 {
		return nil, errors.New("phantom slope must not be zero")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}

	studyUID := newUID()
	seriesUID := newUID()

	// File k holds instance perm[k]+1, so name order differs from slice order
	rng := randv2.New(randv2.NewPCG(opts.Seed, opts.Seed))
	perm := rng.Perm(opts.Slices)

	skip := make(map[int]bool, len(opts.WithoutLocation))
	for _, n := range opts.WithoutLocation {
		skip[n] = true
	}

	paths := make([]string, 0, opts.Slices)
	for k, z := range perm {
		instance := z + 1
		path := filepath.Join(dir, fmt.Sprintf("IMG%04d.dcm", k))

		ds, err := phantomSlice(opts, z, instance, studyUID, seriesUID, !skip[instance])
		if err != nil {
			return nil, errors.Wrapf(err, "building slice %d", instance)
		}
		if err := writeDataset(path, ds); err != nil {
			return nil, errors.Wrapf(err, "writing %s", path)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// phantomSlice builds the dataset of slice z
func phantomSlice(opts PhantomOptions, z, instance int, studyUID, seriesUID string, withLocation bool) (dicom.Dataset, error) {
	rows, cols := opts.Rows, opts.Cols

	nativeFrame := frame.NewNativeFrame[uint16](16, rows, cols, rows*cols, 1)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			// Signed values are stored in their two's complement bit pattern
			nativeFrame.RawData[y*cols+x] = uint16(PhantomStored(opts, z, y, x))
		}
	}

	pixelDataInfo := dicom.PixelDataInfo{
		Frames: []*frame.Frame{
			{
				Encapsulated: false,
				NativeData:   nativeFrame,
			},
		},
	}

	originX := -float64(cols) * opts.PixelSpacing / 2
	originY := -float64(rows) * opts.PixelSpacing / 2
	posZ := float64(z) * opts.SliceThickness

	sopInstanceUID := newUID()
	values := []struct {
		t    tag.Tag
		data any
	}{
		{tag.TransferSyntaxUID, []string{explicitVRLittleEndian}},
		{tag.MediaStorageSOPClassUID, []string{ctImageStorage}},
		{tag.MediaStorageSOPInstanceUID, []string{sopInstanceUID}},
		{tag.SOPClassUID, []string{ctImageStorage}},
		{tag.SOPInstanceUID, []string{sopInstanceUID}},
		{tag.StudyInstanceUID, []string{studyUID}},
		{tag.SeriesInstanceUID, []string{seriesUID}},
		{tag.Modality, []string{"CT"}},
		{tag.PatientID, []string{"PHANTOM"}},
		{tag.InstanceNumber, []string{fmt.Sprintf("%d", instance)}},
		{tag.ImagePositionPatient, []string{ds6(originX), ds6(originY), ds6(posZ)}},
		{tag.ImageOrientationPatient, []string{"1", "0", "0", "0", "1", "0"}},
		{tag.SliceThickness, []string{ds6(opts.SliceThickness)}},
		{tag.PixelSpacing, []string{ds6(opts.PixelSpacing), ds6(opts.PixelSpacing)}},
		{tag.RescaleIntercept, []string{ds6(opts.Intercept)}},
		{tag.RescaleSlope, []string{ds6(opts.Slope)}},
		{tag.Rows, []int{rows}},
		{tag.Columns, []int{cols}},
		{tag.BitsAllocated, []int{16}},
		{tag.BitsStored, []int{16}},
		{tag.HighBit, []int{15}},
		{tag.PixelRepresentation, []int{1}},
		{tag.SamplesPerPixel, []int{1}},
		{tag.PhotometricInterpretation, []string{"MONOCHROME2"}},
	}
	if withLocation {
		values = append(values, struct {
			t    tag.Tag
			data any
		}{tag.SliceLocation, []string{ds6(posZ)}})
	}

	elements := make([]*dicom.Element, 0, len(values)+1)
	for _, v := range values {
		e, err := dicom.NewElement(v.t, v.data)
		if err != nil {
			return dicom.Dataset{}, errors.Wrapf(err, "element %v", v.t)
		}
		elements = append(elements, e)
	}

	e, err := dicom.NewElement(tag.PixelData, pixelDataInfo)
	if err != nil {
		return dicom.Dataset{}, errors.Wrap(err, "pixel data element")
	}
	elements = append(elements, e)

	return dicom.Dataset{Elements: elements}, nil
}

// writeDataset writes a DICOM dataset to a file
func writeDataset(path string, ds dicom.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return dicom.Write(f, ds)
}

// newUID returns a UUID-derived DICOM UID of the form 2.25.<integer>
func newUID() string {
	id := uuid.New()
	return "2.25." + new(big.Int).SetBytes(id[:]).String()
}

// ds6 formats a decimal string value
func ds6(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
