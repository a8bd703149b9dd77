package dicomio

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"ctslicesto3d/internal/models"
	"ctslicesto3d/internal/x"
)

// SliceDecoder parses one slice file into a Slice
type SliceDecoder interface {
	Decode(path string) (*models.Slice, error)
}

// DICOMDecoder decodes uncompressed DICOM files
type DICOMDecoder struct{}

// Decode parses the DICOM file at path. Optional attributes that are
// absent are reported through the Has* fields of the slice so the loader
// can decide what to filter; only a missing or unreadable pixel matrix is
// an error here.
func (DICOMDecoder) Decode(path string) (*models.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, x.InputWrapf(err, "parsing DICOM file %s", path)
	}

	s := &models.Slice{Filename: filepath.Base(path)}

	if v, ok := firstString(ds, tag.InstanceNumber); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return nil, x.InputWrapf(err, "%s: bad InstanceNumber %q", path, v)
		}
		s.InstanceNumber = n
		s.HasInstanceNumber = true
	}

	if vals, ok := floatsOf(ds, tag.ImagePositionPatient); ok && len(vals) >= 3 {
		s.ImagePosition = vals[:3]
	}

	if vals, ok := floatsOf(ds, tag.SliceLocation); ok && len(vals) > 0 {
		s.SliceLocation = vals[0]
		s.HasSliceLocation = true
	}

	if vals, ok := floatsOf(ds, tag.PixelSpacing); ok && len(vals) >= 2 {
		s.PixelSpacing = [2]float64{vals[0], vals[1]}
		s.HasPixelSpacing = true
	}

	intercept, okI := floatsOf(ds, tag.RescaleIntercept)
	slope, okS := floatsOf(ds, tag.RescaleSlope)
	if okI && okS && len(intercept) > 0 && len(slope) > 0 {
		s.Intercept = intercept[0]
		s.Slope = slope[0]
		s.HasRescale = true
	}

	signed := false
	if v, ok := intsOf(ds, tag.PixelRepresentation); ok && len(v) > 0 {
		signed = v[0] == 1
	}

	pixels, rows, cols, err := pixelsOf(ds, signed)
	if err != nil {
		return nil, x.InputWrapf(err, "reading pixel data of %s", path)
	}
	s.Pixels, s.Rows, s.Cols = pixels, rows, cols

	return s, nil
}

// firstString returns the first string value of the element with tag t
func firstString(ds dicom.Dataset, t tag.Tag) (string, bool) {
	e, err := ds.FindElementByTag(t)
	if err != nil {
		return "", false
	}
	vals, ok := e.Value.GetValue().([]string)
	if !ok || len(vals) == 0 {
		return "", false
	}
	return strings.TrimSpace(vals[0]), true
}

// floatsOf returns the numeric values of a DS/FL/FD element
func floatsOf(ds dicom.Dataset, t tag.Tag) ([]float64, bool) {
	e, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, false
	}
	switch vals := e.Value.GetValue().(type) {
	case []string:
		out := make([]float64, 0, len(vals))
		for _, v := range vals {
			f, err := cast.ToFloat64E(strings.TrimSpace(v))
			if err != nil {
				return nil, false
			}
			out = append(out, f)
		}
		return out, len(out) > 0
	case []float64:
		return vals, len(vals) > 0
	}
	return nil, false
}

// intsOf returns the values of a US/SS/UL element
func intsOf(ds dicom.Dataset, t tag.Tag) ([]int, bool) {
	e, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, false
	}
	vals, ok := e.Value.GetValue().([]int)
	return vals, ok && len(vals) > 0
}

// pixelsOf extracts the first native frame as stored values
func pixelsOf(ds dicom.Dataset, signed bool) ([]int32, int, int, error) {
	e, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, 0, 0, errors.New("no PixelData element")
	}
	info, ok := e.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, 0, 0, errors.New("PixelData holds no frames")
	}

	fr := info.Frames[0]
	if fr.Encapsulated {
		return nil, 0, 0, errors.New("compressed transfer syntaxes are not supported")
	}
	nf := fr.NativeData
	if nf == nil {
		return nil, 0, 0, errors.New("PixelData holds no native frame")
	}
	if nf.SamplesPerPixel() != 1 {
		return nil, 0, 0, errors.Errorf("expected 1 sample per pixel, got %d", nf.SamplesPerPixel())
	}

	rows, cols := nf.Rows(), nf.Cols()
	n := rows * cols
	out := make([]int32, n)

	switch raw := nf.RawDataSlice().(type) {
	case []uint8:
		if len(raw) < n {
			return nil, 0, 0, errors.Errorf("short frame: %d of %d samples", len(raw), n)
		}
		for i := 0; i < n; i++ {
			if signed {
				out[i] = int32(int8(raw[i]))
			} else {
				out[i] = int32(raw[i])
			}
		}
	case []uint16:
		if len(raw) < n {
			return nil, 0, 0, errors.Errorf("short frame: %d of %d samples", len(raw), n)
		}
		for i := 0; i < n; i++ {
			if signed {
				out[i] = int32(int16(raw[i]))
			} else {
				out[i] = int32(raw[i])
			}
		}
	case []uint32:
		if len(raw) < n {
			return nil, 0, 0, errors.Errorf("short frame: %d of %d samples", len(raw), n)
		}
		for i := 0; i < n; i++ {
			out[i] = int32(raw[i])
		}
	case []int16:
		if len(raw) < n {
			return nil, 0, 0, errors.Errorf("short frame: %d of %d samples", len(raw), n)
		}
		for i := 0; i < n; i++ {
			out[i] = int32(raw[i])
		}
	case []int32:
		if len(raw) < n {
			return nil, 0, 0, errors.Errorf("short frame: %d of %d samples", len(raw), n)
		}
		copy(out, raw[:n])
	default:
		return nil, 0, 0, errors.Errorf("unsupported pixel sample type %T", raw)
	}

	return out, rows, cols, nil
}
