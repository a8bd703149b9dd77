package models

// Slice represents a single CT slice with the DICOM attributes the
// pipeline needs
type Slice struct {
	// Pixels holds the stored values in row-major order, already
	// interpreted according to the pixel representation (signed/unsigned)
	Pixels []int32

	// Rows and Cols are the in-plane dimensions of Pixels
	Rows int
	Cols int

	// Index is the position of this slice in the sorted sequence
	Index int

	// InstanceNumber is the DICOM instance number used for ordering
	InstanceNumber    int
	HasInstanceNumber bool

	// Filename is the original filename of the slice
	Filename string

	// ImagePosition is ImagePositionPatient (x, y, z) in mm, nil when absent
	ImagePosition []float64

	// SliceLocation is the scalar position along the scan axis in mm
	SliceLocation    float64
	HasSliceLocation bool

	// PixelSpacing is the (row, column) spacing in mm
	PixelSpacing    [2]float64
	HasPixelSpacing bool

	// Intercept and Slope are the rescale coefficients of the slice
	Intercept  float64
	Slope      float64
	HasRescale bool

	// Thickness is the slice thickness inferred from the sorted scan
	Thickness float64
}

// HasImagePosition reports whether the slice carries a 3D position
func (s *Slice) HasImagePosition() bool {
	return len(s.ImagePosition) >= 3
}

// Scan is the ordered sequence of slices loaded from one directory.
// It is constructed once by the loader and not modified afterwards.
type Scan struct {
	// Dir is the directory the scan was loaded from
	Dir string

	// Slices are sorted by instance number
	Slices []*Slice

	// Thickness is the distance between the first two sorted slices in mm
	Thickness float64
}

// Spacing is a voxel spacing in mm ordered like the volume axes (Z, Y, X)
type Spacing [3]float64

// Uniform returns a spacing with the same value on every axis
func Uniform(v float64) Spacing {
	return Spacing{v, v, v}
}

// Volume represents a 3D grid of calibrated intensities (Hounsfield units)
type Volume struct {
	// Data is the 3D volume data as a 1D array, index z*Height*Width + y*Width + x
	Data []int16

	// Width is the number of voxels along X (columns)
	Width int

	// Height is the number of voxels along Y (rows)
	Height int

	// Depth is the number of voxels along Z (slices)
	Depth int

	// Spacing is the physical size of each voxel in mm
	Spacing Spacing
}

// NewVolume allocates a zero-filled volume
func NewVolume(depth, height, width int, spacing Spacing) *Volume {
	return &Volume{
		Data:    make([]int16, depth*height*width),
		Width:   width,
		Height:  height,
		Depth:   depth,
		Spacing: spacing,
	}
}

// Shape returns the dimensions ordered (Z, Y, X)
func (v *Volume) Shape() [3]int {
	return [3]int{v.Depth, v.Height, v.Width}
}

// Index returns the offset of voxel (z, y, x) in Data
func (v *Volume) Index(z, y, x int) int {
	return z*v.Height*v.Width + y*v.Width + x
}

// At returns the value of voxel (z, y, x)
func (v *Volume) At(z, y, x int) int16 {
	return v.Data[v.Index(z, y, x)]
}

// Set assigns the value of voxel (z, y, x)
func (v *Volume) Set(z, y, x int, value int16) {
	v.Data[v.Index(z, y, x)] = value
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	out := *v
	out.Data = make([]int16, len(v.Data))
	copy(out.Data, v.Data)
	return &out
}

// Mesh is a triangulated isosurface. Faces index into Vertices.
type Mesh struct {
	Vertices [][3]float32
	Faces    [][3]int32

	// Normals holds one normal per vertex
	Normals [][3]float32

	// Threshold is the intensity the surface was extracted at
	Threshold float64
}

// Bounds returns the per-axis minimum and maximum vertex coordinates
func (m *Mesh) Bounds() (lo, hi [3]float32) {
	if len(m.Vertices) == 0 {
		return lo, hi
	}
	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for i := 0; i < 3; i++ {
			if v[i] < lo[i] {
				lo[i] = v[i]
			}
			if v[i] > hi[i] {
				hi[i] = v[i]
			}
		}
	}
	return lo, hi
}
