// Package stl extracts isosurface meshes from CT volumes and writes them as
// STL or OBJ files.
package stl

import (
	"math"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"

	"ctslicesto3d/internal/models"
	"ctslicesto3d/internal/x"
)

// DefaultThreshold is the HU level of the extracted surface. It lies on the
// boundary between air and soft tissue.
const DefaultThreshold = -300

// ExtractOptions controls isosurface extraction
type ExtractOptions struct {
	// Threshold is the intensity of the surface
	Threshold float64

	// StepSize samples every StepSize-th voxel along each axis
	StepSize int

	// AllowDegenerate keeps zero-area triangles
	AllowDegenerate bool
}

// DefaultExtractOptions returns the default extraction options
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		Threshold:       DefaultThreshold,
		StepSize:        1,
		AllowDegenerate: true,
	}
}

// Corner offsets of a cube cell
var cubeCorners = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// Six tetrahedra sharing the 0-6 diagonal. Neighbouring cells split their
// common face along the same diagonal, so the surface has no cracks.
var cubeTetrahedra = [6][4]int{
	{0, 6, 1, 2}, {0, 6, 2, 3}, {0, 6, 3, 7},
	{0, 6, 7, 4}, {0, 6, 4, 5}, {0, 6, 5, 1},
}

// MarchingCubes polygonises the isosurface of a scalar field sampled on a
// regular grid. Each cube cell is split into tetrahedra, which avoids the
// ambiguous configurations of the classic cube case table.
type MarchingCubes struct {
	width, height, depth int
	value                func(x, y, z int) float64

	isoLevel        float64
	scale           [3]float32
	allowDegenerate bool
}

// NewMarchingCubes creates an extractor over data laid out as
// data[z*width*height + y*width + x]. Values above isoLevel are inside.
func NewMarchingCubes(data []float64, width, height, depth int, isoLevel float64) *MarchingCubes {
	return &MarchingCubes{
		width:  width,
		height: height,
		depth:  depth,
		value: func(x, y, z int) float64 {
			return data[z*width*height+y*width+x]
		},
		isoLevel:        isoLevel,
		scale:           [3]float32{1, 1, 1},
		allowDegenerate: true,
	}
}

// SetScale sets the physical size of one grid step along each axis
func (mc *MarchingCubes) SetScale(x, y, z float32) {
	mc.scale = [3]float32{x, y, z}
}

// SetAllowDegenerate controls whether zero-area triangles are kept
func (mc *MarchingCubes) SetAllowDegenerate(allow bool) {
	mc.allowDegenerate = allow
}

// GenerateTriangles returns the surface as independent triangles
func (mc *MarchingCubes) GenerateTriangles() []Triangle {
	return Triangles(mc.Polygonise())
}

// Polygonise returns the surface as an indexed mesh with per-vertex normals.
// Triangles are wound so that their normals point towards lower values.
func (mc *MarchingCubes) Polygonise() *models.Mesh {
	b := &meshBuilder{
		mc:    mc,
		edges: make(map[[2]int]int32),
		mesh:  &models.Mesh{Threshold: mc.isoLevel},
	}

	var idx [8]int
	var pos [8][3]float32
	var val [8]float64

	for z := 0; z < mc.depth-1; z++ {
		for y := 0; y < mc.height-1; y++ {
			for x := 0; x < mc.width-1; x++ {
				inside := 0
				for c, off := range cubeCorners {
					cx, cy, cz := x+off[0], y+off[1], z+off[2]
					idx[c] = (cz*mc.height+cy)*mc.width + cx
					pos[c] = mc.position(cx, cy, cz)
					val[c] = mc.value(cx, cy, cz)
					if val[c] > mc.isoLevel {
						inside++
					}
				}

				// Cell entirely on one side
				if inside == 0 || inside == 8 {
					continue
				}

				for _, tet := range cubeTetrahedra {
					b.tetrahedron(tet, &idx, &pos, &val)
				}
			}
		}
	}

	b.finishNormals()
	return b.mesh
}

func (mc *MarchingCubes) position(x, y, z int) [3]float32 {
	return [3]float32{
		float32(x) * mc.scale[0],
		float32(y) * mc.scale[1],
		float32(z) * mc.scale[2],
	}
}

// meshBuilder accumulates vertices shared along grid edges
type meshBuilder struct {
	mc    *MarchingCubes
	edges map[[2]int]int32
	mesh  *models.Mesh
}

func (b *meshBuilder) tetrahedron(tet [4]int, idx *[8]int, pos *[8][3]float32, val *[8]float64) {
	var in, out []int
	for _, c := range tet {
		if val[c] > b.mc.isoLevel {
			in = append(in, c)
		} else {
			out = append(out, c)
		}
	}

	// Direction of decreasing value across this tetrahedron
	var dir [3]float32
	for _, c := range out {
		for i := 0; i < 3; i++ {
			dir[i] += pos[c][i] / float32(len(out))
		}
	}
	for _, c := range in {
		for i := 0; i < 3; i++ {
			dir[i] -= pos[c][i] / float32(len(in))
		}
	}

	edge := func(a, c int) int32 {
		return b.vertex(idx[a], idx[c], pos[a], pos[c], val[a], val[c])
	}

	switch len(in) {
	case 1:
		a := in[0]
		b.triangle(dir, edge(a, out[0]), edge(a, out[1]), edge(a, out[2]))
	case 3:
		d := out[0]
		b.triangle(dir, edge(in[0], d), edge(in[1], d), edge(in[2], d))
	case 2:
		a, c := in[0], in[1]
		p, q := out[0], out[1]
		ap, aq, cq, cp := edge(a, p), edge(a, q), edge(c, q), edge(c, p)
		b.triangle(dir, ap, aq, cq)
		b.triangle(dir, ap, cq, cp)
	}
}

// vertex returns the index of the surface vertex on the grid edge between
// linear indices ia and ib, creating it on first use
func (b *meshBuilder) vertex(ia, ib int, pa, pb [3]float32, va, vb float64) int32 {
	// Always interpolate from the lower index so shared edges agree exactly
	if ia > ib {
		ia, ib = ib, ia
		pa, pb = pb, pa
		va, vb = vb, va
	}
	key := [2]int{ia, ib}
	if id, ok := b.edges[key]; ok {
		return id
	}

	t := 0.5
	if va != vb {
		t = (b.mc.isoLevel - va) / (vb - va)
	}

	var p [3]float32
	for i := 0; i < 3; i++ {
		p[i] = pa[i] + float32(t)*(pb[i]-pa[i])
	}

	id := int32(len(b.mesh.Vertices))
	b.mesh.Vertices = append(b.mesh.Vertices, p)
	b.mesh.Normals = append(b.mesh.Normals, [3]float32{})
	b.edges[key] = id
	return id
}

// triangle appends face (i, j, k), flipped if needed so its normal agrees
// with dir
func (b *meshBuilder) triangle(dir [3]float32, i, j, k int32) {
	v := b.mesh.Vertices
	n := cross(sub(v[j], v[i]), sub(v[k], v[i]))

	if n == ([3]float32{}) {
		if !b.mc.allowDegenerate {
			return
		}
	} else if dot(n, dir) < 0 {
		j, k = k, j
		n = [3]float32{-n[0], -n[1], -n[2]}
	}

	b.mesh.Faces = append(b.mesh.Faces, [3]int32{i, j, k})

	// Area weighted vertex normals
	for _, id := range [3]int32{i, j, k} {
		for a := 0; a < 3; a++ {
			b.mesh.Normals[id][a] += n[a]
		}
	}
}

func (b *meshBuilder) finishNormals() {
	for i, n := range b.mesh.Normals {
		b.mesh.Normals[i] = normalize(n)
	}
}

// Extract computes the isosurface of vol at opts.Threshold.
//
// The volume is read with its axes reordered from (z, y, x) to (x, y, z)
// and the last axis reversed, so vertex coordinates are (x, y, z) in mm
// with z increasing towards the first slice.
func Extract(vol *models.Volume, opts ExtractOptions) (*models.Mesh, error) {
	if vol == nil || len(vol.Data) == 0 {
		return nil, x.InputErrorf("cannot extract a surface from an empty volume")
	}
	if opts.StepSize < 1 {
		return nil, x.InputErrorf("step size must be at least 1, got %d", opts.StepSize)
	}

	lo, hi := dataRange(vol)
	if opts.Threshold < lo || opts.Threshold > hi {
		return nil, x.ExtractionErrorf("threshold %g outside the volume data range [%g, %g]",
			opts.Threshold, lo, hi)
	}

	step := opts.StepSize
	w := (vol.Width-1)/step + 1
	h := (vol.Height-1)/step + 1
	d := (vol.Depth-1)/step + 1
	last := vol.Depth - 1

	mc := &MarchingCubes{
		width:  w,
		height: h,
		depth:  d,
		value: func(i, j, k int) float64 {
			return float64(vol.At(last-k*step, j*step, i*step))
		},
		isoLevel: opts.Threshold,
		scale: [3]float32{
			float32(vol.Spacing[2] * float64(step)),
			float32(vol.Spacing[1] * float64(step)),
			float32(vol.Spacing[0] * float64(step)),
		},
		allowDegenerate: opts.AllowDegenerate,
	}

	mesh := mc.Polygonise()
	if len(mesh.Faces) == 0 {
		return nil, x.ExtractionErrorf("no surface found at threshold %g", opts.Threshold)
	}

	glog.Infof("Extracted surface at %g HU: %s vertices, %s faces",
		opts.Threshold, humanize.Comma(int64(len(mesh.Vertices))), humanize.Comma(int64(len(mesh.Faces))))

	return mesh, nil
}

func dataRange(vol *models.Volume) (lo, hi float64) {
	mn, mx := vol.Data[0], vol.Data[0]
	for _, v := range vol.Data[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return float64(mn), float64(mx)
}

func sub(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func normalize(v [3]float32) [3]float32 {
	l := float32(math.Sqrt(float64(dot(v, v))))
	if l == 0 {
		return v
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}
