package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"ctslicesto3d/internal/models"
)

// Triangle is one facet of a binary STL file
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// Triangles expands an indexed mesh into facets with unit face normals
func Triangles(mesh *models.Mesh) []Triangle {
	tris := make([]Triangle, len(mesh.Faces))
	for i, f := range mesh.Faces {
		a, b, c := mesh.Vertices[f[0]], mesh.Vertices[f[1]], mesh.Vertices[f[2]]
		tris[i] = Triangle{
			Normal:  normalize(cross(sub(b, a), sub(c, a))),
			Vertex1: a,
			Vertex2: b,
			Vertex3: c,
		}
	}
	return tris
}

// Mesh output formats
const (
	FormatSTL = "stl"
	FormatOBJ = "obj"
)

// SaveMesh writes mesh to path in the given format
func SaveMesh(path string, mesh *models.Mesh, format string) error {
	switch format {
	case FormatSTL:
		return SaveToSTL(path, Triangles(mesh))
	case FormatOBJ:
		return SaveToOBJ(path, mesh)
	}
	return errors.Errorf("unknown mesh format %q", format)
}

// SaveToSTL writes triangles as a binary STL file. A path ending in .gz is
// gzip compressed.
func SaveToSTL(path string, triangles []Triangle) error {
	return writeFile(path, func(w io.Writer) error {
		return writeSTL(w, triangles)
	})
}

// SaveToOBJ writes mesh as a Wavefront OBJ file with vertex normals. A path
// ending in .gz is gzip compressed.
func SaveToOBJ(path string, mesh *models.Mesh) error {
	return writeFile(path, func(w io.Writer) error {
		return writeOBJ(w, mesh)
	})
}

func writeSTL(w io.Writer, triangles []Triangle) error {
	if uint64(len(triangles)) > math.MaxUint32 {
		return errors.Errorf("too many triangles for STL: %d", len(triangles))
	}

	// 80 byte header, never starting with "solid" so readers don't take it
	// for ASCII STL
	var header [80]byte
	copy(header[:], "ctslicesto3d binary STL")
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	// normal, three vertices and a zero attribute byte count
	var rec [50]byte
	for _, t := range triangles {
		off := 0
		for _, v := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for _, c := range v {
				binary.LittleEndian.PutUint32(rec[off:], math.Float32bits(c))
				off += 4
			}
		}
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

func writeOBJ(w io.Writer, mesh *models.Mesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# ctslicesto3d isosurface at %g\n", mesh.Threshold)
	for _, v := range mesh.Vertices {
		fmt.Fprintf(bw, "v %g %g %g\n", v[0], v[1], v[2])
	}
	withNormals := len(mesh.Normals) == len(mesh.Vertices)
	if withNormals {
		for _, n := range mesh.Normals {
			fmt.Fprintf(bw, "vn %g %g %g\n", n[0], n[1], n[2])
		}
	}
	for _, f := range mesh.Faces {
		// OBJ indices are 1-based
		a, b, c := f[0]+1, f[1]+1, f[2]+1
		if withNormals {
			fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n", a, a, b, b, c, c)
		} else {
			fmt.Fprintf(bw, "f %d %d %d\n", a, b, c)
		}
	}
	return bw.Flush()
}

// writeFile creates path and hands a buffered, optionally compressed writer
// to write
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(bw)
		w = gz
	}

	if err := write(w); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return errors.Wrapf(err, "compressing %s", path)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}
