package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/golang/glog"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"ctslicesto3d/internal/models"
)

// RenderOptions configures the mesh renderers. Nothing is read from
// package state, every caller passes its options explicitly.
type RenderOptions struct {
	// SurfaceColor and SceneBackground are used by the interactive scene
	SurfaceColor    string
	SceneBackground string

	// FaceColor and Background are used by the static PNG renderer
	FaceColor  string
	Background string

	// Width and Height of the output in pixels
	Width, Height int

	// Elevation and Azimuth of the camera in degrees
	Elevation, Azimuth float64

	// Title of the interactive scene
	Title string
}

// DefaultRenderOptions returns the default renderer options
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		SurfaceColor:    "#ececd4",
		SceneBackground: "#404040",
		FaceColor:       "#ffffe6",
		Background:      "#b3b3b3",
		Width:           800,
		Height:          800,
		Elevation:       30,
		Azimuth:         -60,
		Title:           "Interactive Visualization",
	}
}

// camera is an orthographic view looking at the mesh centre
type camera struct {
	right, up, toward [3]float64
	centre            [3]float64
	scale             float64
	width, height     int
}

func newCamera(mesh *models.Mesh, opts RenderOptions) camera {
	elev := opts.Elevation * math.Pi / 180
	azim := opts.Azimuth * math.Pi / 180

	lo, hi := mesh.Bounds()
	var centre [3]float64
	var diag float64
	for i := 0; i < 3; i++ {
		centre[i] = (float64(lo[i]) + float64(hi[i])) / 2
		d := float64(hi[i]) - float64(lo[i])
		diag += d * d
	}
	diag = math.Sqrt(diag)
	if diag == 0 {
		diag = 1
	}

	// The bounding sphere fits whatever the orientation
	scale := 0.9 * float64(min(opts.Width, opts.Height)) / diag

	return camera{
		toward: [3]float64{math.Cos(elev) * math.Cos(azim), math.Cos(elev) * math.Sin(azim), math.Sin(elev)},
		right:  [3]float64{-math.Sin(azim), math.Cos(azim), 0},
		up:     [3]float64{-math.Sin(elev) * math.Cos(azim), -math.Sin(elev) * math.Sin(azim), math.Cos(elev)},
		centre: centre,
		scale:  scale,
		width:  opts.Width,
		height: opts.Height,
	}
}

// project returns the screen position and the depth of p, larger depths
// being closer to the camera
func (c camera) project(p [3]float32) (float64, float64, float64) {
	d := [3]float64{float64(p[0]) - c.centre[0], float64(p[1]) - c.centre[1], float64(p[2]) - c.centre[2]}
	sx := float64(c.width)/2 + c.scale*dot64(d, c.right)
	sy := float64(c.height)/2 - c.scale*dot64(d, c.up)
	return sx, sy, dot64(d, c.toward)
}

// Render rasterises mesh with flat shading and a depth buffer
func Render(mesh *models.Mesh, opts RenderOptions) (*image.NRGBA, error) {
	if mesh == nil || len(mesh.Faces) == 0 {
		return nil, errors.New("cannot render an empty mesh")
	}
	if opts.Width < 1 || opts.Height < 1 {
		return nil, errors.Errorf("invalid render size %dx%d", opts.Width, opts.Height)
	}
	face, err := ParseColor(opts.FaceColor)
	if err != nil {
		return nil, err
	}
	bg, err := ParseColor(opts.Background)
	if err != nil {
		return nil, err
	}

	img := imaging.New(opts.Width, opts.Height, toNRGBA(bg))
	depth := make([]float64, opts.Width*opts.Height)
	for i := range depth {
		depth[i] = math.Inf(-1)
	}

	cam := newCamera(mesh, opts)

	// Light from over the viewer's left shoulder
	light := normalize64(add64(cam.toward, add64(scale64(cam.up, 0.5), scale64(cam.right, -0.3))))

	for _, f := range mesh.Faces {
		a, b, c := mesh.Vertices[f[0]], mesh.Vertices[f[1]], mesh.Vertices[f[2]]

		n := normalize64(cross64(sub64(b, a), sub64(c, a)))
		if n == ([3]float64{}) {
			continue
		}

		// Two sided lighting
		shade := 0.3 + 0.7*math.Abs(dot64(n, light))
		col := toNRGBA(colorful.Color{R: face.R * shade, G: face.G * shade, B: face.B * shade}.Clamped())

		ax, ay, az := cam.project(a)
		bx, by, bz := cam.project(b)
		cx, cy, cz := cam.project(c)
		fillTriangle(img, depth, col,
			[3]float64{ax, bx, cx}, [3]float64{ay, by, cy}, [3]float64{az, bz, cz})
	}

	return img, nil
}

// RenderPNG renders mesh to an image file at path
func RenderPNG(mesh *models.Mesh, path string, opts RenderOptions) error {
	img, err := Render(mesh, opts)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "saving render to %s", path)
	}
	glog.V(1).Infof("Rendered %d faces to %s (%s)", len(mesh.Faces), path, opts)
	return nil
}

// fillTriangle scan converts one triangle, testing each covered pixel centre
// against the depth buffer
func fillTriangle(img *image.NRGBA, depth []float64, col color.NRGBA, xs, ys, zs [3]float64) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	minX := max(0, int(math.Floor(math.Min(xs[0], math.Min(xs[1], xs[2])))))
	maxX := min(w-1, int(math.Ceil(math.Max(xs[0], math.Max(xs[1], xs[2])))))
	minY := max(0, int(math.Floor(math.Min(ys[0], math.Min(ys[1], ys[2])))))
	maxY := min(h-1, int(math.Ceil(math.Max(ys[0], math.Max(ys[1], ys[2])))))

	area := edge(xs[0], ys[0], xs[1], ys[1], xs[2], ys[2])
	if area == 0 {
		return
	}

	for py := minY; py <= maxY; py++ {
		for px := minX; px <= maxX; px++ {
			x, y := float64(px)+0.5, float64(py)+0.5
			w0 := edge(xs[1], ys[1], xs[2], ys[2], x, y) / area
			w1 := edge(xs[2], ys[2], xs[0], ys[0], x, y) / area
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*zs[0] + w1*zs[1] + w2*zs[2]
			i := py*w + px
			if z <= depth[i] {
				continue
			}
			depth[i] = z
			img.SetNRGBA(px, py, col)
		}
	}
}

// edge is twice the signed area of triangle (a, b, p)
func edge(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func toNRGBA(c colorful.Color) color.NRGBA {
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func sub64(a, b [3]float32) [3]float64 {
	return [3]float64{float64(a[0] - b[0]), float64(a[1] - b[1]), float64(a[2] - b[2])}
}

func add64(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func scale64(a [3]float64, s float64) [3]float64 {
	return [3]float64{a[0] * s, a[1] * s, a[2] * s}
}

func cross64(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot64(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func normalize64(v [3]float64) [3]float64 {
	l := math.Sqrt(dot64(v, v))
	if l == 0 {
		return v
	}
	return [3]float64{v[0] / l, v[1] / l, v[2] / l}
}

// String describes the camera, for logs
func (o RenderOptions) String() string {
	return fmt.Sprintf("%dx%d elev=%g azim=%g", o.Width, o.Height, o.Elevation, o.Azimuth)
}
