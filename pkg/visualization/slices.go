package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"ctslicesto3d/internal/models"
)

// DefaultPanelSize is the edge length in pixels of one viewer panel
const DefaultPanelSize = 256

const (
	panelGap     = 8
	labelHeight  = 18
	viewerMargin = 8
)

var viewerBackground = color.NRGBA{R: 32, G: 32, B: 32, A: 255}

// ViewerOptions configures the slice viewer
type ViewerOptions struct {
	// Colormap is a name accepted by NewColormap
	Colormap string

	// PanelSize is the edge length of each square panel in pixels
	PanelSize int
}

// DefaultViewerOptions returns the default viewer options
func DefaultViewerOptions() ViewerOptions {
	return ViewerOptions{Colormap: "gray", PanelSize: DefaultPanelSize}
}

// SliceViewer shows the axial, coronal and sagittal slices of a volume
// side by side with one shared intensity window.
//
// With the volume indexed (z, y, x):
//
//	axial    panel[y][x] = vol[index, y, x]
//	coronal  panel[z][j] = vol[z, index, width-1-j]
//	sagittal panel[z][y] = vol[z, y, index]
type SliceViewer struct {
	volume    *models.Volume
	window    Window
	colormap  *Colormap
	panelSize int
}

// NewSliceViewer creates a viewer over vol. The window is the global
// minimum and maximum of the volume.
func NewSliceViewer(vol *models.Volume, opts ViewerOptions) (*SliceViewer, error) {
	if vol == nil || len(vol.Data) == 0 {
		return nil, fmt.Errorf("cannot view an empty volume")
	}
	cm, err := NewColormap(opts.Colormap)
	if err != nil {
		return nil, err
	}
	size := opts.PanelSize
	if size <= 0 {
		size = DefaultPanelSize
	}
	return &SliceViewer{
		volume:    vol,
		window:    WindowOf(vol),
		colormap:  cm,
		panelSize: size,
	}, nil
}

// Window returns the shared intensity window
func (sv *SliceViewer) Window() Window {
	return sv.window
}

// Limits returns the number of slices of each view
func (sv *SliceViewer) Limits() Limits {
	return Limits{sv.volume.Depth, sv.volume.Height, sv.volume.Width}
}

// Len returns the number of slices of view v
func (sv *SliceViewer) Len(v View) int {
	if !v.valid() {
		return 0
	}
	return sv.Limits()[v]
}

// panelShape returns the (rows, cols) of a panel of view v
func (sv *SliceViewer) panelShape(v View) (int, int) {
	vol := sv.volume
	switch v {
	case Coronal:
		return vol.Depth, vol.Width
	case Sagittal:
		return vol.Depth, vol.Height
	}
	return vol.Height, vol.Width
}

// sample returns the voxel shown at (row, col) of slice index of view v
func (sv *SliceViewer) sample(v View, index, row, col int) int16 {
	vol := sv.volume
	switch v {
	case Coronal:
		return vol.At(row, index, vol.Width-1-col)
	case Sagittal:
		return vol.At(row, col, index)
	}
	return vol.At(index, row, col)
}

// Panel renders slice index of view v at native resolution
func (sv *SliceViewer) Panel(v View, index int) (*image.NRGBA, error) {
	if !v.valid() {
		return nil, fmt.Errorf("unknown view %d", int(v))
	}
	if index < 0 || index >= sv.Len(v) {
		return nil, fmt.Errorf("%s index %d out of range [0, %d)", v, index, sv.Len(v))
	}

	rows, cols := sv.panelShape(v)
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			t := sv.window.Normalize(sv.sample(v, index, r, c))
			img.SetNRGBA(c, r, sv.colormap.At(t))
		}
	}
	return img, nil
}

// Render executes cmd, drawing its panels left to right, each scaled to fit
// a square panel and labelled with its view and index.
func (sv *SliceViewer) Render(cmd RenderCommand) (*image.NRGBA, error) {
	n := len(cmd.Panels)
	width := 2*viewerMargin + n*sv.panelSize + (n-1)*panelGap
	height := 2*viewerMargin + labelHeight + sv.panelSize
	canvas := imaging.New(width, height, viewerBackground)

	for i, req := range cmd.Panels {
		panel, err := sv.Panel(req.View, req.Index)
		if err != nil {
			return nil, err
		}
		scaled := fitSquare(panel, sv.panelSize)

		left := viewerMargin + i*(sv.panelSize+panelGap)
		top := viewerMargin + labelHeight

		// Centre inside the square
		off := image.Pt(
			left+(sv.panelSize-scaled.Bounds().Dx())/2,
			top+(sv.panelSize-scaled.Bounds().Dy())/2,
		)
		canvas = imaging.Paste(canvas, scaled, off)

		label := fmt.Sprintf("%s: %d/%d", req.View, req.Index, sv.Len(req.View)-1)
		drawLabel(canvas, left, viewerMargin+labelHeight-5, label)
	}

	return canvas, nil
}

// fitSquare scales img up or down so its longer side is size pixels
func fitSquare(img image.Image, size int) *image.NRGBA {
	b := img.Bounds()
	scale := float64(size) / float64(max(b.Dx(), b.Dy()))
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))
	return imaging.Resize(img, w, h, imaging.NearestNeighbor)
}

func drawLabel(dst *image.NRGBA, x, baseline int, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(text)
}
