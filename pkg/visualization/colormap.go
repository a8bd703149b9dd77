package visualization

import (
	"fmt"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"ctslicesto3d/internal/models"
	"ctslicesto3d/pkg/hounsfield"
)

// Window maps intensities in [Lo, Hi] onto the full colormap range.
// A single window is shared by all panels so they are comparable.
type Window struct {
	Lo, Hi int16
}

// WindowOf returns the window spanning the full data range of vol
func WindowOf(vol *models.Volume) Window {
	lo, hi := hounsfield.Window(vol)
	return Window{Lo: lo, Hi: hi}
}

// Normalize maps v into [0, 1]. A flat window maps everything to 0.
func (w Window) Normalize(v int16) float64 {
	if w.Hi <= w.Lo {
		return 0
	}
	t := (float64(v) - float64(w.Lo)) / (float64(w.Hi) - float64(w.Lo))
	return math.Max(0, math.Min(1, t))
}

type colorStop struct {
	pos float64
	c   colorful.Color
}

// Colormap is a piecewise linear color ramp with a precomputed lookup table
type Colormap struct {
	name string
	lut  [256]color.NRGBA
}

var colormapStops = map[string][]colorStop{
	"gray": {
		{0, colorful.Color{R: 0, G: 0, B: 0}},
		{1, colorful.Color{R: 1, G: 1, B: 1}},
	},
	"bone": {
		{0, colorful.Color{R: 0, G: 0, B: 0}},
		{0.375, colorful.Color{R: 0.319, G: 0.319, B: 0.444}},
		{0.75, colorful.Color{R: 0.652, G: 0.777, B: 0.777}},
		{1, colorful.Color{R: 1, G: 1, B: 1}},
	},
	"hot": {
		{0, colorful.Color{R: 0.0416, G: 0, B: 0}},
		{0.365, colorful.Color{R: 1, G: 0, B: 0}},
		{0.746, colorful.Color{R: 1, G: 1, B: 0}},
		{1, colorful.Color{R: 1, G: 1, B: 1}},
	},
}

// ColormapNames lists the supported colormaps
func ColormapNames() []string {
	return []string{"gray", "bone", "hot"}
}

// NewColormap returns the named colormap
func NewColormap(name string) (*Colormap, error) {
	stops, ok := colormapStops[name]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q", name)
	}

	m := &Colormap{name: name}
	for i := range m.lut {
		c := blendStops(stops, float64(i)/255)
		r, g, b := c.Clamped().RGB255()
		m.lut[i] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return m, nil
}

// Name returns the colormap name
func (m *Colormap) Name() string {
	return m.name
}

// At returns the color for t in [0, 1]
func (m *Colormap) At(t float64) color.NRGBA {
	i := int(math.Round(math.Max(0, math.Min(1, t)) * 255))
	return m.lut[i]
}

// blendStops interpolates linearly in RGB between the stops around t
func blendStops(stops []colorStop, t float64) colorful.Color {
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].pos {
			a, b := stops[i-1], stops[i]
			return a.c.BlendRgb(b.c, (t-a.pos)/(b.pos-a.pos))
		}
	}
	return stops[len(stops)-1].c
}

// ParseColor parses a "#rrggbb" color
func ParseColor(hex string) (colorful.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("invalid color %q: %v", hex, err)
	}
	return c, nil
}
