package visualization

import (
	"bytes"
	"encoding/json"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctslicesto3d/internal/models"
)

// cubeMesh returns a closed cube of side size centred at the origin
func cubeMesh(size float32) *models.Mesh {
	h := size / 2
	m := &models.Mesh{
		Vertices: [][3]float32{
			{-h, -h, -h}, {h, -h, -h}, {h, h, -h}, {-h, h, -h},
			{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h},
		},
		Faces: [][3]int32{
			{0, 2, 1}, {0, 3, 2}, {4, 5, 6}, {4, 6, 7},
			{0, 1, 5}, {0, 5, 4}, {2, 3, 7}, {2, 7, 6},
			{1, 2, 6}, {1, 6, 5}, {0, 4, 7}, {0, 7, 3},
		},
	}
	return m
}

func TestRenderDrawsMeshOverBackground(t *testing.T) {
	opts := DefaultRenderOptions()
	opts.Width, opts.Height = 120, 100

	img, err := Render(cubeMesh(10), opts)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	bg, err := ParseColor(opts.Background)
	require.NoError(t, err)
	background := toNRGBA(bg)

	// Corners stay background, the centre is covered by the cube
	assert.Equal(t, background, img.NRGBAAt(0, 0))
	assert.Equal(t, background, img.NRGBAAt(119, 99))
	centre := img.NRGBAAt(60, 50)
	assert.NotEqual(t, background, centre)

	// Shaded face color: never brighter than the face color itself
	face, err := ParseColor(opts.FaceColor)
	require.NoError(t, err)
	fc := toNRGBA(face)
	assert.LessOrEqual(t, centre.R, fc.R)
	assert.LessOrEqual(t, centre.B, fc.B)
	assert.Greater(t, centre.R, uint8(0))
}

func TestRenderErrors(t *testing.T) {
	_, err := Render(&models.Mesh{}, DefaultRenderOptions())
	assert.Error(t, err)

	opts := DefaultRenderOptions()
	opts.Width = 0
	_, err = Render(cubeMesh(1), opts)
	assert.Error(t, err)

	opts = DefaultRenderOptions()
	opts.FaceColor = "yellowish"
	_, err = Render(cubeMesh(1), opts)
	assert.Error(t, err)
}

func TestRenderPNG(t *testing.T) {
	opts := DefaultRenderOptions()
	opts.Width, opts.Height = 64, 64
	path := filepath.Join(t.TempDir(), "mesh.png")

	require.NoError(t, RenderPNG(cubeMesh(4), path, opts))

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}

// TestFillTriangleDepth verifies the nearer of two overlapping triangles wins
// whatever the drawing order
func TestFillTriangleDepth(t *testing.T) {
	img := imaging.New(10, 10, color.NRGBA{A: 255})
	depth := make([]float64, 100)
	for i := range depth {
		depth[i] = math.Inf(-1)
	}

	far := color.NRGBA{R: 255, A: 255}
	near := color.NRGBA{B: 255, A: 255}
	xs, ys := [3]float64{0, 10, 0}, [3]float64{0, 0, 10}

	fillTriangle(img, depth, far, xs, ys, [3]float64{0, 0, 0})
	fillTriangle(img, depth, near, xs, ys, [3]float64{1, 1, 1})
	fillTriangle(img, depth, far, xs, ys, [3]float64{0, 0, 0})

	assert.Equal(t, near, img.NRGBAAt(2, 2))

	// Outside the triangle
	assert.Equal(t, color.NRGBA{A: 255}, img.NRGBAAt(9, 9))
}

func TestRenderScene(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultRenderOptions()
	require.NoError(t, RenderScene(&buf, cubeMesh(2), opts))

	page := buf.String()
	assert.Contains(t, page, "<title>Interactive Visualization</title>")
	assert.Contains(t, page, "<canvas")

	m := regexp.MustCompile(`const scene = (\{.*\});`).FindStringSubmatch(page)
	require.Len(t, m, 2, "scene data not embedded")

	var data sceneData
	require.NoError(t, json.Unmarshal([]byte(m[1]), &data))
	assert.Len(t, data.Vertices, 3*8)
	assert.Len(t, data.Faces, 3*12)
	assert.Equal(t, "#ececd4", data.Surface)
	assert.Equal(t, "#404040", data.Background)
	assert.Equal(t, [3]string{"X (mm)", "Y (mm)", "Z (mm)"}, data.Labels)
}

func TestWriteScene(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.html")
	require.NoError(t, WriteScene(cubeMesh(2), path, DefaultRenderOptions()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "<!DOCTYPE html>"))

	assert.Error(t, WriteScene(&models.Mesh{}, path, DefaultRenderOptions()))
}

func TestRenderOptionsString(t *testing.T) {
	opts := DefaultRenderOptions()
	opts.Width, opts.Height = 320, 240
	assert.Equal(t, "320x240 elev=30 azim=-60", opts.String())
}
