package visualization

import (
	"encoding/json"
	"html/template"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"

	"ctslicesto3d/internal/models"
)

// sceneData is embedded into the scene page as JSON
type sceneData struct {
	Vertices   []float64 `json:"vertices"`
	Faces      []int32   `json:"faces"`
	Surface    string    `json:"surface"`
	Background string    `json:"background"`
	Elevation  float64   `json:"elevation"`
	Azimuth    float64   `json:"azimuth"`
	Labels     [3]string `json:"labels"`
}

var sceneTemplate = template.Must(template.New("scene").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; background: {{.Background}}; color: #ddd; font-family: sans-serif; }
h1 { font-size: 16px; font-weight: normal; margin: 8px 12px; }
canvas { display: block; margin: 0 auto; cursor: grab; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<canvas id="scene" width="{{.Width}}" height="{{.Height}}"></canvas>
<script>
const scene = {{.Data}};
const canvas = document.getElementById("scene");
const ctx = canvas.getContext("2d");
const V = scene.vertices, F = scene.faces;

// Data aspect: one scale for every axis
const lo = [Infinity, Infinity, Infinity], hi = [-Infinity, -Infinity, -Infinity];
for (let i = 0; i < V.length; i += 3) {
  for (let a = 0; a < 3; a++) {
    lo[a] = Math.min(lo[a], V[i + a]);
    hi[a] = Math.max(hi[a], V[i + a]);
  }
}
const centre = [0, 1, 2].map(a => (lo[a] + hi[a]) / 2);
const diag = Math.hypot(hi[0] - lo[0], hi[1] - lo[1], hi[2] - lo[2]) || 1;
const base = [parseInt(scene.surface.slice(1, 3), 16), parseInt(scene.surface.slice(3, 5), 16), parseInt(scene.surface.slice(5, 7), 16)];

let elev = scene.elevation * Math.PI / 180, azim = scene.azimuth * Math.PI / 180, zoom = 1;

function basis() {
  const ce = Math.cos(elev), se = Math.sin(elev), ca = Math.cos(azim), sa = Math.sin(azim);
  return {
    toward: [ce * ca, ce * sa, se],
    right: [-sa, ca, 0],
    up: [-se * ca, -se * sa, ce],
  };
}

function dot(a, b) { return a[0] * b[0] + a[1] * b[1] + a[2] * b[2]; }

function draw() {
  const b = basis();
  const s = zoom * 0.8 * Math.min(canvas.width, canvas.height) / diag;
  const n = V.length / 3;
  const sx = new Float32Array(n), sy = new Float32Array(n), sz = new Float32Array(n);
  for (let i = 0; i < n; i++) {
    const d = [V[3 * i] - centre[0], V[3 * i + 1] - centre[1], V[3 * i + 2] - centre[2]];
    sx[i] = canvas.width / 2 + s * dot(d, b.right);
    sy[i] = canvas.height / 2 - s * dot(d, b.up);
    sz[i] = dot(d, b.toward);
  }

  // Painter's algorithm, far faces first
  const order = [];
  for (let f = 0; f < F.length; f += 3) order.push(f);
  const depth = f => sz[F[f]] + sz[F[f + 1]] + sz[F[f + 2]];
  order.sort((p, q) => depth(p) - depth(q));

  ctx.fillStyle = scene.background;
  ctx.fillRect(0, 0, canvas.width, canvas.height);
  const light = b.toward;
  for (const f of order) {
    const i = F[f], j = F[f + 1], k = F[f + 2];
    const u = [V[3 * j] - V[3 * i], V[3 * j + 1] - V[3 * i + 1], V[3 * j + 2] - V[3 * i + 2]];
    const v = [V[3 * k] - V[3 * i], V[3 * k + 1] - V[3 * i + 1], V[3 * k + 2] - V[3 * i + 2]];
    const nx = u[1] * v[2] - u[2] * v[1], ny = u[2] * v[0] - u[0] * v[2], nz = u[0] * v[1] - u[1] * v[0];
    const len = Math.hypot(nx, ny, nz) || 1;
    const shade = 0.35 + 0.65 * Math.abs(dot([nx / len, ny / len, nz / len], light));
    const c = base.map(x => Math.round(x * shade));
    ctx.fillStyle = ctx.strokeStyle = "rgb(" + c.join(",") + ")";
    ctx.beginPath();
    ctx.moveTo(sx[i], sy[i]);
    ctx.lineTo(sx[j], sy[j]);
    ctx.lineTo(sx[k], sy[k]);
    ctx.closePath();
    ctx.fill();
    ctx.stroke();
  }

  // Axes from the lower corner of the bounding box
  const origin = lo.slice();
  const ends = [[hi[0], lo[1], lo[2]], [lo[0], hi[1], lo[2]], [lo[0], lo[1], hi[2]]];
  const proj = p => {
    const d = [p[0] - centre[0], p[1] - centre[1], p[2] - centre[2]];
    return [canvas.width / 2 + s * dot(d, b.right), canvas.height / 2 - s * dot(d, b.up)];
  };
  const o = proj(origin);
  ctx.strokeStyle = ctx.fillStyle = "#ddd";
  ctx.font = "12px sans-serif";
  ends.forEach((e, a) => {
    const p = proj(e);
    ctx.beginPath();
    ctx.moveTo(o[0], o[1]);
    ctx.lineTo(p[0], p[1]);
    ctx.stroke();
    ctx.fillText(scene.labels[a], p[0] + 4, p[1] + 4);
  });
}

let drag = null;
canvas.addEventListener("mousedown", e => { drag = [e.clientX, e.clientY]; });
window.addEventListener("mouseup", () => { drag = null; });
window.addEventListener("mousemove", e => {
  if (!drag) return;
  azim -= (e.clientX - drag[0]) * 0.01;
  elev = Math.max(-Math.PI / 2, Math.min(Math.PI / 2, elev + (e.clientY - drag[1]) * 0.01));
  drag = [e.clientX, e.clientY];
  draw();
});
canvas.addEventListener("wheel", e => {
  e.preventDefault();
  zoom *= e.deltaY < 0 ? 1.1 : 1 / 1.1;
  draw();
});
draw();
</script>
</body>
</html>
`))

// WriteScene writes mesh as a self-contained interactive HTML page
func WriteScene(mesh *models.Mesh, path string, opts RenderOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	if err := RenderScene(f, mesh, opts); err != nil {
		return errors.Wrapf(err, "writing scene %s", path)
	}
	return f.Close()
}

// RenderScene writes the interactive HTML page for mesh to w
func RenderScene(w io.Writer, mesh *models.Mesh, opts RenderOptions) error {
	if mesh == nil || len(mesh.Faces) == 0 {
		return errors.New("cannot render an empty mesh")
	}
	surface, err := ParseColor(opts.SurfaceColor)
	if err != nil {
		return err
	}
	background, err := ParseColor(opts.SceneBackground)
	if err != nil {
		return err
	}

	data := sceneData{
		Vertices:   make([]float64, 0, 3*len(mesh.Vertices)),
		Faces:      make([]int32, 0, 3*len(mesh.Faces)),
		Surface:    surface.Hex(),
		Background: background.Hex(),
		Elevation:  opts.Elevation,
		Azimuth:    opts.Azimuth,
		Labels:     [3]string{"X (mm)", "Y (mm)", "Z (mm)"},
	}
	for _, v := range mesh.Vertices {
		for _, c := range v {
			// Hundredths of a mm keep the page small
			data.Vertices = append(data.Vertices, math.Round(float64(c)*100)/100)
		}
	}
	for _, f := range mesh.Faces {
		data.Faces = append(data.Faces, f[0], f[1], f[2])
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encoding scene")
	}

	title := opts.Title
	if title == "" {
		title = DefaultRenderOptions().Title
	}

	return sceneTemplate.Execute(w, struct {
		Title         string
		Background    template.CSS
		Width, Height int
		Data          template.JS
	}{
		Title:      title,
		Background: template.CSS(background.Hex()),
		Width:      opts.Width,
		Height:     opts.Height,
		Data:       template.JS(raw),
	})
}
