// Package reconstruction runs the CT pipeline: load the series, calibrate
// it to Hounsfield units, resample it to a uniform grid, extract the
// isosurface and write the requested outputs.
package reconstruction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"ctslicesto3d/internal/models"
	"ctslicesto3d/pkg/config"
	"ctslicesto3d/pkg/dicomio"
	"ctslicesto3d/pkg/hounsfield"
	"ctslicesto3d/pkg/interpolation"
	"ctslicesto3d/pkg/stl"
	"ctslicesto3d/pkg/visualization"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ctslicesto3d",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"stage"})

	volumeVoxels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ctslicesto3d",
		Name:      "volume_voxels",
		Help:      "Voxels in the last resampled volume.",
	})

	meshFaces = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ctslicesto3d",
		Name:      "mesh_faces",
		Help:      "Faces of the last extracted mesh.",
	})

	pipelineFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctslicesto3d",
		Name:      "pipeline_failures_total",
		Help:      "Pipeline runs that failed, by stage.",
	}, []string{"stage"})
)

// Params holds the pipeline configuration
type Params struct {
	// InputDir is the directory holding the DICOM series
	InputDir string

	// OutputDir receives every output file
	OutputDir string

	// Loader settings
	Extension string
	Workers   int

	// Normalize holds the calibration options
	Normalize hounsfield.Options

	// Spacing is the target voxel spacing in mm
	Spacing models.Spacing
	Method  interpolation.Method

	// Extract holds the isosurface options
	Extract stl.ExtractOptions

	// MeshFormat is stl.FormatSTL or stl.FormatOBJ; Compress gzips the file
	MeshFormat string
	Compress   bool

	// Output selection
	SaveSlices bool
	SaveRender bool
	SaveScene  bool

	Viewer visualization.ViewerOptions
	Render visualization.RenderOptions
}

// ParamsFromConfig builds pipeline parameters from the configuration
func ParamsFromConfig(cfg *config.Config, inputDir string) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	method, err := interpolation.ParseMethod(cfg.Resample.Method)
	if err != nil {
		return nil, err
	}

	render := visualization.DefaultRenderOptions()
	render.SurfaceColor = cfg.Render.SurfaceColor
	render.FaceColor = cfg.Render.FaceColor
	render.Background = cfg.Render.Background
	render.Width = cfg.Render.Width
	render.Height = cfg.Render.Height
	render.Elevation = cfg.Render.Elevation
	render.Azimuth = cfg.Render.Azimuth

	return &Params{
		InputDir:  inputDir,
		OutputDir: cfg.Output.Dir,
		Extension: cfg.Loader.Extension,
		Workers:   cfg.Loader.Workers,
		Normalize: hounsfield.Options{Sentinel: int32(cfg.Normalize.Sentinel)},
		Spacing:   models.Spacing{cfg.Resample.Spacing[0], cfg.Resample.Spacing[1], cfg.Resample.Spacing[2]},
		Method:    method,
		Extract: stl.ExtractOptions{
			Threshold:       cfg.Mesh.Threshold,
			StepSize:        cfg.Mesh.StepSize,
			AllowDegenerate: cfg.Mesh.AllowDegenerate,
		},
		MeshFormat: cfg.Output.Format,
		Compress:   cfg.Output.Compress,
		SaveSlices: cfg.Output.SaveSlices,
		SaveRender: cfg.Output.SaveRender,
		SaveScene:  cfg.Output.SaveScene,
		Viewer: visualization.ViewerOptions{
			Colormap:  cfg.Viewer.Colormap,
			PanelSize: cfg.Viewer.PanelSize,
		},
		Render: render,
	}, nil
}

// StageTiming records how long one stage took
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Metrics summarises one pipeline run
type Metrics struct {
	Slices    int
	Thickness float64

	// RawShape and RawSpacing describe the calibrated volume, Shape and
	// Spacing the resampled one
	RawShape   [3]int
	RawSpacing models.Spacing
	Shape      [3]int
	Spacing    models.Spacing

	// HU statistics of the resampled volume
	HU hounsfield.Summary

	Vertices int
	Faces    int

	Stages  []StageTiming
	Outputs []string
}

// Reconstructor runs the pipeline stages in order. Each stage consumes the
// previous stage's result; any error aborts the run.
type Reconstructor struct {
	params *Params

	// decoder overrides the DICOM decoder when set
	decoder dicomio.SliceDecoder

	scan   *models.Scan
	volume *models.Volume
	mesh   *models.Mesh

	metrics Metrics
}

// NewReconstructor creates a reconstructor for params
func NewReconstructor(params *Params) *Reconstructor {
	return &Reconstructor{params: params}
}

// stage runs fn, recording its duration in the metrics and in prometheus
func (r *Reconstructor) stage(name string, fn func() error) error {
	glog.Infof("Stage %s", name)
	start := time.Now()
	err := fn()
	d := time.Since(start)

	stageDuration.WithLabelValues(name).Observe(d.Seconds())
	r.metrics.Stages = append(r.metrics.Stages, StageTiming{Stage: name, Duration: d})

	if err != nil {
		pipelineFailures.WithLabelValues(name).Inc()
		return errors.Wrapf(err, "%s stage", name)
	}
	glog.V(1).Infof("Stage %s took %s", name, d)
	return nil
}

// Prepare loads, calibrates and resamples the series. It is all the slice
// viewer needs.
func (r *Reconstructor) Prepare(ctx context.Context) error {
	if r.volume != nil {
		return nil
	}
	p := r.params

	if err := r.stage("load", func() error {
		loader := dicomio.NewLoader(p.Extension, p.Workers)
		if r.decoder != nil {
			loader.Decoder = r.decoder
		}
		scan, err := loader.Load(ctx, p.InputDir)
		if err != nil {
			return err
		}
		r.scan = scan
		r.metrics.Slices = len(scan.Slices)
		r.metrics.Thickness = scan.Thickness
		return nil
	}); err != nil {
		return err
	}

	var raw *models.Volume
	if err := r.stage("normalize", func() error {
		vol, err := hounsfield.Normalize(r.scan, p.Normalize)
		if err != nil {
			return err
		}
		raw = vol
		r.metrics.RawShape = vol.Shape()
		r.metrics.RawSpacing = vol.Spacing
		return nil
	}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.stage("resample", func() error {
		vol, spacing, err := interpolation.Resample(raw, p.Spacing, p.Method)
		if err != nil {
			return err
		}
		r.volume = vol
		r.metrics.Shape = vol.Shape()
		r.metrics.Spacing = spacing
		r.metrics.HU = hounsfield.Summarize(vol)
		volumeVoxels.Set(float64(len(vol.Data)))
		return nil
	})
}

// Process runs the complete pipeline and writes the configured outputs
func (r *Reconstructor) Process(ctx context.Context) error {
	if err := os.MkdirAll(r.params.OutputDir, 0755); err != nil {
		return errors.Wrapf(err, "creating output directory %s", r.params.OutputDir)
	}

	if err := r.Prepare(ctx); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.stage("mesh", func() error {
		mesh, err := stl.Extract(r.volume, r.params.Extract)
		if err != nil {
			return err
		}
		r.mesh = mesh
		r.metrics.Vertices = len(mesh.Vertices)
		r.metrics.Faces = len(mesh.Faces)
		meshFaces.Set(float64(len(mesh.Faces)))
		return nil
	}); err != nil {
		return err
	}

	return r.stage("output", func() error {
		return r.writeOutputs(ctx)
	})
}

// MeshPath returns the path the mesh file is written to
func (r *Reconstructor) MeshPath() string {
	name := "mesh." + r.params.MeshFormat
	if r.params.Compress {
		name += ".gz"
	}
	return filepath.Join(r.params.OutputDir, name)
}

// outputSet writes output files concurrently and records their paths
type outputSet struct {
	g     *errgroup.Group
	ctx   context.Context
	paths []string
}

func newOutputSet(ctx context.Context) *outputSet {
	g, ctx := errgroup.WithContext(ctx)
	return &outputSet{g: g, ctx: ctx}
}

func (o *outputSet) add(path string, write func(path string) error) {
	o.paths = append(o.paths, path)
	o.g.Go(func() error {
		if err := o.ctx.Err(); err != nil {
			return err
		}
		if err := write(path); err != nil {
			return err
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			glog.Infof("Wrote %s (%s)", path, humanize.Bytes(uint64(info.Size())))
		}
		return nil
	})
}

func (o *outputSet) wait() ([]string, error) {
	if err := o.g.Wait(); err != nil {
		return nil, err
	}
	return o.paths, nil
}

// writeOutputs writes the mesh and the optional renderings concurrently
func (r *Reconstructor) writeOutputs(ctx context.Context) error {
	p := r.params
	out := newOutputSet(ctx)

	out.add(r.MeshPath(), func(path string) error {
		return stl.SaveMesh(path, r.mesh, p.MeshFormat)
	})

	if p.SaveRender {
		out.add(filepath.Join(p.OutputDir, "render.png"), func(path string) error {
			return visualization.RenderPNG(r.mesh, path, p.Render)
		})
		out.add(filepath.Join(p.OutputDir, "slices.png"), r.SaveViewerImage)
	}

	if p.SaveScene {
		out.add(filepath.Join(p.OutputDir, "scene.html"), func(path string) error {
			return visualization.WriteScene(r.mesh, path, p.Render)
		})
	}

	if p.SaveSlices {
		r.addSliceSequences(out)
	}

	outputs, err := out.wait()
	if err != nil {
		return err
	}
	r.metrics.Outputs = outputs
	return nil
}

// addSliceSequences queues one JPEG sequence per axis under OutputDir/slices
func (r *Reconstructor) addSliceSequences(out *outputSet) {
	viewer := visualization.NewViewer(r.volume)
	for _, axis := range []string{"x", "y", "z"} {
		out.add(filepath.Join(r.params.OutputDir, "slices", axis), func(dir string) error {
			return viewer.SaveSliceSequence(axis, dir)
		})
	}
}

// WriteSlices prepares the volume and writes its slice sequences along
// every axis together with the composed viewer image, without meshing
func (r *Reconstructor) WriteSlices(ctx context.Context) error {
	if err := os.MkdirAll(r.params.OutputDir, 0755); err != nil {
		return errors.Wrapf(err, "creating output directory %s", r.params.OutputDir)
	}
	if err := r.Prepare(ctx); err != nil {
		return err
	}

	return r.stage("slices", func() error {
		out := newOutputSet(ctx)
		out.add(filepath.Join(r.params.OutputDir, "slices.png"), r.SaveViewerImage)
		r.addSliceSequences(out)

		outputs, err := out.wait()
		if err != nil {
			return err
		}
		r.metrics.Outputs = outputs
		return nil
	})
}

// SaveViewerImage writes the three view panels through the middle of the
// volume to path
func (r *Reconstructor) SaveViewerImage(path string) error {
	sv, err := r.SliceViewer()
	if err != nil {
		return err
	}
	limits := sv.Limits()
	mid := visualization.ViewerState{Axial: limits[0] / 2, Coronal: limits[1] / 2, Sagittal: limits[2] / 2}
	_, cmd := visualization.Update(limits, mid, visualization.UserEvent{View: -1})

	img, err := sv.Render(cmd)
	if err != nil {
		return err
	}
	return imaging.Save(img, path)
}

// SliceViewer returns a viewer over the resampled volume
func (r *Reconstructor) SliceViewer() (*visualization.SliceViewer, error) {
	if r.volume == nil {
		return nil, errors.New("volume not prepared")
	}
	return visualization.NewSliceViewer(r.volume, r.params.Viewer)
}

// GetMetrics returns the summary of the last run
func (r *Reconstructor) GetMetrics() Metrics {
	return r.metrics
}

// Volume returns the resampled volume, nil before Prepare
func (r *Reconstructor) Volume() *models.Volume {
	return r.volume
}

// Mesh returns the extracted mesh, nil before Process
func (r *Reconstructor) Mesh() *models.Mesh {
	return r.mesh
}

// Summary formats the run metrics for display
func (m Metrics) Summary() string {
	s := fmt.Sprintf("Slices:            %d (thickness %.3f mm)\n", m.Slices, m.Thickness)
	s += fmt.Sprintf("Calibrated volume: %v voxels at %.3f mm\n", m.RawShape, m.RawSpacing[:])
	s += fmt.Sprintf("Resampled volume:  %v voxels at %.3f mm (%s voxels)\n",
		m.Shape, m.Spacing[:], humanize.Comma(int64(m.Shape[0]*m.Shape[1]*m.Shape[2])))
	s += fmt.Sprintf("Intensity (HU):    min %.0f, max %.0f, mean %.1f, std %.1f\n",
		m.HU.Min, m.HU.Max, m.HU.Mean, m.HU.StdDev)
	if m.Faces > 0 {
		s += fmt.Sprintf("Mesh:              %s vertices, %s faces\n",
			humanize.Comma(int64(m.Vertices)), humanize.Comma(int64(m.Faces)))
	}
	for _, st := range m.Stages {
		s += fmt.Sprintf("  %-10s %s\n", st.Stage, st.Duration.Round(time.Millisecond))
	}
	return s
}
