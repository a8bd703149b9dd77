package main

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"ctslicesto3d/internal/x"
	"ctslicesto3d/pkg/config"
	"ctslicesto3d/pkg/reconstruction"
)

// Mesh is the sub-command invoked when running "ctslicesto3d mesh".
var Mesh x.SubCommand

func init() {
	Mesh.Cmd = &cobra.Command{
		Use:   "mesh",
		Short: "Extract an isosurface mesh from a DICOM series",
		Long: `
Mesh runs the full pipeline: load the series, calibrate it to Hounsfield
units, resample it, extract the isosurface at --threshold and write the mesh
together with the optional render, interactive scene and slice images.
`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfile(runMesh)
		},
	}
	Mesh.EnvPrefix = "CTS3D_MESH"

	flags := Mesh.Cmd.Flags()
	addVolumeFlags(flags)
	flags.StringP("output", "o", "", "Output directory (default from config, output)")
	flags.Float64("threshold", 0, "Isosurface level in HU (default from config, -300)")
	flags.Int("step", 0, "Voxel sampling step of the extractor (default from config, 1)")
	flags.String("format", "", "Mesh file format, stl or obj (default from config, stl)")
	flags.Bool("compress", false, "Gzip the mesh file")
	flags.Bool("allow_degenerate", true, "Keep zero-area triangles")
	flags.Bool("save_slices", false, "Save every slice of the resampled volume along each axis")
	flags.Bool("save_render", true, "Save a PNG render of the mesh and of the slice viewer")
	flags.Bool("save_scene", true, "Save an interactive HTML scene of the mesh")
	flags.Bool("summary", true, "Print the run summary")
}

func runMesh() error {
	dir, err := inputDir(Mesh)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyMeshFlags(cfg); err != nil {
		return err
	}

	params, err := reconstruction.ParamsFromConfig(cfg, dir)
	if err != nil {
		return usageError{err: err}
	}

	printBanner("Isosurface extraction")
	fmt.Printf("Input:     %s\n", params.InputDir)
	fmt.Printf("Output:    %s\n", params.OutputDir)
	fmt.Printf("Threshold: %g HU, step %d\n", params.Extract.Threshold, params.Extract.StepSize)

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	r := reconstruction.NewReconstructor(params)
	if err := r.Process(ctx); err != nil {
		return err
	}
	glog.Infof("Pipeline finished in %s", time.Since(start))

	fmt.Printf("\nReconstruction completed successfully in %.2f seconds!\n", time.Since(start).Seconds())
	fmt.Printf("Mesh saved to: %s\n", r.MeshPath())

	if cfg.Output.Verbose {
		m := r.GetMetrics()
		fmt.Printf("\n%s", m.Summary())
		fmt.Println("\nOutputs:")
		for _, o := range m.Outputs {
			fmt.Printf("- %s\n", o)
		}
	}
	return nil
}

func applyMeshFlags(cfg *config.Config) error {
	cfg.Output.Dir = Mesh.GetStringP("output", "o", cfg.Output.Dir)
	cfg.Output.Format = Mesh.GetStringP("format", "", cfg.Output.Format)
	cfg.Output.Compress = Mesh.GetBoolP("compress", "", cfg.Output.Compress)
	cfg.Output.SaveSlices = Mesh.GetBoolP("save_slices", "", cfg.Output.SaveSlices)
	cfg.Output.SaveRender = Mesh.GetBoolP("save_render", "", cfg.Output.SaveRender)
	cfg.Output.SaveScene = Mesh.GetBoolP("save_scene", "", cfg.Output.SaveScene)
	cfg.Output.Verbose = Mesh.GetBoolP("summary", "", cfg.Output.Verbose)
	cfg.Mesh.Threshold = Mesh.GetFloat64P("threshold", "", cfg.Mesh.Threshold)
	cfg.Mesh.StepSize = Mesh.GetIntP("step", "", cfg.Mesh.StepSize)
	cfg.Mesh.AllowDegenerate = Mesh.GetBoolP("allow_degenerate", "", cfg.Mesh.AllowDegenerate)
	return applyVolumeFlags(Mesh, cfg)
}

// noArgs rejects positional arguments as a usage error
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError{err: err}
	}
	return nil
}
