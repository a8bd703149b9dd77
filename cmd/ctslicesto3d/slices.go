package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ctslicesto3d/internal/x"
	"ctslicesto3d/pkg/reconstruction"
)

// Slices is the sub-command invoked when running "ctslicesto3d slices".
var Slices x.SubCommand

func init() {
	Slices.Cmd = &cobra.Command{
		Use:   "slices",
		Short: "Export the slices of the resampled volume as images",
		Long: `
Slices loads, calibrates and resamples the series, then writes every slice
along x, y and z as JPEG files under <output>/slices and the three views
through the middle of the volume as slices.png.
`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfile(runSlices)
		},
	}
	Slices.EnvPrefix = "CTS3D_SLICES"

	flags := Slices.Cmd.Flags()
	addVolumeFlags(flags)
	flags.StringP("output", "o", "", "Output directory (default from config, output)")
	flags.String("colormap", "", "Colormap of slices.png, one of gray, bone or hot (default from config, gray)")
}

func runSlices() error {
	dir, err := inputDir(Slices)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Output.Dir = Slices.GetStringP("output", "o", cfg.Output.Dir)
	cfg.Viewer.Colormap = Slices.GetStringP("colormap", "", cfg.Viewer.Colormap)
	if err := applyVolumeFlags(Slices, cfg); err != nil {
		return err
	}

	params, err := reconstruction.ParamsFromConfig(cfg, dir)
	if err != nil {
		return usageError{err: err}
	}

	printBanner("Slice export")
	ctx, cancel := signalContext()
	defer cancel()

	r := reconstruction.NewReconstructor(params)
	if err := r.WriteSlices(ctx); err != nil {
		return err
	}

	m := r.GetMetrics()
	fmt.Printf("Saved %d x %d x %d slices (x, y, z) to %s\n",
		m.Shape[2], m.Shape[1], m.Shape[0], params.OutputDir)
	if cfg.Output.Verbose {
		fmt.Printf("\n%s", m.Summary())
	}
	return nil
}
