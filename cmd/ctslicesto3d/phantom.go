package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ctslicesto3d/internal/x"
	"ctslicesto3d/pkg/dicomio"
)

// Phantom is the sub-command invoked when running "ctslicesto3d phantom".
var Phantom x.SubCommand

func init() {
	Phantom.Cmd = &cobra.Command{
		Use:   "phantom",
		Short: "Write a synthetic CT series of a tissue sphere in air",
		Long: `
Phantom writes one DICOM file per slice into --output. File names are
shuffled relative to instance numbers so the series exercises the loader's
ordering.
`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPhantom()
		},
	}
	Phantom.EnvPrefix = "CTS3D_PHANTOM"

	def := dicomio.DefaultPhantomOptions()
	flags := Phantom.Cmd.Flags()
	flags.StringP("output", "o", "phantom", "Directory receiving the series")
	flags.Int("rows", def.Rows, "Rows of each slice")
	flags.Int("cols", def.Cols, "Columns of each slice")
	flags.Int("slices", def.Slices, "Number of slices")
	flags.Float64("pixel_spacing", def.PixelSpacing, "In-plane pixel spacing in mm")
	flags.Float64("thickness", def.SliceThickness, "Slice thickness in mm")
	flags.Float64("radius", def.Radius, "Radius of the sphere in mm")
	flags.Int("seed", int(def.Seed), "Seed of the file name shuffle")
}

func runPhantom() error {
	opts := dicomio.DefaultPhantomOptions()
	opts.Rows = Phantom.GetIntP("rows", "", opts.Rows)
	opts.Cols = Phantom.GetIntP("cols", "", opts.Cols)
	opts.Slices = Phantom.GetIntP("slices", "", opts.Slices)
	opts.PixelSpacing = Phantom.GetFloat64P("pixel_spacing", "", opts.PixelSpacing)
	opts.SliceThickness = Phantom.GetFloat64P("thickness", "", opts.SliceThickness)
	opts.Radius = Phantom.GetFloat64P("radius", "", opts.Radius)
	opts.Seed = uint64(Phantom.GetIntP("seed", "", int(opts.Seed)))

	if opts.PixelSpacing <= 0 || opts.SliceThickness <= 0 {
		return usageErrorf("pixel spacing and thickness must be positive")
	}

	dir := Phantom.GetStringP("output", "o", "phantom")
	paths, err := dicomio.WritePhantom(dir, opts)
	if err != nil {
		return usageError{err: err}
	}
	fmt.Printf("Wrote %d slices of %dx%d to %s\n", len(paths), opts.Cols, opts.Rows, dir)
	return nil
}
