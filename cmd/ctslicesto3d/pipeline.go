package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cast"
	flag "github.com/spf13/pflag"

	"ctslicesto3d/internal/x"
	"ctslicesto3d/pkg/config"
)

// addVolumeFlags registers the flags shared by every command that builds a
// volume from a DICOM series
func addVolumeFlags(flags *flag.FlagSet) {
	flags.StringP("input", "i", "", "Directory containing the DICOM slices of one scan")
	flags.String("extension", "", "Extension of the slice files (default from config, .dcm)")
	flags.Int("workers", 0, "Number of slices decoded concurrently (default from config, all CPUs)")
	flags.Int("sentinel", 0, "Stored value marking pixels outside the field of view (default from config, -2000)")
	flags.String("spacing", "", `Target voxel spacing in mm, "z,y,x" or one value for all axes (default from config, 1)`)
	flags.String("method", "", "Resampling interpolation, cubic or linear (default from config, cubic)")
}

// applyVolumeFlags overrides cfg with the volume flags and environment
// variables set for sc
func applyVolumeFlags(sc x.SubCommand, cfg *config.Config) error {
	cfg.Loader.Extension = sc.GetStringP("extension", "", cfg.Loader.Extension)
	cfg.Loader.Workers = sc.GetIntP("workers", "", cfg.Loader.Workers)
	cfg.Normalize.Sentinel = sc.GetIntP("sentinel", "", cfg.Normalize.Sentinel)
	cfg.Resample.Method = sc.GetStringP("method", "", cfg.Resample.Method)

	if s := sc.GetStringP("spacing", "", ""); s != "" {
		spacing, err := parseSpacing(s)
		if err != nil {
			return usageError{err: err}
		}
		cfg.Resample.Spacing = spacing
	}

	if err := cfg.Validate(); err != nil {
		return usageError{err: err}
	}
	return nil
}

// inputDir returns the required --input directory
func inputDir(sc x.SubCommand) (string, error) {
	dir := sc.GetStringP("input", "i", "")
	if dir == "" {
		return "", usageErrorf("--input is required")
	}
	return dir, nil
}

// parseSpacing reads "z,y,x" or a single value applied to every axis
func parseSpacing(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 1 && len(parts) != 3 {
		return nil, usageErrorf("spacing %q must have 1 or 3 values", s)
	}

	spacing := make([]float64, 0, 3)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, usageErrorf("spacing %q has an empty value", s)
		}
		v, err := cast.ToFloat64E(p)
		if err != nil {
			return nil, usageErrorf("spacing %q: %v", s, err)
		}
		spacing = append(spacing, v)
	}
	if len(spacing) == 1 {
		spacing = append(spacing, spacing[0], spacing[0])
	}
	return spacing, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
