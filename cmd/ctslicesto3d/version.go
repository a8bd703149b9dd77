package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"ctslicesto3d/internal/x"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

// Version is the sub-command invoked when running "ctslicesto3d version".
var Version x.SubCommand

func init() {
	Version.Cmd = &cobra.Command{
		Use:   "version",
		Short: "Prints the ctslicesto3d version details",
		Args:  noArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), buildDetails())
		},
	}
	Version.EnvPrefix = "CTS3D_VERSION"
}

func buildDetails() string {
	details := fmt.Sprintf("ctslicesto3d version: %s\nGo version: %s\n", version, runtime.Version())
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				details += fmt.Sprintf("Commit: %s\n", s.Value)
			}
		}
	}
	return details
}
