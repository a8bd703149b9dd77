package main

import (
	goflag "flag"
	"fmt"
	"os"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ctslicesto3d/internal/x"
	"ctslicesto3d/pkg/config"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const (
	defaultConf  = "ctslicesto3d.yaml"
	banner       = "================================"
	bannerHeader = "CT SLICES TO 3D: DICOM SERIES TO HOUNSFIELD VOLUME AND ISOSURFACE"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "ctslicesto3d",
	Short: "Turn a CT DICOM series into a calibrated volume and a 3D surface mesh",
	Long: `
ctslicesto3d loads a directory of CT DICOM slices, converts the stored pixel
values into Hounsfield units, resamples the volume to a uniform voxel spacing
and extracts an isosurface as an STL or OBJ mesh. It can also browse the
volume slice by slice and serve a short illustrated report of the workflow.
`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return usageErrorf("unknown command %q for %q", args[0], cmd.CommandPath())
		}
		return cmd.Help()
	},
}

var rootConf = viper.New()

var subcommands = []*x.SubCommand{
	&Mesh, &Slices, &View, &Serve, &Phantom, &Config, &Version,
}

// usageError marks invalid command lines, which exit with exitUsage
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...interface{}) error {
	return usageError{err: errors.Errorf(format, args...)}
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	goflag.CommandLine.Parse([]string{})
	os.Exit(run(os.Args[1:]))
}

// run executes the command line and maps the outcome to an exit code
func run(args []string) int {
	registerOnce.Do(registerSubcommands)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	glog.Flush()

	if err == nil {
		return exitOK
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", RootCmd.Name())
		return exitUsage
	}
	if kind := x.Kind(err); kind != "" {
		glog.Errorf("Run failed with %s error: %+v", kind, err)
	}
	return exitFailure
}

func init() {
	RootCmd.PersistentFlags().String("config", "",
		"YAML configuration file. Values set with environment variables and flags take precedence.")
	RootCmd.PersistentFlags().String("profile_mode", "",
		"Enable profiling mode, one of [cpu, mem]")
	RootCmd.PersistentFlags().String("profile_dir", ".",
		"Directory receiving the profile written by --profile_mode")
	x.Check(rootConf.BindPFlags(RootCmd.PersistentFlags()))

	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	// Always log to stderr as well
	x.Check(flag.Set("stderrthreshold", "0"))
	x.Check(flag.CommandLine.MarkDeprecated("stderrthreshold",
		"ctslicesto3d always sets this flag to 0. It can't be overwritten."))

	RootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err: err}
	})
}

var registerOnce sync.Once

// registerSubcommands attaches the subcommands to the root. Their init
// functions live in files initialised after this one, so it runs on first
// use rather than from init.
func registerSubcommands() {
	for _, sc := range subcommands {
		RootCmd.AddCommand(sc.Cmd)
		sc.Conf = viper.New()
		x.Check(sc.Conf.BindPFlags(sc.Cmd.Flags()))
		x.Check(sc.Conf.BindPFlags(RootCmd.PersistentFlags()))
		sc.Conf.AutomaticEnv()
		sc.Conf.SetEnvPrefix(sc.EnvPrefix)
	}
}

// loadConfig reads the configuration file named by --config. An unset flag
// falls back to ctslicesto3d.yaml in the working directory, which may be
// missing.
func loadConfig() (*config.Config, error) {
	path := rootConf.GetString("config")
	explicit := path != ""
	if !explicit {
		path = defaultConf
	}
	if explicit {
		if _, err := os.Stat(path); err != nil {
			return nil, usageErrorf("config file %s: %v", path, err)
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, usageError{err: err}
	}
	return cfg, nil
}

// withProfile runs fn under the profiler selected by --profile_mode
func withProfile(fn func() error) error {
	p, err := x.StartProfile(rootConf, rootConf.GetString("profile_dir"))
	if err != nil {
		return usageError{err: err}
	}
	defer p.Stop()
	return fn()
}

func printBanner(title string) {
	fmt.Println(banner)
	fmt.Println(bannerHeader)
	if title != "" {
		fmt.Println(title)
	}
	fmt.Println(banner)
}
