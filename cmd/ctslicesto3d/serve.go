package main

import (
	"fmt"
	"net/http"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"ctslicesto3d/internal/x"
	"ctslicesto3d/pkg/report"
)

// Serve is the sub-command invoked when running "ctslicesto3d serve".
var Serve x.SubCommand

func init() {
	Serve.Cmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the illustrated report of the workflow",
		Long: `
Serve publishes the report pages, the files of the output directory under
/output/ and the prometheus metrics under /metrics. With --input the slice
viewer of that series is mounted under /viewer/.
`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfile(runServe)
		},
	}
	Serve.EnvPrefix = "CTS3D_SERVE"

	flags := Serve.Cmd.Flags()
	addVolumeFlags(flags)
	flags.String("addr", "", "Address the report listens on (default from config, localhost:8501)")
	flags.String("variant", "", "Report variant shown at / (default from config, final)")
	flags.StringP("output", "o", "", "Directory served under /output/ (default from config, output)")
	flags.Int("cache_mb", 64, "Size of the rendered panel cache in MB")
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Report.Addr = Serve.GetStringP("addr", "", cfg.Report.Addr)
	cfg.Report.Variant = Serve.GetStringP("variant", "", cfg.Report.Variant)
	cfg.Output.Dir = Serve.GetStringP("output", "o", cfg.Output.Dir)
	if err := cfg.Validate(); err != nil {
		return usageError{err: err}
	}

	docs, err := report.LoadAll()
	if err != nil {
		return err
	}
	if _, ok := docs[cfg.Report.Variant]; !ok {
		return usageErrorf("unknown report variant %q, one of %v", cfg.Report.Variant, report.Variants())
	}

	ctx, cancel := signalContext()
	defer cancel()

	printBanner("Report server")

	mux := http.NewServeMux()
	mux.Handle("/", report.NewHandler(docs, cfg.Report.Variant))
	mux.Handle("/output/", http.StripPrefix("/output/", http.FileServer(http.Dir(cfg.Output.Dir))))
	mux.Handle("/metrics", promhttp.Handler())

	if dir := Serve.GetStringP("input", "i", ""); dir != "" {
		if err := applyVolumeFlags(Serve, cfg); err != nil {
			return err
		}
		viewer, closeFn, err := viewerHandler(ctx, Serve, cfg, dir)
		if err != nil {
			return err
		}
		defer closeFn()
		mux.Handle("/viewer/", http.StripPrefix("/viewer", viewer))
		fmt.Printf("Slice viewer at http://%s/viewer/\n", cfg.Report.Addr)
	}

	glog.Infof("Serving report variants %v, output directory %s", report.Variants(), cfg.Output.Dir)
	fmt.Printf("Report listening on http://%s/\n", cfg.Report.Addr)
	return listenAndServe(ctx, cfg.Report.Addr, mux)
}
