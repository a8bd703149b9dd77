package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"ctslicesto3d/internal/x"
	"ctslicesto3d/pkg/config"
	"ctslicesto3d/pkg/reconstruction"
	"ctslicesto3d/pkg/visualization"
)

// View is the sub-command invoked when running "ctslicesto3d view".
var View x.SubCommand

func init() {
	View.Cmd = &cobra.Command{
		Use:   "view",
		Short: "Browse the axial, coronal and sagittal slices of a DICOM series",
		Long: `
View loads, calibrates and resamples the series, then serves a slice viewer
with one slider per view. Every request re-renders all three panels.
`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfile(runView)
		},
	}
	View.EnvPrefix = "CTS3D_VIEW"

	flags := View.Cmd.Flags()
	addVolumeFlags(flags)
	flags.String("addr", "localhost:8502", "Address the viewer listens on")
	flags.String("colormap", "", "Panel colormap, one of gray, bone or hot (default from config, gray)")
	flags.Int("panel_size", 0, "Side of each panel in pixels (default from config, 256)")
	flags.Int("cache_mb", visualization.DefaultCacheBytes>>20, "Size of the rendered panel cache in MB")
}

func runView() error {
	dir, err := inputDir(View)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Viewer.Colormap = View.GetStringP("colormap", "", cfg.Viewer.Colormap)
	cfg.Viewer.PanelSize = View.GetIntP("panel_size", "", cfg.Viewer.PanelSize)
	if err := applyVolumeFlags(View, cfg); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	printBanner("Slice viewer")
	handler, closeFn, err := viewerHandler(ctx, View, cfg, dir)
	if err != nil {
		return err
	}
	defer closeFn()

	addr := View.GetStringP("addr", "", "localhost:8502")
	fmt.Printf("Viewer listening on http://%s/\n", addr)
	return listenAndServe(ctx, addr, handler)
}

// viewerHandler prepares the volume of dir and returns its slice viewer
func viewerHandler(ctx context.Context, sc x.SubCommand, cfg *config.Config, dir string) (http.Handler, func(), error) {
	params, err := reconstruction.ParamsFromConfig(cfg, dir)
	if err != nil {
		return nil, nil, usageError{err: err}
	}

	r := reconstruction.NewReconstructor(params)
	if err := r.Prepare(ctx); err != nil {
		return nil, nil, err
	}
	sv, err := r.SliceViewer()
	if err != nil {
		return nil, nil, err
	}

	cacheBytes := int64(sc.GetIntP("cache_mb", "", int(visualization.DefaultCacheBytes>>20))) << 20
	srv, err := visualization.NewServer(sv, cacheBytes)
	if err != nil {
		return nil, nil, err
	}

	limits := sv.Limits()
	glog.Infof("Viewer ready: %d axial, %d coronal, %d sagittal slices, %s panel cache",
		limits[visualization.Axial], limits[visualization.Coronal], limits[visualization.Sagittal],
		humanize.IBytes(uint64(cacheBytes)))
	return srv, srv.Close, nil
}

// listenAndServe serves handler on addr until ctx is cancelled, then shuts
// the server down gracefully
func listenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "serving on %s", addr)
	case <-ctx.Done():
	}

	glog.Infof("Shutting down server on %s", addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down server")
	}
	return nil
}
