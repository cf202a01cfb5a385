package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vod-segment-downloader/internal/intake"
	"vod-segment-downloader/internal/ops"
	"vod-segment-downloader/internal/pipeline"
)

var watchDir string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process request files dropped into a directory",
	Long: `Watches the intake directory for *.yaml, *.yml and *.json request files
and downloads them one at a time. Finished files move to done/ or failed/.
When ops.listen is set, /healthz and /metrics are served on that address.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "Intake directory (default from config)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if watchDir != "" {
		cfg.Intake.Dir = watchDir
	}
	if cfg.Intake.Dir == "" {
		cfg.Intake.Dir = "requests"
	}

	quality, err := pipeline.ParseQuality(cfg.Download.DefaultQuality)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	d, closeFn, err := buildDownloader(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	w := intake.NewWatcher(cfg.Intake.Dir, d, intake.Options{DefaultQuality: quality}, log.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})

	if cfg.Ops.Listen != "" {
		srv := ops.NewServer(cfg.Ops.Listen, func() ops.Status {
			st := w.Stats()
			return ops.Status{
				Healthy:   true,
				Processed: st.Processed,
				Failed:    st.Failed,
				Active:    st.Active,
				LastError: st.LastError,
			}
		}, log.Logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	return g.Wait()
}
