package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vod-segment-downloader/internal/config"
	"vod-segment-downloader/internal/pipeline"
)

var downloadFlags struct {
	url     string
	quality string
	title   string
	mode    string
	out     string
	check   bool
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download one recording",
	Long: `Resolves the manifest, selects the variant closest to the requested
quality and downloads every segment into a single .ts file or a folder of
segments.`,
	RunE: runDownload,
}

func init() {
	f := downloadCmd.Flags()
	f.StringVar(&downloadFlags.url, "url", "", "Manifest URL (required)")
	f.StringVar(&downloadFlags.quality, "quality", "", "Normal, HD720 or HD1080 (default from config)")
	f.StringVar(&downloadFlags.title, "title", "", "Title used for the output name")
	f.StringVar(&downloadFlags.mode, "mode", "", "Output mode: file or folder (default from config)")
	f.StringVar(&downloadFlags.out, "out", "", "Output directory (default from config)")
	f.BoolVar(&downloadFlags.check, "check", false, "Only resolve the manifest and list variants")
}

func runDownload(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	if downloadFlags.mode != "" {
		cfg.Output.Mode = strings.ToLower(downloadFlags.mode)
	}
	if downloadFlags.out != "" {
		cfg.Output.Dir = downloadFlags.out
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	qualityName := downloadFlags.quality
	if qualityName == "" {
		qualityName = cfg.Download.DefaultQuality
	}
	quality, err := pipeline.ParseQuality(qualityName)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	d, closeFn, err := buildDownloader(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	req := pipeline.Request{
		ManifestURL: downloadFlags.url,
		Quality:     quality,
		Title:       downloadFlags.title,
	}

	if downloadFlags.check {
		return runCheck(cmd, d, req)
	}

	var result error
	for e := range d.Start(ctx, req) {
		switch e.Type {
		case pipeline.EventProgress:
			fmt.Fprintf(os.Stdout, "\rDownloading: %3d%%", e.Percent)
		case pipeline.EventComplete:
			size := ""
			if e.Artifact != nil {
				size = " (" + humanize.Bytes(uint64(e.Artifact.Bytes)) + ")"
			}
			fmt.Fprintf(os.Stdout, "\nSaved %s%s\n", outputLocation(cfg, e), size)
		case pipeline.EventError:
			fmt.Fprintln(os.Stdout)
			result = e.Err
		}
	}
	return result
}

func outputLocation(cfg *config.Config, e pipeline.Event) string {
	if e.Artifact != nil && e.Artifact.Path != "" {
		return e.Artifact.Path
	}
	return cfg.Output.Dir + string(os.PathSeparator) + e.ArtifactName
}

func runCheck(cmd *cobra.Command, d *pipeline.Downloader, req pipeline.Request) error {
	res, err := d.Check(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Manifest: %s\n", res.Resolution.URL)
	if len(res.Resolution.Attempted) > 1 {
		fmt.Fprintf(out, "Tried %d URL(s) before it answered\n", len(res.Resolution.Attempted))
	}

	if res.Kind == pipeline.PlaylistMedia {
		fmt.Fprintln(out, "Manifest is a media playlist, no variants to choose from")
		return nil
	}

	fmt.Fprintln(out, "Variants:")
	for i, v := range res.Variants {
		marker := " "
		if v.URL == res.Selected.URL && v.Bandwidth == res.Selected.Bandwidth {
			marker = "*"
		}
		dims := v.Resolution
		if dims == "" {
			dims = "-"
		}
		fmt.Fprintf(out, "%s %d. %s @ %s/s - %s\n", marker, i+1, dims, humanize.SI(float64(v.Bandwidth), "b"), v.URL)
	}
	return nil
}
