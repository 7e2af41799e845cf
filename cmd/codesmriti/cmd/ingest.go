package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kbhalerao/codesmriti/internal/ingest"
	"github.com/kbhalerao/codesmriti/internal/ui"
)

var (
	ingestTenant string
	ingestRepo   string
	ingestPath   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a repository checkout into the index",
	Example: `  codesmriti ingest --tenant acme --repo owner/repo --path /srv/checkouts/owner/repo
  codesmriti ingest --tenant acme --repo owner/repo   # uses the configured checkout dir`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "tenant id (required)")
	ingestCmd.Flags().StringVar(&ingestRepo, "repo", "", "repository id, e.g. owner/repo (required)")
	ingestCmd.Flags().StringVar(&ingestPath, "path", "", "checkout path (defaults to <checkout_dir>/<tenant>/<repo>)")
	_ = ingestCmd.MarkFlagRequired("tenant")
	_ = ingestCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.cleanup()

	root := ingestPath
	if root == "" {
		root = checkoutPath(application.cfg, ingestTenant, ingestRepo)
	}

	// Ctrl-C requests cooperative cancellation; the current file
	// finishes before the job exits.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := ingest.NewProgress()
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("ingesting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				snap := progress.Snapshot()
				bar.Describe(fmt.Sprintf("[%s] %d/%d files %s",
					snap.Stage, snap.ProcessedFiles, snap.TotalFiles, snap.CurrentFile))
				_ = bar.Add(0)
			}
		}
	}()

	result, err := application.pipeline.Run(ctx, ingestTenant, ingestRepo, root, progress)
	close(done)
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	renderer := ui.NewRenderer(os.Stdout)
	if err != nil {
		renderer.Error(err)
		return err
	}

	renderer.Summary(result.Files, result.Chunks, result.Upserted, result.DeletedFiles, result.SkippedFiles)
	return nil
}
