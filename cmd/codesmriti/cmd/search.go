package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbhalerao/codesmriti/internal/search"
	"github.com/kbhalerao/codesmriti/internal/ui"
)

var (
	searchTenant  string
	searchRepo    string
	searchLevel   string
	searchLimit   int
	searchPreview bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search the semantic index",
	Example: `  codesmriti search --tenant acme "subtract two numbers"
  codesmriti search --tenant acme --level symbol --repo owner/repo "parse config"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchTenant, "tenant", "", "tenant id (required)")
	searchCmd.Flags().StringVar(&searchRepo, "repo", "", "restrict to one repository")
	searchCmd.Flags().StringVar(&searchLevel, "level", "", "symbol|file|module|repo|doc (default: classified from the query)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	searchCmd.Flags().BoolVar(&searchPreview, "preview", false, "truncate summaries in output")
	_ = searchCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.cleanup()

	hits, err := application.engine.Search(cmd.Context(), &search.Request{
		TenantID:    searchTenant,
		QueryText:   strings.Join(args, " "),
		Level:       search.Level(searchLevel),
		Limit:       searchLimit,
		RepoFilter:  searchRepo,
		PreviewMode: searchPreview,
	})

	renderer := ui.NewRenderer(os.Stdout)
	if err != nil {
		renderer.Error(err)
		return err
	}

	renderer.Hits(hits)
	if len(hits) == 0 {
		fmt.Fprintln(os.Stderr, "hint: run `codesmriti ingest` first, or broaden the query")
	}
	return nil
}
