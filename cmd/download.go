package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfripper/internal/catalog"
	"github.com/lehigh-university-libraries/shelfripper/internal/config"
	"github.com/lehigh-university-libraries/shelfripper/internal/download"
	"github.com/lehigh-university-libraries/shelfripper/internal/models"
	"github.com/lehigh-university-libraries/shelfripper/internal/report"
)

func newDownloadCmd(a *app) *cobra.Command {
	var catalogID string
	var accessCode string
	var selection string
	var outputDir string
	var writeReport bool

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download books from a bookshelf as PDF files",
		Long: `Downloads the selected books page by page and writes one PDF per book.

Books are selected by their number in the listing (see "shelfripper list").
Without --select every book on the shelf is downloaded.`,
		Example: `  # Download books 1 and 3 into ./books
  shelfripper download --catalog abc12 --select "1,3" --output ./books

  # Download everything and write a YAML run report
  shelfripper download --catalog abc12 --report`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := a.credential(catalogID, accessCode)
			if err != nil {
				return err
			}
			cfg := a.cfg.Merge(config.Config{OutputDir: outputDir})

			o, err := a.orchestrator()
			if err != nil {
				return err
			}
			o.Sink = &download.FileSink{Dir: cfg.OutputDir}
			o.Progress = progressPrinter(cmd.ErrOrStderr())

			started := time.Now()
			s, entries, err := o.Open(cmd.Context(), cred)
			if err != nil {
				return runError(err)
			}

			ordinals, err := catalog.ParseSelection(selection, len(entries))
			if err != nil {
				return usageError("%v", err)
			}
			selected, err := catalog.Select(entries, ordinals)
			if err != nil {
				return usageError("%v", err)
			}

			results, runErr := o.Download(cmd.Context(), cred, s, selected)
			printSummary(cmd.OutOrStdout(), results)

			if writeReport {
				path, err := report.New(cred.CatalogID, started, time.Now(), results).Save(cfg.OutputDir)
				if err != nil {
					slog.Error("Failed to save report", "err", err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "\nReport saved to: %s\n", path)
				}
			}

			if runErr != nil {
				return runError(runErr)
			}
			if failed := countFailed(results); failed > 0 {
				return runError(fmt.Errorf("%d of %d books failed", failed, len(results)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogID, "catalog", "", "Bookshelf catalog code")
	cmd.Flags().StringVar(&accessCode, "access-code", "", "Bookshelf access code (default $"+accessCodeEnv+")")
	cmd.Flags().StringVar(&selection, "select", "", `Book numbers to download, e.g. "1,3" (default all)`)
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for PDF files (default from config)")
	cmd.Flags().BoolVar(&writeReport, "report", false, "Write a YAML run report into the output directory")

	return cmd
}

func progressPrinter(w io.Writer) download.ProgressFunc {
	return func(entry models.CatalogEntry, page, total int) {
		fmt.Fprintf(w, "\r%s: page %d/%d", entry.Name, page, total)
		if page == total {
			fmt.Fprintln(w)
		}
	}
}

func printSummary(w io.Writer, results []download.Result) {
	fmt.Fprintln(w, "\n========================================")
	fmt.Fprintln(w, "Download Summary")
	fmt.Fprintln(w, "========================================")
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(w, "FAILED  %s: %v\n", res.Entry.Name, res.Err)
			continue
		}
		fmt.Fprintf(w, "OK      %s (%d pages) -> %s\n", res.Metadata.Name, res.Document.Pages, res.Path)
	}
	fmt.Fprintf(w, "\nBooks downloaded:   %d\n", len(results)-countFailed(results))
	fmt.Fprintf(w, "Books failed:       %d\n", countFailed(results))
}

func countFailed(results []download.Result) int {
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	return failed
}
