package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	clocksystem "github.com/jacorycyjin/smart-library-crawler/internal/clock/system"
	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// runClock times crawl runs for the completion log line.
var runClock harvest.Clock = clocksystem.New()

// newRunBookCrawlCmd creates the 'run-book-crawl' subcommand, which drains
// the category-book discovery queue.
func newRunBookCrawlCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "run-book-crawl",
		Short: "Processes pending book discovery tasks",
		Long: `Claims pending book-discovery tasks and harvests books from the
category listings until each task reaches its target. Tasks interrupted by an
anti-automation challenge are re-queued for a later run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			o := harvest.NewBookOrchestrator(
				appInstance.GetTasks(),
				appInstance.GetRecords(),
				appInstance.GetAssets(),
				appInstance.GetBookSource(),
				appInstance.GetFetcher(),
				appInstance.GetIDGenerator(),
				appInstance.GetBuckets(),
				appInstance.GetLogger(),
			)
			start := runClock.Now()
			sum, err := o.Run(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("run book crawl: %w", err)
			}
			logSummary(appInstance.GetLogger(), "Book crawl finished.", sum, runClock.Now().Sub(start))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum tasks to claim (0 = all pending)")
	return cmd
}

// newRunAuthorEnrichmentCmd creates the 'run-author-enrichment' subcommand,
// which drains the author detail queue.
func newRunAuthorEnrichmentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "run-author-enrichment",
		Short: "Processes pending author enrichment tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			o := harvest.NewAuthorOrchestrator(
				appInstance.GetTasks(),
				appInstance.GetRecords(),
				appInstance.GetAssets(),
				appInstance.GetAuthorSource(),
				appInstance.GetFetcher(),
				appInstance.GetIDGenerator(),
				appInstance.GetBuckets(),
				appInstance.GetLogger(),
			)
			start := runClock.Now()
			sum, err := o.Run(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("run author enrichment: %w", err)
			}
			logSummary(appInstance.GetLogger(), "Author enrichment finished.", sum, runClock.Now().Sub(start))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum tasks to claim (0 = all pending)")
	return cmd
}

// newRunFileAcquisitionCmd creates the 'run-file-acquisition' subcommand,
// which drains the e-book file queue.
func newRunFileAcquisitionCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "run-file-acquisition",
		Short: "Processes pending e-book acquisition tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			o := harvest.NewFileOrchestrator(
				appInstance.GetTasks(),
				appInstance.GetRecords(),
				appInstance.GetAssets(),
				appInstance.GetEbookSource(),
				appInstance.GetIDGenerator(),
				appInstance.GetBuckets(),
				appInstance.GetLogger(),
			)
			start := runClock.Now()
			sum, err := o.Run(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("run file acquisition: %w", err)
			}
			logSummary(appInstance.GetLogger(), "File acquisition finished.", sum, runClock.Now().Sub(start))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum tasks to claim (0 = all pending)")
	return cmd
}

func logSummary(log *zap.Logger, msg string, sum harvest.Summary, elapsed time.Duration) {
	log.Info(msg,
		zap.Int("processed", sum.Processed),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", elapsed),
	)
}
