package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacorycyjin/smart-library-crawler/internal/seed"
)

// newSeedCategoriesCmd creates the 'seed-categories' subcommand, which loads
// the predefined two-level genre tree into the record store.
func newSeedCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-categories",
		Short: "Inserts the predefined category tree",
		Long: `Inserts the two-level genre tree into the record store. Nodes already
present by name keep their identifiers, so re-running is safe.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			seeder := seed.New(appInstance.GetRecords(), appInstance.GetTasks(),
				appInstance.GetIDGenerator(), appInstance.GetLogger())
			created, err := seeder.Categories(cmd.Context())
			if err != nil {
				return fmt.Errorf("seed categories: %w", err)
			}
			appInstance.GetLogger().Info("Category seeding finished.", zap.Int("created", created))
			return nil
		},
	}
}

// newSeedBookTasksCmd creates the 'seed-book-tasks' subcommand, which
// enqueues one discovery task per leaf category.
func newSeedBookTasksCmd() *cobra.Command {
	var targetPerCategory int
	cmd := &cobra.Command{
		Use:   "seed-book-tasks",
		Short: "Enqueues a discovery task per leaf category",
		Long: `Enqueues one book-discovery task for every leaf category in the record
store. Categories that already carry a task are skipped, so re-running never
duplicates work.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			seeder := seed.New(appInstance.GetRecords(), appInstance.GetTasks(),
				appInstance.GetIDGenerator(), appInstance.GetLogger())
			created, err := seeder.BookTasks(cmd.Context(), targetPerCategory)
			if err != nil {
				return fmt.Errorf("seed book tasks: %w", err)
			}
			appInstance.GetLogger().Info("Book task seeding finished.", zap.Int("created", created))
			return nil
		},
	}
	cmd.Flags().IntVar(&targetPerCategory, "target-per-category", 10,
		"number of books each category task should collect")
	return cmd
}

// newSeedFileTasksCmd creates the 'seed-file-tasks' subcommand, which
// enqueues an acquisition task per stored resource.
func newSeedFileTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-file-tasks",
		Short: "Enqueues an e-book acquisition task per stored resource",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			seeder := seed.New(appInstance.GetRecords(), appInstance.GetTasks(),
				appInstance.GetIDGenerator(), appInstance.GetLogger())
			created, err := seeder.FileTasks(cmd.Context())
			if err != nil {
				return fmt.Errorf("seed file tasks: %w", err)
			}
			appInstance.GetLogger().Info("File task seeding finished.", zap.Int("created", created))
			return nil
		},
	}
}
