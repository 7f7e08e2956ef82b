package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/repoforge/apb/internal/adapter/driven/sqlite"
	"github.com/repoforge/apb/internal/adapter/driving/report"
	"github.com/repoforge/apb/internal/domain/model"
)

func (c *CLI) newReportCmd() *cobra.Command {
	var (
		asHTML bool
		runID  int64
	)

	cmd := &cobra.Command{
		Use:   "report [result-file]",
		Short: "Render a recorded run result as Markdown or HTML",
		Long: `Render a run result as a status page.

The result is read from a JSON file written by "apb run", or from the run
history database when --run is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result *model.RunResult

			switch {
			case runID > 0:
				dbPath := c.dbPath
				if dbPath == "" {
					dbPath = os.Getenv("APB_DB_PATH")
				}
				if dbPath == "" {
					return fmt.Errorf("--run requires a history database (--db or APB_DB_PATH)")
				}

				db, err := sqliteadapter.NewDB(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()

				if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
					return err
				}

				result, err = sqliteadapter.NewRunRepo(db).GetRun(cmd.Context(), runID)
				if err != nil {
					return err
				}

			case len(args) == 1:
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read result file: %w", err)
				}
				result = &model.RunResult{}
				if err := json.Unmarshal(data, result); err != nil {
					return fmt.Errorf("parse result file %s: %w", args[0], err)
				}

			default:
				return fmt.Errorf("either a result file or --run is required")
			}

			out := report.Markdown(*result)
			if asHTML {
				var err error
				out, err = report.HTML(*result)
				if err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asHTML, "html", false, "Render sanitized HTML instead of Markdown")
	cmd.Flags().Int64Var(&runID, "run", 0, "Render a recorded run from the history database by ID")

	return cmd
}
