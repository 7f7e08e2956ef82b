package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/repoforge/apb/internal/adapter/driven/sqlite"
)

func (c *CLI) newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbPath := c.dbPath
			if dbPath == "" {
				dbPath = os.Getenv("APB_DB_PATH")
			}
			if dbPath == "" {
				return fmt.Errorf("history requires a database path (--db or APB_DB_PATH)")
			}

			db, err := sqliteadapter.NewDB(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
				return err
			}

			runs, err := sqliteadapter.NewRunRepo(db).ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded runs")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRAN AT\tQUERY\tWORKFLOW\tEXAMINED\tDISPATCHED")
			for _, r := range runs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
					r.ID, r.RanAt.Format("2006-01-02 15:04"), r.Query, r.WorkflowID, r.Examined, r.Dispatched)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")

	return cmd
}
