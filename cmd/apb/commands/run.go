package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	githubadapter "github.com/repoforge/apb/internal/adapter/driven/github"
	sqliteadapter "github.com/repoforge/apb/internal/adapter/driven/sqlite"
	"github.com/repoforge/apb/internal/application"
	"github.com/repoforge/apb/internal/config"
	"github.com/repoforge/apb/internal/domain/model"
)

func (c *CLI) newRunCmd() *cobra.Command {
	var (
		token            string
		query            string
		workflowID       string
		eventType        string
		buildAge         string
		maxRebuilds      int
		outFile          string
		includeNonPublic bool
		maskNonPublic    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Query repositories and dispatch rebuild events to stale ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			// CLI flags take priority over environment variables.
			flags := cmd.Flags()
			if flags.Changed("token") {
				cfg.AccessToken = token
			}
			if flags.Changed("query") {
				cfg.RepoQuery = query
			}
			if flags.Changed("workflow") {
				cfg.WorkflowID = workflowID
			}
			if flags.Changed("event-type") {
				cfg.EventType = eventType
			}
			if flags.Changed("build-age") {
				cfg.BuildAgeRaw = buildAge
			}
			if flags.Changed("max-rebuilds") {
				cfg.MaxRebuilds = maxRebuilds
			}
			if flags.Changed("out") {
				cfg.WriteFilename = outFile
			}
			if flags.Changed("include-non-public") {
				cfg.IncludeNonPublic = includeNonPublic
			}
			if flags.Changed("mask-non-public") {
				cfg.MaskNonPublic = maskNonPublic
			}
			if cmd.Root().PersistentFlags().Changed("db") {
				cfg.DBPath = c.dbPath
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			slog.Info("config loaded",
				"query", cfg.RepoQuery,
				"workflow", cfg.WorkflowID,
				"event_type", cfg.EventType,
				"build_age", cfg.BuildAge,
				"max_rebuilds", cfg.MaxRebuilds,
			)

			svc := application.NewDispatchService(githubadapter.NewClient(cfg.AccessToken))

			result, err := svc.Run(cmd.Context(), application.Params{
				Query:            cfg.RepoQuery,
				WorkflowID:       cfg.WorkflowID,
				EventType:        cfg.EventType,
				BuildAge:         cfg.BuildAge,
				BuildAgeRaw:      cfg.BuildAgeRaw,
				MaxRebuilds:      cfg.MaxRebuilds,
				IncludeNonPublic: cfg.IncludeNonPublic,
				MaskNonPublic:    cfg.MaskNonPublic,
			})
			if err != nil {
				return err
			}

			if err := writeResult(cfg.WriteFilename, result); err != nil {
				return err
			}
			slog.Info("status file written", "path", cfg.WriteFilename)

			if cfg.DBPath != "" {
				if err := recordRun(cmd, cfg.DBPath, result); err != nil {
					// History is an audit convenience; a recording failure
					// does not fail a run that already dispatched events.
					slog.Error("recording run history failed", "error", err)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "GitHub access token (overrides APB_ACCESS_TOKEN)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Repository search query (overrides APB_REPO_QUERY)")
	cmd.Flags().StringVar(&workflowID, "workflow", "build.yml", "Workflow file to monitor")
	cmd.Flags().StringVar(&eventType, "event-type", "apb", "Repository dispatch event type to send")
	cmd.Flags().StringVar(&buildAge, "build-age", "7d", "Rebuild repositories whose last build is older than this")
	cmd.Flags().IntVar(&maxRebuilds, "max-rebuilds", 10, "Maximum rebuild events per run (0 = unlimited)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "apb.json", "Path for the JSON run result")
	cmd.Flags().BoolVar(&includeNonPublic, "include-non-public", false, "Evaluate non-public repositories too")
	cmd.Flags().BoolVar(&maskNonPublic, "mask-non-public", true, "Redact non-public repository names in log output")

	return cmd
}

// writeResult writes the run result JSON the way the status file consumers
// expect it: indented, trailing newline.
func writeResult(path string, result *model.RunResult) error {
	data, err := json.MarshalIndent(result, "", "    ")
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run result: %w", err)
	}

	return nil
}

// recordRun appends the run to the SQLite history store.
func recordRun(cmd *cobra.Command, dbPath string, result *model.RunResult) error {
	db, err := sqliteadapter.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}

	runID, err := sqliteadapter.NewRunRepo(db).SaveRun(cmd.Context(), *result)
	if err != nil {
		return err
	}

	slog.Info("run recorded", "run_id", runID, "db_path", dbPath)
	return nil
}
