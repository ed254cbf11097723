// Command lodestar runs a container delivery pipeline: validate the change,
// publish the image, and propagate the pinned reference into the GitOps
// manifest repository.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/lodestar-cd/lodestar/internal/config"
	"github.com/lodestar-cd/lodestar/internal/gitops"
	"github.com/lodestar-cd/lodestar/internal/history"
	"github.com/lodestar-cd/lodestar/internal/logging"
	"github.com/lodestar-cd/lodestar/internal/metrics"
	"github.com/lodestar-cd/lodestar/internal/pipeline"
	"github.com/lodestar-cd/lodestar/internal/progress"
	"github.com/lodestar-cd/lodestar/internal/reports"
	"github.com/lodestar-cd/lodestar/internal/secrets"
	"github.com/lodestar-cd/lodestar/internal/stages"
)

var version = "dev"

var logLevelIDs = map[logging.Level][]string{
	logging.LevelError: {"error"},
	logging.LevelWarn:  {"warn"},
	logging.LevelInfo:  {"info"},
	logging.LevelDebug: {"debug"},
}

func main() {
	var (
		configFile string
		logLevel   = logging.LevelInfo
	)

	root := &cobra.Command{
		Use:           "lodestar",
		Short:         "Container delivery pipeline with GitOps manifest synchronization",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "lodestar.yml", "path to the configuration file")
	root.PersistentFlags().Var(
		enumflag.New(&logLevel, "level", logLevelIDs, enumflag.EnumCaseInsensitive),
		"log-level", "log level: debug, info, warn, error")

	root.AddCommand(runCommand(&configFile, &logLevel))
	root.AddCommand(historyCommand(&configFile, &logLevel))
	root.AddCommand(versionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runCommand(configFile *string, logLevel *logging.Level) *cobra.Command {
	var (
		commitHash  string
		branch      string
		buildNumber int
		noProgress  bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run for a source change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := config.ParseFile(*configFile)
			if err != nil {
				return err
			}

			log := logging.NewLogger(logging.Config{Level: *logLevel})

			run, err := pipeline.NewContext(commitHash, branch, buildNumber,
				root.Registry.Namespace, root.Registry.Image, root.Pipeline.Release())
			if err != nil {
				return err
			}

			var store reports.Storage
			if root.Reports != nil {
				if store, err = reports.New(cmd.Context(), *root.Reports); err != nil {
					return err
				}
			}

			var syncer *gitops.Syncer
			if root.Manifests != nil {
				clonePath := filepath.Join(os.TempDir(), "lodestar-"+root.Pipeline.Name)
				syncer = gitops.New(clonePath, *root.Manifests, log.WithComponent("gitops"))
			}

			plan := stages.Plan(root, log, store, syncer)

			bar := progress.Disabled()
			if !noProgress {
				bar = progress.New(len(plan), root.Pipeline.Name)
			}

			outcome := pipeline.New(secrets.NewConfigProvider(root.Secrets), log).
				WithStages(plan).
				WithTimeout(root.Pipeline.Timeout()).
				WithProgress(bar).
				Run(cmd.Context(), run)

			if err := outcome.WriteSummary(os.Stdout); err != nil {
				return err
			}

			if root.History != nil {
				if err := record(cmd, root, outcome, log); err != nil {
					log.Warnf("failed to record run history: %v", err)
				}
			}

			if metricsFile != "" {
				if err := dumpMetrics(metricsFile); err != nil {
					log.Warnf("failed to write metrics: %v", err)
				}
			}

			if failed, ok := outcome.FailedStage(); ok {
				return fmt.Errorf("pipeline failed at stage %q", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&commitHash, "commit", "", "short commit hash (8 hex characters)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch the change was made on")
	cmd.Flags().IntVar(&buildNumber, "build-number", 0, "monotonic build number from the invoking system")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file at the end of the run")

	for _, flag := range []string{"commit", "branch", "build-number"} {
		_ = cmd.MarkFlagRequired(flag)
	}

	return cmd
}

func record(cmd *cobra.Command, root *config.Root, outcome *pipeline.Outcome, log *logging.Logger) error {
	store, err := history.Open(root.History.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	run := history.Run{
		Pipeline:    root.Pipeline.Name,
		CommitHash:  outcome.Context.CommitHash,
		Branch:      outcome.Context.Branch,
		BuildNumber: outcome.Context.BuildNumber,
		ImageRef:    outcome.Context.ImageRef(),
		Status:      "succeeded",
		CreatedAt:   time.Now().UTC(),
	}
	if failed, ok := outcome.FailedStage(); ok {
		run.Status = "failed"
		run.FailedStage = failed
	}

	for _, r := range outcome.Results {
		detail := r.Output
		if r.Err != nil {
			detail = r.Err.Error()
		}
		run.Stages = append(run.Stages, history.StageRecord{
			Name:     r.Stage,
			Status:   r.Status.String(),
			Duration: r.Duration,
			Detail:   detail,
		})
	}

	_, err = store.Record(cmd.Context(), run)
	return err
}

func historyCommand(configFile *string, logLevel *logging.Level) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := config.ParseFile(*configFile)
			if err != nil {
				return err
			}
			if root.History == nil {
				return fmt.Errorf("no history store configured")
			}

			log := logging.NewLogger(logging.Config{Level: *logLevel})
			store, err := history.Open(root.History.Path, log)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			return history.WriteTable(os.Stdout, runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lodestar version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(version)
		},
	}
}

func dumpMetrics(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := metrics.WriteTo(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
