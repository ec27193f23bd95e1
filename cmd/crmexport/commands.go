package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/app"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/config"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/runlog"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/runner"
)

type globalFlags struct {
	configFile string
	dataDir    string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "crmexport",
		Short: "Export Insightly CRM data to spreadsheets",
		Long: `crmexport pulls Insightly collections, joins them into flat
spreadsheets and uploads the files to the configured destinations.

Examples:
  crmexport run final            Export quotes and organisations
  crmexport run all --keep       Export every domain, keep local files
  crmexport serve                Serve export triggers over HTTP
  crmexport runs --limit 20      Show recent domain runs`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (default is ./"+config.DefaultFile+" when present)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "base directory for temp files, local uploads and the run log")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: json or text")

	root.AddCommand(
		newServeCmd(flags),
		newRunCmd(flags),
		newRunsCmd(flags),
		newGroupsCmd(),
		newVersionCmd(),
	)
	return root
}

// load resolves configuration: defaults, file, environment, then flags.
func (f *globalFlags) load() (*config.Config, error) {
	cfg := config.DefaultConfig()
	path := f.configFile
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	cfg.Resolve()
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func (f *globalFlags) open(ctx context.Context, adjust ...func(*config.Config)) (*app.App, *slog.Logger, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	for _, fn := range adjust {
		fn(cfg)
	}
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create application: %w", err)
	}
	return a, logger, nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve export triggers over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logger, err := flags.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Info("crmexport starting", "version", version, "commit", commit)
			return a.Serve(cmd.Context())
		},
	}
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		keep    bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "run <group>",
		Short: "Run one export group and upload the results",
		Long: `Run one export group: final, final2, final3, final4, users, all,
or the name of a single domain such as quote or opp-stage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, _, err := flags.open(ctx, func(cfg *config.Config) {
				if keep {
					cfg.KeepFiles = true
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			report, runErr := a.Run(ctx, args[0])
			if report != nil {
				if jsonOut {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if err := enc.Encode(report); err != nil {
						return err
					}
				} else {
					printReport(cmd.OutOrStdout(), report.RunID, report.Outcomes)
				}
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep local files after upload")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the run report as JSON")
	return cmd
}

func newRunsCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent domain runs from the run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			log, err := runlog.Open(cfg.RunLog.Path)
			if err != nil {
				return err
			}
			defer log.Close()

			entries, err := log.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func newGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the named export groups",
		Long: `List the named export groups. Every domain can also be run on its
own by name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groups := runner.DefaultGroups()
			names := make([]string, 0, len(groups))
			for g := range groups {
				names = append(names, g)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "GROUP\tDOMAINS")
			for _, g := range names {
				fmt.Fprintf(w, "%s\t%s\n", g, strings.Join(groups[g], ", "))
			}
			return w.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "crmexport version %s (commit: %s)\n", version, commit)
		},
	}
}

func printReport(w io.Writer, runID string, outcomes []runner.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s\n", runID)
	fmt.Fprintln(tw, "DOMAIN\tROWS\tUPLOADED\tFILE\tNOTES")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n", o.Domain, o.Rows, o.Uploaded, dash(o.File), notes(o.Error, o.Tally.Incomplete(), o.Tally.Summary()))
	}
	tw.Flush()
}

func printEntries(w io.Writer, entries []runlog.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tGROUP\tDOMAIN\tROWS\tUPLOADED\tDURATION\tNOTES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime), e.Group, e.Domain, e.Rows, e.Uploaded,
			e.FinishedAt.Sub(e.StartedAt).Round(time.Second), notes(e.Error, e.Tally.Incomplete(), e.Tally.Summary()))
	}
	tw.Flush()
}

func notes(errText string, incomplete bool, summary string) string {
	switch {
	case errText != "":
		return errText
	case incomplete:
		return summary
	default:
		return "-"
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
