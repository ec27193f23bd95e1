// Package runner executes groups of domain exports: export, upload, clean
// up, record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	exporterrors "github.com/hussain-magshield/magshield-data-pipeline/internal/errors"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/lookup"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/observability"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/runlog"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/storage"
)

// ErrUnknownGroup is returned for a group that names no domains.
var ErrUnknownGroup = exporterrors.New(exporterrors.ErrCategoryExport, exporterrors.CodeUnknownDomain, "unknown export group")

// SourceFactory returns the CRM source for one domain export, reporting
// fetch outcomes into tally.
type SourceFactory func(tally *observability.FetchTally) lookup.Source

// Options configures a Runner.
type Options struct {
	Exporters []export.Exporter
	Groups    map[string][]string
	Sources   SourceFactory
	Writer    export.Writer
	Uploader  storage.Uploader
	// Tokens, when set, is checked before any export; failure aborts the run.
	Tokens    storage.TokenSource
	RunLog    runlog.Log
	OutputDir string
	// KeepFiles leaves workbooks on disk after a successful upload.
	KeepFiles bool
	Logger    *slog.Logger
}

// Runner runs export groups sequentially, one domain at a time.
type Runner struct {
	opts      Options
	exporters map[string]export.Exporter
	groups    map[string][]string
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a runner. Unknown domain names in Groups are dropped.
func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RunLog == nil {
		opts.RunLog = runlog.Discard{}
	}
	if opts.Groups == nil {
		opts.Groups = DefaultGroups()
	}

	r := &Runner{
		opts:      opts,
		exporters: make(map[string]export.Exporter, len(opts.Exporters)),
		groups:    make(map[string][]string),
		logger:    opts.Logger,
		now:       time.Now,
	}
	for _, e := range opts.Exporters {
		r.exporters[e.Name()] = e
		r.groups[e.Name()] = []string{e.Name()}
	}
	for name, members := range opts.Groups {
		var known []string
		for _, d := range members {
			if _, ok := r.exporters[d]; ok {
				known = append(known, d)
			}
		}
		if len(known) > 0 {
			r.groups[name] = known
		}
	}
	return r
}

// Groups returns the sorted group names.
func (r *Runner) Groups() []string {
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Domains returns the domains of group, nil when unknown.
func (r *Runner) Domains(group string) []string {
	return r.groups[group]
}

// Has reports whether group is runnable.
func (r *Runner) Has(group string) bool {
	return len(r.groups[group]) > 0
}

// Outcome is the result of one domain within a run.
type Outcome struct {
	Domain   string                      `json:"domain"`
	File     string                      `json:"file,omitempty"`
	Rows     int                         `json:"rows"`
	Uploaded bool                        `json:"uploaded"`
	Error    string                      `json:"error,omitempty"`
	Tally    observability.TallySnapshot `json:"tally"`
}

// Report summarizes a run.
type Report struct {
	RunID    string    `json:"run_id"`
	Group    string    `json:"group"`
	Outcomes []Outcome `json:"outcomes"`
}

// Run executes every domain of group in order. Export errors are collected
// and returned joined; an auth failure stops the run at once. Upload
// failures are logged and never fail the run.
func (r *Runner) Run(ctx context.Context, group string) (*Report, error) {
	members := r.groups[group]
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}

	report := &Report{RunID: uuid.New().String(), Group: group}
	logger := r.logger.With("run_id", report.RunID, "group", group)
	logger.Info("export run started", "domains", members)

	if r.opts.Tokens != nil {
		if _, err := r.opts.Tokens.Token(ctx); err != nil {
			logger.Error("token acquisition failed, aborting run", "error", err)
			return report, err
		}
	}

	var errs []error
	for _, name := range members {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		outcome, err := r.runDomain(ctx, report, r.exporters[name], logger.With("domain", name))
		report.Outcomes = append(report.Outcomes, outcome)
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		if exporterrors.GetCategory(err) == exporterrors.ErrCategoryAuth {
			logger.Error("auth failure, aborting run", "error", err)
			break
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Error("export run finished with errors", "error", err)
	} else {
		logger.Info("export run finished")
	}
	return report, err
}

func (r *Runner) runDomain(ctx context.Context, report *Report, exp export.Exporter, logger *slog.Logger) (Outcome, error) {
	started := r.now()
	tally := observability.NewFetchTally()
	outcome := Outcome{Domain: exp.Name(), File: exp.FileName()}

	env := export.Env{
		Writer:    r.opts.Writer,
		OutputDir: r.opts.OutputDir,
		Logger:    logger,
	}
	if r.opts.Sources != nil {
		env.Source = r.opts.Sources(tally)
	}

	result, err := exp.Export(ctx, env)
	switch {
	case err != nil:
		logger.Error("export failed", "error", err)
		outcome.Error = err.Error()
	case result.Absent():
		logger.Warn("file not created, skipping upload")
	default:
		outcome.Rows = result.Rows
		outcome.Uploaded = r.upload(ctx, result, logger)
	}

	outcome.Tally = tally.Snapshot()
	if outcome.Tally.Incomplete() {
		logger.Warn(outcome.Tally.Summary())
	}

	entry := runlog.Entry{
		RunID:      report.RunID,
		Group:      report.Group,
		Domain:     outcome.Domain,
		StartedAt:  started,
		FinishedAt: r.now(),
		Rows:       outcome.Rows,
		File:       outcome.File,
		Uploaded:   outcome.Uploaded,
		Error:      outcome.Error,
		Tally:      outcome.Tally,
	}
	if logErr := r.opts.RunLog.Append(context.WithoutCancel(ctx), entry); logErr != nil {
		logger.Warn("run log append failed", "error", logErr)
	}
	return outcome, err
}

// upload sends the file to every destination and removes it locally when
// that succeeded.
func (r *Runner) upload(ctx context.Context, result *export.Result, logger *slog.Logger) bool {
	if r.opts.Uploader == nil {
		logger.Info("no upload destination, file kept", "path", result.Path)
		return false
	}

	logger.Info("uploading", "path", result.Path)
	if err := r.opts.Uploader.Upload(ctx, result.Path, result.File); err != nil {
		logger.Error("upload failed", "path", result.Path, "error", err)
		return false
	}
	logger.Info("uploaded", "file", result.File)

	if !r.opts.KeepFiles {
		if err := os.Remove(result.Path); err != nil {
			logger.Warn("failed to remove uploaded file", "path", result.Path, "error", err)
		}
	}
	return true
}
