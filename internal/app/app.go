// Package app wires configuration into a runnable export service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	httpapi "github.com/hussain-magshield/magshield-data-pipeline/internal/api/http"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/auth"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/config"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/crm"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/domains"
	exporterrors "github.com/hussain-magshield/magshield-data-pipeline/internal/errors"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/lookup"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/mailreport"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/observability"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/runlog"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/runner"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/server"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/sheet"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/storage"
)

// App holds the shared resources of the service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	runs    runlog.Log
	session *auth.Session
	runner  *runner.Runner

	mu       sync.Mutex
	shutdown *server.ShutdownManager
}

// New validates cfg and builds every component. Nothing touches the network
// until a run starts.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}

	runs, err := runlog.Open(cfg.RunLog.Path)
	if err != nil {
		return nil, err
	}
	a.runs = runs

	// Graph credentials are optional when nothing needs them; the first
	// caller then gets the validation error as an auth failure.
	var tokens storage.TokenSource = missingCredentials{cfg.Auth.Validate()}
	if cfg.Auth.Validate() == nil {
		if a.session, err = auth.NewSession(cfg.Auth, nil, logger); err != nil {
			runs.Close()
			return nil, err
		}
		tokens = a.session
	}

	uploader, err := a.uploaders(ctx, tokens)
	if err != nil {
		runs.Close()
		return nil, err
	}

	client := crm.NewClient(crm.ClientConfig{
		BaseURL:     cfg.CRM.BaseURL,
		APIKey:      cfg.CRM.APIKey,
		Timeout:     cfg.CRM.Timeout,
		MaxAttempts: cfg.CRM.MaxAttempts,
	}, crm.WithLogger(logger))
	pagerCfg := crm.PagerConfig{
		PageSize:  cfg.CRM.PageSize,
		Workers:   cfg.CRM.Workers,
		BatchSize: cfg.CRM.BatchSize,
	}

	exporters := append(domains.Exporters(), export.Exporter(mailreport.New(cfg.Mail, tokens, nil)))

	opts := runner.Options{
		Exporters: exporters,
		Sources: func(tally *observability.FetchTally) lookup.Source {
			return crm.NewPager(client, pagerCfg, tally, logger)
		},
		Writer:    sheet.NewXLSXWriter(),
		Uploader:  uploader,
		RunLog:    runs,
		OutputDir: cfg.OutputDir,
		KeepFiles: cfg.KeepFiles,
		Logger:    logger,
	}
	if cfg.HasTarget(config.TargetGraph) {
		opts.Tokens = tokens
	}
	a.runner = runner.New(opts)
	return a, nil
}

// uploaders builds the configured destinations.
func (a *App) uploaders(ctx context.Context, tokens storage.TokenSource) (storage.Uploader, error) {
	var multi storage.Multi
	for _, target := range a.cfg.Upload.Targets {
		switch strings.ToLower(strings.TrimSpace(target)) {
		case config.TargetGraph:
			multi = append(multi, storage.NewGraphDrive(storage.GraphConfig{
				BaseURL:    a.cfg.Upload.GraphURL,
				ShareLinks: a.cfg.Upload.ShareLinks,
				Timeout:    a.cfg.Upload.Timeout,
			}, tokens, nil, a.logger))
		case config.TargetS3:
			s3cfg := a.cfg.Upload.S3
			s3, err := storage.NewS3Storage(ctx, s3cfg.Bucket, storage.S3Config{
				Region:       s3cfg.Region,
				Endpoint:     s3cfg.Endpoint,
				UsePathStyle: s3cfg.UsePathStyle,
				Prefix:       s3cfg.Prefix,
			}, a.logger)
			if err != nil {
				return nil, err
			}
			multi = append(multi, s3)
		case config.TargetLocal:
			local, err := storage.NewLocalStorage(a.cfg.Upload.LocalPath)
			if err != nil {
				return nil, err
			}
			multi = append(multi, local)
		}
	}
	if len(multi) == 1 {
		return multi[0], nil
	}
	return multi, nil
}

// Runner returns the export runner.
func (a *App) Runner() *runner.Runner { return a.runner }

// RunLog returns the run log.
func (a *App) RunLog() runlog.Log { return a.runs }

// Run executes one group and returns its report.
func (a *App) Run(ctx context.Context, group string) (*runner.Report, error) {
	return a.runner.Run(ctx, group)
}

// Serve starts the trigger API and blocks until a signal or ctx ends it.
// In-flight requests and background runs are drained before returning.
func (a *App) Serve(ctx context.Context) error {
	a.mu.Lock()
	if a.shutdown != nil {
		a.mu.Unlock()
		return fmt.Errorf("app is already serving")
	}
	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{Logger: a.logger})
	sm := a.shutdown
	a.mu.Unlock()

	handler := httpapi.NewExportHandler(a.runner, sm, a.runs, a.logger)
	router := httpapi.NewRouter(handler, a.logger, server.ShutdownMiddleware(sm))

	httpServer := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	graceful := server.NewGracefulHTTPServer(httpServer, sm)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("trigger API listening", "addr", a.cfg.HTTP.Addr, "groups", a.runner.Groups())
		errCh <- graceful.ListenAndServe()
	}()

	listenErr := make(chan error, 1)
	go func() { listenErr <- sm.ListenForSignals(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			sm.Shutdown(context.Background(), "server error")
			return fmt.Errorf("http server failed: %w", err)
		}
		return <-listenErr
	case err := <-listenErr:
		return errors.Join(err, <-errCh)
	}
}

// Close releases the run log.
func (a *App) Close() error {
	return a.runs.Close()
}

type missingCredentials struct{ err error }

func (m missingCredentials) Token(ctx context.Context) (string, error) {
	if m.err == nil {
		return "", exporterrors.NewAuthError(exporterrors.CodeMissingCredentials, "graph credentials are not configured", nil)
	}
	return "", m.err
}
