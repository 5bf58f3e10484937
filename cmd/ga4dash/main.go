// Package main is the entry point for the GA4 Dashboard.
// It runs the terminal dashboard by default, or the JSON API with "serve".
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/ga4-dashboard-tui/internal/app"
	"github.com/j-veylop/ga4-dashboard-tui/internal/config"
	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/server"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/tabs/dashboard"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/tabs/history"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/tabs/info"
	"github.com/j-veylop/ga4-dashboard-tui/internal/version"
)

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "-v", "--version":
			fmt.Println(version.Info())
			os.Exit(0)
		case "-h", "--help":
			printUsage()
			os.Exit(0)
		}
	}

	var err error
	switch {
	case len(args) > 0 && args[0] == "serve":
		err = runServe()
	case len(args) > 0 && args[0] == "json":
		err = runJSON(args[1:])
	case len(args) > 0:
		printUsage()
		err = fmt.Errorf("unknown command %q", args[0])
	default:
		err = runTUI()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration, points the logger at logTo and builds the
// service manager.
func setup(logTo func(cfg *config.Config) (io.Writer, error)) (*config.Config, *services.Manager, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	w, err := logTo(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	closeLog := func() {
		if f, ok := w.(*os.File); ok && f != os.Stderr {
			_ = f.Close()
		}
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat, w); err != nil {
		closeLog()
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	mgr, err := services.NewManager(cfg)
	if err != nil {
		closeLog()
		return nil, nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	cleanup := func() {
		if closeErr := mgr.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
		}
		closeLog()
	}
	return cfg, mgr, cleanup, nil
}

// logToFile keeps log output off the terminal the TUI draws on.
func logToFile(cfg *config.Config) (io.Writer, error) {
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func logToStderr(*config.Config) (io.Writer, error) {
	return os.Stderr, nil
}

// runTUI runs the terminal dashboard until the user quits.
func runTUI() error {
	cfg, mgr, cleanup, err := setup(logToFile)
	if err != nil {
		return err
	}
	defer cleanup()

	mgr.StartAutoRefresh(cfg.RefreshInterval)

	model := app.NewModel(mgr)

	// Tabs share the application state; the app loads it.
	state := model.GetState()
	model.SetTabs([]app.Tab{
		dashboard.New(state),
		history.New(state),
		info.New(state, cfg),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	go func() {
		<-sigChan
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// runServe serves the JSON API and refreshes the overview in the background.
func runServe() error {
	cfg, mgr, cleanup, err := setup(logToStderr)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := server.NewRouter(server.Deps{
		Service: mgr,
		Metrics: mgr.Metrics().Handler(),
		Checks: map[string]server.HealthChecker{
			"database": mgr.Database(),
			"cache":    mgr.Cache(),
		},
		DefaultDays: cfg.DateRangeDays,
	})

	mgr.StartAutoRefresh(cfg.RefreshInterval)

	logger.Info("serving GA4 API", "addr", cfg.HTTPAddr, "property", cfg.PropertyID, "version", version.GetVersion())
	if err := server.New(cfg.HTTPAddr, router).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// runJSON fetches one overview and writes it as JSON.
func runJSON(args []string) error {
	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	days := fs.Int("days", 0, "number of days ending yesterday (default GA4_DATE_RANGE_DAYS)")
	output := fs.String("output", "", "write to this file instead of stdout")
	timeout := fs.Duration("timeout", 5*time.Minute, "give up after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, mgr, cleanup, err := setup(logToStderr)
	if err != nil {
		return err
	}
	defer cleanup()

	if *days <= 0 {
		*days = cfg.DateRangeDays
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	ov, err := mgr.Overview(ctx, *days)
	if err != nil {
		return fmt.Errorf("failed to fetch overview: %w", err)
	}

	return writeOverview(*output, ov, os.Stdout)
}

// writeOverview encodes ov to path, or to stdout when path is empty. A file
// that fails to close reports the error, since the data may not be on disk.
func writeOverview(path string, ov *models.Overview, stdout io.Writer) error {
	if path == "" {
		return encodeOverview(stdout, ov)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := encodeOverview(f, ov); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}

func encodeOverview(w io.Writer, ov *models.Overview) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ov)
}

// printUsage prints the command-line usage information.
func printUsage() {
	fmt.Println(`GA4 Dashboard - quota-aware Google Analytics 4 reporting

Usage:
  ga4dash [flags]                 Run the terminal dashboard
  ga4dash serve                   Serve the JSON API on HTTP_ADDR
  ga4dash json [--days N] [--output FILE]
                                  Print one overview as JSON

Flags:
  -h, --help      Show this help message
  -v, --version   Show version information

Keyboard Shortcuts:
  1-3             Switch between tabs (Dashboard, History, Info)
  Tab/Shift+Tab   Navigate between tabs
  j/k, Up/Down    Scroll
  r               Refresh data
  ?               Toggle help
  q, Ctrl+C       Quit

Environment Variables:
  GA4_PROPERTY_ID         Numeric GA4 property id (required)
  GA4_CLIENT_ID           OAuth client id
  GA4_CLIENT_SECRET       OAuth client secret
  GA4_REFRESH_TOKEN       OAuth refresh token
  GA4_CREDENTIALS_PATH    authorized_user JSON file (default: gcloud ADC)
  GA4_DATE_RANGE_DAYS     Overview window in days (default: 30)
  CACHE_BACKEND           memory, sqlite, badger or redis (default: sqlite)
  CACHE_TTL               Cache lifetime (default: 3h)
  REDIS_URL               Redis URL for CACHE_BACKEND=redis
  DATABASE_PATH           SQLite database path
  RETRY_MAX_ATTEMPTS      Attempts per request (default: 5)
  QUOTA_MAX_CONCURRENT    Concurrent requests (default: 10)
  REFRESH_INTERVAL        Background refresh interval (default: 15m)
  HTTP_ADDR               API listen address (default: :8089)
  LOG_LEVEL, LOG_FORMAT   debug|info|warn|error, text|json

Configuration:
  The application looks for .env files in the following locations:
  - Current directory
  - ~/.config/ga4-dashboard/.env
  - ~/.ga4/.env`)
}
