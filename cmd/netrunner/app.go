package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"netrunner/internal/actions"
	"netrunner/internal/auth"
	"netrunner/internal/config"
	"netrunner/internal/correlator"
	"netrunner/internal/deployment"
	"netrunner/internal/history"
	"netrunner/internal/notify"
	"netrunner/internal/poller"
	"netrunner/internal/security"

	"golang.org/x/term"
)

// errAborted is returned when the operator declines a prompt.
var errAborted = errors.New("aborted by user")

// globals holds the persistent flags.
var globals struct {
	configFile string
	dbPath     string
	owner      string
	repo       string
	token      string
	logLevel   string
	logFile    string
}

// app is the wiring shared by every command.
type app struct {
	cfg     *config.Config
	hist    *history.History
	logger  *slog.Logger
	closers []io.Closer
}

type appOptions struct {
	// jsonLogs switches to JSON on stdout, as used by serve.
	jsonLogs bool
	// noStore skips opening the database.
	noStore bool
}

func newApp(opts appOptions) (*app, error) {
	logger, logCloser, err := setupLogging(globals.logLevel, globals.logFile, opts.jsonLogs)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	a := &app{logger: logger}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}

	path := config.Resolve(globals.configFile)
	cfg, err := config.Load(path)
	if err != nil {
		a.Close()
		return nil, err
	}
	if path != "" {
		logger.Debug("Loaded configuration", "config", path)
		if err := security.ValidateSecurePermissions(path); err != nil && cfg.Notify.SlackWebhookURL != "" {
			logger.Warn("Configuration file permissions are too open", "error", err)
		}
	}
	if globals.owner != "" {
		cfg.Owner = globals.owner
	}
	if globals.repo != "" {
		cfg.Repo = globals.repo
	}
	if globals.dbPath != "" {
		cfg.Database = globals.dbPath
	}
	if err := security.ValidateOwnerRepo(cfg.Owner, cfg.Repo); err != nil {
		a.Close()
		return nil, newUsageError("%v", err)
	}
	a.cfg = cfg

	if !opts.noStore {
		if err := a.openStore(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openStore() error {
	if err := security.CreateSecureDir(filepath.Dir(a.cfg.Database), security.PermDirectory); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	hist, err := history.NewHistory(a.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize history database: %w", err)
	}
	if err := security.EnsureSecurePermissions(a.cfg.Database, security.PermDBFile); err != nil {
		a.logger.Warn("Database file permissions are too open", "db", a.cfg.Database, "error", err)
	}
	a.hist = hist
	a.closers = append(a.closers, hist)
	return nil
}

// Close releases the store and the log file.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// client returns an authenticated GitHub client for the configured repository.
func (a *app) client() (*actions.Client, error) {
	token, source, err := auth.ResolveToken(globals.token)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Resolved GitHub token", "source", string(source), "token", security.MaskToken(token))

	return actions.NewClient(token, a.cfg.Owner, a.cfg.Repo, actions.Options{
		BaseURL:           a.cfg.API.BaseURL,
		RequestsPerSecond: a.cfg.API.RequestsPerSecond,
		Burst:             a.cfg.API.Burst,
	})
}

func (a *app) orchestrator(client *actions.Client, notifier notify.Notifier) *deployment.Orchestrator {
	corrCfg := correlator.DefaultConfig()
	corrCfg.Interval = a.cfg.Correlation.Interval
	corrCfg.Window = a.cfg.Correlation.Window
	corrCfg.Skew = a.cfg.Correlation.Skew
	corr := correlator.New(client, a.hist, corrCfg, a.logger)

	pollCfg := poller.DefaultConfig()
	pollCfg.Interval = a.cfg.Polling.Interval
	pollCfg.MaxDuration = a.cfg.Polling.MaxDuration
	pollCfg.MaxConsecutiveErrors = a.cfg.Polling.MaxConsecutiveErrors
	poll := poller.New(client, pollCfg, a.logger)
	poll.OnTransition(func(from, to actions.Status, run *actions.Run) {
		a.logger.Info("Run status changed", "run_id", run.ID, "from", string(from), "to", string(to))
	})

	return deployment.NewOrchestrator(client, corr, poll, a.hist, deployment.Options{
		BindAttempts: a.cfg.BindAttempts,
		Notifier:     notifier,
		Logger:       a.logger,
	})
}

// notifier returns the Slack notifier, or ErrNoWebhook.
func (a *app) notifier() (*notify.SlackNotifier, error) {
	url := a.cfg.WebhookURL()
	if url != "" {
		if err := security.ValidateWebhookURL(url, false); err != nil {
			return nil, fmt.Errorf("invalid Slack webhook: %s", security.Redact(err.Error(), url))
		}
	}
	return notify.NewSlackNotifier(url, &http.Client{}, a.logger)
}

// setupLogging builds the process logger: text on stderr for interactive
// commands, JSON on stdout for serve. A log file, when given, receives
// JSON in either mode. The returned closer is nil without a log file.
func setupLogging(level, logPath string, jsonStdout bool) (*slog.Logger, io.Closer, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var console slog.Handler
	if jsonStdout {
		console = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		console = slog.NewTextHandler(os.Stderr, opts)
	}

	if logPath == "" {
		return slog.New(console), nil, nil
	}

	// Create log directory if needed
	if err := security.CreateSecureDir(filepath.Dir(logPath), security.PermDirectory); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := security.AppendSecureFile(logPath, security.PermLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	if jsonStdout {
		multiWriter := io.MultiWriter(os.Stdout, file)
		return slog.New(slog.NewJSONHandler(multiWriter, opts)), file, nil
	}
	return slog.New(teeHandler{console, slog.NewJSONHandler(file, opts)}), file, nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, newUsageError("invalid log level %q", s)
	}
	return lvl, nil
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirm asks a yes/no question. Anything but y/yes declines.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
