// Package server wires the printerbot components together: config,
// logging, stores, the print pipeline, the chat transport, and the
// optional MCP agent and health endpoints.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/txn2/printerbot/pkg/agent"
	"github.com/txn2/printerbot/pkg/auth"
	"github.com/txn2/printerbot/pkg/bot"
	"github.com/txn2/printerbot/pkg/convert"
	"github.com/txn2/printerbot/pkg/database/migrate"
	"github.com/txn2/printerbot/pkg/dispatch"
	"github.com/txn2/printerbot/pkg/health"
	"github.com/txn2/printerbot/pkg/job"
	jobpg "github.com/txn2/printerbot/pkg/job/postgres"
	"github.com/txn2/printerbot/pkg/printer"
	"github.com/txn2/printerbot/pkg/session"
	sessionpg "github.com/txn2/printerbot/pkg/session/postgres"
	"github.com/txn2/printerbot/pkg/spool"
	"github.com/txn2/printerbot/pkg/telegram"
)

// Version is set at build time.
var Version = "dev"

// httpShutdownTimeout bounds the health listener's graceful shutdown.
const httpShutdownTimeout = 5 * time.Second

// App holds the assembled bot and its resources.
type App struct {
	cfg *bot.Config
	log *slog.Logger

	db         *sql.DB
	sessions   session.Store
	jobs       job.Store
	spool      *spool.Spool
	printer    printer.Printer
	dispatcher *dispatch.Dispatcher
	router     *bot.Router
	transport  *telegram.Transport
	checker    *health.Checker
	httpServer *http.Server
	logFile    *os.File
}

// New assembles an App from the configuration. The auth secret and bot
// token must be readable; either failure aborts startup.
func New(cfg *bot.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}
	if err := a.setupLogging(); err != nil {
		return nil, err
	}

	if err := a.setupStores(); err != nil {
		a.closePartial()
		return nil, err
	}

	guard, err := auth.NewGuardFromFile(cfg.Bot.AuthPasswordFile, a.sessions)
	if err != nil {
		a.closePartial()
		return nil, err
	}

	a.spool, err = spool.New(cfg.Bot.SpoolDir)
	if err != nil {
		a.closePartial()
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}

	converter := convert.NewLibreOffice(convert.Config{
		Binary:  cfg.Converter.Binary,
		OutDir:  cfg.Bot.SpoolDir,
		Timeout: cfg.Converter.Timeout,
	})
	pages := convert.NewPDFInfo(cfg.Converter.PDFInfoBinary)
	a.printer = printer.NewCUPS(printer.Config{
		PrintBinary:  cfg.Printer.PrintBinary,
		StatusBinary: cfg.Printer.StatusBinary,
		QueueBinary:  cfg.Printer.QueueBinary,
		Timeout:      cfg.Printer.Timeout,
	})

	token, err := readToken(cfg.Bot.TokenFile)
	if err != nil {
		a.closePartial()
		return nil, err
	}
	a.transport, err = telegram.New(telegram.Config{
		Token:         token,
		MaxConcurrent: cfg.Bot.MaxConcurrentUpdates,
		Logger:        a.log,
	})
	if err != nil {
		a.closePartial()
		return nil, err
	}

	a.router = bot.NewRouter(bot.RouterConfig{
		Guard:       guard,
		Sessions:    a.sessions,
		Jobs:        a.jobs,
		Spool:       a.spool,
		Printer:     a.printer,
		Replier:     a.transport,
		Downloader:  a.transport,
		MaxFileSize: cfg.Bot.MaxFileSize,
		Logger:      a.log,
	})

	a.dispatcher = dispatch.New(dispatch.Config{
		Jobs:       a.jobs,
		Converter:  converter,
		Printer:    a.printer,
		Spool:      a.spool,
		Pages:      pages,
		Workers:    cfg.Dispatch.Workers,
		QueueSize:  cfg.Dispatch.QueueSize,
		OnFinished: a.router.NotifyFinished,
		Logger:     a.log,
	})
	a.router.SetDispatcher(a.dispatcher)

	a.checker = health.NewChecker(a.jobs, a.printer)
	if cfg.Health.Address != "" {
		a.httpServer = a.buildHTTPServer()
	}

	return a, nil
}

// Run starts the worker pool, the health listener, and the chat update
// loop, then blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.dispatcher.Start(ctx)

	// With persistent stores, jobs from a previous run survive in the
	// database; reconcile them before taking new updates.
	if a.db != nil {
		if err := a.dispatcher.Recover(ctx); err != nil {
			a.log.Warn("job recovery failed", "error", err)
		}
	}

	if a.httpServer != nil {
		go func() {
			a.log.Info("health listener starting", "address", a.httpServer.Addr)
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("health listener failed", "error", err)
			}
		}()
	}

	a.checker.SetReady()
	a.log.Info("printerbot started", "version", Version,
		"spool_dir", a.cfg.Bot.SpoolDir, "persistent", a.db != nil)

	err := a.transport.Run(ctx, a.router)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close drains the dispatcher and releases all resources.
func (a *App) Close() error {
	if a.checker != nil {
		a.checker.SetDraining()
	}

	if a.dispatcher != nil {
		if err := a.dispatcher.Close(); err != nil {
			a.log.Warn("dispatcher close failed", "error", err)
		}
	}

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.log.Warn("health listener shutdown failed", "error", err)
		}
	}

	a.closePartial()
	a.log.Info("printerbot stopped")
	return nil
}

// closePartial closes the resources that may exist after a failed New.
func (a *App) closePartial() {
	if a.jobs != nil {
		_ = a.jobs.Close()
	}
	if a.sessions != nil {
		_ = a.sessions.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// setupLogging builds the process logger. Output goes to stderr, and
// additionally to the configured log file when one is set.
func (a *App) setupLogging() error {
	var level slog.Level
	switch a.cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if a.cfg.Log.File != "" {
		// #nosec G304 -- path is from config, controlled by the operator
		f, err := os.OpenFile(a.cfg.Log.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		a.logFile = f
		out = io.MultiWriter(os.Stderr, f)
	}

	a.log = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.log)
	return nil
}

// setupStores picks the persistence backend: PostgreSQL when a DSN is
// configured, process memory otherwise.
func (a *App) setupStores() error {
	if a.cfg.Database.DSN == "" {
		a.sessions = session.NewMemoryStore()
		a.jobs = job.NewMemoryStore()
		return nil
	}

	db, err := sql.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(a.cfg.Database.MaxOpenConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("connecting to database: %w", err)
	}
	if err := migrate.Run(db); err != nil {
		_ = db.Close()
		return err
	}

	a.db = db
	a.sessions = sessionpg.New(db)
	a.jobs = jobpg.New(db)
	return nil
}

// buildHTTPServer mounts the health endpoints and, when enabled, the
// MCP agent surface.
func (a *App) buildHTTPServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.checker.LivenessHandler())
	mux.HandleFunc("/readyz", a.checker.ReadinessHandler())
	mux.HandleFunc("/statusz", a.checker.StatusHandler())

	if a.cfg.Agent.Enabled {
		toolkit := agent.New(agent.Config{
			Name:    a.cfg.Agent.Name,
			Version: Version,
			Jobs:    a.jobs,
			Printer: a.printer,
		})
		mux.Handle("/mcp", toolkit.Handler())
		a.log.Info("mcp agent surface enabled", "path", "/mcp")
	}

	return &http.Server{
		Addr:              a.cfg.Health.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// readToken loads the bot API token from path.
func readToken(path string) (string, error) {
	// #nosec G304 -- path is from config, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading bot token %s: %w", path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("bot token %s is empty", path)
	}
	return token, nil
}
