package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"

	"github.com/StorX2-0/iCloud-Backup/archive"
	"github.com/StorX2-0/iCloud-Backup/auth"
	"github.com/StorX2-0/iCloud-Backup/config"
	"github.com/StorX2-0/iCloud-Backup/engine"
	"github.com/StorX2-0/iCloud-Backup/icloud"
	"github.com/StorX2-0/iCloud-Backup/library"
	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
	"github.com/StorX2-0/iCloud-Backup/pkg/monitor"
	"github.com/StorX2-0/iCloud-Backup/pkg/utils"
)

// OpKind selects what a Run invocation does.
type OpKind int

const (
	// OpToken refreshes and prints the trust token.
	OpToken OpKind = iota
	// OpSync runs one sync.
	OpSync
	// OpArchive freezes a local subtree.
	OpArchive
	// OpDaemon schedules syncs on a cron expression.
	OpDaemon
)

// Operation is the tagged variant handed to Run.
type Operation struct {
	Kind        OpKind
	ArchivePath string
	CronExpr    string
}

// Observers bundles the pluggable progress surfaces.
type Observers struct {
	Auth    auth.Observer
	Sync    engine.SyncObserver
	Archive archive.Observer
}

// Runner owns the shared prelude (lock, auth) every operation runs behind.
type Runner struct {
	cfg     config.Config
	lib     *library.Library
	session *auth.Session
	client  *icloud.Client
	engine  *engine.Engine
	archive *archive.Engine
}

func NewRunner(cfg config.Config, obs Observers) (*Runner, error) {
	lib, err := library.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	session, err := auth.NewSession(auth.Config{
		Username:       cfg.Username,
		Password:       cfg.Password,
		TrustToken:     cfg.TrustToken,
		TrustTokenPath: cfg.TrustTokenPath(),
		MFAPort:        cfg.Port,
		MFATimeout:     cfg.MFATimeout,
	}, obs.Auth)
	if err != nil {
		return nil, err
	}

	client := icloud.NewClient(session)
	return &Runner{
		cfg:     cfg,
		lib:     lib,
		session: session,
		client:  client,
		engine: engine.New(lib, client, session, obs.Sync, engine.Options{
			MaxRetries:      cfg.MaxRetries,
			DownloadThreads: cfg.DownloadThreads,
		}),
		archive: archive.New(lib, client, obs.Archive),
	}, nil
}

// Run executes one operation behind the library lock, with signal-driven
// graceful shutdown. Daemon operations return on signal, or at once when the
// cron expression is missing or invalid.
func (r *Runner) Run(ctx context.Context, op Operation) error {
	ctx = logger.WithTraceID(ctx, uuid.New().String())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		logger.Warn(ctx, "shutdown signal received", logger.String("signal", sig.String()))
		cancel()
	}()

	if err := r.lib.AcquireLock(ctx, r.cfg.Force); err != nil {
		return err
	}
	defer func() {
		if err := r.lib.ReleaseLock(context.Background()); err != nil {
			logger.Error(ctx, "cannot release library lock", logger.ErrorField(err))
		}
	}()

	err := r.dispatch(ctx, op)
	if err != nil && ctx.Err() != nil && !apperr.IsInterrupt(err) {
		return apperr.Interrupted(err)
	}
	return err
}

func (r *Runner) dispatch(ctx context.Context, op Operation) error {
	switch op.Kind {
	case OpToken:
		if err := r.session.Authenticate(ctx); err != nil {
			return err
		}
		fmt.Println(r.session.TrustToken())
		return nil

	case OpSync:
		return r.engine.Sync(ctx)

	case OpArchive:
		if err := r.session.Authenticate(ctx); err != nil {
			return err
		}
		remote, err := r.client.FetchAll(ctx)
		if err != nil {
			return err
		}
		return r.archive.ArchivePath(ctx, op.ArchivePath, remote.Assets, r.cfg.RemoteDelete)

	case OpDaemon:
		return r.runDaemon(ctx, op.CronExpr)
	}
	return apperr.New(apperr.KindSync, "unknown operation")
}

// runDaemon triggers a fresh sync at each matching instant. Triggers that
// land while a sync is still running are skipped.
func (r *Runner) runDaemon(ctx context.Context, cronExpr string) error {
	if cronExpr == "" {
		return apperr.New(apperr.KindSync, "daemon mode needs a cron expression")
	}

	r.startMetricsServer(ctx)

	var running sync.Mutex
	c := cron.New()
	_, err := c.AddFunc(cronExpr, func() {
		if !running.TryLock() {
			logger.Warn(ctx, "previous sync still running, skipping trigger")
			return
		}
		defer running.Unlock()

		runCtx := logger.WithTraceID(ctx, uuid.New().String())
		logger.Info(runCtx, "scheduled sync started")
		if err := r.engine.Sync(runCtx); err != nil {
			if apperr.IsInterrupt(err) {
				return
			}
			logger.Error(runCtx, "scheduled sync failed", logger.ErrorField(err))
			return
		}
		logger.Info(runCtx, "scheduled sync completed")
	})
	if err != nil {
		return apperr.Wrap(apperr.KindSync, "invalid cron expression", err).
			With("schedule", cronExpr)
	}

	c.Start()
	logger.Info(ctx, "daemon scheduler started", logger.String("schedule", cronExpr))

	<-ctx.Done()
	stopCtx := c.Stop()
	logger.Info(ctx, "scheduler stopped, waiting for running jobs to complete")
	<-stopCtx.Done()
	running.Lock() // wait out an in-flight sync
	running.Unlock()
	return apperr.Interrupted(ctx.Err())
}

// startMetricsServer exposes /metrics while the daemon runs, when a port is
// configured.
func (r *Runner) startMetricsServer(ctx context.Context) {
	port := utils.GetEnvWithKey("METRICS_PORT")
	if port == "" {
		return
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(monitor.CreateMetricsHandler()))
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Warn(ctx, "metrics server stopped", logger.ErrorField(err))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = e.Close()
	}()
}
