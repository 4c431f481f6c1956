// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/meetingmind-streamer/internal/session"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Provide(NewRunner), fx.Invoke(registerLifecycleHooks))

	return &Application{
		app: fx.New(options...),
	}
}

// Run starts the application and blocks until it's stopped by a signal or by the session ending.
func (a *Application) Run() {
	a.app.Run()
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// Options select what one run streams.
type Options struct {
	// File, when set, is uploaded instead of capturing the microphone.
	File         string
	Title        string
	Participants []string
	Confidential bool
}

// RunnerParams holds dependencies for NewRunner.
type RunnerParams struct {
	fx.In

	Logger     *zap.Logger
	Controller *session.Controller
	Shutdowner fx.Shutdowner
	Options    Options
}

// Runner starts one session when the application starts and shuts the application down when
// that session ends.
type Runner struct {
	session.NopSink

	logger     *zap.Logger
	ctrl       *session.Controller
	shutdowner fx.Shutdowner
	opts       Options
	readFile   func(string) ([]byte, error)

	mu     sync.Mutex
	active bool
	done   bool
}

// NewRunner creates the Runner and subscribes it to the controller.
func NewRunner(p RunnerParams) *Runner {
	r := &Runner{
		logger:     p.Logger.Named("runner"),
		ctrl:       p.Controller,
		shutdowner: p.Shutdowner,
		opts:       p.Options,
		readFile:   os.ReadFile,
	}
	p.Controller.Subscribe(r)

	return r
}

// Start begins the configured session.
func (r *Runner) Start(ctx context.Context) error {
	start := session.StartOptions{
		Title:        r.opts.Title,
		Participants: r.opts.Participants,
		Confidential: r.opts.Confidential,
	}

	if r.opts.File == "" {
		r.logger.Info("Starting live session", zap.String("title", start.Title))

		return r.ctrl.Start(ctx, start)
	}

	data, err := r.readFile(r.opts.File)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	r.logger.Info("Starting upload", zap.String("file", r.opts.File), zap.Int("bytes", len(data)))

	return r.ctrl.StartFile(ctx, session.FileOptions{
		StartOptions: start,
		Name:         filepath.Base(r.opts.File),
		Data:         data,
	})
}

func (r *Runner) StateChanged(_, to session.State) {
	if to != session.StateActive {
		return
	}

	r.mu.Lock()
	r.active = true
	r.mu.Unlock()
}

func (r *Runner) SessionEnded(rec session.Record) {
	r.logger.Info("Session finished, shutting down",
		zap.String("session_id", rec.SessionID),
		zap.Int("entries", len(rec.Entries)))
	r.shutdown(0)
}

func (r *Runner) SessionFailed(error) {
	r.shutdown(1)
}

// shutdown asks fx to exit once, and only for a session that became active.
// Start failures are reported through the OnStart error instead.
func (r *Runner) shutdown(code int) {
	r.mu.Lock()
	if !r.active || r.done {
		r.mu.Unlock()

		return
	}
	r.done = true
	r.mu.Unlock()

	if err := r.shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
		r.logger.Error("Failed to request shutdown", zap.Error(err))
	}
}

// registerLifecycleHooks sets up the application lifecycle hooks.
func registerLifecycleHooks(lc fx.Lifecycle, r *Runner, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting application")

			if err := r.Start(ctx); err != nil {
				logger.Error("Failed to start session", zap.Error(err))

				return err
			}

			logger.Info("Application started successfully")

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping application")

			return nil
		},
	})
}
