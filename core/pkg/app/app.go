// Package app assembles a runnable instance: a Processor wired to its
// registries, zero or more pumps reading from Channels, the mediator's
// background sweep, and an optional admin HTTP surface — adapted from
// the teacher's App (handler.Registry + HTTP/broker/cron adapters +
// signal-driven lifecycle) to this domain's Processor + Pump/Channel +
// Mediator collaborators, keeping the same OnStart/OnStop hook
// lifecycle and signal-handling Run loop.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/mediator"
	"github.com/madcok-co/conduit/core/pkg/processor"
	"github.com/madcok-co/conduit/core/pkg/pump"
)

// PumpRunner is satisfied by both pump.Reactor and pump.Proactor.
type PumpRunner interface {
	Run(ctx context.Context)
}

// Config groups an App's construction-time settings.
type Config struct {
	Name    string
	Version string

	// SweepInterval/SweepThreshold/SweepLimit drive the mediator's
	// background outbox sweep; SweepInterval of 0 disables it.
	SweepInterval  time.Duration
	SweepThreshold time.Duration
	SweepLimit     int
}

// DefaultConfig returns a Config with a 30s sweep interval clearing
// entries older than 10s, 100 at a time.
func DefaultConfig() *Config {
	return &Config{
		Name:           "conduit-app",
		Version:        "1.0.0",
		SweepInterval:  30 * time.Second,
		SweepThreshold: 10 * time.Second,
		SweepLimit:     100,
	}
}

// App is the single assembly and lifecycle point for a running
// instance: one Processor, any number of pumps, and the mediator's
// sweep loop, started together and shut down together.
type App struct {
	config    *Config
	processor *processor.Processor
	mediator  *mediator.Mediator
	logger    contracts.Logger

	pumps []namedPump

	onStart []func(context.Context) error
	onStop  []func(context.Context) error

	ctx    context.Context
	cancel context.CancelFunc
}

type namedPump struct {
	name   string
	runner PumpRunner
}

// New builds an App around proc. config may be nil to use
// DefaultConfig.
func New(proc *processor.Processor, med *mediator.Mediator, logger contracts.Logger, config *Config) *App {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		config:    config,
		processor: proc,
		mediator:  med,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddPump registers a pump to be run for the lifetime of the App, e.g.
// a pump.Reactor or pump.Proactor over a contracts.Channel. name is
// used only for logging.
func (a *App) AddPump(name string, runner PumpRunner) *App {
	a.pumps = append(a.pumps, namedPump{name: name, runner: runner})
	return a
}

// OnStart registers a startup hook, run in registration order before
// pumps and the sweep loop start.
func (a *App) OnStart(fn func(context.Context) error) *App {
	a.onStart = append(a.onStart, fn)
	return a
}

// OnStop registers a shutdown hook, run in registration order after
// pumps and the sweep loop have stopped.
func (a *App) OnStop(fn func(context.Context) error) *App {
	a.onStop = append(a.onStop, fn)
	return a
}

// Run starts every registered pump and the mediator's sweep loop (if
// configured), then blocks until a SIGINT/SIGTERM arrives, at which
// point it shuts everything down gracefully.
func (a *App) Run() error {
	for _, fn := range a.onStart {
		if err := fn(a.ctx); err != nil {
			return fmt.Errorf("app: startup hook failed: %w", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	for _, p := range a.pumps {
		wg.Add(1)
		go func(p namedPump) {
			defer wg.Done()
			if a.logger != nil {
				a.logger.Info("pump started", "name", p.name)
			}
			p.runner.Run(a.ctx)
		}(p)
	}

	if a.config.SweepInterval > 0 && a.mediator != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.mediator.Sweep(a.ctx, a.config.SweepInterval, a.config.SweepThreshold, a.config.SweepLimit)
		}()
	}

	sig := <-sigCh
	if a.logger != nil {
		a.logger.Info("received shutdown signal", "signal", sig.String())
	}

	return a.Shutdown(&wg)
}

// Shutdown cancels the run context, waits for pumps and the sweep loop
// to stop, runs shutdown hooks, then shuts down the Processor.
func (a *App) Shutdown(wg *sync.WaitGroup) error {
	a.cancel()
	if wg != nil {
		wg.Wait()
	}

	for _, fn := range a.onStop {
		if err := fn(context.Background()); err != nil {
			if a.logger != nil {
				a.logger.WithError(err).Error("app: shutdown hook failed")
			}
		}
	}

	if a.processor != nil {
		if err := a.processor.Shutdown(context.Background()); err != nil {
			if a.logger != nil {
				a.logger.WithError(err).Error("app: processor shutdown failed")
			}
			return err
		}
	}

	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}

// Processor returns the App's Processor.
func (a *App) Processor() *processor.Processor { return a.processor }

// Name returns the App's configured name.
func (a *App) Name() string { return a.config.Name }

// Version returns the App's configured version.
func (a *App) Version() string { return a.config.Version }

var _ PumpRunner = (*pump.Reactor)(nil)
var _ PumpRunner = (*pump.Proactor)(nil)
