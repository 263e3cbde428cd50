// Package agent drives the polling loop of one subscription.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"

	"github.com/nfrund/wirecall/internal/transport"
)

// Dispatcher handles one received frame. *invoker.Invoker satisfies it.
type Dispatcher interface {
	Handle(buf []byte, offset int) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(buf []byte, offset int) error

// Handle calls f.
func (f DispatcherFunc) Handle(buf []byte, offset int) error {
	return f(buf, offset)
}

// ErrorHandler is told about every frame that failed to dispatch. The
// agent keeps polling afterwards.
type ErrorHandler func(agent string, err error)

// Options configures an Agent. Zero values pick defaults.
type Options struct {
	// Name identifies the agent in logs, usually the interface name.
	Name string
	// OnError receives dispatch failures. Defaults to a log line.
	OnError ErrorHandler
	// Logger is used by the default error handler.
	Logger *slog.Logger
}

// Agent polls a Source and hands every frame to a Dispatcher.
type Agent struct {
	name       string
	source     transport.Source
	dispatcher Dispatcher
	onError    ErrorHandler
	logger     *slog.Logger
	running    atomix.Uint32
}

// New returns an agent reading from source.
func New(source transport.Source, dispatcher Dispatcher, opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{
		name:       opts.Name,
		source:     source,
		dispatcher: dispatcher,
		onError:    opts.OnError,
		logger:     logger.With("agent", opts.Name),
	}
	if a.onError == nil {
		a.onError = a.logError
	}
	return a
}

// Name returns the agent's role name.
func (a *Agent) Name() string {
	return a.name
}

// Running reports whether Run is active.
func (a *Agent) Running() bool {
	return a.running.Load() == 1
}

// DoWork polls every available frame once and returns how many were
// delivered.
func (a *Agent) DoWork() int {
	return a.source.Poll(a.dispatch, 0)
}

// Run polls until ctx is done, backing off while the source is idle.
func (a *Agent) Run(ctx context.Context) error {
	a.running.Store(1)
	defer a.running.Store(0)

	a.logger.Debug("agent started")
	var backoff iox.Backoff
	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("agent stopped")
			return ctx.Err()
		default:
		}
		if a.DoWork() > 0 {
			backoff.Reset()
			continue
		}
		backoff.Wait()
	}
}

// Close releases the source.
func (a *Agent) Close() error {
	return a.source.Close()
}

func (a *Agent) dispatch(buf []byte, offset int) {
	defer func() {
		if r := recover(); r != nil {
			a.onError(a.name, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := a.dispatcher.Handle(buf, offset); err != nil {
		a.onError(a.name, err)
	}
}

func (a *Agent) logError(_ string, err error) {
	a.logger.Error("frame dispatch failed", "error", err)
}
