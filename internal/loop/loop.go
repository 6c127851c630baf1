// Package loop runs independent long-lived trading loops against the shared
// state. Each loop gets its own goroutine; an iteration evaluates the Stopped
// and CanRun gates and then the Run body, all inside an error boundary.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"market-analyzer/internal/logger"
	"market-analyzer/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// Loop is one unit of recurring work.
type Loop interface {
	Name() string
	// Stopped pauses the loop without tearing it down.
	Stopped() bool
	// CanRun is the readiness gate evaluated before every Run.
	CanRun() bool
	// Run executes one iteration.
	Run(ctx context.Context) error
}

// Base carries the stop switch and logger every loop shares.
type Base struct {
	name    string
	stopped *atomic.Bool
	log     *slog.Logger
}

// NewBase creates a Base for a loop called name.
func NewBase(name string, log *slog.Logger) Base {
	return Base{name: name, stopped: new(atomic.Bool), log: logger.For(log, "loop").With("loop", name)}
}

func (b *Base) Name() string      { return b.name }
func (b *Base) Stopped() bool     { return b.stopped.Load() }
func (b *Base) Stop()             { b.stopped.Store(true) }
func (b *Base) Resume()           { b.stopped.Store(false) }
func (b *Base) Log() *slog.Logger { return b.log }

type entry struct {
	loop     Loop
	interval time.Duration
}

// Orchestrator owns the registered loops.
type Orchestrator struct {
	entries []entry
	log     *slog.Logger
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
}

// New creates an orchestrator. m and health may be nil.
func New(log *slog.Logger, m *metrics.Metrics, health *metrics.HealthStatus) *Orchestrator {
	return &Orchestrator{
		log:     logger.For(log, "orchestrator"),
		metrics: m,
		health:  health,
	}
}

// Add registers a loop that sleeps interval between iterations.
func (o *Orchestrator) Add(l Loop, interval time.Duration) {
	o.entries = append(o.entries, entry{loop: l, interval: interval})
}

// Loops returns the registered loop names.
func (o *Orchestrator) Loops() []string {
	out := make([]string, len(o.entries))
	for i, e := range o.entries {
		out[i] = e.loop.Name()
	}
	return out
}

// Run starts every loop on its own goroutine and blocks until ctx is
// cancelled and all loops have returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, e := range o.entries {
		e := e
		g.Go(func() error {
			o.runLoop(ctx, e)
			return nil
		})
	}
	o.log.Info("loops started", "count", len(o.entries))
	err := g.Wait()
	o.log.Info("loops stopped")
	return err
}

func (o *Orchestrator) runLoop(ctx context.Context, e entry) {
	for {
		if ctx.Err() != nil {
			return
		}
		o.Iterate(ctx, e.loop)
		if !Sleep(ctx, e.interval) {
			return
		}
	}
}

// Iterate runs one guarded iteration of l and reports its outcome. Errors and
// panics from any gate or the body are logged and never propagated.
func (o *Orchestrator) Iterate(ctx context.Context, l Loop) (outcome string) {
	name := l.Name()
	log := o.log.With("loop", name)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.OutcomePanic
			log.Error("loop panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		if o.metrics != nil {
			o.metrics.LoopIterations.WithLabelValues(name, outcome).Inc()
		}
	}()

	if l.Stopped() {
		return metrics.OutcomeStopped
	}
	if !l.CanRun() {
		log.Debug("loop not ready")
		return metrics.OutcomeNotReady
	}

	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(name, start))
	if err := l.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return metrics.OutcomeStopped
		}
		log.Error("loop iteration failed", append([]any{"error", err}, logger.LogWithTrace(ctx)...)...)
		return metrics.OutcomeError
	}

	if o.metrics != nil {
		o.metrics.LoopDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if o.health != nil {
		o.health.LoopRan(name, time.Now())
	}
	return metrics.OutcomeRun
}

// Sleep waits d or until ctx is done. It reports false when ctx ended first.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Await polls cond every interval until it holds, timeout elapses or ctx is
// done. It reports whether cond was observed. A timeout is not an error.
func Await(ctx context.Context, interval, timeout time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return cond()
		case <-ticker.C:
			if cond() {
				return true
			}
		}
	}
}

// Func adapts plain functions into a Loop.
type Func struct {
	Base
	Ready func() bool
	Body  func(ctx context.Context) error
}

// NewFunc creates a function-backed loop.
func NewFunc(name string, log *slog.Logger, ready func() bool, body func(ctx context.Context) error) *Func {
	return &Func{Base: NewBase(name, log), Ready: ready, Body: body}
}

func (f *Func) CanRun() bool {
	if f.Ready == nil {
		return true
	}
	return f.Ready()
}

func (f *Func) Run(ctx context.Context) error {
	return f.Body(ctx)
}
