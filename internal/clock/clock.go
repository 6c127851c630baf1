// Package clock provides the time sources the loops run on: the wall clock
// for live trading and a stepping virtual clock for backtests.
package clock

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Clock is a source of "now".
type Clock interface {
	Now() time.Time
}

// Wall is the wall clock in a fixed location.
type Wall struct {
	Location *time.Location
}

// Now returns the current wall time.
func (w Wall) Now() time.Time {
	if w.Location == nil {
		return time.Now()
	}
	return time.Now().In(w.Location)
}

// Result is the outcome of advancing a virtual clock.
type Result int

const (
	// More means the clock moved and there is data left to replay.
	More Result = iota
	// Exhausted means the configured end was reached; Now stays at the end.
	Exhausted
	// Failed means the clock is misconfigured and cannot advance.
	Failed
)

func (r Result) String() string {
	switch r {
	case More:
		return "more"
	case Exhausted:
		return "exhausted"
	}
	return "failed"
}

// ErrInvalidRange is reported by Err when the virtual clock cannot run.
var ErrInvalidRange = errors.New("clock: invalid virtual range")

// Virtual steps through [Start, End] by a fixed Step. It keeps the previous,
// current and next instants so that a caller can ask "what happened since
// the last step" deterministically. Safe for concurrent use.
type Virtual struct {
	mu        sync.Mutex
	start     time.Time
	end       time.Time
	step      time.Duration
	timeframe time.Duration

	previous time.Time
	current  time.Time
	next     time.Time
	err      error
}

// NewVirtual creates a virtual clock positioned at start.
func NewVirtual(start, end time.Time, step, timeframe time.Duration) *Virtual {
	v := &Virtual{
		start:     start,
		end:       end,
		step:      step,
		timeframe: timeframe,
		previous:  start,
		current:   start,
		next:      start.Add(step),
	}
	switch {
	case step <= 0:
		v.err = fmt.Errorf("%w: step %s", ErrInvalidRange, step)
	case end.Before(start):
		v.err = fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, end, start)
	}
	return v
}

// Advance shifts previous <- current <- next and moves next by one step.
// It never moves current past End.
func (v *Virtual) Advance() Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return Failed
	}
	if !v.current.Before(v.end) {
		return Exhausted
	}
	v.previous = v.current
	v.current = v.next
	if v.current.After(v.end) {
		v.current = v.end
	}
	v.next = v.current.Add(v.step)
	return More
}

// Now returns the current virtual instant without advancing.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Previous returns the instant before the last Advance.
func (v *Virtual) Previous() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.previous
}

// Next returns the instant the next Advance moves to.
func (v *Virtual) Next() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.next
}

// Start returns the configured start.
func (v *Virtual) Start() time.Time { return v.start }

// End returns the configured end.
func (v *Virtual) End() time.Time { return v.end }

// EndOfDay reports whether less than one timeframe is left before End.
func (v *Virtual) EndOfDay() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.current.Before(v.end.Add(-v.timeframe))
}

// Err returns the configuration error that makes Advance report Failed.
func (v *Virtual) Err() error {
	return v.err
}

// Reset moves the clock back to Start.
func (v *Virtual) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.previous = v.start
	v.current = v.start
	v.next = v.start.Add(v.step)
}
