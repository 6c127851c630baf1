// Package strategy turns a window of rates into a desired net position.
//
// A Strategy is a pure function of the rates it is handed plus whatever
// state it keeps between calls. The strategy loop compares the returned
// target against the published position and sends the difference as an
// order. Strategies are built by name through a Registry so configuration
// can pick them and stack wrappers ("fade:linreg", "martingale:ema-cross").
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"market-analyzer/internal/marketdata/renko"
	"market-analyzer/internal/model"
)

// ErrUnknownStrategy is returned when a name has no registered factory.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Lookback is the number of rates needed before Signal is meaningful.
	Lookback() int

	// Signal returns the desired signed net volume: positive long,
	// negative short, zero flat.
	Signal(rates []model.Rate) float64
}

// PositionAware strategies are told about the held position before each
// Signal call.
type PositionAware interface {
	SetPosition(volume, profit float64)
}

// BarSource yields the de-duplicated range bars for bar-driven strategies.
type BarSource func() []renko.Bar

// Settings parameterises the built-in strategies.
type Settings struct {
	Volume float64

	FastPeriod int
	SlowPeriod int
	RSIFilter  bool
	RSIPeriod  int

	FollowPeriod int
	MinMove      float64

	AtrPeriod     int
	AtrMultiplier float64

	LinRegPeriod int

	// RenkoUse names the strategy evaluated over the range bars.
	RenkoUse string

	MartingaleMaxPower int
}

// Factory builds a strategy from settings.
type Factory func(s Settings, bars BarSource, r *Registry) (Strategy, error)

// Registry maps strategy names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("ema-cross", func(s Settings, _ BarSource, _ *Registry) (Strategy, error) {
		return NewEMACrossover(s.FastPeriod, s.SlowPeriod, s.Volume, s.RSIFilter, s.RSIPeriod), nil
	})
	r.Register("sma-cross", func(s Settings, _ BarSource, _ *Registry) (Strategy, error) {
		return NewSMACrossover(s.FastPeriod, s.SlowPeriod, s.Volume, s.RSIFilter, s.RSIPeriod), nil
	})
	r.Register("follow-ema", func(s Settings, _ BarSource, _ *Registry) (Strategy, error) {
		return NewFollowEMA(s.FollowPeriod, s.MinMove, s.Volume), nil
	})
	r.Register("atr-stop", func(s Settings, _ BarSource, _ *Registry) (Strategy, error) {
		return NewVolatilityStop(s.AtrPeriod, s.AtrMultiplier, s.Volume), nil
	})
	r.Register("linreg", func(s Settings, _ BarSource, _ *Registry) (Strategy, error) {
		return NewSlope(s.LinRegPeriod, s.Volume), nil
	})
	r.Register("last-bar", func(s Settings, _ BarSource, _ *Registry) (Strategy, error) {
		return NewLastBar(s.Volume), nil
	})
	r.Register("renko", func(s Settings, bars BarSource, reg *Registry) (Strategy, error) {
		if bars == nil {
			return nil, fmt.Errorf("renko: no bar source")
		}
		if s.RenkoUse == "" || strings.HasPrefix(s.RenkoUse, "renko") {
			return nil, fmt.Errorf("renko: invalid inner strategy %q", s.RenkoUse)
		}
		inner, err := reg.Build(s.RenkoUse, s, nil)
		if err != nil {
			return nil, fmt.Errorf("renko: %w", err)
		}
		return NewRenko(inner, bars), nil
	})
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names lists the registered strategy names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Build creates the strategy called name. A name may carry wrapper
// prefixes separated by colons: "fade:", "follow:" and "martingale:".
func (r *Registry) Build(name string, s Settings, bars BarSource) (Strategy, error) {
	if prefix, rest, ok := strings.Cut(name, ":"); ok {
		inner, err := r.Build(rest, s, bars)
		if err != nil {
			return nil, err
		}
		switch prefix {
		case "fade":
			return Fade(inner), nil
		case "follow":
			return FollowTrend(inner), nil
		case "martingale":
			return Martingale(inner, s.MartingaleMaxPower), nil
		default:
			return nil, fmt.Errorf("%w: wrapper %q", ErrUnknownStrategy, prefix)
		}
	}

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return f(s, bars, r)
}

func signed(up bool, volume float64) float64 {
	if up {
		return volume
	}
	return -volume
}
