package loop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"market-analyzer/internal/order"
	"market-analyzer/internal/state"
)

// SanityConfig holds the order path self-check settings.
type SanityConfig struct {
	Execute bool
	// Offset is how far below the bid the test buy limit rests.
	Offset         float64
	Volume         float64
	WhileDelay     time.Duration
	WaitingTimeout time.Duration
}

// SanityLoop checks the order path once: it places a buy limit far below the
// market, waits for it to show up in the published orders, cancels it and
// waits for it to disappear. The result is published as the sanity status;
// the loop stops itself afterwards.
type SanityLoop struct {
	Base
	cfg     SanityConfig
	wrapper *order.Wrapper
	st      *state.State

	// OnResult is called once the check finished (optional).
	OnResult func(s state.SanityStatus)
}

func NewSanityLoop(cfg SanityConfig, wrapper *order.Wrapper, st *state.State, log *slog.Logger) *SanityLoop {
	if cfg.Volume <= 0 {
		cfg.Volume = 1
	}
	return &SanityLoop{Base: NewBase("sanity", log), cfg: cfg, wrapper: wrapper, st: st}
}

func (l *SanityLoop) Stopped() bool {
	return l.Base.Stopped() || l.st.Sanity().Valid()
}

func (l *SanityLoop) CanRun() bool {
	if l.st.WarnAuction() {
		q := l.st.LastTick().Value
		l.log.Warn("auction quote", "bid", q.Bid.TakeOr(0), "ask", q.Ask.TakeOr(0))
	}
	return l.st.MarketReady()
}

func (l *SanityLoop) Run(ctx context.Context) error {
	if !l.cfg.Execute {
		l.st.SetSanity(state.SanityStatus{Comment: "skipped"})
		l.log.Info("sanity test skipped")
		return nil
	}

	q := l.st.LastTick().Value
	price := l.wrapper.RoundPrice(q.Bid.Unwrap() - l.cfg.Offset)
	if price <= 0 {
		l.finish(false, fmt.Sprintf("test order price %.5f below zero", price))
		return nil
	}

	reply, err := l.wrapper.BuyLimit(ctx, price, l.cfg.Volume)
	if err != nil {
		return fmt.Errorf("sanity place: %w", err)
	}
	if !reply.Done() {
		l.finish(false, fmt.Sprintf("place rejected: retcode %d %s", reply.Retcode, reply.Comment))
		return nil
	}

	listed := Await(ctx, l.cfg.WhileDelay, l.cfg.WaitingTimeout, func() bool { return l.hasOrder(reply.Ticket) })

	cancelReply, err := l.wrapper.Cancel(ctx, reply.Ticket)
	if err != nil {
		return fmt.Errorf("sanity cancel: %w", err)
	}
	if !cancelReply.Done() {
		l.finish(false, fmt.Sprintf("cancel rejected: retcode %d %s", cancelReply.Retcode, cancelReply.Comment))
		return nil
	}

	gone := Await(ctx, l.cfg.WhileDelay, l.cfg.WaitingTimeout, func() bool { return !l.hasOrder(reply.Ticket) })

	switch {
	case !listed:
		l.finish(false, "test order never listed")
	case !gone:
		l.finish(false, "test order still listed after cancel")
	default:
		l.finish(true, "")
	}
	return nil
}

func (l *SanityLoop) hasOrder(ticket uint64) bool {
	for _, o := range l.st.Orders().Value {
		if o.Ticket == ticket {
			return true
		}
	}
	return false
}

func (l *SanityLoop) finish(passed bool, comment string) {
	status := state.SanityStatus{Executed: true, Passed: passed, Comment: comment}
	l.st.SetSanity(status)
	if l.OnResult != nil {
		l.OnResult(status)
	}
	if passed {
		l.log.Info("sanity test passed")
	} else {
		l.log.Error("sanity test failed", "comment", comment)
	}
}
