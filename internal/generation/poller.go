package generation

import (
	"context"
	"log/slog"
	"time"
)

// Default polling settings.
const (
	DefaultPollInterval     = 15 * time.Second
	DefaultOperationTimeout = 10 * time.Minute
)

// Poller drives a long-running operation to a terminal state with a fixed
// interval between ticks and an overall timeout.
type Poller struct {
	interval time.Duration
	timeout  time.Duration
	policy   Policy
	sleep    Sleeper
	now      func() time.Time
	logger   *slog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval sets the delay between polls.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithOperationTimeout sets the ceiling on total polling time.
func WithOperationTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithPollPolicy sets the retry policy applied to each individual poll call.
func WithPollPolicy(policy Policy) PollerOption {
	return func(p *Poller) {
		p.policy = policy
	}
}

// WithPollSleeper replaces the timer-based sleeper.
func WithPollSleeper(s Sleeper) PollerOption {
	return func(p *Poller) {
		if s != nil {
			p.sleep = s
		}
	}
}

// WithPollLogger sets the logger.
func WithPollLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPoller creates a Poller with a 15s interval and a 10 minute ceiling.
func NewPoller(opts ...PollerOption) *Poller {
	p := &Poller{
		interval: DefaultPollInterval,
		timeout:  DefaultOperationTimeout,
		policy:   DefaultPolicy(),
		sleep:    Sleep,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured poll interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// Timeout returns the configured operation ceiling.
func (p *Poller) Timeout() time.Duration { return p.timeout }

// Policy returns the retry policy applied to each poll call.
func (p *Poller) Policy() Policy { return p.policy }

// Run polls handle on adapter until the operation is DONE or FAILED.
// Cancellation of ctx is observed during every poll call and every wait and
// yields a Cancelled error; the timeout yields OperationTimeout.
func (p *Poller) Run(ctx context.Context, adapter Adapter, handle string) (*Operation, error) {
	name := adapter.Descriptor().Name
	op := NewOperation(name, handle, p.now())

	pollCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// stop converts an interrupted poll or wait into the right terminal state.
	stop := func() (*Operation, error) {
		if ctx.Err() != nil {
			_ = op.Fail(KindCancelled, "cancelled by caller", p.now())
			return op, cancelled(ctx, name, "poll")
		}
		_ = op.Fail(KindOperationTimeout, "timed out after "+p.timeout.String(), p.now())
		return op, op.Err()
	}

	for {
		res, _, err := Retry(pollCtx, p.policy, p.sleep, func(c context.Context) (PollResult, error) {
			return adapter.Poll(c, handle)
		})
		op.Polls++
		if err != nil {
			if pollCtx.Err() != nil {
				return stop()
			}
			kind := KindOf(err)
			_ = op.Fail(kind, err.Error(), p.now())
			return op, NewError(kind, name, "poll", err)
		}

		if res.Done {
			switch {
			case res.Err != "":
				_ = op.Fail(KindInvalidResponse, res.Err, p.now())
			case len(res.Assets) == 0:
				_ = op.Fail(KindInvalidResponse, ReasonEmptyResult, p.now())
			default:
				_ = op.Complete(res.Assets[0], p.now())
			}
			p.logger.Debug("operation finished",
				slog.String("provider", name),
				slog.String("handle", handle),
				slog.String("state", string(op.State)),
				slog.Int("polls", op.Polls),
			)
			return op, op.Err()
		}

		if err := op.MarkPolling(p.now()); err != nil {
			return op, NewError(KindInvalidResponse, name, "poll", err)
		}
		p.logger.Debug("operation still running",
			slog.String("provider", name),
			slog.String("handle", handle),
			slog.Int("polls", op.Polls),
		)

		if err := p.sleep(pollCtx, p.interval); err != nil {
			return stop()
		}
	}
}
