package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoDeliverer is returned by NewOrchestrator when no delivery pipeline is given.
var ErrNoDeliverer = errors.New("generation: deliverer is required")

// Recorder receives orchestration events for metrics.
type Recorder interface {
	ObserveAttempt(provider, kind, outcome, errorKind string, d time.Duration)
	ObserveFallback(provider, kind, reason string)
	ObserveDelivery(provider, kind, method string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, string, string, string, time.Duration) {}
func (nopRecorder) ObserveFallback(string, string, string)                       {}
func (nopRecorder) ObserveDelivery(string, string, string)                       {}

// Orchestrator drives the configured providers for a request in strict
// priority order and hands the first raw asset to the delivery pipeline.
type Orchestrator struct {
	providers map[Kind][]Adapter
	deliverer Deliverer
	poller    *Poller
	policy    Policy
	sleep     Sleeper
	recorder  Recorder
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProviders sets the ordered provider list for a kind.
func WithProviders(kind Kind, adapters ...Adapter) Option {
	return func(o *Orchestrator) {
		o.providers[kind] = append([]Adapter(nil), adapters...)
	}
}

// WithPolicy sets the retry policy applied to provider invocation.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithPoller sets the operation poller used for async providers.
func WithPoller(p *Poller) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.poller = p
		}
	}
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an Orchestrator. Provider lists are copied and
// treated as read-only afterwards.
func NewOrchestrator(deliverer Deliverer, opts ...Option) (*Orchestrator, error) {
	if deliverer == nil {
		return nil, ErrNoDeliverer
	}
	o := &Orchestrator{
		providers: make(map[Kind][]Adapter),
		deliverer: deliverer,
		policy:    DefaultPolicy(),
		sleep:     Sleep,
		recorder:  nopRecorder{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.poller == nil {
		o.poller = NewPoller(WithPollLogger(o.logger))
	}
	return o, nil
}

// Providers returns the provider names configured for kind, in order.
func (o *Orchestrator) Providers(kind Kind) []string {
	names := make([]string, 0, len(o.providers[kind]))
	for _, a := range o.providers[kind] {
		names = append(names, a.Descriptor().Name)
	}
	return names
}

// Generate produces and delivers one asset for req. It fails with
// DeliveryFailed when the first obtained asset cannot be delivered, with
// AllProvidersExhausted when no provider produced an asset, and with
// Cancelled when ctx ends.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (DeliveredAsset, error) {
	if err := req.Validate(); err != nil {
		return DeliveredAsset{}, NewError(KindInvalidRequest, "", "validate", err)
	}

	adapters := o.providers[req.Kind]
	attempts := make([]AttemptRecord, 0, len(adapters))

	for i, adapter := range adapters {
		if ctx.Err() != nil {
			return DeliveredAsset{}, o.cancelledWith(ctx, "", attempts)
		}

		desc := adapter.Descriptor()
		name := desc.Name
		if err := desc.CheckCapability(req); err != nil {
			attempts = append(attempts, AttemptRecord{
				Provider:  name,
				Outcome:   OutcomeSkipped,
				ErrorKind: KindOf(err),
				Message:   err.Error(),
			})
			o.logger.Debug("provider skipped",
				slog.String("provider", name),
				slog.String("kind", string(req.Kind)),
				slog.String("reason", err.Error()),
			)
			continue
		}

		start := time.Now()
		asset, calls, err := o.produce(ctx, adapter, req)
		elapsed := time.Since(start)

		if err != nil {
			if ctx.Err() != nil || KindOf(err) == KindCancelled {
				return DeliveredAsset{}, o.cancelledWith(ctx, name, attempts)
			}
			kind := KindOf(err)
			attempts = append(attempts, AttemptRecord{
				Provider:  name,
				Outcome:   OutcomeFailure,
				ErrorKind: kind,
				Message:   err.Error(),
				Calls:     calls,
				Duration:  elapsed,
			})
			o.recorder.ObserveAttempt(name, string(req.Kind), string(OutcomeFailure), string(kind), elapsed)
			o.logger.Warn("provider attempt failed",
				slog.String("provider", name),
				slog.String("kind", string(req.Kind)),
				slog.String("error_kind", string(kind)),
				slog.Int("calls", calls),
				slog.Duration("duration", elapsed),
				slog.String("error", err.Error()),
			)
			if i < len(adapters)-1 {
				o.recorder.ObserveFallback(name, string(req.Kind), string(kind))
			}
			continue
		}

		delivered, err := o.deliverer.Deliver(ctx, asset)
		if err != nil {
			if ctx.Err() != nil {
				return DeliveredAsset{}, o.cancelledWith(ctx, name, attempts)
			}
			attempts = append(attempts, AttemptRecord{
				Provider:  name,
				Outcome:   OutcomeFailure,
				ErrorKind: KindDeliveryFailed,
				Message:   err.Error(),
				Calls:     calls,
				Duration:  time.Since(start),
			})
			o.recorder.ObserveAttempt(name, string(req.Kind), string(OutcomeFailure), string(KindDeliveryFailed), time.Since(start))
			o.logger.Error("delivery failed",
				slog.String("provider", name),
				slog.String("kind", string(req.Kind)),
				slog.String("source_uri", asset.URI),
				slog.String("error", err.Error()),
			)
			return DeliveredAsset{}, deliveryFailed(name, asset.URI, err, attempts)
		}

		delivered.Provider = name
		o.recorder.ObserveAttempt(name, string(req.Kind), string(OutcomeSuccess), "", time.Since(start))
		o.recorder.ObserveDelivery(name, string(req.Kind), string(delivered.Method))
		o.logger.Info("generation delivered",
			slog.String("provider", name),
			slog.String("kind", string(req.Kind)),
			slog.String("delivery_method", string(delivered.Method)),
			slog.String("uri", delivered.URI),
			slog.Int("failed_attempts", len(attempts)),
		)
		return delivered, nil
	}

	return DeliveredAsset{}, &Error{
		Kind:     KindAllProvidersExhausted,
		Op:       "generate",
		Err:      fmt.Errorf("%d provider(s) configured for %s, none produced an asset", len(adapters), req.Kind),
		Attempts: attempts,
	}
}

// produce runs one provider to a raw asset: invocation under the retry
// policy and, for async providers, polling to completion.
func (o *Orchestrator) produce(ctx context.Context, adapter Adapter, req Request) (RawAsset, int, error) {
	desc := adapter.Descriptor()
	policy := o.policy
	if desc.RetriesInternally {
		policy.MaxAttempts = 1
	}
	inv, calls, err := Retry(ctx, policy, o.sleep, func(c context.Context) (Invocation, error) {
		return adapter.Invoke(c, req)
	})
	if err != nil {
		return RawAsset{}, calls, err
	}

	var asset RawAsset
	switch {
	case inv.Asset != nil:
		asset = *inv.Asset
	case inv.Handle != "":
		op, err := o.poller.Run(ctx, adapter, inv.Handle)
		if err != nil {
			return RawAsset{}, calls, err
		}
		asset = *op.Result
	default:
		return RawAsset{}, calls, Errorf(KindInvalidResponse, desc.Name, "invoke", "provider returned neither an asset nor an operation handle")
	}

	if asset.IsEmpty() {
		return RawAsset{}, calls, Errorf(KindInvalidResponse, desc.Name, "invoke", "provider returned an empty asset")
	}
	asset.Provider = desc.Name
	asset.Public = asset.Public || desc.PublicOutput
	if asset.Size == 0 {
		asset.Size = int64(len(asset.Data))
	}
	return asset, calls, nil
}

func (o *Orchestrator) cancelledWith(ctx context.Context, provider string, attempts []AttemptRecord) error {
	err := cancelled(ctx, provider, "generate")
	err.Attempts = attempts
	return err
}

func deliveryFailed(provider, uri string, err error, attempts []AttemptRecord) error {
	var ge *Error
	if errors.As(err, &ge) && ge.Kind == KindDeliveryFailed {
		out := *ge
		out.Provider = provider
		if out.SourceURI == "" {
			out.SourceURI = uri
		}
		out.Attempts = attempts
		return &out
	}
	return &Error{
		Kind:      KindDeliveryFailed,
		Provider:  provider,
		Op:        "deliver",
		Err:       err,
		SourceURI: uri,
		Attempts:  attempts,
	}
}
