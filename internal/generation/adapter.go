package generation

import (
	"context"
	"errors"
	"slices"
)

// ErrPollUnsupported is returned by Poll on adapters that only produce
// synchronous results.
var ErrPollUnsupported = errors.New("generation: adapter does not support polling")

// ErrEditUnsupported is returned when a request carries a source asset but the
// adapter only supports generation from a prompt.
var ErrEditUnsupported = errors.New("generation: adapter does not support edit requests")

// Descriptor is the static description of a provider. It is built at
// process start and never mutated.
type Descriptor struct {
	// Name identifies the provider in configuration, logs and results.
	Name string
	// Kinds lists the media kinds the provider can produce.
	Kinds []Kind
	// SupportsEdit is true if the provider accepts a source asset.
	SupportsEdit bool
	// Async is true if Invoke returns an operation handle to be polled.
	Async bool
	// PublicOutput is true if the provider's output URIs are fetchable
	// without credentials, which makes them eligible for raw-link delivery.
	PublicOutput bool
	// RequiresCredentials is true if the provider cannot be called without
	// configured keys or project identifiers.
	RequiresCredentials bool
	// RetriesInternally is true if Invoke already retries its own calls;
	// the orchestrator then invokes it once.
	RetriesInternally bool
}

// Supports reports whether the provider can produce the given kind.
func (d Descriptor) Supports(k Kind) bool {
	return slices.Contains(d.Kinds, k)
}

// CheckCapability returns an InvalidRequest error if the provider cannot
// serve req. A source asset on a generate-only provider is rejected rather
// than ignored.
func (d Descriptor) CheckCapability(req Request) error {
	if !d.Supports(req.Kind) {
		return Errorf(KindInvalidRequest, d.Name, "capability", "kind %q not supported", req.Kind)
	}
	if req.IsEdit() && !d.SupportsEdit {
		return NewError(KindInvalidRequest, d.Name, "capability", ErrEditUnsupported)
	}
	return nil
}

// Invocation is the immediate result of Adapter.Invoke: either a finished
// asset or a handle to a long-running operation.
type Invocation struct {
	Asset  *RawAsset
	Handle string
}

// PollResult is one observation of a long-running operation.
type PollResult struct {
	// Done is true once the provider considers the operation finished.
	Done bool
	// Assets holds the results of a finished operation.
	Assets []RawAsset
	// Err is the provider-reported failure of a finished operation.
	Err string
}

// Adapter is the uniform interface to one generative backend.
type Adapter interface {
	// Descriptor returns the provider's static description.
	Descriptor() Descriptor
	// Invoke starts a generation. Sync providers return Invocation.Asset,
	// async providers return Invocation.Handle.
	Invoke(ctx context.Context, req Request) (Invocation, error)
	// Poll observes an operation started by Invoke.
	Poll(ctx context.Context, handle string) (PollResult, error)
}

// Deliverer makes a raw asset durably and publicly fetchable.
type Deliverer interface {
	Deliver(ctx context.Context, asset RawAsset) (DeliveredAsset, error)
}
