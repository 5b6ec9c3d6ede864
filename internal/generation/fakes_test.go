package generation

import (
	"context"
	"sync"
	"time"
)

// fakeAdapter replays scripted Invoke and Poll results and counts calls.
type fakeAdapter struct {
	desc Descriptor

	mu          sync.Mutex
	invokes     []func(ctx context.Context) (Invocation, error)
	polls       []func(ctx context.Context) (PollResult, error)
	invokeCalls int
	pollCalls   int
}

func newFakeAdapter(name string, kinds ...Kind) *fakeAdapter {
	return &fakeAdapter{desc: Descriptor{Name: name, Kinds: kinds}}
}

func (f *fakeAdapter) onInvoke(fn func(ctx context.Context) (Invocation, error)) *fakeAdapter {
	f.invokes = append(f.invokes, fn)
	return f
}

func (f *fakeAdapter) onPoll(fn func(ctx context.Context) (PollResult, error)) *fakeAdapter {
	f.polls = append(f.polls, fn)
	return f
}

func (f *fakeAdapter) Descriptor() Descriptor { return f.desc }

func (f *fakeAdapter) Invoke(ctx context.Context, _ Request) (Invocation, error) {
	f.mu.Lock()
	i := f.invokeCalls
	f.invokeCalls++
	f.mu.Unlock()
	if len(f.invokes) == 0 {
		return Invocation{}, Errorf(KindTransient, f.desc.Name, "invoke", "no script")
	}
	if i >= len(f.invokes) {
		i = len(f.invokes) - 1
	}
	return f.invokes[i](ctx)
}

func (f *fakeAdapter) Poll(ctx context.Context, _ string) (PollResult, error) {
	f.mu.Lock()
	i := f.pollCalls
	f.pollCalls++
	f.mu.Unlock()
	if len(f.polls) == 0 {
		return PollResult{}, ErrPollUnsupported
	}
	if i >= len(f.polls) {
		i = len(f.polls) - 1
	}
	return f.polls[i](ctx)
}

func (f *fakeAdapter) calls() (invoke, poll int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invokeCalls, f.pollCalls
}

func returnAsset(a RawAsset) func(context.Context) (Invocation, error) {
	return func(context.Context) (Invocation, error) { return Invocation{Asset: &a}, nil }
}

func returnHandle(h string) func(context.Context) (Invocation, error) {
	return func(context.Context) (Invocation, error) { return Invocation{Handle: h}, nil }
}

func failInvoke(kind ErrorKind) func(context.Context) (Invocation, error) {
	return func(context.Context) (Invocation, error) {
		return Invocation{}, Errorf(kind, "fake", "invoke", "scripted failure")
	}
}

func pollRunning() func(context.Context) (PollResult, error) {
	return func(context.Context) (PollResult, error) { return PollResult{}, nil }
}

func pollDone(assets ...RawAsset) func(context.Context) (PollResult, error) {
	return func(context.Context) (PollResult, error) { return PollResult{Done: true, Assets: assets}, nil }
}

// recordingSleeper never blocks; it records requested delays and honours ctx.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// fakeDeliverer returns the scripted result and remembers what it was given.
type fakeDeliverer struct {
	mu       sync.Mutex
	received []RawAsset
	result   DeliveredAsset
	err      error
}

func (d *fakeDeliverer) Deliver(_ context.Context, a RawAsset) (DeliveredAsset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.received = append(d.received, a)
	if d.err != nil {
		return DeliveredAsset{}, d.err
	}
	out := d.result
	if out.URI == "" {
		out.URI = "https://cdn.example.com/" + a.Provider
	}
	if out.Method == "" {
		out.Method = DeliveryUploaded
	}
	return out, nil
}

func (d *fakeDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.received)
}
