package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/maauso/mediagen/internal/api"
	"github.com/maauso/mediagen/internal/generation"
)

// DefaultConcurrency is the number of messages processed at once.
const DefaultConcurrency = 4

// receiveBackoff is the pause after a failed receive.
const receiveBackoff = 5 * time.Second

// Message is the body of an input queue message.
type Message struct {
	// ID is echoed back in the result so producers can correlate.
	ID string `json:"id"`
	api.GenerationRequest
}

// Result is the body published to the output queue.
type Result struct {
	ID      string       `json:"id"`
	Status  string       `json:"status"`
	Success *api.Success `json:"result,omitempty"`
	Failure *api.Failure `json:"failure,omitempty"`
}

// Result statuses.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)

// Queue is the transport consumed by Worker. *SQSQueue satisfies it.
type Queue interface {
	Receive(ctx context.Context) ([]types.Message, error)
	Publish(ctx context.Context, result any) error
	Delete(ctx context.Context, receiptHandle string) error
}

// Generator runs one request to completion.
type Generator interface {
	GenerateSync(ctx context.Context, req generation.Request) (generation.DeliveredAsset, error)
}

// Worker consumes generation requests from a Queue.
type Worker struct {
	queue     Queue
	generator Generator
	logger    *slog.Logger
	sem       chan struct{}
	wg        sync.WaitGroup
	sleep     generation.Sleeper
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithConcurrency bounds the number of in-flight messages.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.sem = make(chan struct{}, n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker creates a Worker.
func NewWorker(q Queue, g Generator, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:     q,
		generator: g,
		logger:    slog.Default(),
		sem:       make(chan struct{}, DefaultConcurrency),
		sleep:     generation.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run receives and processes messages until ctx is cancelled, then waits
// for in-flight messages. Messages interrupted by shutdown are left on the
// queue for redelivery.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", slog.Int("concurrency", cap(w.sem)))
	defer func() {
		w.wg.Wait()
		w.logger.Info("worker stopped")
	}()

	for ctx.Err() == nil {
		messages, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive messages", slog.String("error", err.Error()))
			_ = w.sleep(ctx, receiveBackoff)
			continue
		}

		for _, msg := range messages {
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			w.wg.Add(1)
			go func(msg types.Message) {
				defer w.wg.Done()
				defer func() { <-w.sem }()
				w.Handle(ctx, msg)
			}(msg)
		}
	}
}

// Handle processes one message: generate, publish the result, delete.
// Malformed messages are answered with an InvalidRequest failure.
func (w *Worker) Handle(ctx context.Context, msg types.Message) {
	var in Message
	result := Result{Status: ResultFailed}

	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &in); err != nil {
		failure := api.NewFailure(generation.NewError(generation.KindInvalidRequest, "", "decode", err))
		result.Failure = &failure
		w.finish(ctx, msg, result)
		return
	}
	result.ID = in.ID

	req, err := in.ToDomain()
	if err != nil {
		failure := api.NewFailure(generation.NewError(generation.KindInvalidRequest, "", "validate", err))
		result.Failure = &failure
		w.finish(ctx, msg, result)
		return
	}

	w.logger.Info("processing message",
		slog.String("message_id", aws.ToString(msg.MessageId)),
		slog.String("id", in.ID),
		slog.String("kind", string(req.Kind)),
	)

	asset, err := w.generator.GenerateSync(ctx, req)
	if err != nil {
		if ctx.Err() != nil && generation.KindOf(err) == generation.KindCancelled {
			w.logger.Warn("generation interrupted by shutdown, leaving message for redelivery",
				slog.String("id", in.ID),
			)
			return
		}
		failure := api.NewFailure(err)
		result.Failure = &failure
	} else {
		success := api.NewSuccess(asset)
		result.Status = ResultCompleted
		result.Success = &success
	}
	w.finish(ctx, msg, result)
}

// finish publishes result and then deletes msg. A message whose result
// could not be published stays on the queue.
func (w *Worker) finish(ctx context.Context, msg types.Message, result Result) {
	// Publishing must complete even when shutdown starts mid-way.
	ctx = context.WithoutCancel(ctx)

	if err := w.queue.Publish(ctx, result); err != nil {
		w.logger.Error("failed to publish result",
			slog.String("id", result.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := w.queue.Delete(ctx, aws.ToString(msg.ReceiptHandle)); err != nil {
		w.logger.Error("failed to delete message",
			slog.String("id", result.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	attrs := []any{slog.String("id", result.ID), slog.String("status", result.Status)}
	if result.Failure != nil {
		attrs = append(attrs, slog.String("error_kind", result.Failure.ErrorKind))
	}
	w.logger.Info("message processed", attrs...)
}
