package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediagen/internal/generation"
)

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.ReceiveMessageOutput)
	return out, args.Error(1)
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

func (m *mockSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.DeleteMessageOutput)
	return out, args.Error(1)
}

func TestNewSQSQueue_RequiresQueues(t *testing.T) {
	_, err := NewSQSQueue(&mockSQS{}, "", "out")
	assert.ErrorIs(t, err, ErrInputQueueRequired)

	_, err = NewSQSQueue(&mockSQS{}, "in", "")
	assert.ErrorIs(t, err, ErrOutputQueueRequired)
}

func TestSQSQueue_Operations(t *testing.T) {
	client := &mockSQS{}
	q, err := NewSQSQueue(client, "https://sqs/in", "https://sqs/out")
	require.NoError(t, err)
	ctx := context.Background()

	client.On("ReceiveMessage", ctx, mock.MatchedBy(func(in *sqs.ReceiveMessageInput) bool {
		return aws.ToString(in.QueueUrl) == "https://sqs/in" && in.WaitTimeSeconds == waitSeconds
	})).Return(&sqs.ReceiveMessageOutput{Messages: []types.Message{{Body: aws.String("{}")}}}, nil)

	client.On("SendMessage", ctx, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.QueueUrl) == "https://sqs/out" && aws.ToString(in.MessageBody) == `{"id":"a","status":"completed"}`
	})).Return(&sqs.SendMessageOutput{}, nil)

	client.On("DeleteMessage", ctx, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
		return aws.ToString(in.QueueUrl) == "https://sqs/in" && aws.ToString(in.ReceiptHandle) == "rh-1"
	})).Return(&sqs.DeleteMessageOutput{}, nil)

	msgs, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	require.NoError(t, q.Publish(ctx, Result{ID: "a", Status: ResultCompleted}))
	require.NoError(t, q.Delete(ctx, "rh-1"))

	client.AssertExpectations(t)
}

func TestSQSQueue_ErrorsAreWrapped(t *testing.T) {
	client := &mockSQS{}
	q, _ := NewSQSQueue(client, "in", "out")
	boom := errors.New("boom")

	client.On("ReceiveMessage", mock.Anything, mock.Anything).Return(nil, boom)
	client.On("SendMessage", mock.Anything, mock.Anything).Return(nil, boom)

	_, err := q.Receive(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, q.Publish(context.Background(), Result{}), boom)
}

// fakeQueue records published results and deletions.
type fakeQueue struct {
	mu         sync.Mutex
	batches    [][]types.Message
	published  []Result
	deleted    []string
	publishErr error
}

func (q *fakeQueue) Receive(ctx context.Context) ([]types.Message, error) {
	q.mu.Lock()
	if len(q.batches) > 0 {
		batch := q.batches[0]
		q.batches = q.batches[1:]
		q.mu.Unlock()
		return batch, nil
	}
	q.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *fakeQueue) Publish(_ context.Context, result any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, result.(Result))
	return nil
}

func (q *fakeQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

type generatorFunc func(ctx context.Context, req generation.Request) (generation.DeliveredAsset, error)

func (f generatorFunc) GenerateSync(ctx context.Context, req generation.Request) (generation.DeliveredAsset, error) {
	return f(ctx, req)
}

func message(receipt, body string) types.Message {
	return types.Message{MessageId: aws.String(receipt), ReceiptHandle: aws.String(receipt), Body: aws.String(body)}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorker_HandleSuccess(t *testing.T) {
	q := &fakeQueue{}
	var got generation.Request
	w := NewWorker(q, generatorFunc(func(_ context.Context, req generation.Request) (generation.DeliveredAsset, error) {
		got = req
		return generation.DeliveredAsset{URI: "https://cdn/a.mp3", Method: generation.DeliveryUploaded, Provider: "openai-tts"}, nil
	}), WithLogger(quietLogger()))

	w.Handle(context.Background(), message("rh-1", `{"id":"req-1","kind":"speech","prompt":"hello","options":{"voice":"nova"}}`))

	assert.Equal(t, generation.KindSpeech, got.Kind)
	assert.Equal(t, "nova", got.Options.Voice)
	require.Len(t, q.published, 1)
	assert.Equal(t, "req-1", q.published[0].ID)
	assert.Equal(t, ResultCompleted, q.published[0].Status)
	require.NotNil(t, q.published[0].Success)
	assert.Equal(t, "https://cdn/a.mp3", q.published[0].Success.DeliveredURI)
	assert.Equal(t, []string{"rh-1"}, q.deleted)
}

func TestWorker_HandleFailure(t *testing.T) {
	q := &fakeQueue{}
	w := NewWorker(q, generatorFunc(func(context.Context, generation.Request) (generation.DeliveredAsset, error) {
		return generation.DeliveredAsset{}, &generation.Error{
			Kind:     generation.KindAllProvidersExhausted,
			Err:      errors.New("no provider produced an asset"),
			Attempts: []generation.AttemptRecord{{Provider: "veo", Outcome: generation.OutcomeFailure, ErrorKind: generation.KindOperationTimeout}},
		}
	}), WithLogger(quietLogger()))

	w.Handle(context.Background(), message("rh-2", `{"id":"req-2","kind":"video","prompt":"waves"}`))

	require.Len(t, q.published, 1)
	res := q.published[0]
	assert.Equal(t, ResultFailed, res.Status)
	require.NotNil(t, res.Failure)
	assert.Equal(t, "AllProvidersExhausted", res.Failure.ErrorKind)
	require.Len(t, res.Failure.Attempts, 1)
	assert.Equal(t, "OperationTimeout", res.Failure.Attempts[0].ErrorKind)
	assert.Equal(t, []string{"rh-2"}, q.deleted)
}

func TestWorker_HandleMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":       `{not json`,
		"unknown kind":   `{"id":"x","kind":"music","prompt":"p"}`,
		"missing prompt": `{"id":"x","kind":"image"}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			q := &fakeQueue{}
			called := false
			w := NewWorker(q, generatorFunc(func(context.Context, generation.Request) (generation.DeliveredAsset, error) {
				called = true
				return generation.DeliveredAsset{}, nil
			}), WithLogger(quietLogger()))

			w.Handle(context.Background(), message("rh", body))

			assert.False(t, called)
			require.Len(t, q.published, 1)
			assert.Equal(t, "InvalidRequest", q.published[0].Failure.ErrorKind)
			assert.Equal(t, []string{"rh"}, q.deleted)
		})
	}
}

func TestWorker_PublishFailureKeepsMessage(t *testing.T) {
	q := &fakeQueue{publishErr: errors.New("sqs down")}
	w := NewWorker(q, generatorFunc(func(context.Context, generation.Request) (generation.DeliveredAsset, error) {
		return generation.DeliveredAsset{URI: "https://cdn/a.png"}, nil
	}), WithLogger(quietLogger()))

	w.Handle(context.Background(), message("rh-3", `{"kind":"image","prompt":"p"}`))

	assert.Empty(t, q.deleted)
}

func TestWorker_ShutdownLeavesMessage(t *testing.T) {
	q := &fakeQueue{}
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(q, generatorFunc(func(ctx context.Context, _ generation.Request) (generation.DeliveredAsset, error) {
		cancel()
		<-ctx.Done()
		return generation.DeliveredAsset{}, generation.NewError(generation.KindCancelled, "", "generate", ctx.Err())
	}), WithLogger(quietLogger()))

	w.Handle(ctx, message("rh-4", `{"kind":"image","prompt":"p"}`))

	assert.Empty(t, q.published)
	assert.Empty(t, q.deleted)
}

func TestWorker_RunBoundsConcurrency(t *testing.T) {
	const total = 6
	batch := make([]types.Message, 0, total)
	for i := range total {
		batch = append(batch, message(string(rune('a'+i)), `{"kind":"image","prompt":"p"}`))
	}
	q := &fakeQueue{batches: [][]types.Message{batch}}

	var (
		mu      sync.Mutex
		active  int
		peak    int
		handled int
		done    = make(chan struct{})
	)
	gen := generatorFunc(func(context.Context, generation.Request) (generation.DeliveredAsset, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		active--
		handled++
		if handled == total {
			close(done)
		}
		mu.Unlock()
		return generation.DeliveredAsset{URI: "https://cdn/x.png"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(q, gen, WithConcurrency(2), WithLogger(quietLogger()))

	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("messages were not processed")
	}
	cancel()
	<-stopped

	assert.LessOrEqual(t, peak, 2)
	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Len(t, q.deleted, total)

	var raw []byte
	raw, _ = json.Marshal(q.published[0])
	assert.Contains(t, string(raw), `"status":"completed"`)
}
