// Package queue implements the SQS transport of the worker: generation
// requests are received from an input queue and results are published to
// an output queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Static errors for queue configuration.
var (
	// ErrInputQueueRequired is returned when no input queue URL is configured.
	ErrInputQueueRequired = errors.New("queue: input queue URL is required")
	// ErrOutputQueueRequired is returned when no output queue URL is configured.
	ErrOutputQueueRequired = errors.New("queue: output queue URL is required")
)

const (
	maxMessages = 10
	// waitSeconds enables SQS long polling.
	waitSeconds = 20
	// visibilitySeconds covers a full video generation including polling.
	visibilitySeconds = 900
)

// API is the subset of *sqs.Client used by SQSQueue.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

var _ API = (*sqs.Client)(nil)

// SQSQueue receives from an input queue and publishes to an output queue.
type SQSQueue struct {
	client      API
	inputQueue  string
	outputQueue string
}

// NewSQSQueue creates an SQSQueue.
func NewSQSQueue(client API, inputQueue, outputQueue string) (*SQSQueue, error) {
	if inputQueue == "" {
		return nil, ErrInputQueueRequired
	}
	if outputQueue == "" {
		return nil, ErrOutputQueueRequired
	}
	return &SQSQueue{client: client, inputQueue: inputQueue, outputQueue: outputQueue}, nil
}

// Receive long-polls the input queue.
func (q *SQSQueue) Receive(ctx context.Context) ([]types.Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.inputQueue),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitSeconds,
		VisibilityTimeout:   visibilitySeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("receive from input queue: %w", err)
	}
	return out.Messages, nil
}

// Publish sends result as JSON to the output queue.
func (q *SQSQueue) Publish(ctx context.Context, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.outputQueue),
		MessageBody: aws.String(string(data)),
	})
	if err != nil {
		return fmt.Errorf("send to output queue: %w", err)
	}
	return nil
}

// Delete removes a processed message from the input queue.
func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.inputQueue),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete from input queue: %w", err)
	}
	return nil
}
