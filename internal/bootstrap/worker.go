package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/maauso/mediagen/internal/config"
	"github.com/maauso/mediagen/internal/queue"
)

// ErrQueueNotConfigured is returned when the worker starts without SQS queues.
var ErrQueueNotConfigured = fmt.Errorf("bootstrap: %w", config.ErrIncompleteQueueConfig)

// NewWorker builds the SQS worker on top of deps.
func NewWorker(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*queue.Worker, error) {
	if !cfg.QueueEnabled() {
		return nil, ErrQueueNotConfigured
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.SQSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	q, err := queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SQSInputQueueURL, cfg.SQSOutputQueueURL)
	if err != nil {
		return nil, err
	}

	logger.Info("SQS worker configured",
		slog.String("input_queue", cfg.SQSInputQueueURL),
		slog.String("output_queue", cfg.SQSOutputQueueURL),
		slog.Int("concurrency", cfg.WorkerConcurrency),
	)
	return queue.NewWorker(q, deps.Service,
		queue.WithConcurrency(cfg.WorkerConcurrency),
		queue.WithLogger(logger),
	), nil
}
