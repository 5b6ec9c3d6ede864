// Package bootstrap wires configuration into clients, provider adapters,
// delivery stores, the orchestrator and the job service.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maauso/mediagen/internal/config"
	"github.com/maauso/mediagen/internal/delivery"
	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/job"
	"github.com/maauso/mediagen/internal/media"
	"github.com/maauso/mediagen/internal/metrics"
	"github.com/maauso/mediagen/internal/provider"
	"github.com/maauso/mediagen/internal/provider/googleai"
	"github.com/maauso/mediagen/internal/provider/openai"
	"github.com/maauso/mediagen/internal/provider/pollinations"
	"github.com/maauso/mediagen/internal/provider/runpodvideo"
	"github.com/maauso/mediagen/internal/runpod"
	"github.com/maauso/mediagen/internal/speech"
	"github.com/maauso/mediagen/internal/storage"
)

// geminiFilesHost serves Veo outputs of the Gemini API; downloads need the API key.
const geminiFilesHost = "generativelanguage.googleapis.com"

// providerHTTPTimeout bounds a single synchronous provider call.
const providerHTTPTimeout = 5 * time.Minute

// Dependencies holds all initialized dependencies shared by the entry points.
type Dependencies struct {
	Service      *job.Service
	Orchestrator *generation.Orchestrator
	Registry     *provider.Registry
	Metrics      *metrics.Recorder
	// AssetsDir is set when assets are delivered from local disk.
	AssetsDir string

	redis *redis.Client
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	recorder, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	scratch, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create temp storage: %w", err)
	}

	registry, err := newRegistry(ctx, cfg, scratch, logger)
	if err != nil {
		return nil, err
	}

	pipeline, assetsDir, err := newPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}

	orchestrator, err := newOrchestrator(cfg, registry, pipeline, recorder, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Orchestrator: orchestrator,
		Registry:     registry,
		Metrics:      recorder,
		AssetsDir:    assetsDir,
	}

	repo, cache, err := deps.initJobStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Service = job.NewService(repo, orchestrator, job.WithResultCache(cache), job.WithLogger(logger))

	return deps, nil
}

// Close releases the dependencies' connections.
func (d *Dependencies) Close() error {
	if d.redis != nil {
		return d.redis.Close()
	}
	return nil
}

// newRegistry builds every adapter. Adapters without credentials are still
// registered; they fail with AuthError so fallback moves on.
func newRegistry(ctx context.Context, cfg *config.Config, scratch *storage.LocalStorage, logger *slog.Logger) (*provider.Registry, error) {
	httpClient := &http.Client{Timeout: providerHTTPTimeout}

	genaiClient, err := googleai.NewClient(ctx, googleai.ClientConfig{
		APIKey:   cfg.GoogleAPIKey,
		Project:  cfg.GoogleProject,
		Location: cfg.GoogleLocation,
	})
	if err != nil {
		return nil, err
	}

	openaiClient := openai.NewClient(openai.ClientConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: httpClient,
	})

	var runpodClient runpod.Client
	if cfg.RunPodEnabled() {
		c, err := runpod.NewClient(cfg.RunPodAPIKey, cfg.RunPodEndpointID)
		if err != nil {
			return nil, fmt.Errorf("create RunPod client: %w", err)
		}
		runpodClient = c
	}

	synthesizer := speech.NewSynthesizer(
		speech.WithChunkChars(cfg.SpeechChunkChars),
		speech.WithConcurrency(cfg.SpeechBatchConcurrency),
		speech.WithJoiner(media.FormatJoiner{FFmpeg: media.NewFFmpegJoiner(cfg.FFmpegPath, scratch)}),
		speech.WithLogger(logger),
	)

	pollinationsOpts := []pollinations.Option{pollinations.WithHTTPClient(httpClient)}
	if cfg.PollinationsBaseURL != "" {
		pollinationsOpts = append(pollinationsOpts, pollinations.WithBaseURL(cfg.PollinationsBaseURL))
	}

	registry := provider.NewRegistry()
	err = registry.Register(
		googleai.NewImageAdapter(genaiClient,
			googleai.WithImagenModel(cfg.ImagenModel),
			googleai.WithEditModel(cfg.GeminiImageModel),
			googleai.WithImageOutputGCS(cfg.GoogleOutputGCSURI),
		),
		openai.NewImageAdapter(openaiClient, openai.WithImageModel(cfg.OpenAIImageModel)),
		pollinations.NewImageAdapter(pollinationsOpts...),
		googleai.NewVideoAdapter(genaiClient,
			googleai.WithVeoModel(cfg.VeoModel),
			googleai.WithVideoOutputGCS(cfg.GoogleOutputGCSURI),
		),
		runpodvideo.NewAdapter(runpodClient),
		openai.NewSpeechAdapter(openaiClient,
			openai.WithSpeechModel(cfg.OpenAISpeechModel),
			openai.WithSynthesizer(synthesizer),
			openai.WithChunkRetryPolicy(retryPolicy(cfg)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register providers: %w", err)
	}

	for _, name := range registry.Names() {
		logger.Info("provider registered",
			slog.String("provider", name),
			slog.Bool("credentialed", cfg.Credentialed(name)),
		)
	}
	return registry, nil
}

// newPipeline builds the delivery pipeline. It returns the local assets
// directory when delivering from disk.
func newPipeline(cfg *config.Config, logger *slog.Logger) (*delivery.Pipeline, string, error) {
	opts := []delivery.Option{delivery.WithLogger(logger)}
	var assetsDir string

	switch {
	case cfg.S3Enabled():
		store, err := storage.NewS3Storage(cfg.TempDir, storage.S3Config{
			Bucket:          cfg.DeliveryBucket,
			Region:          cfg.DeliveryRegion,
			Endpoint:        cfg.DeliveryEndpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PublicBaseURL:   cfg.DeliveryPublicBaseURL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("create S3 delivery store: %w", err)
		}
		opts = append(opts, delivery.WithStore(store))
		logger.Info("S3 delivery store configured",
			slog.String("bucket", cfg.DeliveryBucket),
			slog.String("region", cfg.DeliveryRegion),
		)
	case cfg.LocalDeliveryEnabled():
		store, err := storage.NewLocalStorage(cfg.TempDir, storage.WithPublicBaseURL(cfg.DeliveryPublicBaseURL))
		if err != nil {
			return nil, "", fmt.Errorf("create local delivery store: %w", err)
		}
		opts = append(opts, delivery.WithStore(store))
		assetsDir = store.AssetsRoot()
		logger.Info("local delivery store configured",
			slog.String("assets_dir", assetsDir),
			slog.String("public_base_url", cfg.DeliveryPublicBaseURL),
		)
	default:
		logger.Warn("no delivery store configured, only public-source and raw-link delivery are available")
	}

	fetchers := storage.SchemeRouter{}
	httpSource := storage.NewHTTPSource(storage.WithHostHeader(geminiFilesHost, "x-goog-api-key", cfg.GoogleAPIKey))
	fetchers["http"] = httpSource
	fetchers["https"] = httpSource

	if cfg.SourceEnabled() {
		source, err := storage.NewObjectSource(storage.S3Config{
			Endpoint:        cfg.SourceEndpoint,
			AccessKeyID:     cfg.SourceAccessKeyID,
			SecretAccessKey: cfg.SourceSecretAccessKey,
			PublicBaseURL:   cfg.SourcePublicBaseURL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("create object source: %w", err)
		}
		fetchers["gs"] = source
		fetchers["s3"] = source
		opts = append(opts, delivery.WithPublisher(source))
	}
	opts = append(opts, delivery.WithFetcher(fetchers))

	return delivery.NewPipeline(opts...), assetsDir, nil
}

func newOrchestrator(cfg *config.Config, registry *provider.Registry, deliverer generation.Deliverer, recorder generation.Recorder, logger *slog.Logger) (*generation.Orchestrator, error) {
	opts := []generation.Option{
		generation.WithPolicy(retryPolicy(cfg)),
		generation.WithPoller(newPoller(cfg, logger)),
		generation.WithRecorder(recorder),
		generation.WithLogger(logger),
	}

	lists := map[generation.Kind][]string{
		generation.KindImage:  cfg.ImageProviders,
		generation.KindVideo:  cfg.VideoProviders,
		generation.KindSpeech: cfg.SpeechProviders,
	}
	for kind, names := range lists {
		adapters, err := registry.Resolve(kind, names)
		if err != nil {
			return nil, fmt.Errorf("resolve %s providers: %w", kind, err)
		}
		opts = append(opts, generation.WithProviders(kind, adapters...))
		logger.Info("provider priority configured",
			slog.String("kind", string(kind)),
			slog.Any("providers", names),
		)
	}

	return generation.NewOrchestrator(deliverer, opts...)
}

// retryPolicy applies the configured retry settings to the default policy.
func retryPolicy(cfg *config.Config) generation.Policy {
	policy := generation.DefaultPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.BaseDelay = cfg.RetryBaseDelay
	policy.MaxDelay = cfg.RetryMaxDelay
	return policy
}

// newPoller builds the operation poller. Individual poll calls retry with
// the same policy as provider invocations.
func newPoller(cfg *config.Config, logger *slog.Logger) *generation.Poller {
	return generation.NewPoller(
		generation.WithPollInterval(cfg.PollInterval),
		generation.WithOperationTimeout(cfg.OperationTimeout),
		generation.WithPollPolicy(retryPolicy(cfg)),
		generation.WithPollLogger(logger),
	)
}

// initJobStore selects redis when configured, otherwise in-memory storage.
func (d *Dependencies) initJobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Repository, job.ResultCache, error) {
	if !cfg.RedisEnabled() {
		logger.Info("in-memory job store configured")
		return job.NewMemoryRepository(), job.NewMemoryResultCache(cfg.JobTTL), nil
	}

	client := job.NewRedisClient(cfg.RedisURL)
	if err := job.PingRedis(ctx, client); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	d.redis = client
	logger.Info("redis job store configured", slog.Duration("job_ttl", cfg.JobTTL))
	return job.NewRedisRepository(client, cfg.JobTTL), job.NewRedisResultCache(client, cfg.JobTTL, logger), nil
}
