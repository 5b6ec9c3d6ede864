// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrUnknownProvider is returned when a priority list names an unknown provider.
	ErrUnknownProvider = errors.New("config: unknown provider")
	// ErrProviderKindMismatch is returned when a provider is listed for a kind it cannot produce.
	ErrProviderKindMismatch = errors.New("config: provider does not support kind")
	// ErrNoUsableProvider is returned when no listed provider of a kind has credentials.
	ErrNoUsableProvider = errors.New("config: no configured provider with credentials")
	// ErrRunPodEndpointIDRequired is returned when RUNPOD_API_KEY is set without RUNPOD_ENDPOINT_ID.
	ErrRunPodEndpointIDRequired = errors.New("config: RUNPOD_ENDPOINT_ID is required with RUNPOD_API_KEY")
	// ErrInvalidDuration is returned for non-positive timing settings.
	ErrInvalidDuration = errors.New("config: durations must be positive")
	// ErrIncompleteQueueConfig is returned when only one of the SQS queue URLs is set.
	ErrIncompleteQueueConfig = errors.New("config: SQS_INPUT_QUEUE_URL and SQS_OUTPUT_QUEUE_URL must be set together")
)

// Provider names accepted in the priority lists.
const (
	ProviderImagen       = "imagen"
	ProviderOpenAIImage  = "openai-image"
	ProviderPollinations = "pollinations"
	ProviderVeo          = "veo"
	ProviderRunPod       = "runpod"
	ProviderOpenAITTS    = "openai-tts"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"

	// Google generative media (Gemini API key, or Vertex AI project)
	GoogleAPIKey       string `env:"GOOGLE_API_KEY" json:"-"` // Masked in JSON
	GoogleProject      string `env:"GOOGLE_PROJECT" json:"google_project,omitempty"`
	GoogleLocation     string `env:"GOOGLE_LOCATION, default=us-central1" json:"google_location"`
	GoogleOutputGCSURI string `env:"GOOGLE_OUTPUT_GCS_URI" json:"google_output_gcs_uri,omitempty"`
	ImagenModel        string `env:"IMAGEN_MODEL" json:"imagen_model,omitempty"`
	GeminiImageModel   string `env:"GEMINI_IMAGE_MODEL" json:"gemini_image_model,omitempty"`
	VeoModel           string `env:"VEO_MODEL" json:"veo_model,omitempty"`

	// OpenAI
	OpenAIAPIKey      string `env:"OPENAI_API_KEY" json:"-"` // Masked in JSON
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL" json:"openai_base_url,omitempty"`
	OpenAIImageModel  string `env:"OPENAI_IMAGE_MODEL" json:"openai_image_model,omitempty"`
	OpenAISpeechModel string `env:"OPENAI_SPEECH_MODEL" json:"openai_speech_model,omitempty"`

	// Pollinations
	PollinationsBaseURL string `env:"POLLINATIONS_BASE_URL" json:"pollinations_base_url,omitempty"`

	// RunPod
	RunPodAPIKey     string `env:"RUNPOD_API_KEY" json:"-"` // Masked in JSON
	RunPodEndpointID string `env:"RUNPOD_ENDPOINT_ID" json:"runpod_endpoint_id,omitempty"`

	// Provider priority per kind, first to last
	ImageProviders  []string `env:"IMAGE_PROVIDERS, default=imagen,openai-image,pollinations" json:"image_providers"`
	VideoProviders  []string `env:"VIDEO_PROVIDERS, default=veo" json:"video_providers"`
	SpeechProviders []string `env:"SPEECH_PROVIDERS, default=openai-tts" json:"speech_providers"`

	// Orchestration
	PollInterval     time.Duration `env:"POLL_INTERVAL, default=15s" json:"poll_interval"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT, default=10m" json:"operation_timeout"`
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS, default=3" json:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY, default=1s" json:"retry_base_delay"`
	RetryMaxDelay    time.Duration `env:"RETRY_MAX_DELAY, default=30s" json:"retry_max_delay"`

	// Speech
	SpeechChunkChars       int    `env:"SPEECH_CHUNK_CHARS, default=4000" json:"speech_chunk_chars"`
	SpeechBatchConcurrency int    `env:"SPEECH_BATCH_CONCURRENCY, default=15" json:"speech_batch_concurrency"`
	FFmpegPath             string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`

	// Delivery store: S3 bucket, or local disk served under /assets/
	DeliveryBucket        string `env:"DELIVERY_BUCKET" json:"delivery_bucket,omitempty"`
	DeliveryRegion        string `env:"DELIVERY_REGION, default=us-east-1" json:"delivery_region"`
	DeliveryEndpoint      string `env:"DELIVERY_ENDPOINT" json:"delivery_endpoint,omitempty"`
	DeliveryPublicBaseURL string `env:"DELIVERY_PUBLIC_BASE_URL" json:"delivery_public_base_url,omitempty"`
	AWSAccessKeyID        string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey    string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Provider-side object access (GCS through its S3 interoperability API)
	SourceEndpoint        string `env:"SOURCE_ENDPOINT" json:"source_endpoint,omitempty"`
	SourceAccessKeyID     string `env:"SOURCE_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	SourceSecretAccessKey string `env:"SOURCE_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON
	SourcePublicBaseURL   string `env:"SOURCE_PUBLIC_BASE_URL" json:"source_public_base_url,omitempty"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/mediagen" json:"temp_dir"`

	// Jobs and idempotency
	RedisURL string        `env:"REDIS_URL" json:"-"` // Masked in JSON, may carry a password
	JobTTL   time.Duration `env:"JOB_TTL, default=24h" json:"job_ttl"`

	// Worker
	SQSInputQueueURL  string `env:"SQS_INPUT_QUEUE_URL" json:"sqs_input_queue_url,omitempty"`
	SQSOutputQueueURL string `env:"SQS_OUTPUT_QUEUE_URL" json:"sqs_output_queue_url,omitempty"`
	SQSRegion         string `env:"SQS_REGION, default=us-east-1" json:"sqs_region"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY, default=4" json:"worker_concurrency"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ImageProviders = normalizeList(cfg.ImageProviders)
	cfg.VideoProviders = normalizeList(cfg.VideoProviders)
	cfg.SpeechProviders = normalizeList(cfg.SpeechProviders)
	return cfg, nil
}

// GoogleEnabled returns true if Gemini API or Vertex AI credentials are set.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleAPIKey != "" || c.GoogleProject != ""
}

// OpenAIEnabled returns true if an OpenAI API key is set.
func (c *Config) OpenAIEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// RunPodEnabled returns true if RunPod credentials are set.
func (c *Config) RunPodEnabled() bool {
	return c.RunPodAPIKey != "" && c.RunPodEndpointID != ""
}

// S3Enabled returns true if the S3 delivery store is configured.
func (c *Config) S3Enabled() bool {
	return c.DeliveryBucket != ""
}

// LocalDeliveryEnabled returns true if assets are delivered from local disk.
func (c *Config) LocalDeliveryEnabled() bool {
	return !c.S3Enabled() && c.DeliveryPublicBaseURL != ""
}

// SourceEnabled returns true if provider-side objects can be read and published.
func (c *Config) SourceEnabled() bool {
	return c.SourceAccessKeyID != "" && c.SourceSecretAccessKey != ""
}

// RedisEnabled returns true if jobs and results are kept in redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// QueueEnabled returns true if the SQS worker transport is configured.
func (c *Config) QueueEnabled() bool {
	return c.SQSInputQueueURL != "" && c.SQSOutputQueueURL != ""
}

// ProviderKinds maps each known provider to the kind it produces.
var ProviderKinds = map[string]string{
	ProviderImagen:       "image",
	ProviderOpenAIImage:  "image",
	ProviderPollinations: "image",
	ProviderVeo:          "video",
	ProviderRunPod:       "video",
	ProviderOpenAITTS:    "speech",
}

// Credentialed reports whether the named provider has the credentials it needs.
func (c *Config) Credentialed(provider string) bool {
	switch provider {
	case ProviderImagen, ProviderVeo:
		return c.GoogleEnabled()
	case ProviderOpenAIImage, ProviderOpenAITTS:
		return c.OpenAIEnabled()
	case ProviderRunPod:
		return c.RunPodEnabled()
	case ProviderPollinations:
		return true
	default:
		return false
	}
}

// Validate checks the provider priority lists and timing settings.
// Every kind needs at least one listed provider with credentials; listed
// providers without credentials stay in the list and fail over.
func (c *Config) Validate() error {
	if c.RunPodAPIKey != "" && c.RunPodEndpointID == "" {
		return ErrRunPodEndpointIDRequired
	}
	if c.PollInterval <= 0 || c.OperationTimeout <= 0 || c.RetryBaseDelay <= 0 || c.RetryMaxDelay <= 0 {
		return ErrInvalidDuration
	}
	if (c.SQSInputQueueURL == "") != (c.SQSOutputQueueURL == "") {
		return ErrIncompleteQueueConfig
	}

	lists := []struct {
		kind  string
		names []string
	}{
		{"image", c.ImageProviders},
		{"video", c.VideoProviders},
		{"speech", c.SpeechProviders},
	}
	var errs []error
	for _, l := range lists {
		usable := false
		for _, name := range l.names {
			kind, ok := ProviderKinds[name]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %q in %s providers", ErrUnknownProvider, name, l.kind))
				continue
			}
			if kind != l.kind {
				errs = append(errs, fmt.Errorf("%w: %q produces %s, listed for %s", ErrProviderKindMismatch, name, kind, l.kind))
				continue
			}
			if c.Credentialed(name) {
				usable = true
			}
		}
		if !usable {
			errs = append(errs, fmt.Errorf("%w: %s (listed: %s)", ErrNoUsableProvider, l.kind, strings.Join(l.names, ",")))
		}
	}
	return errors.Join(errs...)
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, GoogleAPIKey: %s, GoogleProject: %s, OpenAIAPIKey: %s, RunPodAPIKey: %s, RunPodEndpointID: %s, "+
			"ImageProviders: %v, VideoProviders: %v, SpeechProviders: %v, PollInterval: %s, OperationTimeout: %s, "+
			"DeliveryBucket: %s, DeliveryPublicBaseURL: %s, AWSSecretAccessKey: %s, SourceSecretAccessKey: %s, "+
			"RedisURL: %s, SQSInputQueueURL: %s, TempDir: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		mask(c.GoogleAPIKey),
		c.GoogleProject,
		mask(c.OpenAIAPIKey),
		mask(c.RunPodAPIKey),
		c.RunPodEndpointID,
		c.ImageProviders,
		c.VideoProviders,
		c.SpeechProviders,
		c.PollInterval,
		c.OperationTimeout,
		c.DeliveryBucket,
		c.DeliveryPublicBaseURL,
		mask(c.AWSSecretAccessKey),
		mask(c.SourceSecretAccessKey),
		mask(c.RedisURL),
		c.SQSInputQueueURL,
		c.TempDir,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
