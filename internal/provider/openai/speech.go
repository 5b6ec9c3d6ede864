package openai

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/provider"
	"github.com/maauso/mediagen/internal/speech"
)

// SpeechProviderName is the registry name of the OpenAI text-to-speech adapter.
const SpeechProviderName = "openai-tts"

// Speech defaults.
const (
	DefaultVoice  = "alloy"
	DefaultFormat = "mp3"
)

// SpeechAdapter synthesizes speech with the OpenAI Audio API. Long input is
// split into chunks and synthesized in parallel.
type SpeechAdapter struct {
	client      *openai.Client
	model       string
	synthesizer *speech.Synthesizer
	// chunkPolicy retries each chunk on its own, so one rate-limited chunk
	// never re-synthesizes the others.
	chunkPolicy generation.Policy
	sleep       generation.Sleeper
}

var _ generation.Adapter = (*SpeechAdapter)(nil)

// SpeechOption configures a SpeechAdapter.
type SpeechOption func(*SpeechAdapter)

// WithSpeechModel overrides the speech model.
func WithSpeechModel(m string) SpeechOption {
	return func(a *SpeechAdapter) {
		if m != "" {
			a.model = m
		}
	}
}

// WithSynthesizer sets the chunking synthesizer.
func WithSynthesizer(s *speech.Synthesizer) SpeechOption {
	return func(a *SpeechAdapter) {
		if s != nil {
			a.synthesizer = s
		}
	}
}

// WithChunkRetryPolicy sets the retry policy applied to each chunk request.
func WithChunkRetryPolicy(p generation.Policy) SpeechOption {
	return func(a *SpeechAdapter) {
		a.chunkPolicy = p
	}
}

// WithChunkSleeper replaces the backoff sleeper between chunk retries.
func WithChunkSleeper(s generation.Sleeper) SpeechOption {
	return func(a *SpeechAdapter) {
		if s != nil {
			a.sleep = s
		}
	}
}

// NewSpeechAdapter creates a SpeechAdapter. A nil client yields an adapter
// whose invocations fail with AuthError.
func NewSpeechAdapter(client *openai.Client, opts ...SpeechOption) *SpeechAdapter {
	a := &SpeechAdapter{
		client:      client,
		model:       DefaultSpeechModel,
		synthesizer: speech.NewSynthesizer(),
		chunkPolicy: generation.DefaultPolicy(),
		sleep:       generation.Sleep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Descriptor implements generation.Adapter.
func (a *SpeechAdapter) Descriptor() generation.Descriptor {
	return generation.Descriptor{
		Name:                SpeechProviderName,
		Kinds:               []generation.Kind{generation.KindSpeech},
		RequiresCredentials: true,
		RetriesInternally:   true,
	}
}

// Invoke implements generation.Adapter.
func (a *SpeechAdapter) Invoke(ctx context.Context, req generation.Request) (generation.Invocation, error) {
	if a.client == nil {
		return generation.Invocation{}, provider.MissingCredentials(SpeechProviderName, "OPENAI_API_KEY")
	}

	voice := req.Options.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	format := strings.ToLower(req.Options.Format)
	if format == "" {
		format = DefaultFormat
	}
	instructions := req.Options.Extra["instructions"]

	audio, err := a.synthesizer.Synthesize(ctx, req.Prompt, format, func(ctx context.Context, _ int, text string) ([]byte, error) {
		audio, _, err := generation.Retry(ctx, a.chunkPolicy, a.sleep, func(ctx context.Context) ([]byte, error) {
			return a.synthesize(ctx, text, voice, format, instructions)
		})
		return audio, err
	})
	if err != nil {
		switch {
		case errors.Is(err, speech.ErrEmptyText):
			return generation.Invocation{}, generation.NewError(generation.KindInvalidRequest, SpeechProviderName, "synthesize", err)
		case errors.Is(err, speech.ErrJoinFailed):
			return generation.Invocation{}, generation.NewError(generation.KindInvalidResponse, SpeechProviderName, "join", err)
		}
		return generation.Invocation{}, provider.ClassifyTransport(ctx, SpeechProviderName, "synthesize", err)
	}

	return generation.Invocation{Asset: &generation.RawAsset{
		Data:     audio,
		MIMEType: AudioMIMEType(format),
		Size:     int64(len(audio)),
	}}, nil
}

func (a *SpeechAdapter) synthesize(ctx context.Context, text, voice, format, instructions string) ([]byte, error) {
	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(a.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(format),
	}
	if instructions != "" {
		params.Instructions = param.NewOpt(instructions)
	}

	resp, err := a.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, classify(ctx, SpeechProviderName, "speech", err)
	}
	defer func() { _ = resp.Body.Close() }()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.ClassifyTransport(ctx, SpeechProviderName, "speech", err)
	}
	if len(audio) == 0 {
		return nil, generation.Errorf(generation.KindInvalidResponse, SpeechProviderName, "speech", "empty audio body")
	}
	return audio, nil
}

// Poll implements generation.Adapter. Speech synthesis is synchronous.
func (a *SpeechAdapter) Poll(context.Context, string) (generation.PollResult, error) {
	return generation.PollResult{}, generation.NewError(generation.KindInvalidRequest, SpeechProviderName, "poll", generation.ErrPollUnsupported)
}

// AudioMIMEType returns the content type for a speech output format.
func AudioMIMEType(format string) string {
	switch strings.ToLower(format) {
	case "mp3", "":
		return "audio/mpeg"
	case "opus":
		return "audio/opus"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/pcm"
	default:
		return "application/octet-stream"
	}
}
