package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/mediagen/internal/media"
)

// DefaultConcurrency is the default number of chunks synthesized at once.
const DefaultConcurrency = 15

// Static errors for speech synthesis.
var (
	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("speech: text is empty")
	// ErrJoinFailed wraps failures combining chunk audio.
	ErrJoinFailed = errors.New("speech: join failed")
)

// SegmentFunc synthesizes a single chunk of text into audio bytes.
type SegmentFunc func(ctx context.Context, index int, text string) ([]byte, error)

// Synthesizer turns arbitrarily long text into one audio payload by
// chunking, synthesizing chunks in parallel and joining the results in order.
type Synthesizer struct {
	chunkChars  int
	concurrency int
	joiner      media.Joiner
	logger      *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithChunkChars sets the maximum characters per provider call.
func WithChunkChars(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.chunkChars = n
		}
	}
}

// WithConcurrency caps the number of in-flight chunk syntheses.
func WithConcurrency(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithJoiner sets the joiner used to combine chunk audio.
func WithJoiner(j media.Joiner) Option {
	return func(s *Synthesizer) {
		if j != nil {
			s.joiner = j
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSynthesizer creates a Synthesizer. Without WithJoiner, chunks are
// byte-concatenated, which is only correct for mp3 and pcm output.
func NewSynthesizer(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		chunkChars:  DefaultChunkChars,
		concurrency: DefaultConcurrency,
		joiner:      media.FormatJoiner{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChunkChars returns the configured chunk size.
func (s *Synthesizer) ChunkChars() int {
	return s.chunkChars
}

// Synthesize splits text, synthesizes every chunk through fn and joins the
// audio in chunk order.
func (s *Synthesizer) Synthesize(ctx context.Context, text, format string, fn SegmentFunc) ([]byte, error) {
	chunks := Split(text, s.chunkChars)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}

	start := time.Now()
	segments, err := s.SynthesizeAll(ctx, chunks, fn)
	if err != nil {
		return nil, err
	}
	if len(segments) == 1 {
		return segments[0], nil
	}

	audio, err := s.joiner.Join(ctx, segments, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %d segments: %w", ErrJoinFailed, len(segments), err)
	}
	s.logger.Debug("speech synthesized",
		slog.Int("chunks", len(chunks)),
		slog.String("format", format),
		slog.Int("bytes", len(audio)),
		slog.Duration("duration", time.Since(start)),
	)
	return audio, nil
}

// SynthesizeAll runs fn for each chunk with at most the configured number
// of calls in flight. Results are returned in input order. The first error
// cancels the remaining calls and is returned.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, chunks []string, fn SegmentFunc) ([][]byte, error) {
	results := make([][]byte, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			audio, err := fn(gctx, i, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = audio
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
