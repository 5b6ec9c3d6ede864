// Package media joins synthesized audio segments into a single asset.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/maauso/mediagen/internal/storage"
)

// Static errors for media operations.
var (
	// ErrNoSegments is returned when no segments are provided for joining.
	ErrNoSegments = errors.New("media: no segments provided")
	// ErrTempStoreRequired is returned when the joiner has nowhere to stage files.
	ErrTempStoreRequired = errors.New("media: temp store required")
)

// Joiner concatenates audio segments of one format, preserving their order.
type Joiner interface {
	Join(ctx context.Context, segments [][]byte, format string) ([]byte, error)
}

// ConcatJoiner joins segments by byte concatenation. This is valid for
// frame-based or headerless formats (mp3, raw pcm) only.
type ConcatJoiner struct{}

// Join implements Joiner.
func (ConcatJoiner) Join(_ context.Context, segments [][]byte, _ string) ([]byte, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	return bytes.Join(segments, nil), nil
}

// Concatenable reports whether segments of format can be byte-concatenated.
func Concatenable(format string) bool {
	switch strings.ToLower(format) {
	case "", "mp3", "pcm":
		return true
	default:
		return false
	}
}

// FormatJoiner byte-concatenates formats where that is valid and hands every
// other format to the ffmpeg joiner.
type FormatJoiner struct {
	FFmpeg Joiner
}

// Join implements Joiner.
func (j FormatJoiner) Join(ctx context.Context, segments [][]byte, format string) ([]byte, error) {
	if len(segments) == 1 || Concatenable(format) || j.FFmpeg == nil {
		return ConcatJoiner{}.Join(ctx, segments, format)
	}
	return j.FFmpeg.Join(ctx, segments, format)
}

// FFmpegJoiner implements Joiner using the ffmpeg CLI concat demuxer.
type FFmpegJoiner struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	temp       storage.TempStore
}

// NewFFmpegJoiner creates a new FFmpegJoiner staging files in temp.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegJoiner(ffmpegPath string, temp storage.TempStore) *FFmpegJoiner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegJoiner{ffmpegPath: ffmpegPath, temp: temp}
}

// Join writes each segment to a temp file and concatenates them. It first
// attempts a stream copy and falls back to re-encoding if that fails.
func (p *FFmpegJoiner) Join(ctx context.Context, segments [][]byte, format string) ([]byte, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	if p.temp == nil {
		return nil, ErrTempStoreRequired
	}

	ext := "." + strings.TrimPrefix(strings.ToLower(format), ".")
	var paths []string
	defer func() { _ = p.temp.CleanupTemp(context.WithoutCancel(ctx), paths) }()

	for i, seg := range segments {
		path, err := p.temp.SaveTemp(ctx, fmt.Sprintf("segment_%03d", i), bytes.NewReader(seg))
		if err != nil {
			return nil, fmt.Errorf("stage segment %d: %w", i, err)
		}
		// ffmpeg picks the demuxer from the extension.
		named := path + ext
		if err := os.Rename(path, named); err != nil {
			paths = append(paths, path)
			return nil, fmt.Errorf("rename segment %d: %w", i, err)
		}
		paths = append(paths, named)
	}

	listFile, err := p.createConcatList(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("create concat list: %w", err)
	}
	paths = append(paths, listFile)

	output := strings.TrimSuffix(listFile, filepath.Ext(listFile)) + "_joined" + ext
	paths = append(paths, output)

	if err := p.joinWithCopy(ctx, listFile, output); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		if err := p.joinWithReencode(ctx, listFile, output); err != nil {
			return nil, err
		}
	}

	rc, err := p.temp.LoadTemp(ctx, output)
	if err != nil {
		return nil, fmt.Errorf("open joined output: %w", err)
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// joinWithCopy attempts to concatenate segments using stream copy.
func (p *FFmpegJoiner) joinWithCopy(ctx context.Context, listFile, output string) error {
	args := []string{
		"-y",           // Overwrite output file
		"-f", "concat", // Use concat demuxer
		"-safe", "0", // Allow absolute paths
		"-i", listFile, // Input file list
		"-c", "copy", // Copy streams without re-encoding
		output,
	}
	return p.runFFmpeg(ctx, args)
}

// joinWithReencode concatenates segments by re-encoding with the codec
// ffmpeg selects for the output extension.
func (p *FFmpegJoiner) joinWithReencode(ctx context.Context, listFile, output string) error {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-vn",
		output,
	}
	return p.runFFmpeg(ctx, args)
}

// createConcatList writes the file list required by ffmpeg's concat demuxer.
func (p *FFmpegJoiner) createConcatList(ctx context.Context, paths []string) (string, error) {
	var b strings.Builder
	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		fmt.Fprintf(&b, "file '%s'\n", escapedPath)
	}
	return p.temp.SaveTemp(ctx, "concat", strings.NewReader(b.String()))
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegJoiner) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
