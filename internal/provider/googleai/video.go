package googleai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/provider"
)

// VideoProviderName is the registry name of the Veo adapter.
const VideoProviderName = "veo"

// videoModels is the subset of *genai.Models used for video.
type videoModels interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// videoOperations is the subset of *genai.Operations used for polling.
type videoOperations interface {
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// VideoAdapter starts Veo generations and polls the resulting long-running
// operations.
type VideoAdapter struct {
	models     videoModels
	operations videoOperations
	model      string
	outputGCS  string
}

var _ generation.Adapter = (*VideoAdapter)(nil)

// VideoOption configures a VideoAdapter.
type VideoOption func(*VideoAdapter)

// WithVeoModel overrides the Veo model.
func WithVeoModel(m string) VideoOption {
	return func(a *VideoAdapter) {
		if m != "" {
			a.model = m
		}
	}
}

// WithVideoOutputGCS makes Veo write results under a gs:// prefix.
func WithVideoOutputGCS(uri string) VideoOption {
	return func(a *VideoAdapter) {
		a.outputGCS = uri
	}
}

// NewVideoAdapter creates a VideoAdapter. A nil client yields an adapter
// whose invocations fail with AuthError.
func NewVideoAdapter(client *genai.Client, opts ...VideoOption) *VideoAdapter {
	var (
		models videoModels
		ops    videoOperations
	)
	if client != nil {
		models = client.Models
		ops = client.Operations
	}
	return newVideoAdapter(models, ops, opts...)
}

func newVideoAdapter(models videoModels, ops videoOperations, opts ...VideoOption) *VideoAdapter {
	a := &VideoAdapter{
		models:     models,
		operations: ops,
		model:      DefaultVeoModel,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Descriptor implements generation.Adapter.
func (a *VideoAdapter) Descriptor() generation.Descriptor {
	return generation.Descriptor{
		Name:                VideoProviderName,
		Kinds:               []generation.Kind{generation.KindVideo},
		SupportsEdit:        true,
		Async:               true,
		RequiresCredentials: true,
	}
}

// Invoke starts a generation and returns the operation name as the handle.
// A source image turns the request into image-to-video.
func (a *VideoAdapter) Invoke(ctx context.Context, req generation.Request) (generation.Invocation, error) {
	if a.models == nil {
		return generation.Invocation{}, provider.MissingCredentials(VideoProviderName, "GOOGLE_API_KEY or GOOGLE_PROJECT")
	}

	config := &genai.GenerateVideosConfig{
		NumberOfVideos: sampleCount(req.Options.SampleCount),
		AspectRatio:    req.Options.AspectRatio,
		OutputGCSURI:   a.outputGCS,
	}
	if d := req.Options.DurationSeconds; d > 0 {
		secs := int32(d)
		config.DurationSeconds = &secs
	}
	if neg := req.Options.Extra["negative_prompt"]; neg != "" {
		config.NegativePrompt = neg
	}

	var image *genai.Image
	if req.Source != nil {
		image = &genai.Image{ImageBytes: req.Source.Data, MIMEType: req.Source.MIMEType}
	}

	op, err := a.models.GenerateVideos(ctx, a.model, req.Prompt, image, config)
	if err != nil {
		return generation.Invocation{}, classify(ctx, VideoProviderName, "generate_videos", err)
	}
	if op == nil || op.Name == "" {
		return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, VideoProviderName, "generate_videos", "no operation name returned")
	}
	return generation.Invocation{Handle: op.Name}, nil
}

// Poll fetches the operation state. A finished operation without videos is
// reported as done with no assets.
func (a *VideoAdapter) Poll(ctx context.Context, handle string) (generation.PollResult, error) {
	if a.operations == nil {
		return generation.PollResult{}, provider.MissingCredentials(VideoProviderName, "GOOGLE_API_KEY or GOOGLE_PROJECT")
	}

	op, err := a.operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: handle}, nil)
	if err != nil {
		return generation.PollResult{}, classify(ctx, VideoProviderName, "get_operation", err)
	}
	if op == nil {
		return generation.PollResult{}, generation.Errorf(generation.KindTransient, VideoProviderName, "get_operation", "empty operation for %s", handle)
	}
	if !op.Done {
		return generation.PollResult{}, nil
	}
	if len(op.Error) > 0 {
		return generation.PollResult{Done: true, Err: operationError(op.Error)}, nil
	}

	var assets []generation.RawAsset
	if op.Response != nil {
		for _, gv := range op.Response.GeneratedVideos {
			if gv == nil || gv.Video == nil {
				continue
			}
			if gv.Video.URI == "" && len(gv.Video.VideoBytes) == 0 {
				continue
			}
			mime := gv.Video.MIMEType
			if mime == "" {
				mime = "video/mp4"
			}
			assets = append(assets, generation.RawAsset{
				Data:     gv.Video.VideoBytes,
				URI:      gv.Video.URI,
				MIMEType: mime,
				Size:     int64(len(gv.Video.VideoBytes)),
			})
		}
		if len(assets) == 0 && len(op.Response.RAIMediaFilteredReasons) > 0 {
			return generation.PollResult{Done: true, Err: "filtered: " + strings.Join(op.Response.RAIMediaFilteredReasons, "; ")}, nil
		}
	}
	return generation.PollResult{Done: true, Assets: assets}, nil
}

// operationError renders the google.rpc.Status map of a failed operation.
func operationError(status map[string]any) string {
	if msg, ok := status["message"].(string); ok && msg != "" {
		if code, ok := status["code"]; ok {
			return fmt.Sprintf("code %v: %s", code, msg)
		}
		return msg
	}
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, status[k]))
	}
	return strings.Join(parts, " ")
}
