// Package runpodvideo adapts a RunPod serverless video worker to the
// generation adapter contract.
package runpodvideo

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/provider"
	"github.com/maauso/mediagen/internal/runpod"
)

// ProviderName is the registry name of the RunPod video adapter.
const ProviderName = "runpod"

// Adapter submits video jobs to RunPod and polls them to completion.
type Adapter struct {
	client runpod.Client
}

var _ generation.Adapter = (*Adapter)(nil)

// NewAdapter creates a RunPod video adapter. A nil client yields an adapter
// whose invocations fail with AuthError.
func NewAdapter(client runpod.Client) *Adapter {
	return &Adapter{client: client}
}

// Descriptor implements generation.Adapter.
func (a *Adapter) Descriptor() generation.Descriptor {
	return generation.Descriptor{
		Name:                ProviderName,
		Kinds:               []generation.Kind{generation.KindVideo},
		SupportsEdit:        true,
		Async:               true,
		RequiresCredentials: true,
	}
}

// Invoke implements generation.Adapter. A source image turns the request
// into image-to-video.
func (a *Adapter) Invoke(ctx context.Context, req generation.Request) (generation.Invocation, error) {
	if a.client == nil {
		return generation.Invocation{}, provider.MissingCredentials(ProviderName, "RUNPOD_API_KEY and RUNPOD_ENDPOINT_ID")
	}

	width, height := dimensions(req.Options.AspectRatio)
	input := runpod.VideoInput{
		Prompt:          req.Prompt,
		NegativePrompt:  req.Options.Extra["negative_prompt"],
		Width:           width,
		Height:          height,
		DurationSeconds: req.Options.DurationSeconds,
		Seed:            req.Options.Extra["seed"],
	}
	if req.Source != nil {
		if !strings.HasPrefix(req.Source.MIMEType, "image/") {
			return generation.Invocation{}, generation.Errorf(generation.KindInvalidRequest, ProviderName, "submit", "source must be an image, got %q", req.Source.MIMEType)
		}
		input.ImageBase64 = base64.StdEncoding.EncodeToString(req.Source.Data)
	}

	jobID, err := a.client.Submit(ctx, input)
	if err != nil {
		return generation.Invocation{}, classify(ctx, "submit", err)
	}
	return generation.Invocation{Handle: jobID}, nil
}

// Poll implements generation.Adapter.
func (a *Adapter) Poll(ctx context.Context, handle string) (generation.PollResult, error) {
	if a.client == nil {
		return generation.PollResult{}, provider.MissingCredentials(ProviderName, "RUNPOD_API_KEY and RUNPOD_ENDPOINT_ID")
	}

	result, err := a.client.Poll(ctx, handle)
	if err != nil {
		return generation.PollResult{}, classify(ctx, "poll", err)
	}

	switch result.Status {
	case runpod.StatusCompleted:
		return completed(result)
	case runpod.StatusFailed, runpod.StatusCancelled, runpod.StatusTimedOut:
		return generation.PollResult{Done: true, Err: result.Error}, nil
	default:
		return generation.PollResult{}, nil
	}
}

func completed(result runpod.PollResult) (generation.PollResult, error) {
	out := generation.PollResult{Done: true}
	switch {
	case result.VideoBase64 != "":
		data, err := base64.StdEncoding.DecodeString(stripDataURL(result.VideoBase64))
		if err != nil {
			return generation.PollResult{}, generation.Errorf(generation.KindInvalidResponse, ProviderName, "poll", "decode video: %v", err)
		}
		out.Assets = []generation.RawAsset{{Data: data, MIMEType: "video/mp4", Size: int64(len(data))}}
	case result.VideoURL != "":
		out.Assets = []generation.RawAsset{{URI: result.VideoURL, MIMEType: "video/mp4"}}
	}
	return out, nil
}

// stripDataURL removes a "data:video/mp4;base64," prefix if present.
func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

func classify(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, runpod.ErrUnauthorized):
		return generation.NewError(generation.KindAuth, ProviderName, op, err)
	case errors.Is(err, runpod.ErrRateLimited):
		return generation.NewError(generation.KindRateLimited, ProviderName, op, err)
	case errors.Is(err, runpod.ErrServerError):
		return generation.NewError(generation.KindTransient, ProviderName, op, err)
	case errors.Is(err, runpod.ErrRequestFailed), errors.Is(err, runpod.ErrSubmitFailed):
		return generation.NewError(generation.KindInvalidRequest, ProviderName, op, err)
	case errors.Is(err, runpod.ErrInvalidResponse), errors.Is(err, runpod.ErrNoJobIDReturned):
		return generation.NewError(generation.KindInvalidResponse, ProviderName, op, err)
	}
	return provider.ClassifyTransport(ctx, ProviderName, op, err)
}

// dimensions maps an aspect ratio to a worker-friendly 720p frame size.
func dimensions(aspect string) (int, int) {
	switch strings.TrimSpace(aspect) {
	case "9:16":
		return 720, 1280
	case "1:1":
		return 720, 720
	default:
		return 1280, 720
	}
}
