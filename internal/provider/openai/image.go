package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/provider"
)

// ImageProviderName is the registry name of the OpenAI image adapter.
const ImageProviderName = "openai-image"

// ImageAdapter generates and edits images with the OpenAI Images API.
type ImageAdapter struct {
	client *openai.Client
	model  string
}

var _ generation.Adapter = (*ImageAdapter)(nil)

// ImageOption configures an ImageAdapter.
type ImageOption func(*ImageAdapter)

// WithImageModel overrides the image model.
func WithImageModel(m string) ImageOption {
	return func(a *ImageAdapter) {
		if m != "" {
			a.model = m
		}
	}
}

// NewImageAdapter creates an ImageAdapter. A nil client yields an adapter
// whose invocations fail with AuthError.
func NewImageAdapter(client *openai.Client, opts ...ImageOption) *ImageAdapter {
	a := &ImageAdapter{client: client, model: DefaultImageModel}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Descriptor implements generation.Adapter.
func (a *ImageAdapter) Descriptor() generation.Descriptor {
	return generation.Descriptor{
		Name:                ImageProviderName,
		Kinds:               []generation.Kind{generation.KindImage},
		SupportsEdit:        true,
		RequiresCredentials: true,
	}
}

// Invoke implements generation.Adapter.
func (a *ImageAdapter) Invoke(ctx context.Context, req generation.Request) (generation.Invocation, error) {
	if a.client == nil {
		return generation.Invocation{}, provider.MissingCredentials(ImageProviderName, "OPENAI_API_KEY")
	}
	if req.IsEdit() {
		return a.edit(ctx, req)
	}
	return a.generate(ctx, req)
}

func (a *ImageAdapter) generate(ctx context.Context, req generation.Request) (generation.Invocation, error) {
	params := openai.ImageGenerateParams{
		Model:  openai.ImageModel(a.model),
		Prompt: req.Prompt,
		N:      param.NewOpt(int64(1)),
	}
	if size := imageSize(req.Options.AspectRatio); size != "" {
		params.Size = openai.ImageGenerateParamsSize(size)
	}
	if req.Options.Quality != "" {
		params.Quality = openai.ImageGenerateParamsQuality(req.Options.Quality)
	}
	if a.legacyModel() {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := a.client.Images.Generate(ctx, params)
	if err != nil {
		return generation.Invocation{}, classify(ctx, ImageProviderName, "generate_image", err)
	}
	return firstImage(resp, "generate_image")
}

func (a *ImageAdapter) edit(ctx context.Context, req generation.Request) (generation.Invocation, error) {
	mime := req.Source.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	params := openai.ImageEditParams{
		Model:  openai.ImageModel(a.model),
		Prompt: req.Prompt,
		N:      param.NewOpt(int64(1)),
	}
	params.Image.OfFile = openai.File(bytes.NewReader(req.Source.Data), "source"+extension(mime), mime)
	if size := imageSize(req.Options.AspectRatio); size != "" {
		params.Size = openai.ImageEditParamsSize(size)
	}
	if req.Options.Quality != "" {
		params.Quality = openai.ImageEditParamsQuality(req.Options.Quality)
	}
	if a.legacyModel() {
		params.ResponseFormat = openai.ImageEditParamsResponseFormatB64JSON
	}

	resp, err := a.client.Images.Edit(ctx, params)
	if err != nil {
		return generation.Invocation{}, classify(ctx, ImageProviderName, "edit_image", err)
	}
	return firstImage(resp, "edit_image")
}

// legacyModel reports whether the model needs response_format set; gpt-image
// models always return base64 and reject the parameter.
func (a *ImageAdapter) legacyModel() bool {
	return strings.HasPrefix(a.model, "dall-e")
}

// Poll implements generation.Adapter. Image generation is synchronous.
func (a *ImageAdapter) Poll(context.Context, string) (generation.PollResult, error) {
	return generation.PollResult{}, generation.NewError(generation.KindInvalidRequest, ImageProviderName, "poll", generation.ErrPollUnsupported)
}

func firstImage(resp *openai.ImagesResponse, op string) (generation.Invocation, error) {
	if resp == nil {
		return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ImageProviderName, op, "empty response")
	}
	for _, item := range resp.Data {
		if item.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(item.B64JSON)
			if err != nil {
				return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ImageProviderName, op, "decode image: %v", err)
			}
			return generation.Invocation{Asset: &generation.RawAsset{
				Data:     data,
				MIMEType: http.DetectContentType(data),
				Size:     int64(len(data)),
			}}, nil
		}
		if item.URL != "" {
			return generation.Invocation{Asset: &generation.RawAsset{
				URI:      item.URL,
				MIMEType: "image/png",
			}}, nil
		}
	}
	return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ImageProviderName, op, "no images returned")
}

// imageSize maps an aspect ratio to the closest size the Images API accepts.
func imageSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "":
		return ""
	case "1:1":
		return "1024x1024"
	case "16:9", "3:2", "4:3":
		return "1536x1024"
	case "9:16", "2:3", "3:4", "4:5":
		return "1024x1536"
	default:
		return "auto"
	}
}

func extension(mime string) string {
	switch mime {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
