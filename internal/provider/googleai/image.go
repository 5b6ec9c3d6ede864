package googleai

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/provider"
)

// ImageProviderName is the registry name of the Imagen/Gemini image adapter.
const ImageProviderName = "imagen"

// imageModels is the subset of *genai.Models used for images.
type imageModels interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ImageAdapter generates images with Imagen and edits them with a Gemini
// image model.
type ImageAdapter struct {
	models      imageModels
	imagenModel string
	editModel   string
	outputGCS   string
}

var _ generation.Adapter = (*ImageAdapter)(nil)

// ImageOption configures an ImageAdapter.
type ImageOption func(*ImageAdapter)

// WithImagenModel overrides the Imagen model.
func WithImagenModel(m string) ImageOption {
	return func(a *ImageAdapter) {
		if m != "" {
			a.imagenModel = m
		}
	}
}

// WithEditModel overrides the Gemini image model used for edits.
func WithEditModel(m string) ImageOption {
	return func(a *ImageAdapter) {
		if m != "" {
			a.editModel = m
		}
	}
}

// WithImageOutputGCS makes Imagen write results under a gs:// prefix
// instead of returning bytes inline. Vertex AI only.
func WithImageOutputGCS(uri string) ImageOption {
	return func(a *ImageAdapter) {
		a.outputGCS = uri
	}
}

// NewImageAdapter creates an ImageAdapter. A nil client yields an adapter
// whose invocations fail with AuthError.
func NewImageAdapter(client *genai.Client, opts ...ImageOption) *ImageAdapter {
	var models imageModels
	if client != nil {
		models = client.Models
	}
	return newImageAdapter(models, opts...)
}

func newImageAdapter(models imageModels, opts ...ImageOption) *ImageAdapter {
	a := &ImageAdapter{
		models:      models,
		imagenModel: DefaultImagenModel,
		editModel:   DefaultGeminiImageModel,
	}
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
	if a.models == nil {
		return generation.Invocation{}, provider.MissingCredentials(ImageProviderName, "GOOGLE_API_KEY or GOOGLE_PROJECT")
	}
	if req.IsEdit() {
		return a.edit(ctx, req)
	}
	return a.generate(ctx, req)
}

func (a *ImageAdapter) generate(ctx context.Context, req generation.Request) (generation.Invocation, error) {
	config := &genai.GenerateImagesConfig{
		NumberOfImages: sampleCount(req.Options.SampleCount),
		AspectRatio:    req.Options.AspectRatio,
		OutputGCSURI:   a.outputGCS,
	}

	resp, err := a.models.GenerateImages(ctx, a.imagenModel, req.Prompt, config)
	if err != nil {
		return generation.Invocation{}, classify(ctx, ImageProviderName, "generate_images", err)
	}
	if resp == nil {
		return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ImageProviderName, "generate_images", "empty response")
	}

	var filtered []string
	for _, img := range resp.GeneratedImages {
		if img == nil {
			continue
		}
		if img.Image == nil || (len(img.Image.ImageBytes) == 0 && img.Image.GCSURI == "") {
			if img.RAIFilteredReason != "" {
				filtered = append(filtered, img.RAIFilteredReason)
			}
			continue
		}
		mime := img.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return generation.Invocation{Asset: &generation.RawAsset{
			Data:     img.Image.ImageBytes,
			URI:      img.Image.GCSURI,
			MIMEType: mime,
			Size:     int64(len(img.Image.ImageBytes)),
		}}, nil
	}

	if len(filtered) > 0 {
		return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ImageProviderName, "generate_images", "all images filtered: %s", strings.Join(filtered, "; "))
	}
	return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ImageProviderName, "generate_images", "no images returned")
}

func (a *ImageAdapter) edit(ctx context.Context, req generation.Request) (generation.Invocation, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(req.Prompt),
		genai.NewPartFromBytes(req.Source.Data, req.Source.MIMEType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	resp, err := a.models.GenerateContent(ctx, a.editModel, contents, config)
	if err != nil {
		return generation.Invocation{}, classify(ctx, ImageProviderName, "edit_image", err)
	}
	if resp == nil {
		return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ImageProviderName, "edit_image", "empty response")
	}

	var text []string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return generation.Invocation{Asset: &generation.RawAsset{
					Data:     part.InlineData.Data,
					MIMEType: mime,
					Size:     int64(len(part.InlineData.Data)),
				}}, nil
			}
			if part.Text != "" {
				text = append(text, part.Text)
			}
		}
	}

	msg := "no image part in response"
	if len(text) > 0 {
		msg += ": " + provider.Snippet(strings.Join(text, " "))
	}
	return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ImageProviderName, "edit_image", "%s", msg)
}

// Poll implements generation.Adapter. Image generation is synchronous.
func (a *ImageAdapter) Poll(context.Context, string) (generation.PollResult, error) {
	return generation.PollResult{}, generation.NewError(generation.KindInvalidRequest, ImageProviderName, "poll", generation.ErrPollUnsupported)
}
