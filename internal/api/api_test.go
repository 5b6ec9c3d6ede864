package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediagen/internal/generation"
)

func TestGenerationRequest_ToDomain(t *testing.T) {
	body := GenerationRequest{
		Kind:   "image",
		Prompt: "a red bicycle",
		SourceAsset: &SourceAsset{
			MIMEType: "image/png",
			Data:     base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		},
		Options:        Options{AspectRatio: "16:9", SampleCount: 1, Extra: map[string]string{"seed": "7"}},
		IdempotencyKey: "  key-1 ",
	}

	req, err := body.ToDomain()
	require.NoError(t, err)

	assert.Equal(t, generation.KindImage, req.Kind)
	assert.Equal(t, "a red bicycle", req.Prompt)
	assert.Equal(t, "key-1", req.IdempotencyKey)
	assert.Equal(t, "16:9", req.Options.AspectRatio)
	assert.Equal(t, "7", req.Options.Extra["seed"])
	require.NotNil(t, req.Source)
	assert.Equal(t, []byte("png-bytes"), req.Source.Data)
	assert.True(t, req.IsEdit())
}

func TestGenerationRequest_ToDomain_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body GenerationRequest
	}{
		{"missing kind", GenerationRequest{Prompt: "x"}},
		{"unknown kind", GenerationRequest{Kind: "music", Prompt: "x"}},
		{"missing prompt", GenerationRequest{Kind: "image"}},
		{"blank prompt", GenerationRequest{Kind: "image", Prompt: "   "}},
		{"bad base64", GenerationRequest{Kind: "image", Prompt: "x", SourceAsset: &SourceAsset{MIMEType: "image/png", Data: "%%%"}}},
		{"missing mime", GenerationRequest{Kind: "image", Prompt: "x", SourceAsset: &SourceAsset{Data: "aGk="}}},
		{"too many samples", GenerationRequest{Kind: "image", Prompt: "x", Options: Options{SampleCount: 50}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.body.ToDomain()
			assert.Error(t, err)
		})
	}
}

func TestNewSuccess(t *testing.T) {
	body := NewSuccess(generation.DeliveredAsset{
		URI:      "https://cdn.example.com/image/a.png",
		Method:   generation.DeliveryUploaded,
		Provider: "imagen",
		MIMEType: "image/png",
	})

	assert.Equal(t, Success{
		DeliveredURI:   "https://cdn.example.com/image/a.png",
		DeliveryMethod: "uploaded",
		ProviderUsed:   "imagen",
		MIMEType:       "image/png",
	}, body)
}

func TestNewFailure(t *testing.T) {
	err := &generation.Error{
		Kind:      generation.KindDeliveryFailed,
		Op:        "deliver",
		Err:       errors.New("upload denied"),
		SourceURI: "gs://bucket/out.mp4",
		Attempts: []generation.AttemptRecord{
			{Provider: "veo", Outcome: generation.OutcomeSuccess},
		},
	}

	body := NewFailure(err)

	assert.Equal(t, "DeliveryFailed", body.ErrorKind)
	assert.Equal(t, "DELIVERY_FAILED", body.Code)
	assert.Equal(t, "gs://bucket/out.mp4", body.SourceURI)
	require.Len(t, body.Attempts, 1)
	assert.Equal(t, "veo", body.Attempts[0].Provider)
	assert.Equal(t, "success", body.Attempts[0].Outcome)
}

func TestNewFailure_Unclassified(t *testing.T) {
	body := NewFailure(errors.New("boom"))

	assert.Equal(t, "Transient", body.ErrorKind)
	assert.NotNil(t, body.Attempts)
	assert.Empty(t, body.Attempts)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(generation.KindInvalidRequest))
	assert.Equal(t, StatusClientClosedRequest, HTTPStatus(generation.KindCancelled))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(generation.KindOperationTimeout))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(generation.KindAllProvidersExhausted))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(generation.KindDeliveryFailed))
}

func TestCode(t *testing.T) {
	assert.Equal(t, "ALL_PROVIDERS_EXHAUSTED", Code(generation.KindAllProvidersExhausted))
	assert.Equal(t, "INTERNAL_ERROR", Code(""))
}
