// Package delivery moves generated assets from provider-side locations to a
// stable public URL.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/storage"
)

// ErrNoStrategy is returned when no delivery strategy applies to the asset.
var ErrNoStrategy = errors.New("delivery: no strategy applicable")

// Pipeline delivers a raw asset by trying, in order: download and re-upload
// to the delivery store, making the provider-side object public, and
// returning the provider's own public link.
type Pipeline struct {
	store     storage.Store
	fetcher   storage.Fetcher
	publisher storage.Publisher
	keys      func(asset generation.RawAsset) string
	logger    *slog.Logger
}

var _ generation.Deliverer = (*Pipeline)(nil)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore sets the durable delivery store.
func WithStore(s storage.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithFetcher sets the fetcher used to download provider-side URIs.
func WithFetcher(f storage.Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithPublisher sets the publisher used to make provider-side objects public.
func WithPublisher(pub storage.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithKeyFunc replaces the object key generator.
func WithKeyFunc(fn func(generation.RawAsset) string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.keys = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a Pipeline. Every strategy is optional; a strategy
// whose collaborator is missing is skipped.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		keys:   ObjectKey(time.Now),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Deliver returns a DeliveredAsset for asset or a DeliveryFailed error that
// names the provider-side URI.
func (p *Pipeline) Deliver(ctx context.Context, asset generation.RawAsset) (generation.DeliveredAsset, error) {
	if asset.IsEmpty() {
		return generation.DeliveredAsset{}, generation.Errorf(generation.KindInvalidResponse, asset.Provider, "deliver", "asset has neither data nor uri")
	}

	var failures []error

	delivered, err := p.upload(ctx, asset)
	if err == nil {
		return delivered, nil
	}
	if ctx.Err() != nil {
		return generation.DeliveredAsset{}, ctx.Err()
	}
	if !errors.Is(err, ErrNoStrategy) {
		failures = append(failures, fmt.Errorf("upload: %w", err))
		p.logger.Warn("delivery upload failed",
			slog.String("provider", asset.Provider),
			slog.String("source_uri", asset.URI),
			slog.String("error", err.Error()),
		)
	}

	delivered, err = p.makePublic(ctx, asset)
	if err == nil {
		return delivered, nil
	}
	if ctx.Err() != nil {
		return generation.DeliveredAsset{}, ctx.Err()
	}
	if !errors.Is(err, ErrNoStrategy) {
		failures = append(failures, fmt.Errorf("make public: %w", err))
		p.logger.Warn("delivery make-public failed",
			slog.String("provider", asset.Provider),
			slog.String("source_uri", asset.URI),
			slog.String("error", err.Error()),
		)
	}

	if delivered, ok := rawLink(asset); ok {
		p.logger.Info("delivering raw provider link",
			slog.String("provider", asset.Provider),
			slog.String("uri", asset.URI),
		)
		return delivered, nil
	}

	if len(failures) == 0 {
		failures = append(failures, ErrNoStrategy)
	}
	return generation.DeliveredAsset{}, &generation.Error{
		Kind:      generation.KindDeliveryFailed,
		Provider:  asset.Provider,
		Op:        "deliver",
		Err:       fmt.Errorf("%s: %w", operatorHint(asset.URI), errors.Join(failures...)),
		SourceURI: asset.URI,
	}
}

// upload stores the asset bytes, downloading them first when only a URI is known.
func (p *Pipeline) upload(ctx context.Context, asset generation.RawAsset) (generation.DeliveredAsset, error) {
	if p.store == nil {
		return generation.DeliveredAsset{}, ErrNoStrategy
	}

	data, contentType := asset.Data, asset.MIMEType
	if len(data) == 0 {
		if p.fetcher == nil {
			return generation.DeliveredAsset{}, ErrNoStrategy
		}
		fetched, fetchedType, err := p.fetcher.Fetch(ctx, asset.URI)
		if err != nil {
			return generation.DeliveredAsset{}, err
		}
		if len(fetched) == 0 {
			return generation.DeliveredAsset{}, fmt.Errorf("download %s returned no bytes", asset.URI)
		}
		data = fetched
		if contentType == "" {
			contentType = fetchedType
		}
	}

	key := p.keys(generation.RawAsset{URI: asset.URI, MIMEType: contentType, Provider: asset.Provider})
	url, err := p.store.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{ContentType: contentType})
	if err != nil {
		return generation.DeliveredAsset{}, err
	}

	return generation.DeliveredAsset{
		URI:      url,
		Method:   generation.DeliveryUploaded,
		MIMEType: contentType,
		Size:     int64(len(data)),
	}, nil
}

func (p *Pipeline) makePublic(ctx context.Context, asset generation.RawAsset) (generation.DeliveredAsset, error) {
	if p.publisher == nil || !isObjectURI(asset.URI) {
		return generation.DeliveredAsset{}, ErrNoStrategy
	}
	url, err := p.publisher.MakePublic(ctx, asset.URI)
	if err != nil {
		return generation.DeliveredAsset{}, err
	}
	return generation.DeliveredAsset{
		URI:      url,
		Method:   generation.DeliveryPublicSource,
		MIMEType: asset.MIMEType,
		Size:     asset.Size,
	}, nil
}

func rawLink(asset generation.RawAsset) (generation.DeliveredAsset, bool) {
	if !asset.Public || !isHTTPURI(asset.URI) {
		return generation.DeliveredAsset{}, false
	}
	return generation.DeliveredAsset{
		URI:      asset.URI,
		Method:   generation.DeliveryRawLink,
		MIMEType: asset.MIMEType,
		Size:     asset.Size,
	}, true
}

func isObjectURI(uri string) bool {
	return strings.HasPrefix(uri, "gs://") || strings.HasPrefix(uri, "s3://")
}

func isHTTPURI(uri string) bool {
	return strings.HasPrefix(uri, "https://") || strings.HasPrefix(uri, "http://")
}

// operatorHint tells an operator how to unblock a failed delivery.
func operatorHint(uri string) string {
	if obj, err := storage.ParseObjectURI(uri); err == nil {
		return fmt.Sprintf("grant the delivery principal read access on bucket %q", obj.Bucket)
	}
	if uri == "" {
		return "no delivery store accepted the inline asset"
	}
	return fmt.Sprintf("asset at %s could not be copied or published", uri)
}

// ObjectKey returns a key generator producing <kind>/<yyyy>/<mm>/<uuid><ext>.
func ObjectKey(now func() time.Time) func(generation.RawAsset) string {
	return func(asset generation.RawAsset) string {
		t := now().UTC()
		return fmt.Sprintf("%s/%04d/%02d/%s%s", mediaKind(asset.MIMEType), t.Year(), int(t.Month()), uuid.NewString(), extension(asset))
	}
}

func mediaKind(mimeType string) string {
	top, _, _ := strings.Cut(mimeType, "/")
	switch top {
	case "image", "video", "audio":
		return top
	default:
		return "asset"
	}
}

var preferredExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",
	"audio/opus": ".opus",
	"audio/aac":  ".aac",
	"audio/flac": ".flac",
	"audio/L16":  ".pcm",
	"audio/pcm":  ".pcm",
}

func extension(asset generation.RawAsset) string {
	base, _, _ := strings.Cut(asset.MIMEType, ";")
	base = strings.TrimSpace(base)
	if ext, ok := preferredExt[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	if isObjectURI(asset.URI) || isHTTPURI(asset.URI) {
		if ext := path.Ext(strings.SplitN(asset.URI, "?", 2)[0]); len(ext) > 1 && len(ext) <= 5 {
			return ext
		}
	}
	return ".bin"
}
