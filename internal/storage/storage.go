// Package storage provides scratch file storage for media post-processing,
// the durable delivery store, and access to provider-side objects.
package storage

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aws/smithy-go"
)

var (
	// ErrNotConfigured is returned when a store has no public base URL or
	// bucket to write to.
	ErrNotConfigured = errors.New("storage: not configured")
	// ErrAccessDenied is returned when the configured principal may not read
	// or modify the object.
	ErrAccessDenied = errors.New("storage: access denied")
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrUnsupportedScheme is returned for URIs no fetcher can handle.
	ErrUnsupportedScheme = errors.New("storage: unsupported uri scheme")
)

// PutOptions carries object metadata for Put.
type PutOptions struct {
	ContentType  string
	CacheControl string
}

// Store is the durable delivery target. Put writes the object under key and
// returns a URL that can be fetched without credentials.
type Store interface {
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) (url string, err error)
}

// TempStore handles scratch files used while post-processing media.
type TempStore interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error
}

// Fetcher downloads the bytes behind a provider-side URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (data []byte, contentType string, err error)
}

// Publisher makes a provider-side object publicly readable and returns its
// direct public URL.
type Publisher interface {
	MakePublic(ctx context.Context, uri string) (publicURL string, err error)
}

// classifyS3Error maps SDK failures onto the package sentinels.
func classifyS3Error(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "AllAccessDisabled", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errors.Join(ErrAccessDenied, err)
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return errors.Join(ErrNotFound, err)
		}
	}
	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		switch withStatus.HTTPStatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.Join(ErrAccessDenied, err)
		case http.StatusNotFound:
			return errors.Join(ErrNotFound, err)
		}
	}
	return err
}
