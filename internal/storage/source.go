package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// DefaultSourceEndpoint is the S3-interoperable endpoint of Google Cloud Storage.
const DefaultSourceEndpoint = "https://storage.googleapis.com"

// ObjectURI is a parsed gs:// or s3:// location.
type ObjectURI struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseObjectURI splits a gs://bucket/key or s3://bucket/key URI.
func ParseObjectURI(raw string) (ObjectURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ObjectURI{}, fmt.Errorf("parse object uri: %w", err)
	}
	if u.Scheme != "gs" && u.Scheme != "s3" {
		return ObjectURI{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return ObjectURI{}, fmt.Errorf("object uri %q must name a bucket and a key", raw)
	}
	return ObjectURI{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
}

// ObjectSource reads and publishes provider-side objects in an
// S3-compatible bucket. For gs:// URIs it talks to the GCS XML API through
// its S3 interoperability endpoint using HMAC keys.
type ObjectSource struct {
	client        *s3.Client
	publicBaseURL string
	maxBytes      int64
}

var (
	_ Fetcher   = (*ObjectSource)(nil)
	_ Publisher = (*ObjectSource)(nil)
)

// NewObjectSource creates an ObjectSource. An empty endpoint defaults to
// DefaultSourceEndpoint, and an empty public base URL to the endpoint.
func NewObjectSource(cfg S3Config) (*ObjectSource, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultSourceEndpoint
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	client, err := newS3Client(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	base := cfg.PublicBaseURL
	if base == "" {
		base = cfg.Endpoint
	}
	return &ObjectSource{
		client:        client,
		publicBaseURL: strings.TrimRight(base, "/"),
		maxBytes:      DefaultMaxFetchBytes,
	}, nil
}

// Fetch downloads the object behind uri.
func (s *ObjectSource) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	obj, err := ParseObjectURI(uri)
	if err != nil {
		return nil, "", err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("get object %s: %w", uri, classifyS3Error(err))
	}
	defer func() { _ = out.Body.Close() }()

	data, err := readLimited(out.Body, s.maxBytes)
	if err != nil {
		return nil, "", fmt.Errorf("read object %s: %w", uri, err)
	}
	return data, aws.ToString(out.ContentType), nil
}

// MakePublic grants public read on the object behind uri and returns its
// direct URL, <public base>/<bucket>/<key>.
func (s *ObjectSource) MakePublic(ctx context.Context, uri string) (string, error) {
	obj, err := ParseObjectURI(uri)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
		ACL:    types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("make %s public: %w", uri, classifyS3Error(err))
	}
	return s.PublicURL(obj), nil
}

// PublicURL builds the direct URL of an object.
func (s *ObjectSource) PublicURL(obj ObjectURI) string {
	segments := strings.Split(obj.Key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + obj.Bucket + "/" + strings.Join(segments, "/")
}

// readLimited reads r fully, failing if it holds more than limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("object exceeds %d bytes", limit)
	}
	return data, nil
}
