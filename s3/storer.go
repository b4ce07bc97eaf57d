// Package s3 keeps host documents in an S3 bucket, or any S3-compatible
// object store.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"impractical.co/dropper/host"
	"yall.in"
)

var _ host.DocumentStore = &Storer{}

const sha256Metadata = "sha256"

// Client is the subset of the S3 API the Storer needs. *s3.Client
// implements it.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config describes how to reach the bucket documents are kept in.
type Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	KeyPrefix string `mapstructure:"key_prefix"`
	// Endpoint points the client at an S3-compatible store such as MinIO
	// or Localstack; path-style addressing is used when it is set.
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
}

// NewClient builds an S3 client from cfg, taking credentials from the
// default AWS credential chain.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Storer is a host.DocumentStore keeping each document as an object named
// after the GUID of the object it belongs to.
type Storer struct {
	client    Client
	bucket    string
	keyPrefix string
}

// NewStorer returns a Storer using client to reach bucket. keyPrefix is
// prepended to every object key.
func NewStorer(client Client, bucket, keyPrefix string) *Storer {
	return &Storer{client: client, bucket: bucket, keyPrefix: keyPrefix}
}

func (s *Storer) key(guid string) string {
	return s.keyPrefix + guid
}

// writer buffers an upload and puts it into the bucket on Close.
type writer struct {
	ctx context.Context
	s   *Storer
	key string
	buf bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	data := w.buf.Bytes()
	sum := sha256.Sum256(data)
	_, err := w.s.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.s.bucket),
		Key:           aws.String(w.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mimetype.Detect(data).String()),
		Metadata:      map[string]string{sha256Metadata: hex.EncodeToString(sum[:])},
	})
	if err != nil {
		return fmt.Errorf("failed to put object %q: %w", w.key, err)
	}
	yall.FromContext(w.ctx).WithField("s3.key", w.key).WithField("s3.size", len(data)).Debug("[s3] object stored")
	return nil
}

// Upload returns a writer that stores the document of guid when closed,
// replacing any previous version.
func (s *Storer) Upload(ctx context.Context, guid string) (io.WriteCloser, error) {
	return &writer{ctx: ctx, s: s, key: s.key(guid)}, nil
}

// Download returns the contents of the document of guid.
func (s *Storer) Download(ctx context.Context, guid string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(guid)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("document %s: %w", guid, host.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

// Delete removes the document of guid. Deleting a missing document is not
// an error.
func (s *Storer) Delete(ctx context.Context, guid string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(guid)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Stat returns the size, content type and checksum of the document of
// guid.
func (s *Storer) Stat(ctx context.Context, guid string) (host.Document, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(guid)),
	})
	if err != nil {
		if isNotFound(err) {
			return host.Document{}, fmt.Errorf("document %s: %w", guid, host.ErrDocumentNotFound)
		}
		return host.Document{}, fmt.Errorf("failed to head object: %w", err)
	}
	doc := host.Document{
		GUID:        guid,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	for k, v := range out.Metadata {
		if strings.EqualFold(k, sha256Metadata) {
			doc.SHA256 = v
		}
	}
	return doc, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
