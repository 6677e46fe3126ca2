// Package s3store implements store.Store on an S3 bucket.
//
// Revisions are object ETags. Create sends If-None-Match: * and Update sends
// If-Match with the revision read, so S3 itself rejects a write that would
// overwrite a concurrent change. Object keys have no directories, so no
// marker files are needed.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/ripeart/CountryBlock/store"
)

// MessageMetadataKey is the user metadata entry carrying the change
// description.
const MessageMetadataKey = "change-message"

// API is the subset of the S3 client the store calls.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config configures a Store built by New.
type Config struct {
	Bucket string
	// Prefix is prepended to every key.
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint, e.g. for LocalStack.
	Endpoint     string
	UsePathStyle bool
	MaxRetries   int
}

// Store is a store.Store on one bucket.
type Store struct {
	client API
	bucket string
	prefix string
}

// New loads the default AWS credential chain and returns a Store.
func New(ctx context.Context, cfg Config, optFns ...func(*config.LoadOptions) error) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3store: bucket is required")
	}
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3store: loading AWS config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	if cfg.MaxRetries > 0 {
		awsCfg.RetryMaxAttempts = cfg.MaxRetries
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient returns a Store using client.
func NewWithClient(client API, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NativeDirectories implements store.DirectoryNative.
func (s *Store) NativeDirectories() bool { return true }

func (s *Store) key(p string) string {
	k := strings.TrimPrefix(path.Clean("/"+p), "/")
	if s.prefix == "" {
		return k
	}
	return s.prefix + "/" + k
}

// Get implements store.Store. The branch is ignored.
func (s *Store) Get(ctx context.Context, p, _ string) (*store.Object, error) {
	key := s.key(p)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError("get", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &Error{Op: "get", Bucket: s.bucket, Key: key, Err: err}
	}
	return &store.Object{Path: p, Content: data, Revision: aws.ToString(out.ETag)}, nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, p string, content []byte, message, _ string) (string, error) {
	in := s.putInput(p, content, message)
	in.IfNoneMatch = aws.String("*")
	return s.put(ctx, "create", in)
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, p string, content []byte, message, revision, _ string) (string, error) {
	in := s.putInput(p, content, message)
	in.IfMatch = aws.String(revision)
	return s.put(ctx, "update", in)
}

func (s *Store) putInput(p string, content []byte, message string) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(p)),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(mimetype.Detect(content).String()),
	}
	if message != "" {
		in.Metadata = map[string]string{MessageMetadataKey: message}
	}
	return in
}

func (s *Store) put(ctx context.Context, op string, in *s3.PutObjectInput) (string, error) {
	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		return "", mapError(op, s.bucket, aws.ToString(in.Key), err)
	}
	return aws.ToString(out.ETag), nil
}
