package s3store

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripeart/CountryBlock/artifact"
	"github.com/ripeart/CountryBlock/store"
	"github.com/ripeart/CountryBlock/syncer"
)

var _ store.Store = (*Store)(nil)

// mockS3Client lets each test script the S3 responses.
type mockS3Client struct {
	GetObjectFunc func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObjectFunc func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m *mockS3Client) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.GetObjectFunc != nil {
		return m.GetObjectFunc(ctx, in, optFns...)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(nil))}, nil
}

func (m *mockS3Client) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.PutObjectFunc != nil {
		return m.PutObjectFunc(ctx, in, optFns...)
	}
	return &s3.PutObjectOutput{}, nil
}

type object struct {
	data []byte
	etag string
	in   *s3.PutObjectInput
}

// fakeBucket honours If-Match and If-None-Match the way S3 does.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]object
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string]object{}}
}

func (b *fakeBucket) client() *mockS3Client {
	return &mockS3Client{
		GetObjectFunc: func(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			o, ok := b.objects[aws.ToString(in.Key)]
			if !ok {
				return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
			}
			return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.data)), ETag: aws.String(o.etag)}, nil
		},
		PutObjectFunc: func(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			key := aws.ToString(in.Key)
			cur, exists := b.objects[key]
			if aws.ToString(in.IfNoneMatch) == "*" && exists {
				return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
			}
			if in.IfMatch != nil && (!exists || cur.etag != aws.ToString(in.IfMatch)) {
				return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
			}
			data, err := io.ReadAll(in.Body)
			if err != nil {
				return nil, err
			}
			sum := md5.Sum(data)
			etag := `"` + hex.EncodeToString(sum[:]) + `"`
			b.objects[key] = object{data: data, etag: etag, in: in}
			return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
		},
	}
}

func TestStoreAgainstFakeBucket(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	s := NewWithClient(bucket.client(), "blocklists", "/countryblock/")

	_, err := s.Get(ctx, "ip_blocks/ng.zone", "main")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rev, err := s.Create(ctx, "ip_blocks/ng.zone", []byte("41.58.0.1\n41.58.0.2"), "Auto-update IP block list for Nigeria", "main")
	require.NoError(t, err)
	assert.NotEmpty(t, rev)

	stored := bucket.objects["countryblock/ip_blocks/ng.zone"]
	require.NotNil(t, stored.in)
	assert.Equal(t, "text/plain; charset=utf-8", aws.ToString(stored.in.ContentType))
	assert.Equal(t, "Auto-update IP block list for Nigeria", stored.in.Metadata[MessageMetadataKey])
	assert.Equal(t, int64(19), aws.ToInt64(stored.in.ContentLength))

	_, err = s.Create(ctx, "ip_blocks/ng.zone", []byte("dup"), "", "main")
	assert.ErrorIs(t, err, store.ErrConflict)

	obj, err := s.Get(ctx, "ip_blocks/ng.zone", "main")
	require.NoError(t, err)
	assert.Equal(t, rev, obj.Revision)

	next, err := s.Update(ctx, "ip_blocks/ng.zone", []byte("41.58.0.1"), "", rev, "main")
	require.NoError(t, err)
	assert.NotEqual(t, rev, next)

	_, err = s.Update(ctx, "ip_blocks/ng.zone", []byte("stale"), "", rev, "main")
	assert.ErrorIs(t, err, store.ErrConflict)

	var s3err *Error
	require.ErrorAs(t, err, &s3err)
	assert.Equal(t, "update", s3err.Op)
	assert.Equal(t, "countryblock/ip_blocks/ng.zone", s3err.Key)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"NoSuchKey", store.ErrNotFound},
		{"PreconditionFailed", store.ErrConflict},
		{"ConditionalRequestConflict", store.ErrConflict},
		{"AccessDenied", store.ErrAccessDenied},
		{"InvalidAccessKeyId", store.ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			m := &mockS3Client{
				GetObjectFunc: func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
					return nil, &smithy.GenericAPIError{Code: tt.code}
				},
			}
			_, err := NewWithClient(m, "b", "").Get(context.Background(), "k", "")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unmapped", func(t *testing.T) {
		boom := errors.New("dial tcp: connection refused")
		m := &mockS3Client{
			PutObjectFunc: func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				return nil, boom
			},
		}
		_, err := NewWithClient(m, "b", "").Create(context.Background(), "k", nil, "", "")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, store.ErrConflict)
		assert.EqualError(t, err, "s3.create b/k: dial tcp: connection refused")
	})
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorContains(t, err, "bucket is required")
}

func TestEngineAgainstS3(t *testing.T) {
	ctx := context.Background()
	s := NewWithClient(newFakeBucket().client(), "blocklists", "")
	e := syncer.New(s, syncer.WithBranch("main"))

	a := artifact.Artifact{Kind: artifact.KindHosts, Path: "ip_blocks/ng.zone", Content: []byte("41.58.0.1")}
	res := e.Sync(ctx, a)
	require.NoError(t, res.Err)
	assert.Equal(t, syncer.Created, res.Outcome)
	assert.Empty(t, res.Markers, "object keys need no directory markers")

	res = e.Sync(ctx, a)
	assert.Equal(t, syncer.Skipped, res.Outcome)
}
