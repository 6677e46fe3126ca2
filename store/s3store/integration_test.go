//go:build integration

package s3store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ripeart/CountryBlock/store"
)

func startLocalStack(ctx context.Context, t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	container, err := localstack.Run(ctx,
		"localstack/localstack:latest",
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").
				WithPort("4566").
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err, "failed to start LocalStack")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate LocalStack: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4566")
	require.NoError(t, err)
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func testCredentials() config.LoadOptionsFunc {
	return config.WithCredentialsProvider(aws.CredentialsProviderFunc(
		func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil
		}))
}

func TestIntegrationConditionalWrites(t *testing.T) {
	ctx := context.Background()
	endpoint := startLocalStack(ctx, t)

	cfg := Config{Bucket: "countryblock-it", Region: "us-east-1", Endpoint: endpoint, UsePathStyle: true}
	s, err := New(ctx, cfg, testCredentials())
	require.NoError(t, err)

	raw := s.client.(*s3.Client)
	_, err = raw.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)})
	require.NoError(t, err)

	_, err = s.Get(ctx, "ip_blocks/ng.zone", "")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rev, err := s.Create(ctx, "ip_blocks/ng.zone", []byte("41.58.0.1"), "create", "")
	require.NoError(t, err)

	_, err = s.Create(ctx, "ip_blocks/ng.zone", []byte("again"), "create", "")
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Update(ctx, "ip_blocks/ng.zone", []byte("41.58.0.2"), "update", rev, "")
	require.NoError(t, err)

	_, err = s.Update(ctx, "ip_blocks/ng.zone", []byte("41.58.0.3"), "stale", rev, "")
	assert.ErrorIs(t, err, store.ErrConflict)

	obj, err := s.Get(ctx, "ip_blocks/ng.zone", "")
	require.NoError(t, err)
	assert.Equal(t, "41.58.0.2", string(obj.Content))
}
