package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripeart/CountryBlock/secrets"
)

func countingClient(calls *int, value string) *mockSecretsManagerClient {
	return &mockSecretsManagerClient{
		getSecretValueFunc: func(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			*calls++
			return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(value), VersionId: aws.String("v1")}, nil
		},
		describeSecretFunc: func(context.Context, *secretsmanager.DescribeSecretInput, ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
			return &secretsmanager.DescribeSecretOutput{}, nil
		},
		putSecretValueFunc: func(context.Context, *secretsmanager.PutSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
			return &secretsmanager.PutSecretValueOutput{}, nil
		},
	}
}

func smtpRef(key string) secrets.SecretRef {
	return secrets.SecretRef{Path: "countryblock/smtp", Metadata: map[string]string{secrets.MetadataKey: key}}
}

func TestResolveCachesWholeSecret(t *testing.T) {
	calls := 0
	p := NewWithClient(countingClient(&calls, `{"username":"mailer","password":"hunter2"}`), &Config{CacheTTL: time.Minute})
	ctx := context.Background()

	user, err := p.Resolve(ctx, smtpRef("username"))
	require.NoError(t, err)
	pass, err := p.Resolve(ctx, smtpRef("password"))
	require.NoError(t, err)

	assert.Equal(t, "mailer", user.String())
	assert.Equal(t, "hunter2", pass.String())
	assert.Equal(t, "v1", pass.Version)
	assert.Equal(t, 1, calls)

	// Clearing a returned secret must not corrupt the cache.
	pass.Clear()
	again, err := p.Resolve(ctx, smtpRef("password"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", again.String())
	assert.Equal(t, 1, calls)
}

func TestResolveWithoutCache(t *testing.T) {
	calls := 0
	p := NewWithClient(countingClient(&calls, "tok"), nil)

	for range 2 {
		_, err := p.Resolve(context.Background(), secrets.SecretRef{Path: "countryblock/github"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestCacheInvalidation(t *testing.T) {
	calls := 0
	p := NewWithClient(countingClient(&calls, "tok"), &Config{CacheTTL: time.Hour})
	ctx := context.Background()
	ref := secrets.SecretRef{Path: "countryblock/github"}

	_, err := p.Resolve(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, p.Store(ctx, ref, []byte("rotated")))
	_, err = p.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "store drops the cached value")

	require.NoError(t, p.Close())
	assert.Zero(t, p.cache.size())
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c := newValueCache(time.Minute)
	c.now = func() time.Time { return now }

	c.set(cacheKey("a", ""), cachedValue{value: []byte("x")})
	v, ok := c.get(cacheKey("a", ""))
	require.True(t, ok)
	assert.Equal(t, []byte("x"), v.value)

	now = now.Add(2 * time.Minute)
	_, ok = c.get(cacheKey("a", ""))
	assert.False(t, ok)
	assert.Zero(t, c.size())
}

func TestCacheKeysByVersion(t *testing.T) {
	c := newValueCache(time.Minute)
	c.set(cacheKey("a", ""), cachedValue{value: []byte("cur")})
	c.set(cacheKey("a", "AWSPREVIOUS"), cachedValue{value: []byte("prev")})
	c.set(cacheKey("ab", ""), cachedValue{value: []byte("other")})

	c.invalidate("a")
	assert.Equal(t, 1, c.size())
	_, ok := c.get(cacheKey("ab", ""))
	assert.True(t, ok)
}
