package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripeart/CountryBlock/secrets"
)

var _ secrets.WriteableProvider = (*Provider)(nil)

func TestMemoryProvider_StoreResolve(t *testing.T) {
	p := New()
	ctx := context.Background()

	tests := []struct {
		name  string
		ref   secrets.SecretRef
		value []byte
	}{
		{name: "latest", ref: secrets.SecretRef{Path: "GITHUB_TOKEN"}, value: []byte("ghp_example")},
		{name: "versioned", ref: secrets.SecretRef{Path: "smtp/password", Version: "v2"}, value: []byte("s3cret")},
		{name: "empty value", ref: secrets.SecretRef{Path: "empty"}, value: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, p.Store(ctx, tt.ref, tt.value))

			got, err := p.Resolve(ctx, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got.Value)

			exists, err := p.Exists(ctx, tt.ref)
			require.NoError(t, err)
			assert.True(t, exists)
		})
	}
}

func TestMemoryProvider_ResolveReturnsCopy(t *testing.T) {
	p := New()
	ctx := context.Background()
	ref := secrets.SecretRef{Path: "GITHUB_TOKEN"}
	require.NoError(t, p.Store(ctx, ref, []byte("abc")))

	got, err := p.Resolve(ctx, ref)
	require.NoError(t, err)
	got.Clear()

	again, err := p.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "abc", again.String())
}

func TestMemoryProvider_Missing(t *testing.T) {
	p := New()
	ctx := context.Background()
	require.NoError(t, p.Store(ctx, secrets.SecretRef{Path: "tok"}, []byte("x")))

	_, err := p.Resolve(ctx, secrets.SecretRef{Path: "nope"})
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)

	_, err = p.Resolve(ctx, secrets.SecretRef{Path: "tok", Version: "v9"})
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)

	exists, err := p.Exists(ctx, secrets.SecretRef{Path: "nope"})
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, p.Store(ctx, secrets.SecretRef{}, []byte("x")), secrets.ErrInvalidRef)
}

func TestMemoryProvider_DeleteAndClose(t *testing.T) {
	p := New()
	ctx := context.Background()
	a := secrets.SecretRef{Path: "a"}
	b := secrets.SecretRef{Path: "b"}
	require.NoError(t, p.Store(ctx, a, []byte("1")))
	require.NoError(t, p.Store(ctx, b, []byte("2")))

	require.NoError(t, p.Delete(ctx, a))
	assert.ErrorIs(t, p.Delete(ctx, a), secrets.ErrSecretNotFound)

	require.NoError(t, p.Close())
	exists, err := p.Exists(ctx, b)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryProvider_Cancelled(t *testing.T) {
	p := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Resolve(ctx, secrets.SecretRef{Path: "a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, p.Store(ctx, secrets.SecretRef{Path: "a"}, nil), context.Canceled)
}
