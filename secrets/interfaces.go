package secrets

import "context"

// Resolver fetches secrets by reference.
type Resolver interface {
	// Resolve returns the secret or an error wrapping ErrSecretNotFound.
	Resolve(ctx context.Context, ref SecretRef) (*Secret, error)

	// Exists reports whether the secret exists without returning its value.
	Exists(ctx context.Context, ref SecretRef) (bool, error)
}

// Provider is a named Resolver that owns resources.
type Provider interface {
	Resolver

	// Name returns the provider identifier, e.g. "env" or "aws".
	Name() string

	// Close releases resources and clears cached values.
	Close() error
}

// WriteableProvider is a Provider that can also store secrets.
type WriteableProvider interface {
	Provider

	Store(ctx context.Context, ref SecretRef, value []byte) error
	Delete(ctx context.Context, ref SecretRef) error
}
