// Package env resolves secrets from environment variables. The SecretRef
// path is the variable name; versions are not supported.
package env

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ripeart/CountryBlock/secrets"
)

// Provider reads process environment variables.
type Provider struct {
	lookup func(string) (string, bool)
	prefix string
}

// Option configures a Provider.
type Option func(*Provider)

// WithPrefix prepends prefix to every looked-up name.
func WithPrefix(prefix string) Option {
	return func(p *Provider) { p.prefix = prefix }
}

// WithLookup replaces os.LookupEnv.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(p *Provider) { p.lookup = lookup }
}

// New returns a Provider backed by os.LookupEnv.
func New(opts ...Option) *Provider {
	p := &Provider{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements secrets.Provider.
func (p *Provider) Name() string {
	return "env"
}

// Close implements secrets.Provider.
func (p *Provider) Close() error {
	return nil
}

// Resolve returns the variable's value. Unset and empty-after-trim
// variables are both ErrSecretNotFound.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve operation cancelled: %w", err)
	}
	if ref.Version != "" {
		return nil, fmt.Errorf("environment variables are not versioned: %w", secrets.ErrInvalidRef)
	}

	name := p.prefix + ref.Path
	value, ok := p.lookup(name)
	if !ok || strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("environment variable %s: %w", name, secrets.ErrSecretNotFound)
	}
	return &secrets.Secret{Value: []byte(strings.TrimSpace(value))}, nil
}

// Exists implements secrets.Resolver.
func (p *Provider) Exists(ctx context.Context, ref secrets.SecretRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("exists operation cancelled: %w", err)
	}
	value, ok := p.lookup(p.prefix + ref.Path)
	return ok && strings.TrimSpace(value) != "", nil
}
