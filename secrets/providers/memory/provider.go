// Package memory provides an in-memory secrets provider for tests and
// local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ripeart/CountryBlock/secrets"
)

const latestVersion = "latest"

// Provider keeps secrets in a map keyed by path and version.
type Provider struct {
	store map[string]map[string]*secrets.Secret
	mu    sync.RWMutex
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		store: make(map[string]map[string]*secrets.Secret),
	}
}

// Name implements secrets.Provider.
func (p *Provider) Name() string {
	return "memory"
}

// Close clears every stored value.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for path, versions := range p.store {
		for version, secret := range versions {
			secret.Clear()
			delete(versions, version)
		}
		delete(p.store, path)
	}
	return nil
}

// Resolve returns a copy of the stored secret.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve operation cancelled: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	secret, err := p.lookup(ref)
	if err != nil {
		return nil, err
	}
	return secret.Copy(), nil
}

// Exists implements secrets.Resolver.
func (p *Provider) Exists(ctx context.Context, ref secrets.SecretRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("exists operation cancelled: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	_, err := p.lookup(ref)
	return err == nil, nil
}

// Store saves a copy of value under ref.
func (p *Provider) Store(ctx context.Context, ref secrets.SecretRef, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("store operation cancelled: %w", err)
	}
	if ref.Path == "" {
		return secrets.ErrInvalidRef
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store[ref.Path] == nil {
		p.store[ref.Path] = make(map[string]*secrets.Secret)
	}
	version := versionOf(ref)
	p.store[ref.Path][version] = &secrets.Secret{
		Value:     append([]byte(nil), value...),
		Version:   version,
		CreatedAt: time.Now(),
	}
	return nil
}

// Delete clears and removes the secret.
func (p *Provider) Delete(ctx context.Context, ref secrets.SecretRef) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete operation cancelled: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	secret, err := p.lookup(ref)
	if err != nil {
		return err
	}
	secret.Clear()

	versions := p.store[ref.Path]
	delete(versions, versionOf(ref))
	if len(versions) == 0 {
		delete(p.store, ref.Path)
	}
	return nil
}

func (p *Provider) lookup(ref secrets.SecretRef) (*secrets.Secret, error) {
	versions, exists := p.store[ref.Path]
	if !exists {
		return nil, fmt.Errorf("%s: %w", ref.Path, secrets.ErrSecretNotFound)
	}
	version := versionOf(ref)
	secret, exists := versions[version]
	if !exists {
		return nil, fmt.Errorf("%s@%s: %w", ref.Path, version, secrets.ErrSecretNotFound)
	}
	return secret, nil
}

func versionOf(ref secrets.SecretRef) string {
	if ref.Version == "" {
		return latestVersion
	}
	return ref.Version
}
