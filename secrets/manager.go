package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Config configures a Manager.
type Config struct {
	// DefaultProvider names the provider used by Resolve and Exists.
	DefaultProvider string

	// AutoClear is copied onto every resolved Secret.
	AutoClear bool

	// AuditLogger, when set, receives every resolve attempt.
	AuditLogger AuditLogger
}

// Manager routes secret lookups to registered providers.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	autoClear       bool
	auditLogger     AuditLogger
	mu              sync.RWMutex
}

// NewManager returns a Manager with no providers.
func NewManager(config *Config) *Manager {
	if config == nil {
		config = &Config{}
	}

	return &Manager{
		providers:       make(map[string]Provider),
		defaultProvider: config.DefaultProvider,
		autoClear:       config.AutoClear,
		auditLogger:     config.AuditLogger,
	}
}

// RegisterProvider adds provider under name. Names are unique.
func (m *Manager) RegisterProvider(name string, provider Provider) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.providers[name]; exists {
		return fmt.Errorf("provider with name %q already registered", name)
	}
	m.providers[name] = provider
	return nil
}

// Providers returns the registered provider names.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	return names
}

// Resolve resolves ref with the default provider.
func (m *Manager) Resolve(ctx context.Context, ref SecretRef) (*Secret, error) {
	if m.defaultProvider == "" {
		return nil, fmt.Errorf("no default provider configured")
	}
	return m.ResolveFrom(ctx, m.defaultProvider, ref)
}

// ResolveFrom resolves ref with the named provider. Failures are wrapped in
// a ProviderError.
func (m *Manager) ResolveFrom(ctx context.Context, providerName string, ref SecretRef) (*Secret, error) {
	provider, err := m.provider(providerName)
	if err != nil {
		m.audit(ctx, ref, err)
		return nil, err
	}
	if ref.Path == "" {
		err := WrapProviderError(providerName, ref, ErrInvalidRef, "failed to resolve secret")
		m.audit(ctx, ref, err)
		return nil, err
	}

	secret, err := provider.Resolve(ctx, ref)
	m.audit(ctx, ref, err)
	if err != nil {
		return nil, WrapProviderError(providerName, ref, err, "failed to resolve secret")
	}

	secret.AutoClear = m.autoClear
	return secret, nil
}

// ResolveString resolves ref from the named provider, or the default one
// when providerName is empty, and returns the value as a string. The
// resolved Secret is cleared before returning.
func (m *Manager) ResolveString(ctx context.Context, providerName string, ref SecretRef) (string, error) {
	if providerName == "" {
		providerName = m.defaultProvider
	}
	if providerName == "" {
		return "", fmt.Errorf("no default provider configured")
	}

	secret, err := m.ResolveFrom(ctx, providerName, ref)
	if err != nil {
		return "", err
	}
	defer secret.Clear()
	return string(secret.Value), nil
}

// Exists checks ref with the default provider.
func (m *Manager) Exists(ctx context.Context, ref SecretRef) (bool, error) {
	if m.defaultProvider == "" {
		return false, fmt.Errorf("no default provider configured")
	}
	return m.ExistsFrom(ctx, m.defaultProvider, ref)
}

// ExistsFrom checks ref with the named provider.
func (m *Manager) ExistsFrom(ctx context.Context, providerName string, ref SecretRef) (bool, error) {
	provider, err := m.provider(providerName)
	if err != nil {
		return false, err
	}

	exists, err := provider.Exists(ctx, ref)
	if err != nil {
		return false, WrapProviderError(providerName, ref, err, "failed to check existence")
	}
	return exists, nil
}

// Close closes every provider and empties the registry.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, provider := range m.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", name, err))
		}
	}
	m.providers = make(map[string]Provider)
	return errors.Join(errs...)
}

func (m *Manager) provider(name string) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}

	m.mu.RLock()
	provider, exists := m.providers[name]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider %q: %w", name, ErrProviderNotFound)
	}
	return provider, nil
}

func (m *Manager) audit(ctx context.Context, ref SecretRef, err error) {
	if m.auditLogger != nil {
		m.auditLogger.LogAccess(ctx, "resolve", ref, err == nil, err)
	}
}
