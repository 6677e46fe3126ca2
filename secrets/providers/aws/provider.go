// Package aws resolves secrets from AWS Secrets Manager.
//
// A SecretRef version of AWSCURRENT, AWSPREVIOUS or AWSPENDING selects a
// stage; any other non-empty version is a version ID. When the ref carries
// secrets.MetadataKey, the secret string is decoded as a JSON object and
// that field is returned, so one secret can hold several SMTP credentials.
package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"

	"github.com/ripeart/CountryBlock/secrets"
)

// SecretsManagerAPI is the subset of the Secrets Manager client the
// provider calls.
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
	DescribeSecret(
		ctx context.Context,
		params *secretsmanager.DescribeSecretInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.DescribeSecretOutput, error)
	CreateSecret(
		ctx context.Context,
		params *secretsmanager.CreateSecretInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(
		ctx context.Context,
		params *secretsmanager.PutSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(
		ctx context.Context,
		params *secretsmanager.DeleteSecretInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.DeleteSecretOutput, error)
}

// Provider is a secrets.WriteableProvider on AWS Secrets Manager. It is safe
// for concurrent use.
type Provider struct {
	client SecretsManagerAPI
	config *Config
	cache  *valueCache
}

// Config holds the provider configuration.
type Config struct {
	Region     string
	MaxRetries int
	// Endpoint overrides the service endpoint, e.g. for LocalStack.
	Endpoint string
	// CacheTTL keeps resolved values in memory for this long. Zero disables
	// caching.
	CacheTTL    time.Duration
	LoadOptions []func(*config.LoadOptions) error
}

// Option configures a Provider.
type Option func(*Config)

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(c *Config) {
		c.Region = region
	}
}

// WithMaxRetries sets the SDK retry attempts.
func WithMaxRetries(maxRetries int) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
	}
}

// WithEndpoint sets a custom endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithCacheTTL caches resolved values for ttl.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.CacheTTL = ttl
	}
}

// WithLoadOptions passes extra options to config.LoadDefaultConfig, e.g. a
// static credentials provider in tests.
func WithLoadOptions(optFns ...func(*config.LoadOptions) error) Option {
	return func(c *Config) {
		c.LoadOptions = append(c.LoadOptions, optFns...)
	}
}

// New loads the default AWS credential chain and returns a Provider.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}

	loadOpts := append([]func(*config.LoadOptions) error{}, cfg.LoadOptions...)
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	if cfg.MaxRetries > 0 {
		awsCfg.RetryMaxAttempts = cfg.MaxRetries
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient returns a Provider using client.
func NewWithClient(client SecretsManagerAPI, cfg *Config) *Provider {
	if cfg == nil {
		cfg = &Config{}
	}
	p := &Provider{client: client, config: cfg}
	if cfg.CacheTTL > 0 {
		p.cache = newValueCache(cfg.CacheTTL)
	}
	return p
}

// Name implements secrets.Provider.
func (p *Provider) Name() string {
	return "aws"
}

// Close implements secrets.Provider. It zeroes cached values; SDK clients
// hold no resources.
func (p *Provider) Close() error {
	if p.cache != nil {
		p.cache.purge()
	}
	return nil
}

// Resolve fetches the secret value, string or binary.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if ref.Path == "" {
		return nil, fmt.Errorf("secret reference path cannot be empty: %w", secrets.ErrInvalidRef)
	}

	raw, err := p.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	value := raw.value
	if key := ref.Metadata[secrets.MetadataKey]; key != "" {
		selected, err := field(ref.Path, value, key)
		clear(value)
		if err != nil {
			return nil, err
		}
		value = selected
	}

	return &secrets.Secret{
		Value:     value,
		Version:   raw.version,
		CreatedAt: raw.created,
	}, nil
}

// fetch returns the whole secret value, from the cache when enabled.
func (p *Provider) fetch(ctx context.Context, ref secrets.SecretRef) (cachedValue, error) {
	key := cacheKey(ref.Path, ref.Version)
	if p.cache != nil {
		if v, ok := p.cache.get(key); ok {
			return v, nil
		}
	}

	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(ref.Path)}
	if ref.Version != "" {
		if isStage(ref.Version) {
			input.VersionStage = aws.String(ref.Version)
		} else {
			input.VersionId = aws.String(ref.Version)
		}
	}

	output, err := p.client.GetSecretValue(ctx, input)
	if err != nil {
		return cachedValue{}, mapAWSError(ref, err)
	}

	var v cachedValue
	switch {
	case output.SecretString != nil:
		v.value = []byte(*output.SecretString)
	case output.SecretBinary != nil:
		v.value = append([]byte(nil), output.SecretBinary...)
	default:
		return cachedValue{}, fmt.Errorf("secret %q has no value: %w", ref.Path, secrets.ErrProviderError)
	}
	v.version = aws.ToString(output.VersionId)
	if output.CreatedDate != nil {
		v.created = *output.CreatedDate
	}

	if p.cache != nil {
		p.cache.set(key, v)
	}
	return v, nil
}

// Exists uses DescribeSecret so the value never leaves AWS. Secrets
// scheduled for deletion count as missing.
func (p *Provider) Exists(ctx context.Context, ref secrets.SecretRef) (bool, error) {
	if ref.Path == "" {
		return false, fmt.Errorf("secret reference path cannot be empty: %w", secrets.ErrInvalidRef)
	}

	out, err := p.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(ref.Path)})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check secret existence for %q: %w", ref.Path, mapAWSError(ref, err))
	}
	return out.DeletedDate == nil, nil
}

// Store creates the secret, or writes a new version when it already exists.
func (p *Provider) Store(ctx context.Context, ref secrets.SecretRef, value []byte) error {
	exists, err := p.Exists(ctx, ref)
	if err != nil {
		return err
	}

	if !exists {
		_, err = p.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(ref.Path),
			SecretString: aws.String(string(value)),
		})
	} else {
		_, err = p.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(ref.Path),
			SecretString: aws.String(string(value)),
		})
	}
	if err != nil {
		return mapAWSError(ref, err)
	}
	p.invalidate(ref.Path)
	return nil
}

// Delete removes the secret without a recovery window.
func (p *Provider) Delete(ctx context.Context, ref secrets.SecretRef) error {
	if ref.Path == "" {
		return fmt.Errorf("secret reference path cannot be empty: %w", secrets.ErrInvalidRef)
	}
	_, err := p.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(ref.Path),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		return mapAWSError(ref, err)
	}
	p.invalidate(ref.Path)
	return nil
}

func (p *Provider) invalidate(path string) {
	if p.cache != nil {
		p.cache.invalidate(path)
	}
}

func isStage(version string) bool {
	switch version {
	case "AWSCURRENT", "AWSPREVIOUS", "AWSPENDING":
		return true
	}
	return false
}

func field(path string, value []byte, key string) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, fmt.Errorf("secret %q is not a JSON object: %w", path, secrets.ErrInvalidRef)
	}
	v, ok := doc[key]
	if !ok {
		return nil, fmt.Errorf("secret %q has no field %q: %w", path, key, secrets.ErrSecretNotFound)
	}
	switch v := v.(type) {
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

// mapAWSError maps SDK errors onto the secrets sentinels.
func mapAWSError(ref secrets.SecretRef, err error) error {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return fmt.Errorf("secret %q not found: %w", ref.Path, secrets.ErrSecretNotFound)
	}

	var ipe *types.InvalidParameterException
	if errors.As(err, &ipe) {
		if ipe.Message != nil && containsAccessDeniedMessage(*ipe.Message) {
			return fmt.Errorf("access denied for secret %q: %w", ref.Path, secrets.ErrAccessDenied)
		}
		return fmt.Errorf("invalid parameter for secret %q: %w", ref.Path, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDeniedException" {
		return fmt.Errorf("access denied for secret %q: %w", ref.Path, errors.Join(secrets.ErrAccessDenied, err))
	}

	return fmt.Errorf("secret %q: %w", ref.Path, errors.Join(secrets.ErrProviderError, err))
}

func containsAccessDeniedMessage(msg string) bool {
	lowerMsg := strings.ToLower(msg)
	return strings.Contains(lowerMsg, "access") && strings.Contains(lowerMsg, "denied")
}
