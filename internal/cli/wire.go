package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ripeart/CountryBlock/config"
	"github.com/ripeart/CountryBlock/executor"
	"github.com/ripeart/CountryBlock/fetch"
	"github.com/ripeart/CountryBlock/fs/billy"
	"github.com/ripeart/CountryBlock/git"
	"github.com/ripeart/CountryBlock/notify"
	"github.com/ripeart/CountryBlock/secrets"
	awsprovider "github.com/ripeart/CountryBlock/secrets/providers/aws"
	envprovider "github.com/ripeart/CountryBlock/secrets/providers/env"
	"github.com/ripeart/CountryBlock/store"
	"github.com/ripeart/CountryBlock/store/fsstore"
	"github.com/ripeart/CountryBlock/store/gitstore"
	"github.com/ripeart/CountryBlock/store/s3store"
)

// secretCacheTTL covers one run, so the SMTP username and password fields
// of one secret are fetched once.
const secretCacheTTL = 5 * time.Minute

// newSecrets returns a Manager whose default provider is the configured
// one. The AWS client is only built when selected.
func newSecrets(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*secrets.Manager, error) {
	m := secrets.NewManager(&secrets.Config{
		DefaultProvider: cfg.Credentials.Provider,
		AutoClear:       true,
		AuditLogger:     secrets.NewSlogAuditLogger(logger),
	})

	var p secrets.Provider
	switch cfg.Credentials.Provider {
	case config.ProviderAWS:
		aws, err := awsprovider.New(ctx,
			awsprovider.WithRegion(cfg.Credentials.AWS.Region),
			awsprovider.WithEndpoint(cfg.Credentials.AWS.Endpoint),
			awsprovider.WithCacheTTL(secretCacheTTL))
		if err != nil {
			return nil, &config.ConfigurationError{Field: "credentials.aws", Err: err}
		}
		p = aws
	default:
		p = envprovider.New()
	}
	if err := m.RegisterProvider(cfg.Credentials.Provider, p); err != nil {
		return nil, err
	}
	return m, nil
}

func secretRef(r config.SecretRef) secrets.SecretRef {
	ref := secrets.SecretRef{Path: r.Path}
	if r.Key != "" {
		ref.Metadata = map[string]string{secrets.MetadataKey: r.Key}
	}
	return ref
}

// resolveToken returns the store access token. Its absence is a
// configuration error raised before any network activity.
func resolveToken(ctx context.Context, cfg *config.Config, m *secrets.Manager) (string, error) {
	if !cfg.NeedsToken() {
		return "", nil
	}
	token, err := m.ResolveString(ctx, "", secretRef(cfg.Credentials.Token))
	if err != nil {
		return "", &config.ConfigurationError{
			Field: "credentials.token",
			Err:   fmt.Errorf("access token %q is not available: %w", cfg.Credentials.Token.Path, err),
		}
	}
	return token, nil
}

func newStore(ctx context.Context, cfg *config.Config, m *secrets.Manager, token string, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Kind {
	case config.StoreS3:
		s := cfg.Store.S3
		return s3store.New(ctx, s3store.Config{
			Bucket:       s.Bucket,
			Prefix:       s.Prefix,
			Region:       s.Region,
			Endpoint:     s.Endpoint,
			UsePathStyle: s.UsePathStyle,
			MaxRetries:   s.MaxRetries,
		})
	case config.StoreFS:
		return fsstore.New(billy.NewOSFS(cfg.Store.FS.Root)), nil
	default:
		g := cfg.Store.Git
		auth, err := gitAuth(ctx, g, m, token)
		if err != nil {
			return nil, err
		}
		return gitstore.New(gitstore.Config{
			URL:         g.RemoteURL(),
			Branch:      cfg.Store.Branch,
			Remote:      g.Remote,
			AuthorName:  g.AuthorName,
			AuthorEmail: g.AuthorEmail,
			Auth:        auth,
			Depth:       g.Depth,
			Logger:      logger,
		})
	}
}

//nolint:ireturn // the git facade only exposes the AuthProvider contract
func gitAuth(ctx context.Context, g config.GitRepo, m *secrets.Manager, token string) (git.AuthProvider, error) {
	if !g.UsesSSH() {
		return git.TokenAuth(token), nil
	}
	var passphrase string
	if g.SSH.PassphraseSecret != "" {
		p, err := m.ResolveString(ctx, "", secrets.SecretRef{Path: g.SSH.PassphraseSecret})
		if err != nil {
			return nil, &config.ConfigurationError{Field: "store.git.ssh.passphraseSecret", Err: err}
		}
		passphrase = p
	}
	return git.SSHKeyAuth(g.SSH.KeyPath, passphrase, g.SSH.KnownHosts, nil), nil
}

func newFetcher(cfg config.Source, logger *slog.Logger) *fetch.Fetcher {
	return fetch.New(
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.TimeoutDuration()}),
		fetch.WithMaxBodyBytes(cfg.MaxBodyBytes),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithLogger(logger),
	)
}

// newNotifier returns nil when notification is disabled. Missing SMTP
// credentials mean an unauthenticated relay.
func newNotifier(ctx context.Context, cfg config.Notify, m *secrets.Manager, logger *slog.Logger) (*notify.Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	resolve := func(field string, ref config.SecretRef) (string, error) {
		v, err := m.ResolveString(ctx, "", secretRef(ref))
		switch {
		case err == nil:
			return v, nil
		case errors.Is(err, secrets.ErrSecretNotFound):
			logger.Debug("smtp credential not set", slog.String("secret", ref.Path))
			return "", nil
		default:
			return "", &config.ConfigurationError{Field: field, Err: err}
		}
	}
	username, err := resolve("notify.username", cfg.Username)
	if err != nil {
		return nil, err
	}
	password, err := resolve("notify.password", cfg.Password)
	if err != nil {
		return nil, err
	}

	return notify.New(notify.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		From:     cfg.From,
		To:       cfg.To,
		Subject:  cfg.Subject,
		Username: username,
		Password: password,
	}, notify.WithLogger(logger))
}

// newHook returns nil when no command is configured.
func newHook(cfg config.Hook, logger *slog.Logger) *executor.Hook {
	if cfg.Command == "" {
		return nil
	}
	return executor.NewHook(cfg.Command, cfg.Args,
		executor.WithHookDir(cfg.Dir),
		executor.WithHookTimeout(cfg.TimeoutDuration()),
		executor.WithHookLogger(logger),
	)
}
