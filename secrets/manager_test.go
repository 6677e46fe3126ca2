package secrets_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cberrors "github.com/ripeart/CountryBlock/errors"
	"github.com/ripeart/CountryBlock/secrets"
	"github.com/ripeart/CountryBlock/secrets/providers/memory"
)

type recordingAudit struct {
	entries []*secrets.AuditEntry
}

func (r *recordingAudit) LogAccess(_ context.Context, action string, ref secrets.SecretRef, success bool, err error) {
	r.entries = append(r.entries, secrets.NewAuditEntry(action, ref, success, err))
}

type closeFailer struct {
	*memory.Provider
}

func (closeFailer) Close() error { return errors.New("boom") }

func newManager(t *testing.T, cfg *secrets.Config) (*secrets.Manager, *memory.Provider) {
	t.Helper()
	p := memory.New()
	m := secrets.NewManager(cfg)
	require.NoError(t, m.RegisterProvider("memory", p))
	return m, p
}

func TestManagerRegisterProvider(t *testing.T) {
	m := secrets.NewManager(nil)
	assert.Error(t, m.RegisterProvider("", memory.New()))
	assert.Error(t, m.RegisterProvider("x", nil))
	require.NoError(t, m.RegisterProvider("x", memory.New()))
	assert.Error(t, m.RegisterProvider("x", memory.New()))
	assert.Equal(t, []string{"x"}, m.Providers())
}

func TestManagerResolve(t *testing.T) {
	ctx := context.Background()
	audit := &recordingAudit{}
	m, p := newManager(t, &secrets.Config{DefaultProvider: "memory", AutoClear: true, AuditLogger: audit})
	ref := secrets.SecretRef{Path: "GITHUB_TOKEN"}
	require.NoError(t, p.Store(ctx, ref, []byte("ghp_example")))

	s, err := m.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.True(t, s.AutoClear)
	assert.Equal(t, "ghp_example", s.String())
	assert.Nil(t, s.Value, "auto clear zeroes the value after the first read")

	_, err = m.Resolve(ctx, secrets.SecretRef{Path: "SMTP_PASSWORD"})
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
	assert.True(t, secrets.IsProviderError(err))
	assert.Equal(t, cberrors.CodeInvalidConfig, cberrors.CodeOf(err))

	require.Len(t, audit.entries, 2)
	assert.True(t, audit.entries[0].Success)
	assert.False(t, audit.entries[1].Success)
	assert.Equal(t, "SMTP_PASSWORD", audit.entries[1].SecretRef.Path)
}

func TestManagerResolveErrors(t *testing.T) {
	ctx := context.Background()

	_, err := secrets.NewManager(nil).Resolve(ctx, secrets.SecretRef{Path: "x"})
	assert.ErrorContains(t, err, "no default provider")

	m, _ := newManager(t, &secrets.Config{DefaultProvider: "memory"})
	_, err = m.ResolveFrom(ctx, "vault", secrets.SecretRef{Path: "x"})
	assert.ErrorIs(t, err, secrets.ErrProviderNotFound)

	_, err = m.Resolve(ctx, secrets.SecretRef{})
	assert.ErrorIs(t, err, secrets.ErrInvalidRef)
}

func TestManagerResolveString(t *testing.T) {
	ctx := context.Background()
	m, p := newManager(t, &secrets.Config{DefaultProvider: "memory"})
	require.NoError(t, p.Store(ctx, secrets.SecretRef{Path: "tok"}, []byte("v")))

	got, err := m.ResolveString(ctx, "", secrets.SecretRef{Path: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	got, err = m.ResolveString(ctx, "memory", secrets.SecretRef{Path: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestManagerExists(t *testing.T) {
	ctx := context.Background()
	m, p := newManager(t, &secrets.Config{DefaultProvider: "memory"})
	require.NoError(t, p.Store(ctx, secrets.SecretRef{Path: "tok"}, []byte("v")))

	ok, err := m.Exists(ctx, secrets.SecretRef{Path: "tok"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Exists(ctx, secrets.SecretRef{Path: "other"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerClose(t *testing.T) {
	m := secrets.NewManager(nil)
	require.NoError(t, m.RegisterProvider("ok", memory.New()))
	require.NoError(t, m.RegisterProvider("bad", closeFailer{memory.New()}))

	err := m.Close()
	assert.ErrorContains(t, err, `failed to close provider "bad"`)
	assert.Empty(t, m.Providers())
}

func TestSecretClear(t *testing.T) {
	buf := []byte("secret")
	s := &secrets.Secret{Value: buf}
	assert.Equal(t, []byte("secret"), s.Bytes())
	s.Clear()
	assert.Nil(t, s.Value)
	assert.Equal(t, make([]byte, 6), buf, "backing array is zeroed")
	assert.Equal(t, "", s.String())
}

func TestSlogAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	l := secrets.NewSlogAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	l.LogAccess(context.Background(), "resolve", secrets.SecretRef{Path: "GITHUB_TOKEN"}, false, secrets.ErrSecretNotFound)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "GITHUB_TOKEN", rec["secret"])
	assert.Equal(t, false, rec["success"])
	assert.Equal(t, "secret not found", rec["error"])
}
