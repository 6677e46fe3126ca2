package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cberrors "github.com/ripeart/CountryBlock/errors"
)

type sent struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func recorder(out *sent, err error) SendFunc {
	return func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*out = sent{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
		return err
	}
}

func testConfig() Config {
	return Config{
		Host:     "smtp.example.org",
		From:     "CountryBlock <countryblock@example.org>",
		To:       []string{"ops@example.org", "noc@example.org"},
		Subject:  "CountryBlock report",
		Username: "mailer",
		Password: "s3cret",
	}
}

func TestSend(t *testing.T) {
	var got sent
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n, err := New(testConfig(), WithSendFunc(recorder(&got, nil)), WithClock(func() time.Time { return at }))
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "updated", "hosts: updated\nregex: skipped"))

	assert.Equal(t, "smtp.example.org:587", got.addr)
	assert.Equal(t, "countryblock@example.org", got.from)
	assert.Equal(t, []string{"ops@example.org", "noc@example.org"}, got.to)
	assert.NotNil(t, got.auth)

	assert.Contains(t, got.msg, "Subject: CountryBlock report [updated]\r\n")
	assert.Contains(t, got.msg, "To: ops@example.org, noc@example.org\r\n")
	assert.Contains(t, got.msg, "Date: Wed, 01 May 2024 12:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(got.msg, "\r\n\r\nhosts: updated\r\nregex: skipped\r\n"))
	assert.NotContains(t, got.msg, "s3cret")
}

func TestSendStripsDisplayNamesFromEnvelope(t *testing.T) {
	var got sent
	cfg := testConfig()
	cfg.To = []string{"Security <sec@example.org>"}
	n, err := New(cfg, WithSendFunc(recorder(&got, nil)))
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "", "body"))
	assert.Equal(t, []string{"sec@example.org"}, got.to)
	assert.Contains(t, got.msg, "To: Security <sec@example.org>\r\n")
}

func TestSendWithoutCredentials(t *testing.T) {
	var got sent
	cfg := testConfig()
	cfg.Username, cfg.Password = "", ""
	cfg.Port = 25
	n, err := New(cfg, WithSendFunc(recorder(&got, nil)))
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "", "body"))
	assert.Nil(t, got.auth)
	assert.Equal(t, "smtp.example.org:25", got.addr)
	assert.Contains(t, got.msg, "Subject: CountryBlock report\r\n")
}

func TestSendFailure(t *testing.T) {
	var got sent
	n, err := New(testConfig(), WithSendFunc(recorder(&got, errors.New("535 authentication failed"))))
	require.NoError(t, err)

	err = n.Send(context.Background(), "", "body")
	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "smtp.example.org:587", se.Addr)
	assert.Equal(t, cberrors.CodeUnavailable, cberrors.CodeOf(err))
}

func TestSendCancelled(t *testing.T) {
	called := false
	n, err := New(testConfig(), WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Send(ctx, "", "body"), context.Canceled)
	assert.False(t, called)
}

func TestSubjectCannotInjectHeaders(t *testing.T) {
	var got sent
	cfg := testConfig()
	cfg.Subject = "report\r\nBcc: attacker@example.com"
	n, err := New(cfg, WithSendFunc(recorder(&got, nil)))
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "", "body"))
	assert.NotContains(t, got.msg, "\r\nBcc:")
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no host", func(c *Config) { c.Host = "" }},
		{"no recipients", func(c *Config) { c.To = nil }},
		{"bad sender", func(c *Config) { c.From = "not an address" }},
		{"bad recipient", func(c *Config) { c.To = []string{"ops@example.org", "nobody"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.Equal(t, cberrors.CodeInvalidConfig, cberrors.CodeOf(err))
		})
	}
}
