// Package notify mails a plain-text run report over SMTP.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	cberrors "github.com/ripeart/CountryBlock/errors"
)

// DefaultPort is the SMTP submission port.
const DefaultPort = 587

// ErrNoRecipients is returned by New when To is empty.
var ErrNoRecipients = errors.New("no recipients")

// SendFunc delivers one message. It has the signature of smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Config configures a Notifier. Username and Password are resolved secrets
// and are never read from configuration files directly.
type Config struct {
	Host     string
	Port     int
	From     string
	To       []string
	Subject  string
	Username string
	Password string
}

// SendError reports a failed delivery.
type SendError struct {
	Addr string
	Err  error
}

func (e *SendError) Error() string { return fmt.Sprintf("send mail via %s: %v", e.Addr, e.Err) }

func (e *SendError) Unwrap() error { return e.Err }

// ErrorCode implements errors.Coder.
func (e *SendError) ErrorCode() cberrors.ErrorCode {
	var ne net.Error
	if errors.As(e.Err, &ne) {
		return cberrors.CodeNetwork
	}
	return cberrors.CodeUnavailable
}

// Notifier sends run reports.
type Notifier struct {
	cfg    Config
	from   string
	rcpt   []string
	send   SendFunc
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSendFunc replaces smtp.SendMail.
func WithSendFunc(fn SendFunc) Option {
	return func(n *Notifier) { n.send = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithClock sets the time source for the Date header.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// New validates cfg and returns a Notifier.
func New(cfg Config, opts ...Option) (*Notifier, error) {
	if cfg.Host == "" {
		return nil, cberrors.New(cberrors.CodeInvalidConfig, "notify: host is required")
	}
	if len(cfg.To) == 0 {
		return nil, cberrors.Wrap(ErrNoRecipients, cberrors.CodeInvalidConfig, "notify")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, cberrors.Wrap(err, cberrors.CodeInvalidConfig, "notify: invalid sender")
	}
	rcpt := make([]string, 0, len(cfg.To))
	for _, to := range cfg.To {
		addr, err := mail.ParseAddress(to)
		if err != nil {
			return nil, cberrors.WrapWithContext(err, cberrors.CodeInvalidConfig, "notify: invalid recipient",
				map[string]any{"recipient": to})
		}
		rcpt = append(rcpt, addr.Address)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	n := &Notifier{
		cfg:    cfg,
		from:   from.Address,
		rcpt:   rcpt,
		send:   smtp.SendMail,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Addr returns host:port.
func (n *Notifier) Addr() string {
	return net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
}

// Send mails body with the configured subject plus an optional suffix,
// e.g. "updated" or "failed".
func (n *Notifier) Send(ctx context.Context, suffix, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := n.cfg.Subject
	if suffix != "" {
		subject = fmt.Sprintf("%s [%s]", subject, suffix)
	}
	msg := n.message(subject, body)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := n.Addr()
	if err := n.send(addr, auth, n.from, n.rcpt, msg); err != nil {
		return &SendError{Addr: addr, Err: err}
	}
	n.logger.Info("report mailed", slog.String("server", addr), slog.Int("recipients", len(n.rcpt)))
	return nil
}

func (n *Notifier) message(subject, body string) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headerValue(v))
	}
	header("From", n.cfg.From)
	header("To", strings.Join(n.cfg.To, ", "))
	header("Subject", subject)
	header("Date", n.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	b.WriteString("\r\n")

	body = strings.ReplaceAll(body, "\r\n", "\n")
	for _, line := range strings.Split(body, "\n") {
		// RFC 5321 dot-stuffing is done by net/smtp; only normalize endings.
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return b.Bytes()
}

// headerValue drops line breaks so values cannot inject headers.
func headerValue(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
