// Package auth selects go-git transport credentials for a remote URL.
package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Provider returns the auth method for a remote URL. A nil method with a nil
// error means the provider declines the URL.
type Provider interface {
	Method(remoteURL string) (transport.AuthMethod, error)
}

// remote is the scheme and host of a remote URL, with scp-style
// "git@host:path" addresses reported as ssh.
type remote struct {
	scheme string
	host   string
}

func parseRemote(remoteURL string) (remote, error) {
	if !strings.Contains(remoteURL, "://") {
		if at := strings.Index(remoteURL, "@"); at >= 0 {
			if colon := strings.Index(remoteURL[at:], ":"); colon > 0 {
				return remote{scheme: "ssh", host: remoteURL[at+1 : at+colon]}, nil
			}
		}
		return remote{}, fmt.Errorf("invalid remote URL %q", remoteURL)
	}

	u, err := url.Parse(remoteURL)
	if err != nil {
		return remote{}, fmt.Errorf("invalid remote URL: %w", err)
	}
	return remote{scheme: u.Scheme, host: u.Hostname()}, nil
}

func hostAllowed(host string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchesPattern(host, p) {
			return true
		}
	}
	return false
}

// matchesPattern matches a host against an exact name, a "*.example.com"
// suffix pattern or an "example.*" prefix pattern.
func matchesPattern(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if strings.Count(pattern, "*") != 1 {
		return false
	}
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(host, prefix+".")
	}
	return false
}
