package auth

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// DefaultTokenUsername is sent alongside a token. GitHub ignores the value
// but requires it to be non-empty.
const DefaultTokenUsername = "x-access-token"

// TokenProvider authenticates HTTPS remotes with a personal access token.
type TokenProvider struct {
	auth         *http.BasicAuth
	allowedHosts []string
}

// NewTokenProvider returns a provider sending token as the basic auth
// password.
func NewTokenProvider(token string) *TokenProvider {
	return &TokenProvider{
		auth: &http.BasicAuth{Username: DefaultTokenUsername, Password: token},
	}
}

// WithUsername overrides DefaultTokenUsername.
func (p *TokenProvider) WithUsername(username string) *TokenProvider {
	p.auth.Username = username
	return p
}

// WithAllowedHosts restricts the token to matching hosts. Other hosts get
// no credentials so the token never leaks to them.
func (p *TokenProvider) WithAllowedHosts(hosts ...string) *TokenProvider {
	p.allowedHosts = hosts
	return p
}

// Method implements Provider.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *TokenProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	r, err := parseRemote(remoteURL)
	if err != nil {
		return nil, err
	}
	if r.scheme != "https" {
		return nil, fmt.Errorf("token auth requires an https remote, got %q", r.scheme)
	}
	if !hostAllowed(r.host, p.allowedHosts) {
		return nil, nil
	}
	return p.auth, nil
}
