package git

import (
	gossh "golang.org/x/crypto/ssh"

	"github.com/ripeart/CountryBlock/git/internal/auth"
)

// TokenAuth authenticates https remotes with an access token. When hosts
// is non-empty the token is only sent to matching hosts ("github.com",
// "*.example.com").
//
//nolint:ireturn // callers only need the AuthProvider contract
func TokenAuth(token string, hosts ...string) AuthProvider {
	return auth.NewTokenProvider(token).WithAllowedHosts(hosts...)
}

// SSHKeyAuth authenticates ssh remotes with the private key at keyPath.
// Host keys are checked against knownHosts when given and against
// hostKeyCheck when it is non-nil.
//
//nolint:ireturn // callers only need the AuthProvider contract
func SSHKeyAuth(keyPath, passphrase string, knownHosts []string, hostKeyCheck gossh.HostKeyCallback) AuthProvider {
	p := auth.NewSSHKeyProvider(keyPath, passphrase).WithKnownHosts(knownHosts...)
	if hostKeyCheck != nil {
		p = p.WithHostKeyCallback(hostKeyCheck)
	}
	return p
}

// ChainAuth returns the first auth method any of providers offers for a
// remote.
//
//nolint:ireturn // callers only need the AuthProvider contract
func ChainAuth(providers ...AuthProvider) AuthProvider {
	chain := make(auth.Chain, 0, len(providers))
	for _, p := range providers {
		chain = append(chain, p)
	}
	return chain
}
