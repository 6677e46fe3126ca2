package auth

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// SSHKeyProvider authenticates ssh remotes with a private key file.
type SSHKeyProvider struct {
	keyPath        string
	passphrase     string
	username       string
	knownHosts     []string
	hostKeyCheck   gossh.HostKeyCallback
	allowedHosts   []string
	loadPublicKeys func(user, path, passphrase string) (*ssh.PublicKeys, error)
}

// NewSSHKeyProvider returns a provider reading the key at keyPath.
func NewSSHKeyProvider(keyPath, passphrase string) *SSHKeyProvider {
	return &SSHKeyProvider{
		keyPath:        keyPath,
		passphrase:     passphrase,
		username:       "git",
		loadPublicKeys: ssh.NewPublicKeysFromFile,
	}
}

// WithKnownHosts verifies host keys against the given known_hosts files.
func (p *SSHKeyProvider) WithKnownHosts(files ...string) *SSHKeyProvider {
	p.knownHosts = files
	return p
}

// WithHostKeyCallback sets an explicit host key check. It takes precedence
// over WithKnownHosts.
func (p *SSHKeyProvider) WithHostKeyCallback(cb gossh.HostKeyCallback) *SSHKeyProvider {
	p.hostKeyCheck = cb
	return p
}

// WithAllowedHosts restricts the key to matching hosts.
func (p *SSHKeyProvider) WithAllowedHosts(hosts ...string) *SSHKeyProvider {
	p.allowedHosts = hosts
	return p
}

// Method implements Provider.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *SSHKeyProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	r, err := parseRemote(remoteURL)
	if err != nil {
		return nil, err
	}
	if r.scheme != "ssh" && r.scheme != "git+ssh" {
		return nil, fmt.Errorf("ssh key auth requires an ssh remote, got %q", r.scheme)
	}
	if !hostAllowed(r.host, p.allowedHosts) {
		return nil, nil
	}

	keys, err := p.loadPublicKeys(p.username, p.keyPath, p.passphrase)
	if err != nil {
		return nil, fmt.Errorf("loading ssh key %s: %w", p.keyPath, err)
	}

	switch {
	case p.hostKeyCheck != nil:
		keys.HostKeyCallback = p.hostKeyCheck
	case len(p.knownHosts) > 0:
		cb, err := ssh.NewKnownHostsCallback(p.knownHosts...)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		keys.HostKeyCallback = cb
	}
	return keys, nil
}
