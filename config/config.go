// Package config loads the CountryBlock run configuration.
//
// A configuration file is CUE. It is unified with the embedded #Config
// schema, which supplies every default and the structural constraints, then
// decoded into Config and checked by Validate for the rules CUE cannot
// express (URL syntax, durations, store-specific required fields).
//
//	cfg, err := config.Load(ctx, billy.NewOSFS("."), "countryblock.cue")
//
// An empty path yields the defaults: sync the Nigerian aggregated zone into
// ripeart/CountryBlock on GitHub with GITHUB_TOKEN from the environment.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Store kinds.
const (
	StoreGit = "git"
	StoreS3  = "s3"
	StoreFS  = "fs"
)

// Credential providers.
const (
	ProviderEnv = "env"
	ProviderAWS = "aws"
)

// Config is the decoded run configuration.
type Config struct {
	Source      Source      `json:"source"`
	Store       Store       `json:"store"`
	Credentials Credentials `json:"credentials"`
	Artifacts   Artifacts   `json:"artifacts"`
	Sync        Sync        `json:"sync"`
	Notify      Notify      `json:"notify"`
	Hook        Hook        `json:"hook"`
	Log         Log         `json:"log"`
	Metrics     Metrics     `json:"metrics"`
}

// SecretRef names a secret in the configured credentials provider.
type SecretRef struct {
	Path string `json:"path"`
	Key  string `json:"key"`
}

// Source is where the CIDR list is downloaded from.
type Source struct {
	URL          string `json:"url"`
	Timeout      string `json:"timeout"`
	MaxBodyBytes int64  `json:"maxBodyBytes"`
	UserAgent    string `json:"userAgent"`
}

// Store selects and configures the remote store.
type Store struct {
	Kind   string  `json:"kind"`
	Branch string  `json:"branch"`
	Git    GitRepo `json:"git"`
	S3     S3      `json:"s3"`
	FS     FS      `json:"fs"`
}

// GitRepo configures the git store.
type GitRepo struct {
	// Repository is an owner/name pair on GitHub, used when URL is empty.
	Repository  string `json:"repository"`
	URL         string `json:"url"`
	Remote      string `json:"remote"`
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail"`
	Depth       int    `json:"depth"`
	SSH         SSH    `json:"ssh"`
}

// SSH configures key-based git authentication.
type SSH struct {
	KeyPath          string   `json:"keyPath"`
	PassphraseSecret string   `json:"passphraseSecret"`
	KnownHosts       []string `json:"knownHosts"`
}

// S3 configures the S3 store.
type S3 struct {
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	Region       string `json:"region"`
	Endpoint     string `json:"endpoint"`
	UsePathStyle bool   `json:"usePathStyle"`
	MaxRetries   int    `json:"maxRetries"`
}

// FS configures the local directory store.
type FS struct {
	Root string `json:"root"`
}

// Credentials selects where secrets are resolved.
type Credentials struct {
	Provider string    `json:"provider"`
	Token    SecretRef `json:"token"`
	AWS      struct {
		Region   string `json:"region"`
		Endpoint string `json:"endpoint"`
	} `json:"aws"`
}

// Artifacts configures the two published files.
type Artifacts struct {
	Message string        `json:"message"`
	Regex   RegexArtifact `json:"regex"`
	Hosts   HostsArtifact `json:"hosts"`
}

// RegexArtifact configures the regex list.
type RegexArtifact struct {
	Enabled  bool   `json:"enabled"`
	Path     string `json:"path"`
	MaxWidth int    `json:"maxWidth"`
}

// HostsArtifact configures the host list. MaxHosts of zero is unbounded.
type HostsArtifact struct {
	Enabled  bool   `json:"enabled"`
	Path     string `json:"path"`
	MaxHosts uint64 `json:"maxHosts"`
}

// Sync configures the sync engine.
type Sync struct {
	Timeout       string `json:"timeout"`
	DryRun        bool   `json:"dryRun"`
	MarkerName    string `json:"markerName"`
	MarkerMessage string `json:"markerMessage"`
}

// Notify configures the mail report.
type Notify struct {
	Enabled      bool      `json:"enabled"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	From         string    `json:"from"`
	To           []string  `json:"to"`
	Subject      string    `json:"subject"`
	Username     SecretRef `json:"username"`
	Password     SecretRef `json:"password"`
	OnlyOnChange bool      `json:"onlyOnChange"`
}

// Hook configures the post-sync command.
type Hook struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Dir     string   `json:"dir"`
	Timeout string   `json:"timeout"`
}

// Log configures logging.
type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Metrics configures the textfile export.
type Metrics struct {
	File string `json:"file"`
}

// TimeoutDuration returns the parsed fetch timeout.
func (s Source) TimeoutDuration() time.Duration { return duration(s.Timeout) }

// TimeoutDuration returns the parsed per-run sync timeout.
func (s Sync) TimeoutDuration() time.Duration { return duration(s.Timeout) }

// TimeoutDuration returns the parsed hook timeout.
func (h Hook) TimeoutDuration() time.Duration { return duration(h.Timeout) }

// RemoteURL returns URL, or the GitHub HTTPS URL of Repository.
func (g GitRepo) RemoteURL() string {
	if g.URL != "" {
		return g.URL
	}
	return fmt.Sprintf("https://github.com/%s.git", strings.TrimSuffix(g.Repository, ".git"))
}

// UsesSSH reports whether the remote is reached over SSH.
func (g GitRepo) UsesSSH() bool {
	u := g.RemoteURL()
	return strings.HasPrefix(u, "ssh://") || strings.HasPrefix(u, "git+ssh://") ||
		(!strings.Contains(u, "://") && strings.Contains(u, "@") && strings.Contains(u, ":"))
}

// NeedsToken reports whether the run must resolve the access token before
// touching the network.
func (c *Config) NeedsToken() bool {
	return c.Store.Kind == StoreGit && !c.Store.Git.UsesSSH()
}

// duration parses a duration that Validate has already accepted. It
// returns zero on malformed input.
func duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
