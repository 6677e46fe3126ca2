package config

import (
	"errors"
	"net/mail"
	"net/url"
	"path"
	"strings"
	"time"
)

// Validate checks the rules the schema cannot express. Every violation is a
// *ConfigurationError; several are joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(err *ConfigurationError) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(validateHTTPURL("source.url", c.Source.URL))
	add(validateDuration("source.timeout", c.Source.Timeout))
	add(validateDuration("sync.timeout", c.Sync.Timeout))
	add(validateDuration("hook.timeout", c.Hook.Timeout))

	switch c.Store.Kind {
	case StoreGit:
		add(c.Store.Git.validate())
	case StoreS3:
		if c.Store.S3.Bucket == "" {
			add(invalidf("store.s3.bucket", "required when store.kind is %q", StoreS3))
		}
		if c.Store.S3.Endpoint != "" {
			add(validateHTTPURL("store.s3.endpoint", c.Store.S3.Endpoint))
		}
	case StoreFS:
		if c.Store.FS.Root == "" {
			add(invalidf("store.fs.root", "required when store.kind is %q", StoreFS))
		}
	}

	add(c.Artifacts.validate())
	errs = append(errs, c.Notify.validate()...)

	if strings.Contains(c.Sync.MarkerName, "/") {
		add(invalidf("sync.markerName", "must be a file name, got %q", c.Sync.MarkerName))
	}

	return errors.Join(errs...)
}

func (g GitRepo) validate() *ConfigurationError {
	if g.URL == "" {
		parts := strings.Split(strings.TrimSuffix(g.Repository, ".git"), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return invalidf("store.git.repository", "want owner/name, got %q", g.Repository)
		}
		return nil
	}
	if g.UsesSSH() {
		if g.SSH.KeyPath == "" {
			return invalidf("store.git.ssh.keyPath", "required for SSH remote %q", g.URL)
		}
		return nil
	}
	u, err := url.Parse(g.URL)
	if err != nil || (u.Host == "" && u.Scheme != "file") {
		return invalidf("store.git.url", "not a remote URL: %q", g.URL)
	}
	return nil
}

func (a Artifacts) validate() *ConfigurationError {
	if !a.Regex.Enabled && !a.Hosts.Enabled {
		return invalidf("artifacts", "at least one of regex and hosts must be enabled")
	}
	for _, f := range []struct{ field, path string }{
		{"artifacts.regex.path", a.Regex.Path},
		{"artifacts.hosts.path", a.Hosts.Path},
	} {
		if path.IsAbs(f.path) || strings.HasPrefix(path.Clean(f.path), "..") {
			return invalidf(f.field, "must be relative to the store root, got %q", f.path)
		}
	}
	if a.Regex.Enabled && a.Hosts.Enabled && path.Clean(a.Regex.Path) == path.Clean(a.Hosts.Path) {
		return invalidf("artifacts.hosts.path", "collides with artifacts.regex.path %q", a.Regex.Path)
	}
	return nil
}

func (n Notify) validate() []error {
	if !n.Enabled {
		return nil
	}
	var errs []error
	if n.Host == "" {
		errs = append(errs, invalidf("notify.host", "required when notify is enabled"))
	}
	if _, err := mail.ParseAddress(n.From); err != nil {
		errs = append(errs, invalidf("notify.from", "%v", err))
	}
	if len(n.To) == 0 {
		errs = append(errs, invalidf("notify.to", "at least one recipient is required"))
	}
	for _, to := range n.To {
		if _, err := mail.ParseAddress(to); err != nil {
			errs = append(errs, invalidf("notify.to", "%q: %v", to, err))
		}
	}
	return errs
}

func validateHTTPURL(field, raw string) *ConfigurationError {
	u, err := url.Parse(raw)
	if err != nil {
		return invalidf(field, "%v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalidf(field, "want an http(s) URL, got %q", raw)
	}
	return nil
}

func validateDuration(field, raw string) *ConfigurationError {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return invalidf(field, "%v", err)
	}
	if d <= 0 {
		return invalidf(field, "must be positive, got %s", raw)
	}
	return nil
}
