// Package secrets resolves credentials from pluggable providers and clears
// them from memory once read.
//
// A Manager holds named providers and a default:
//
//	m := secrets.NewManager(&secrets.Config{DefaultProvider: "env", AutoClear: true})
//	_ = m.RegisterProvider("env", env.New())
//	tok, err := m.Resolve(ctx, secrets.SecretRef{Path: "GITHUB_TOKEN"})
//
// Missing secrets satisfy errors.Is(err, secrets.ErrSecretNotFound).
package secrets

import "time"

// Secret is a resolved secret value.
type Secret struct {
	// Value must never be logged.
	Value []byte
	// Version is the provider version identifier, if any.
	Version   string
	CreatedAt time.Time
	// AutoClear zeroes Value after the first String or Bytes call.
	AutoClear bool
}

// SecretRef names a secret without holding its value.
type SecretRef struct {
	// Path identifies the secret, e.g. "GITHUB_TOKEN" or "countryblock/smtp".
	Path string
	// Version selects a version; empty means latest.
	Version string
	// Metadata carries provider-specific selectors. The aws provider reads
	// MetadataKey to pick one field out of a JSON secret.
	Metadata map[string]string
}

// MetadataKey selects a field of a JSON-encoded secret.
const MetadataKey = "key"

// String returns the value as a string.
func (s *Secret) String() string {
	if s.Value == nil {
		return ""
	}

	value := string(s.Value)
	if s.AutoClear {
		s.Clear()
	}
	return value
}

// Bytes returns a copy of the value.
func (s *Secret) Bytes() []byte {
	if s.Value == nil {
		return nil
	}

	value := make([]byte, len(s.Value))
	copy(value, s.Value)
	if s.AutoClear {
		s.Clear()
	}
	return value
}

// Clear zeroes the value in place and drops the reference.
func (s *Secret) Clear() {
	if s.Value != nil {
		for i := range s.Value {
			s.Value[i] = 0
		}
		s.Value = nil
	}
}

// Copy returns a detached copy of s.
func (s *Secret) Copy() *Secret {
	return &Secret{
		Value:     append([]byte(nil), s.Value...),
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		AutoClear: s.AutoClear,
	}
}
