package core

import (
	"fmt"
	"strings"

	digest "github.com/opencontainers/go-digest"
)

// Digest is a canonical content digest string, exactly "sha256:" followed
// by 64 lowercase hexadecimal characters.
type Digest string

// ParseDigest validates s against the digest format and returns it typed.
func ParseDigest(s string) (Digest, error) {
	d := digest.Digest(s)
	if err := d.Validate(); err != nil {
		return "", &ConfigError{Field: "digest", Err: fmt.Errorf("%q: %w", s, err)}
	}
	if d.Algorithm() != digest.SHA256 {
		return "", &ConfigError{Field: "digest", Err: fmt.Errorf("%q: only sha256 digests are supported", s)}
	}
	return Digest(s), nil
}

// String implements fmt.Stringer.
func (d Digest) String() string { return string(d) }

// Encoded returns the 64 hex characters without the "sha256:" prefix.
func (d Digest) Encoded() string {
	_, hex, found := strings.Cut(string(d), ":")
	if !found {
		return string(d)
	}
	return hex
}
