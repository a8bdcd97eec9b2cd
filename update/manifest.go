// Package update checks a published manifest for newer releases of the
// redirector and for the host version at which it is no longer needed.
package update // import "code.soquee.net/canonical/update"

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DefaultURL is the location the manifest is published at.
const DefaultURL = "https://raw.githubusercontent.com/dimadin/redirect-canonical-fix/rest-api/latest.json"

// Manifest is the document the checker fetches.
type Manifest struct {
	// Version maps host branches (major.minor) to the recommended release.
	Version map[string]string `json:"version"`
	Disable Disable           `json:"disable"`
}

// Disable holds the conditions under which redirects should be turned off.
type Disable struct {
	// WPVersion is the host branch from which on the host handles canonical
	// redirects correctly itself.
	WPVersion string `json:"wp_version,omitempty"`
}

// DefaultManifest is the manifest of the current release.
func DefaultManifest() Manifest {
	return Manifest{
		Version: map[string]string{"5.1": "1.0.0"},
	}
}

// GenerateManifest writes m as JSON.
func GenerateManifest(w io.Writer, m Manifest) error {
	if m.Version == nil {
		m.Version = map[string]string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return nil
}

// ReadManifest decodes a manifest from r.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// Branch returns the major.minor branch of a version such as "5.1.2" or
// "5.2-RC1".
func Branch(version string) string {
	parts := strings.FieldsFunc(version, func(r rune) bool { return r == '.' || r == '-' })
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ".")
}
