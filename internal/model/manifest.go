package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ManifestFile is the manifest file name at the root of every game package
const ManifestFile = "config.json"

// DefaultEntryPoint is launched when a manifest names no server program
const DefaultEntryPoint = "server.py"

// Manifest describes an installed game package
type Manifest struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	Description      string `json:"description,omitempty"`
	Type             string `json:"type,omitempty"`
	MinPlayers       int    `json:"min_players,omitempty"`
	MaxPlayers       int    `json:"max_players,omitempty"`
	EntryPoint       string `json:"entry_point"`
	ClientEntryPoint string `json:"client_entry_point,omitempty"`
}

// ApplyDefaults fills fields the platform can infer
func (m *Manifest) ApplyDefaults() {
	if m.EntryPoint == "" {
		m.EntryPoint = DefaultEntryPoint
	}
}

// Validate checks the fields the platform relies on when launching
func (m Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	}
	if m.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidManifest)
	}
	if m.EntryPoint == "" {
		return fmt.Errorf("%w: entry_point is required", ErrInvalidManifest)
	}
	for _, p := range []string{m.EntryPoint, m.ClientEntryPoint} {
		if p == "" {
			continue
		}
		clean := filepath.ToSlash(filepath.Clean(p))
		if filepath.IsAbs(p) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("%w: entry point %q escapes the package", ErrInvalidManifest, p)
		}
	}
	return nil
}
