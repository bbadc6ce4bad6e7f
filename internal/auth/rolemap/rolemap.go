// Package rolemap normalizes provider role strings into the internal role
// model using a versioned, per-source table.
package rolemap

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"backoffice/internal/auth/models"
)

//go:embed mapping.yaml
var defaultMapping []byte

type document struct {
	Version int                          `yaml:"version"`
	Default string                       `yaml:"default"`
	Sources map[string]map[string]string `yaml:"sources"`
}

// Normalizer is immutable after construction and safe for concurrent use.
type Normalizer struct {
	version  int
	fallback models.Role
	tables   map[models.Provider]map[string]models.Role
}

// Default returns the normalizer for the table compiled into the binary.
func Default() *Normalizer {
	n, err := Load(bytes.NewReader(defaultMapping))
	if err != nil {
		panic(fmt.Sprintf("rolemap: embedded mapping is invalid: %v", err))
	}
	return n
}

// LoadFile reads an override table from disk.
func LoadFile(path string) (*Normalizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open role mapping: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a mapping table. A table whose default role is
// elevated, or which targets a role outside the closed set, is rejected.
func Load(r io.Reader) (*Normalizer, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode role mapping: %w", err)
	}
	if doc.Version <= 0 {
		return nil, fmt.Errorf("role mapping: version is required")
	}
	fallback := models.Role(doc.Default)
	if !fallback.Valid() {
		return nil, fmt.Errorf("role mapping: unknown default role %q", doc.Default)
	}
	if fallback.IsElevated() {
		return nil, fmt.Errorf("role mapping: default role %q must not be elevated", doc.Default)
	}

	tables := make(map[models.Provider]map[string]models.Role, len(doc.Sources))
	for source, entries := range doc.Sources {
		provider := models.Provider(source)
		if !provider.Valid() {
			return nil, fmt.Errorf("role mapping: unknown source %q", source)
		}
		table := make(map[string]models.Role, len(entries))
		for raw, target := range entries {
			role := models.Role(target)
			if !role.Valid() {
				return nil, fmt.Errorf("role mapping: %s/%s targets unknown role %q", source, raw, target)
			}
			key := strings.TrimSpace(raw)
			if key == "" {
				return nil, fmt.Errorf("role mapping: %s has an empty key", source)
			}
			table[key] = role
		}
		tables[provider] = table
	}

	return &Normalizer{version: doc.Version, fallback: fallback, tables: tables}, nil
}

// Version identifies the loaded table.
func (n *Normalizer) Version() int {
	return n.version
}

// Fallback is the role assigned to unmapped strings.
func (n *Normalizer) Fallback() models.Role {
	return n.fallback
}

// Lookup maps raw for the given source and reports whether it was mapped.
func (n *Normalizer) Lookup(raw string, source models.Provider) (models.Role, bool) {
	role, ok := n.tables[source][strings.TrimSpace(raw)]
	if !ok {
		return n.fallback, false
	}
	return role, true
}

// Normalize is total: unmapped or empty input yields the fallback role.
func (n *Normalizer) Normalize(raw string, source models.Provider) models.Role {
	role, _ := n.Lookup(raw, source)
	return role
}

// NormalizeAll maps every raw role and returns the highest-ranked result.
// Unmapped entries contribute only the fallback.
func (n *Normalizer) NormalizeAll(raws []string, source models.Provider) models.Role {
	best := n.fallback
	for _, raw := range raws {
		if role := n.Normalize(raw, source); role.Rank() > best.Rank() {
			best = role
		}
	}
	return best
}
