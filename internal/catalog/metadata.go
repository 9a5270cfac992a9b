package catalog

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kaelis/skyshard/internal/errors"
	"github.com/kaelis/skyshard/internal/table"
)

// MetadataFile is the per-catalog descriptor filename.
const MetadataFile = "catalogue.yaml"

// Metadata is the catalogue descriptor for one namespace: the full
// list of recognized attributes and an optional default subset used
// for summary queries when no projection is requested.
type Metadata struct {
	Attributes        []AttributeSpec `yaml:"attributes"`
	DefaultAttributes []string        `yaml:"default_attributes,omitempty"`
}

// AttributeSpec describes one attribute column of a catalog.
type AttributeSpec struct {
	Name string `yaml:"name"`
	// Type is the column type tag: float (default), int or string.
	Type string `yaml:"type,omitempty"`
	// Unit is informational (e.g. "Jy", "deg").
	Unit string `yaml:"unit,omitempty"`
}

// loadMetadata reads the catalogue descriptor from dir. An absent file
// yields an empty descriptor, which disables attribute filtering for
// that catalog rather than failing.
func loadMetadata(dir string) (*Metadata, error) {
	path := filepath.Join(dir, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Metadata{}, nil
		}
		return nil, errors.Wrapf(errors.ErrMetadataRead, "%s: %v", path, err)
	}

	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(errors.ErrMetadataRead, "parse %s: %v", path, err)
	}
	return &m, nil
}

// Save writes the descriptor into dir. Used by ingestion tooling and
// tests; the query path only reads.
func (m *Metadata) Save(dir string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidConfig, "marshal catalogue descriptor: %v", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(errors.ErrShardWrite, "create %s: %v", dir, err)
	}
	return os.WriteFile(filepath.Join(dir, MetadataFile), data, 0644)
}

// Has reports whether the attribute is recognized by this catalog.
func (m *Metadata) Has(attr string) bool {
	for _, a := range m.Attributes {
		if a.Name == attr {
			return true
		}
	}
	return false
}

// AttributeNames returns the full recognized attribute list.
func (m *Metadata) AttributeNames() []string {
	out := make([]string, len(m.Attributes))
	for i, a := range m.Attributes {
		out[i] = a.Name
	}
	return out
}

// Columns maps the descriptor to typed table columns, normalizing the
// type tags.
func (m *Metadata) Columns() []table.Column {
	out := make([]table.Column, len(m.Attributes))
	for i, a := range m.Attributes {
		out[i] = table.Column{Name: a.Name, Type: table.ParseColumnType(a.Type)}
	}
	return out
}

// DefaultProjection returns the configured default attribute subset,
// or the full attribute list when no subset is configured.
func (m *Metadata) DefaultProjection() []string {
	if len(m.DefaultAttributes) > 0 {
		out := make([]string, len(m.DefaultAttributes))
		copy(out, m.DefaultAttributes)
		return out
	}
	return m.AttributeNames()
}
