// Package config provides a TOML front-end for [domain.DatastoreOption],
// letting a host application describe one or more datastores declaratively
// instead of building option slices by hand. It never bypasses or
// duplicates the functional-options system: [Manifest.Options] simply
// translates parsed fields into the same options accepted by New.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-embedb/embedb/domain"
)

// IndexDecl declares one secondary index to be created after the datastore
// loads.
type IndexDecl struct {
	Fields []string `toml:"fields"`
	Unique bool     `toml:"unique"`
	Sparse bool     `toml:"sparse"`
	TTLMs  int64    `toml:"ttl_ms"`
}

// Manifest mirrors the public [domain.DatastoreOption] surface as a
// TOML-tagged struct, so a datastore can be described in a config file
// instead of Go code.
type Manifest struct {
	Filename                 string      `toml:"filename"`
	Timestamps               bool        `toml:"timestamps"`
	InMemoryOnly             bool        `toml:"in_memory_only"`
	CorruptAlertThreshold    float64     `toml:"corrupt_alert_threshold"`
	AutocompactionIntervalMs int64       `toml:"autocompaction_interval_ms"`
	Indexes                  []IndexDecl `toml:"index"`
}

// Load reads and parses the manifest at path, rejecting malformed index
// field names before they would otherwise fail at EnsureIndex time.
func Load(path string) (Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return Manifest{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Options translates the manifest into the [domain.DatastoreOption] slice
// that [domain] datastore constructors expect. Index declarations are not
// applied here: they must be passed to Store.EnsureIndex once the store is
// loaded, since indexes are built against live data rather than
// constructor state.
func (m Manifest) Options() []domain.DatastoreOption {
	opts := []domain.DatastoreOption{
		domain.WithDatastoreFilename(m.Filename),
		domain.WithDatastoreTimestampData(m.Timestamps),
		domain.WithDatastoreInMemoryOnly(m.InMemoryOnly),
	}
	if m.CorruptAlertThreshold > 0 {
		opts = append(opts, domain.WithDatastoreCorruptAlertThreshold(m.CorruptAlertThreshold))
	}
	return opts
}

// AutocompactionInterval returns the configured autocompaction interval, or
// zero if none was set.
func (m Manifest) AutocompactionInterval() time.Duration {
	if m.AutocompactionIntervalMs <= 0 {
		return 0
	}
	return time.Duration(m.AutocompactionIntervalMs) * time.Millisecond
}

// EnsureIndexOptions translates a single index declaration into the
// options expected by Store.EnsureIndex.
func (d IndexDecl) EnsureIndexOptions() []domain.EnsureIndexOption {
	opts := []domain.EnsureIndexOption{
		domain.WithEnsureIndexFieldNames(d.Fields...),
		domain.WithEnsureIndexUnique(d.Unique),
		domain.WithEnsureIndexSparse(d.Sparse),
	}
	if d.TTLMs > 0 {
		opts = append(opts, domain.WithEnsureIndexExpiry(time.Duration(d.TTLMs)*time.Millisecond))
	}
	return opts
}
