package config

import (
	"fmt"
	"strings"
)

// splitFieldAddress breaks a dotted field name into its path components,
// the same convention used throughout the rest of the module to address
// nested fields. Config only needs to validate these paths, never walk a
// live document with them, so this stays a read-only splitter rather than
// the full field-navigation machinery datastore operations use.
func splitFieldAddress(field string) []string {
	return strings.Split(field, ".")
}

// validateFieldName rejects dotted field names that EnsureIndex would
// otherwise fail on only once the store is loaded: empty path components
// (from a leading/trailing/doubled dot) and components starting with '$',
// which the rest of the module reserves for log-record sentinels.
func validateFieldName(field string) error {
	if field == "" {
		return fmt.Errorf("config: empty index field name")
	}
	for _, part := range splitFieldAddress(field) {
		if part == "" {
			return fmt.Errorf("config: invalid index field name %q: empty path component", field)
		}
		if strings.HasPrefix(part, "$") {
			return fmt.Errorf("config: invalid index field name %q: path component %q can't start with '$'", field, part)
		}
	}
	return nil
}

// Validate reports the first malformed field name found across every
// declared index.
func (m Manifest) Validate() error {
	for _, idx := range m.Indexes {
		if len(idx.Fields) == 0 {
			return fmt.Errorf("config: index declaration with no fields")
		}
		for _, f := range idx.Fields {
			if err := validateFieldName(f); err != nil {
				return err
			}
		}
	}
	return nil
}
