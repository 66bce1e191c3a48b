package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-embedb/embedb/config"
)

func TestManifestParse(t *testing.T) {
	var m config.Manifest
	_, err := toml.Decode(`
filename = "orders.db"
timestamps = true
corrupt_alert_threshold = 0.2
autocompaction_interval_ms = 60000

[[index]]
fields = ["email"]
unique = true

[[index]]
fields = ["expiresAt"]
ttl_ms = 3600000
`, &m)
	require.NoError(t, err)

	assert.Equal(t, "orders.db", m.Filename)
	assert.True(t, m.Timestamps)
	assert.Equal(t, 0.2, m.CorruptAlertThreshold)
	assert.Equal(t, time.Minute, m.AutocompactionInterval())
	require.Len(t, m.Indexes, 2)
	assert.Equal(t, []string{"email"}, m.Indexes[0].Fields)
	assert.True(t, m.Indexes[0].Unique)
	assert.Equal(t, time.Hour, time.Duration(m.Indexes[1].TTLMs)*time.Millisecond)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
filename = "store.db"
in_memory_only = false
`), 0o644))

	m, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "store.db", m.Filename)
	assert.False(t, m.InMemoryOnly)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestManifestOptionsProducesDatastoreOptions(t *testing.T) {
	m := config.Manifest{Filename: "orders.db", Timestamps: true, InMemoryOnly: true}
	opts := m.Options()
	assert.Len(t, opts, 3)
}

func TestIndexDeclEnsureIndexOptions(t *testing.T) {
	d := config.IndexDecl{Fields: []string{"email"}, Unique: true}
	opts := d.EnsureIndexOptions()
	assert.Len(t, opts, 3)

	d = config.IndexDecl{Fields: []string{"expiresAt"}, TTLMs: 1000}
	opts = d.EnsureIndexOptions()
	assert.Len(t, opts, 4)
}

func TestManifestValidateRejectsMalformedFieldNames(t *testing.T) {
	cases := map[string][]string{
		"empty field name":       {""},
		"leading dot":            {".email"},
		"trailing dot":           {"email."},
		"doubled dot":            {"address..city"},
		"dollar-prefixed":        {"$email"},
		"nested dollar-prefixed": {"user.$id"},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			m := config.Manifest{Indexes: []config.IndexDecl{{Fields: fields}}}
			assert.Error(t, m.Validate())
		})
	}
}

func TestManifestValidateRejectsEmptyFieldList(t *testing.T) {
	m := config.Manifest{Indexes: []config.IndexDecl{{Fields: nil}}}
	assert.Error(t, m.Validate())
}

func TestManifestValidateAcceptsWellFormedFieldNames(t *testing.T) {
	m := config.Manifest{Indexes: []config.IndexDecl{
		{Fields: []string{"email"}},
		{Fields: []string{"address.city"}},
	}}
	assert.NoError(t, m.Validate())
}

func TestLoadRejectsMalformedIndexFieldName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
filename = "store.db"

[[index]]
fields = ["$email"]
`), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
