package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	ac, err := LoadAppConfigFrom(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), ac)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_path: /data/sphere.db
metrics_addr: ":9090"
prepare:
  workers: 8
  staging_size: 256MiB
  on_error: skip
`), 0o644))

	ac, err := LoadAppConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/sphere.db", ac.DatabasePath)
	assert.Equal(t, ":9090", ac.MetricsAddr)
	assert.Equal(t, 8, ac.Prepare.Workers)
	assert.Equal(t, "skip", ac.Prepare.OnError)
	assert.Equal(t, DefaultBatchSize, ac.Prepare.BatchSize)

	n, err := ac.Prepare.StagingBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(256<<20), n)
	n, err = ac.Prepare.BatchBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), n)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prepare: [not, a, map"), 0o644))
	_, err := LoadAppConfigFrom(path)
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "1MiB", want: 1 << 20},
		{in: "2GiB", want: 2 << 30},
		{in: " 512 KB ", want: 512000},
		{in: "4096", want: 4096},
		{in: "0", wantErr: true},
		{in: "lots", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x.db"), ExpandPath("~/x.db"))
	t.Setenv("SPHERE_DIR", "/srv")
	assert.Equal(t, "/srv/x.db", ExpandPath("$SPHERE_DIR/x.db"))
	assert.Equal(t, "", ExpandPath(""))
}

func TestWriteConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	ac := Default()
	ac.Prepare.Workers = 2
	ac.MetricsAddr = ":9100"
	require.NoError(t, WriteConfig(path, ac))

	got, err := LoadAppConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, ac, got)

	// Writing again keeps a backup of the previous file.
	require.NoError(t, WriteConfig(path, Default()))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	var backups int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "config.yaml.bak-") {
			backups++
		}
	}
	assert.Equal(t, 1, backups)
}
