package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
control_plane_url: http://cp.example:9696
host: node-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://cp.example:9696", cfg.ControlPlaneURL)
	assert.Equal(t, "node-1", cfg.Host)
	assert.Equal(t, "ping", cfg.Driver)
	assert.Equal(t, "monitor-agent", cfg.Topic)
	assert.Equal(t, 5*time.Second, cfg.ResyncInterval())
	assert.Equal(t, 5*time.Second, cfg.PingTimeout())
	assert.Equal(t, 20*time.Second, cfg.PingInterval())
	assert.Equal(t, 120*time.Second, cfg.PingReportThreshold())
	assert.False(t, cfg.ReportingEnabled(), "reporting is disabled when the interval is absent")
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
control_plane_url: http://cp.example:9696
host: node-1
driver: passive
resync_interval_sec: 30
ping_interval_sec: 60
report_interval_sec: 15
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "passive", cfg.Driver)
	assert.Equal(t, 30*time.Second, cfg.ResyncInterval())
	assert.Equal(t, 60*time.Second, cfg.PingInterval())
	assert.Equal(t, 15*time.Second, cfg.ReportInterval())
	assert.True(t, cfg.ReportingEnabled())
}

func TestLoadMissingControlPlaneURL(t *testing.T) {
	path := writeConfig(t, `
host: node-1
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "control_plane_url: [broken")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestNegativeReportIntervalRejected(t *testing.T) {
	path := writeConfig(t, `
control_plane_url: http://cp.example:9696
host: node-1
report_interval_sec: -1
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadOrCreateState(t *testing.T) {
	dir := t.TempDir()

	st, err := LoadOrCreateState(dir, "node-1")
	require.NoError(t, err)
	assert.NotEmpty(t, st.InstanceID)
	assert.Equal(t, "node-1", st.Host)
	assert.False(t, st.CreatedAt.IsZero())

	// Stable across reloads
	again, err := LoadOrCreateState(dir, "node-1")
	require.NoError(t, err)
	assert.Equal(t, st.InstanceID, again.InstanceID)
}

func TestLoadOrCreateStateRejectsCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(StatePath(dir), []byte("instance_id: [broken"), 0o600))

	_, err := LoadOrCreateState(dir, "node-1")
	assert.Error(t, err)
}
