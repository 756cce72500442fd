package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nf:
  name: upf1
pfcp:
  bind_address: 0.0.0.0
n3:
  bind_address: 10.1.1.1
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 8805, cfg.PFCP.Port)
	require.Equal(t, 2152, cfg.N3.Port)
	require.Equal(t, 2152, cfg.N9.Port)
	require.Equal(t, "upf0", cfg.N6.InterfaceName)
	require.Equal(t, "10.45.0.0/16", cfg.N6.Subnet)
	require.EqualValues(t, 10000, cfg.N6.NATPortLo)
	require.EqualValues(t, 60000, cfg.N6.NATPortHi)
	require.Equal(t, 1024, cfg.Forwarding.QueueDepth)
	require.Equal(t, 4, cfg.Forwarding.Workers)
	require.EqualValues(t, 5, cfg.QoS.DefaultQFI)
	require.Equal(t, "0.0.0.0:8805", cfg.PFCPAddress())
	require.Equal(t, "10.1.1.1:2152", cfg.N3Address())
}

func TestLoadRespectsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pfcp:
  port: 18805
forwarding:
  workers: 8
  queue_depth: 2048
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 18805, cfg.PFCP.Port)
	require.Equal(t, 8, cfg.Forwarding.Workers)
	require.Equal(t, 2048, cfg.Forwarding.QueueDepth)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/upf.yaml")
	require.Error(t, err)
}
