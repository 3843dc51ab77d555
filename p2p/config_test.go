package p2p

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverridesOnlyGivenFields(t *testing.T) {
	dir, err := ioutil.TempDir("", "p2p-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "node.toml")
	const doc = `
[Pool]
PeerCountMax = 64

[Supervisor]
ConnectBackoffMax = 300000000000
`
	require.NoError(t, ioutil.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.Pool.PeerCountMax)
	require.Equal(t, 5*time.Minute, cfg.Supervisor.ConnectBackoffMax)

	// Fields the file didn't mention keep their compiled-in defaults.
	require.Equal(t, DefaultConfig().PeerCountPerIPMax, cfg.Pool.PeerCountPerIPMax)
	require.Equal(t, DefaultSupervisorConfig().HousekeepingInterval, cfg.Supervisor.HousekeepingInterval)
}

func TestLoadConfigRejectsUnknownField(t *testing.T) {
	dir, err := ioutil.TempDir("", "p2p-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "node.toml")
	const doc = `
[Pool]
NotARealField = 1
`
	require.NoError(t, ioutil.WriteFile(path, []byte(doc), 0o644))

	_, err = LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/does-not-exist.toml")
	require.Error(t, err)
}
