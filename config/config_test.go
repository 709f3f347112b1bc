package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/wire"
)

func TestLoadOverridesOnlyPresentFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("NODE_CNT = 7\nCONSENSUS = \"dag\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint32(7), cfg.NodeCnt)
	require.Equal(t, ConsensusDAG, cfg.Consensus)
	require.Equal(t, Default().BatchSize, cfg.BatchSize, "unset fields keep their default")
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestCryptoMethodValue(t *testing.T) {
	cfg := Default()
	cfg.CryptoMethod = "ed25519"
	m, err := cfg.CryptoMethodValue()
	require.NoError(t, err)
	require.Equal(t, wire.CryptoED25519, m)

	cfg.CryptoMethod = "bogus"
	_, err = cfg.CryptoMethodValue()
	require.Error(t, err)
}

func TestLoadIfconfigSkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ifconfig.txt"), []byte("# replica addresses\n127.0.0.1:7000\n\n127.0.0.1:7001\n"), 0o644))

	addrs, err := LoadIfconfig(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:7000", "127.0.0.1:7001"}, addrs)
}

func TestLoadIfconfigMissingFileErrors(t *testing.T) {
	_, err := LoadIfconfig(t.TempDir())
	require.Error(t, err)
}
