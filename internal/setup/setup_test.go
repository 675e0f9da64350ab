package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAtCreatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Claude", "claude_desktop_config.json")

	err := registerAt(path, Options{
		BinaryPath: "/usr/local/bin/mcp-server",
		DataDir:    "/var/lib/labreport",
	})
	require.NoError(t, err)

	cfg, err := readClientConfig(path)
	require.NoError(t, err)

	entry, ok := cfg.MCPServers[ServerKey]
	require.True(t, ok, "server entry missing after registration")
	assert.Equal(t, "/usr/local/bin/mcp-server", entry.Command)
	assert.Equal(t, "/var/lib/labreport", entry.Env["LABREPORT_DATA_DIR"])
}

func TestRegisterAtKeepsOtherServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	existing := `{"mcpServers":{"other-tool":{"command":"/opt/other-tool"}}}`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	err := registerAt(path, Options{BinaryPath: "/opt/labreport/mcp-server"})
	require.NoError(t, err)

	cfg, err := readClientConfig(path)
	require.NoError(t, err)

	assert.Len(t, cfg.MCPServers, 2)
	assert.Equal(t, "/opt/other-tool", cfg.MCPServers["other-tool"].Command)
	assert.Equal(t, "/opt/labreport/mcp-server", cfg.MCPServers[ServerKey].Command)
}

func TestRegisterAtReplacesOwnEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")

	require.NoError(t, registerAt(path, Options{BinaryPath: "/old/mcp-server"}))
	require.NoError(t, registerAt(path, Options{BinaryPath: "/new/mcp-server"}))

	cfg, err := readClientConfig(path)
	require.NoError(t, err)

	assert.Len(t, cfg.MCPServers, 1)
	assert.Equal(t, "/new/mcp-server", cfg.MCPServers[ServerKey].Command)
}

func TestReadClientConfigMissingFile(t *testing.T) {
	cfg, err := readClientConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.MCPServers)
}

func TestReadClientConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := readClientConfig(path)
	assert.Error(t, err)
}

func TestResolveBinaryExplicitPathWins(t *testing.T) {
	path, err := ResolveBinary("/anywhere/mcp-server")
	require.NoError(t, err)
	assert.Equal(t, "/anywhere/mcp-server", path)
}

func TestClientByID(t *testing.T) {
	client, ok := ClientByID("cursor")
	require.True(t, ok)
	assert.Equal(t, "Cursor", client.Name)

	_, ok = ClientByID("unknown-client")
	assert.False(t, ok)
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "labreport")
	require.NoError(t, EnsureDataDir(dir))

	info, err := os.Stat(filepath.Join(dir, "exports"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
