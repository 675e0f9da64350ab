// Package setup registers the MCP server binary with local MCP clients by
// editing their mcpServers JSON config files.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerKey is the name this server registers under in client configs.
const ServerKey = "lab-report-companion"

const binaryName = "mcp-server"

// ServerEntry is one registered server inside a client config file.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ClientConfig mirrors the mcpServers JSON shape shared by the supported
// clients. Unknown top-level keys are dropped on save; both Claude Desktop
// and Cursor tolerate that for their own files.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
}

// Client is an MCP client whose config file this setup can edit.
type Client struct {
	ID         string
	Name       string
	configPath func() (string, error)
}

var supportedClients = []Client{
	{ID: "claude-desktop", Name: "Claude Desktop", configPath: claudeDesktopConfigPath},
	{ID: "cursor", Name: "Cursor", configPath: cursorConfigPath},
}

// Clients returns the supported MCP clients, default first.
func Clients() []Client {
	return supportedClients
}

// ClientByID looks a client up by its CLI identifier.
func ClientByID(id string) (Client, bool) {
	for _, c := range supportedClients {
		if c.ID == id {
			return c, true
		}
	}
	return Client{}, false
}

func claudeDesktopConfigPath() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "Claude", "claude_desktop_config.json"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

func cursorConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".cursor", "mcp.json"), nil
}

// ConfigPath returns the client's config file location on this machine.
func (c Client) ConfigPath() (string, error) {
	return c.configPath()
}

// Options configures a registration.
type Options struct {
	BinaryPath string // server binary to register; resolved when empty
	DataDir    string // LABREPORT_DATA_DIR for the registered server
}

// Register adds or replaces this server's entry in the client config.
func (c Client) Register(opts Options) error {
	path, err := c.ConfigPath()
	if err != nil {
		return err
	}
	return registerAt(path, opts)
}

func registerAt(path string, opts Options) error {
	cfg, err := readClientConfig(path)
	if err != nil {
		return err
	}

	binary := opts.BinaryPath
	if binary == "" {
		binary, err = ResolveBinary("")
		if err != nil {
			return fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := ServerEntry{Command: binary}
	if opts.DataDir != "" {
		entry.Env = map[string]string{"LABREPORT_DATA_DIR": opts.DataDir}
	}
	cfg.MCPServers[ServerKey] = entry

	return writeClientConfig(path, cfg)
}

// Registration returns this server's entry in the client config, if present.
func (c Client) Registration() (*ServerEntry, error) {
	path, err := c.ConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := readClientConfig(path)
	if err != nil {
		return nil, err
	}
	entry, ok := cfg.MCPServers[ServerKey]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// readClientConfig loads a client config, treating a missing file as empty.
func readClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ClientConfig{MCPServers: map[string]ServerEntry{}}, nil
		}
		return nil, fmt.Errorf("reading client config: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config %s: %w", path, err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerEntry{}
	}
	return &cfg, nil
}

func writeClientConfig(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding client config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing client config: %w", err)
	}
	return nil
}

// ResolveBinary picks the server binary to register: the explicit path when
// given, otherwise the running executable, PATH, and finally a few common
// install locations.
func ResolveBinary(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	if execPath, err := os.Executable(); err == nil {
		if filepath.Base(execPath) == binaryName {
			return execPath, nil
		}
	}
	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	candidates := []string{
		"./" + binaryName,
		"./build/" + binaryName,
		filepath.Join(home, ".local", "bin", binaryName),
		"/usr/local/bin/" + binaryName,
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			if abs, err := filepath.Abs(candidate); err == nil {
				return abs, nil
			}
			return candidate, nil
		}
	}

	return "", fmt.Errorf("binary %q not found; pass --binary", binaryName)
}

// ClientStatus is one client's registration state.
type ClientStatus struct {
	Client        Client
	ConfigPath    string
	Registered    bool
	Command       string
	BinaryMissing bool
	DataDir       string
}

// Status is the setup state across all supported clients.
type Status struct {
	Clients []ClientStatus
	DataDir string
}

// CheckStatus inspects every supported client config and the data directory.
func CheckStatus() *Status {
	status := &Status{DataDir: DefaultDataDir()}

	for _, client := range supportedClients {
		cs := ClientStatus{Client: client}
		path, err := client.ConfigPath()
		if err != nil {
			status.Clients = append(status.Clients, cs)
			continue
		}
		cs.ConfigPath = path

		entry, err := client.Registration()
		if err == nil && entry != nil {
			cs.Registered = true
			cs.Command = entry.Command
			if _, err := os.Stat(entry.Command); err != nil {
				cs.BinaryMissing = true
			}
			if dir := entry.Env["LABREPORT_DATA_DIR"]; dir != "" {
				cs.DataDir = dir
				status.DataDir = dir
			}
		}
		status.Clients = append(status.Clients, cs)
	}

	return status
}

// Diagnose checks that at least one client is usable. Findings that only
// describe first-run behavior do not make the setup invalid.
func Diagnose() (bool, []string) {
	var findings []string
	status := CheckStatus()

	usable := false
	for _, cs := range status.Clients {
		if !cs.Registered {
			continue
		}
		if cs.BinaryMissing {
			findings = append(findings, fmt.Sprintf("%s: server binary missing at %s", cs.Client.Name, cs.Command))
			continue
		}
		usable = true
	}
	if !usable && len(findings) == 0 {
		findings = append(findings, "server is not registered with any MCP client; run the wizard")
	}

	if _, err := os.Stat(status.DataDir); os.IsNotExist(err) {
		findings = append(findings, fmt.Sprintf("data directory %s will be created on first run", status.DataDir))
	}

	return usable, findings
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lab-report-companion")
}

// EnsureDataDir creates the data directory and its exports subdirectory.
func EnsureDataDir(dataDir string) error {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "exports"), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
