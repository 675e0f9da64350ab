package setup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CLI drives the setup subcommands of the MCP server binary.
type CLI struct {
	in *bufio.Reader
}

// NewCLI returns a CLI reading confirmations from stdin.
func NewCLI() *CLI {
	return &CLI{in: bufio.NewReader(os.Stdin)}
}

// Run dispatches a setup subcommand.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	switch args[0] {
	case "register":
		return c.register(args[1:])
	case "status":
		return c.status()
	case "doctor":
		return c.doctor()
	case "wizard":
		return c.wizard()
	case "help", "--help", "-h":
		return c.usage()
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		return c.usage()
	}
}

func (c *CLI) usage() error {
	fmt.Print(`Lab Report Companion MCP server setup

Usage:
  mcp-server setup <command> [options]

Commands:
  wizard    Interactive setup (recommended)
  register  Register the server with an MCP client
  status    Show registration state for all supported clients
  doctor    Check that the current setup can run

Register options:
  --client <id>    claude-desktop (default) or cursor
  --binary <path>  server binary to register (default: this executable)
  --data-dir <dir> data directory passed via LABREPORT_DATA_DIR
  -y               skip the confirmation prompt

Examples:
  mcp-server setup wizard
  mcp-server setup register --client cursor -y
  mcp-server setup register --binary /usr/local/bin/mcp-server
`)
	return nil
}

func (c *CLI) register(args []string) error {
	client := supportedClients[0]
	opts := Options{}
	autoConfirm := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--client":
			if i+1 < len(args) {
				i++
				found, ok := ClientByID(args[i])
				if !ok {
					return fmt.Errorf("unknown client %q (supported: claude-desktop, cursor)", args[i])
				}
				client = found
			}
		case "--binary", "-b":
			if i+1 < len(args) {
				i++
				opts.BinaryPath = args[i]
			}
		case "--data-dir", "-d":
			if i+1 < len(args) {
				i++
				opts.DataDir = args[i]
			}
		case "--auto", "-y":
			autoConfirm = true
		}
	}

	binary, err := ResolveBinary(opts.BinaryPath)
	if err != nil {
		return err
	}
	opts.BinaryPath = binary

	configPath, err := client.ConfigPath()
	if err != nil {
		return err
	}

	fmt.Printf("Registering with %s\n", client.Name)
	fmt.Printf("  Config file:   %s\n", configPath)
	fmt.Printf("  Server binary: %s\n", opts.BinaryPath)
	if opts.DataDir != "" {
		fmt.Printf("  Data dir:      %s\n", opts.DataDir)
	}
	fmt.Println()

	if !autoConfirm && !c.confirm("Proceed?", true) {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := client.Register(opts); err != nil {
		return fmt.Errorf("registering with %s: %w", client.Name, err)
	}

	fmt.Println()
	fmt.Printf("Registered with %s.\n", client.Name)
	c.printNextSteps(client)
	return nil
}

func (c *CLI) status() error {
	status := CheckStatus()

	fmt.Println("Lab Report Companion setup status")
	fmt.Println()

	for _, cs := range status.Clients {
		fmt.Printf("%s\n", cs.Client.Name)
		if cs.ConfigPath != "" {
			fmt.Printf("  Config: %s\n", cs.ConfigPath)
		}
		switch {
		case !cs.Registered:
			fmt.Println("  Registered: no")
		case cs.BinaryMissing:
			fmt.Printf("  Registered: yes, but binary missing at %s\n", cs.Command)
		default:
			fmt.Printf("  Registered: yes (%s)\n", cs.Command)
		}
		if cs.DataDir != "" {
			fmt.Printf("  Data dir: %s\n", cs.DataDir)
		}
		fmt.Println()
	}

	fmt.Printf("Data directory: %s\n", status.DataDir)
	if _, err := os.Stat(status.DataDir); err == nil {
		if _, err := os.Stat(filepath.Join(status.DataDir, "history.db")); err == nil {
			fmt.Println("  History database: present")
		} else {
			fmt.Println("  History database: not created yet")
		}
	} else {
		fmt.Println("  Will be created on first run")
	}

	return nil
}

func (c *CLI) doctor() error {
	ok, findings := Diagnose()

	if ok && len(findings) == 0 {
		fmt.Println("Setup looks good.")
		return nil
	}
	for _, finding := range findings {
		fmt.Printf("  - %s\n", finding)
	}
	if !ok {
		fmt.Println("\nSetup is not usable yet. Run: mcp-server setup wizard")
	}
	return nil
}

func (c *CLI) wizard() error {
	fmt.Println()
	fmt.Println("Lab Report Companion setup wizard")
	fmt.Println("=================================")
	fmt.Println()

	// Pick the client to register with.
	fmt.Println("Which MCP client should be configured?")
	for i, client := range supportedClients {
		fmt.Printf("  %d) %s\n", i+1, client.Name)
	}
	choice := c.prompt(fmt.Sprintf("Choice [1-%d]", len(supportedClients)), "1")
	client := supportedClients[0]
	for i := range supportedClients {
		if choice == fmt.Sprintf("%d", i+1) {
			client = supportedClients[i]
		}
	}

	if entry, err := client.Registration(); err == nil && entry != nil {
		fmt.Printf("\n%s already has this server registered (%s).\n", client.Name, entry.Command)
		if !c.confirm("Reconfigure?", false) {
			fmt.Println("Nothing to do.")
			return nil
		}
	}

	// Binary path, defaulting to the running executable.
	execPath, _ := os.Executable()
	binary := c.prompt("Server binary path", execPath)
	if _, err := os.Stat(binary); os.IsNotExist(err) {
		fmt.Printf("Binary not found at %s\n", binary)
		if !c.confirm("Continue anyway?", false) {
			return fmt.Errorf("setup cancelled")
		}
	}

	dataDir := c.prompt("Data directory", DefaultDataDir())

	fmt.Println()
	if err := client.Register(Options{BinaryPath: binary, DataDir: dataDir}); err != nil {
		return fmt.Errorf("registering with %s: %w", client.Name, err)
	}
	if err := EnsureDataDir(dataDir); err != nil {
		fmt.Printf("Warning: could not create data directory: %v\n", err)
	}

	fmt.Printf("Done. %s will load the server on its next restart.\n", client.Name)
	c.printNextSteps(client)
	return nil
}

func (c *CLI) printNextSteps(client Client) {
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Restart %s\n", client.Name)
	fmt.Println("  2. Ask: \"Analyze these lab results: Glucose: 95 mg/dL\"")
	fmt.Println("  3. Or look a test up: \"What does a high WBC mean?\"")
	fmt.Println()
}

// prompt asks for a value, returning def on an empty answer.
func (c *CLI) prompt(label, def string) string {
	fmt.Printf("%s [%s]: ", label, def)
	answer, _ := c.in.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def
	}
	return answer
}

// confirm asks a yes/no question, returning def on an empty answer.
func (c *CLI) confirm(label string, def bool) bool {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Printf("%s [%s]: ", label, hint)
	answer, _ := c.in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "" {
		return def
	}
	return answer == "y" || answer == "yes"
}
