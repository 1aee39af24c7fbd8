// ABOUTME: Entry point for the sensei-gateway API server
// ABOUTME: Serves accounts and code analysis; also offers init, health, migrate and hash-password tools

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/algosensei/sensei-gateway/internal/config"
	"github.com/algosensei/sensei-gateway/internal/gateway"
	"github.com/algosensei/sensei-gateway/internal/store"
)

// version is set at build time with -ldflags.
var version = "dev"

const banner = `
                     _                       _
  ___  ___ _ __  ___(_)      __ _  __ _| |_ _____      ____ _ _   _
 / __|/ _ \ '_ \/ __| |____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 \__ \  __/ | | \__ \ |____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |___/\___|_| |_|___/_|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                            |___/                             |___/
`

// options are the flags shared by every command.
type options struct {
	configPath string
	envFile    string
	args       []string
}

// parseOptions extracts --config and --env-file from args. Both
// "--flag value" and "--flag=value" forms are accepted.
func parseOptions(args []string) (options, error) {
	var opts options
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-c":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("%s requires a value", arg)
			}
			opts.configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			opts.configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--env-file":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("--env-file requires a value")
			}
			opts.envFile = args[i+1]
			i++
		case strings.HasPrefix(arg, "--env-file="):
			opts.envFile = strings.TrimPrefix(arg, "--env-file=")
		case strings.HasPrefix(arg, "-"):
			return opts, fmt.Errorf("unknown flag: %s", arg)
		default:
			opts.args = append(opts.args, arg)
		}
	}
	return opts, nil
}

// getConfigPath returns the path to the gateway config file.
// Priority: --config > SENSEI_CONFIG env var > XDG_CONFIG_HOME/algosensei/gateway.yaml > ~/.config/algosensei/gateway.yaml
func getConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if envPath := os.Getenv("SENSEI_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "algosensei", "gateway.yaml")
}

// getDataPath returns the path to the algosensei data directory.
// Priority: XDG_DATA_HOME/algosensei > ~/.local/share/algosensei
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "algosensei")
}

func usage() {
	fmt.Println("Usage: sensei-gateway <command> [--config PATH] [--env-file PATH]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve          Start the API server")
	fmt.Println("  init           Create a new config file interactively")
	fmt.Println("  health         Check server readiness")
	fmt.Println("  migrate        Apply database migrations and print the schema version")
	fmt.Println("  hash-password  Print an argon2id hash for a password read from stdin")
	fmt.Println("  version        Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	opts, err := parseOptions(os.Args[2:])
	if err == nil && len(opts.args) > 0 {
		err = fmt.Errorf("unexpected argument: %s", opts.args[0])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, opts)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx, opts)
	case "migrate":
		err = runMigrate(ctx, opts)
	case "hash-password":
		err = runHashPassword(opts)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads .env files, then the config file if it exists.
func loadConfig(opts options) (*config.Config, string, error) {
	envFiles := []string{".env"}
	if opts.envFile != "" {
		envFiles = append(envFiles, opts.envFile)
	}
	if err := config.LoadEnvFile(envFiles...); err != nil {
		return nil, "", fmt.Errorf("loading env file: %w", err)
	}

	configPath := getConfigPath(opts.configPath)
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context, opts options) error {
	color.New(color.FgCyan).Print(banner)
	color.New(color.FgHiBlack).Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel(), cfg.Logging.Format)
	slog.SetDefault(logger)

	printStartup(cfg, configPath)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// printStartup shows where the server will listen and what it talks to.
func printStartup(cfg *config.Config, configPath string) {
	rows := [][2]string{
		{"Config", configPath},
		{"Database", cfg.Database.Driver},
		{"Sessions", cfg.Sessions.Store},
		{"Model", cfg.LLM.Model},
	}
	switch {
	case cfg.Tailscale.Enabled:
		ts := cfg.Tailscale.Hostname
		if cfg.Tailscale.Funnel {
			ts += " [funnel]"
		} else if cfg.Tailscale.HTTPS {
			ts += " [https]"
		}
		if cfg.Tailscale.Ephemeral {
			ts += " (ephemeral)"
		}
		rows = append(rows, [2]string{"Tailscale", ts})
	default:
		rows = append(rows, [2]string{"HTTP", cfg.Server.HTTPAddr})
		if cfg.Server.GRPCAddr != "" {
			rows = append(rows, [2]string{"gRPC", cfg.Server.GRPCAddr + " (health)"})
		}
	}

	arrow := color.New(color.FgGreen)
	for _, row := range rows {
		arrow.Print("    ▶ ")
		fmt.Printf("%-10s %s\n", row[0]+":", row[1])
	}
	if cfg.Debug {
		color.New(color.FgYellow).Println("    ! debug mode: CORS allows every origin")
	}
	fmt.Println()
}

// runHealth queries the readiness endpoint of a running server.
func runHealth(ctx context.Context, opts options) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// runMigrate opens the configured database, which applies pending
// migrations, and reports the resulting schema version.
func runMigrate(ctx context.Context, opts options) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel(), cfg.Logging.Format)

	s, err := store.Open(ctx, store.Options{
		Driver: store.Driver(cfg.Database.Driver),
		DSN:    cfg.Database.DataSource(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	versioned, ok := s.(interface {
		MigrationVersion(ctx context.Context) (int64, error)
	})
	if !ok {
		return fmt.Errorf("driver %q has no schema to migrate", cfg.Database.Driver)
	}

	v, err := versioned.MigrationVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Database %s at schema version %d\n", cfg.Database.Driver, v)
	return nil
}

// Terminal access, swapped out in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// readPasswordInput reads a password without echo from a terminal, or the
// first line of in otherwise.
func readPasswordInput(in *os.File, promptOut io.Writer) (string, error) {
	fd := int(in.Fd())
	if isTerminal(fd) {
		fmt.Fprint(promptOut, "Password: ")
		pw, err := readPassword(fd)
		fmt.Fprintln(promptOut)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// runHashPassword prints an argon2id hash, for seeding accounts by hand.
func runHashPassword(opts options) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}

	password, err := readPasswordInput(os.Stdin, os.Stderr)
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password cannot be empty")
	}

	hash, err := gateway.NewPasswordHasher(cfg.Auth.Password).Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	fmt.Println(hash)
	return nil
}
