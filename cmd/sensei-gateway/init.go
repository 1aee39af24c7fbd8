// ABOUTME: Interactive "init" command that writes a starter gateway config
// ABOUTME: Answers are applied to config.Default and marshaled as YAML with a fresh signing secret

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/algosensei/sensei-gateway/internal/config"
)

// asker reads answers line by line, falling back to defaults on blank
// input or EOF.
type asker struct {
	in  *bufio.Reader
	out io.Writer
}

func newAsker(in io.Reader, out io.Writer) *asker {
	return &asker{in: bufio.NewReader(in), out: out}
}

func (a *asker) ask(question, def string) string {
	if def != "" {
		fmt.Fprintf(a.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(a.out, "%s: ", question)
	}
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(a.out)
		return def
	}
	if line = strings.TrimSpace(line); line == "" {
		return def
	}
	return line
}

func (a *asker) confirm(question string, def bool) bool {
	d := "no"
	if def {
		d = "yes"
	}
	switch strings.ToLower(a.ask(question, d)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (a *asker) section(title string) {
	fmt.Fprintf(a.out, "\n--- %s ---\n", title)
}

// generateSecret returns a random base64 signing secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// buildInitConfig asks for the settings a first deployment usually changes.
func buildInitConfig(a *asker) (*config.Config, error) {
	cfg := config.Default()

	a.section("Server")
	cfg.Server.HTTPAddr = a.ask("HTTP address", cfg.Server.HTTPAddr)
	cfg.Server.GRPCAddr = a.ask("gRPC health address (empty disables)", "")
	cfg.CORS.FrontendURL = a.ask("Frontend origin allowed by CORS", "")

	a.section("Database")
	cfg.Database.Driver = a.ask("Driver (sqlite/postgres)", cfg.Database.Driver)
	if cfg.Database.Driver == "postgres" {
		cfg.Database.Path = ""
		cfg.Database.DSN = a.ask("Postgres DSN", "postgres://sensei@localhost:5432/algosensei?sslmode=disable")
	} else {
		cfg.Database.Path = a.ask("SQLite file", filepath.Join(getDataPath(), "algosensei.db"))
	}

	a.section("Model")
	cfg.LLM.Model = a.ask("Model", cfg.LLM.Model)
	cfg.LLM.BaseURL = a.ask("OpenAI-compatible base URL (empty for OpenAI)", "")
	cfg.LLM.APIKey = "${OPENAI_API_KEY}"

	a.section("Sessions")
	cfg.Sessions.Store = a.ask("Session store (memory/redis)", cfg.Sessions.Store)
	if cfg.Sessions.Store == "redis" {
		cfg.Sessions.Redis.Addr = a.ask("Redis address", "localhost:6379")
	}

	a.section("Tailscale")
	if cfg.Tailscale.Enabled = a.confirm("Serve on a tailnet?", false); cfg.Tailscale.Enabled {
		cfg.Tailscale.Hostname = a.ask("Node hostname", "algosensei")
		cfg.Tailscale.AuthKey = a.ask("Auth key (empty reads TS_AUTHKEY)", "")
		cfg.Tailscale.Ephemeral = a.confirm("Ephemeral node?", false)
		cfg.Tailscale.Funnel = a.confirm("Expose publicly with Funnel?", false)
	}

	a.section("Logging")
	cfg.Logging.Level = a.ask("Level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = a.ask("Format (text/json)", cfg.Logging.Format)

	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	cfg.Auth.SecretKey = secret
	return cfg, nil
}

func runInit() error {
	a := newAsker(os.Stdin, os.Stdout)

	fmt.Println("sensei-gateway configuration setup")
	fmt.Println("==================================")

	target := a.ask("Config file path", getConfigPath(""))
	if _, err := os.Stat(target); err == nil && !a.confirm("File exists. Overwrite?", false) {
		fmt.Println("Aborted.")
		return nil
	}

	cfg, err := buildInitConfig(a)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	data = append([]byte("# sensei-gateway configuration, generated by sensei-gateway init\n"), data...)

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// 0600: the file carries the signing secret.
	if err := os.WriteFile(target, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", target)
	fmt.Printf("Start the server with:\n  sensei-gateway serve --config %s\n", target)
	return nil
}
