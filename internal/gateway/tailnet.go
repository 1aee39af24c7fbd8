// ABOUTME: Tailnet node for exposing the API through tsnet instead of host sockets
// ABOUTME: Picks plain, certificate-backed or Funnel HTTP listeners from config

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/algosensei/sensei-gateway/internal/config"
)

// Ports used on the tailnet. Host addresses from server config do not apply.
const (
	tailnetHTTPPort   = ":80"
	tailnetHTTPSPort  = ":443"
	tailnetHealthPort = ":50051"
)

// tailnet is a joined tsnet node.
type tailnet struct {
	node   *tsnet.Server
	cfg    config.TailscaleConfig
	logger *slog.Logger
}

// tailnetStateDir returns where the node keeps its state.
func tailnetStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no home directory for tailnet state, set tailscale.state_dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "algosensei", "tailscale"), nil
}

// tailnetAuthKey prefers the configured key over TS_AUTHKEY.
func tailnetAuthKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv("TS_AUTHKEY"); key != "" {
		return key, nil
	}
	return "", errors.New("tailscale needs an auth key: set tailscale.auth_key or TS_AUTHKEY")
}

// joinTailnet brings up a node and waits until it is usable.
func joinTailnet(ctx context.Context, cfg config.TailscaleConfig, logger *slog.Logger) (*tailnet, error) {
	dir, err := tailnetStateDir(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailnet state dir: %w", err)
	}
	key, err := tailnetAuthKey(cfg.AuthKey)
	if err != nil {
		return nil, err
	}

	t := &tailnet{
		node: &tsnet.Server{
			Hostname:  cfg.Hostname,
			Dir:       dir,
			Ephemeral: cfg.Ephemeral,
			AuthKey:   key,
		},
		cfg:    cfg,
		logger: logger.With("hostname", cfg.Hostname),
	}

	t.logger.Info("joining tailnet", "state_dir", dir, "ephemeral", cfg.Ephemeral)
	status, err := t.node.Up(ctx)
	if err != nil {
		_ = t.node.Close()
		return nil, fmt.Errorf("joining tailnet: %w", err)
	}
	t.logStatus(status)
	return t, nil
}

func (t *tailnet) logStatus(status *ipnstate.Status) {
	attrs := []any{}
	if len(status.TailscaleIPs) > 0 {
		attrs = append(attrs, "ip", status.TailscaleIPs[0].String())
	} else {
		t.logger.Warn("tailnet node has no address yet")
	}
	if status.Self != nil {
		attrs = append(attrs, "dns_name", status.Self.DNSName)
	}
	t.logger.Info("tailnet node up", attrs...)
}

// listenHTTP returns the API listener. Funnel wins over https.
func (t *tailnet) listenHTTP() (net.Listener, error) {
	if t.cfg.Funnel {
		t.logger.Info("serving publicly through funnel", "port", tailnetHTTPSPort)
		ln, err := t.node.ListenFunnel("tcp", tailnetHTTPSPort)
		if err != nil {
			return nil, fmt.Errorf("funnel listener: %w", err)
		}
		return ln, nil
	}

	if !t.cfg.HTTPS {
		ln, err := t.node.Listen("tcp", tailnetHTTPPort)
		if err != nil {
			return nil, fmt.Errorf("tailnet HTTP listener: %w", err)
		}
		return ln, nil
	}

	ln, err := t.node.Listen("tcp", tailnetHTTPSPort)
	if err != nil {
		return nil, fmt.Errorf("tailnet HTTPS listener: %w", err)
	}
	lc, err := t.node.LocalClient()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("tailnet local client: %w", err)
	}
	t.logger.Info("serving HTTPS with tailnet certificates", "port", tailnetHTTPSPort)
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// listenHealth returns the gRPC health listener.
func (t *tailnet) listenHealth() (net.Listener, error) {
	ln, err := t.node.Listen("tcp", tailnetHealthPort)
	if err != nil {
		return nil, fmt.Errorf("tailnet gRPC listener: %w", err)
	}
	return ln, nil
}

func (t *tailnet) Close() error {
	return t.node.Close()
}
