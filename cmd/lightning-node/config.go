package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the node's on-disk configuration, loaded from a TOML file
// and overridable by command-line flags.
type Config struct {
	Network    string   `toml:"network"`
	DataDir    string   `toml:"data_dir"`
	BindAddr   string   `toml:"bind_addr"`
	LogLevel   string   `toml:"log_level"`
	Peers      []string `toml:"peers"`
	MaxPeers   int      `toml:"max_peers"`
	MetricsAddr string  `toml:"metrics_addr"`
	GCDepth    int      `toml:"gc_depth"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".lightning"
	}
	return filepath.Join(home, ".lightning")
}

func DefaultConfig() Config {
	return Config{
		Network:     "devnet",
		DataDir:     DefaultDataDir(),
		BindAddr:    "0.0.0.0:19291",
		MetricsAddr: "127.0.0.1:9291",
		Peers:       nil,
		LogLevel:    "info",
		MaxPeers:    64,
		GCDepth:     50,
	}
}

// LoadConfig reads a TOML config file at path, falling back to
// DefaultConfig for any field the file does not set. A missing file
// is not an error: the caller runs on defaults plus flags.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

func NormalizePeers(raw ...string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, token := range raw {
		for _, p := range strings.Split(token, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	for _, peer := range cfg.Peers {
		if err := validateAddr(peer); err != nil {
			return fmt.Errorf("invalid peer %q: %w", peer, err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.MaxPeers <= 0 || cfg.MaxPeers > 4096 {
		return errors.New("max_peers must be in (0, 4096]")
	}
	if cfg.GCDepth <= 0 {
		return errors.New("gc_depth must be > 0")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}
