// Package config loads challd's daemon configuration: an optional YAML file
// with environment-variable overrides layered on top, patterned on
// the donor codebase's kubeconfig-style context store but trimmed to a
// single flat struct — this daemon has exactly one identity, not many named
// remote contexts.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Features gates optional behavior that mirrors the original implementation's
// Cargo feature flags.
type Features struct {
	// GVisorRuntime requests the stronger sandbox runtime (runsc) for
	// created containers, when available on the host.
	GVisorRuntime bool `yaml:"gvisor_runtime"`
	// ChallGroup chowns the request socket to the "challd" group instead
	// of leaving it root-only.
	ChallGroup bool `yaml:"chall_group"`
}

// Config holds the daemon's static configuration.
type Config struct {
	SocketPath    string   `yaml:"socket_path"`
	MaxInstances  int      `yaml:"max_instances"`
	WireGuardPort int      `yaml:"wireguard_port"`
	Endpoint      string   `yaml:"endpoint"`
	DockerHost    string   `yaml:"docker_host"`
	Features      Features `yaml:"features"`
}

// Default returns the configuration used when no file and no environment
// overrides are present — matches every concrete scenario in the spec.
func Default() Config {
	return Config{
		SocketPath:    "./socket",
		MaxInstances:  6,
		WireGuardPort: 51820,
		Endpoint:      "127.0.0.1",
		DockerHost:    "unix:///var/run/docker.sock",
	}
}

// Load reads path (if non-empty and present) over the defaults, then applies
// environment variable overrides. A missing path is not an error — it's
// treated the same as "no file given".
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// no file — defaults stand
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.MaxInstances <= 0 {
		return Config{}, fmt.Errorf("max_instances must be positive, got %d", cfg.MaxInstances)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SOCKET_PATH"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("DOCKER_HOST"); v != "" {
		cfg.DockerHost = v
	}
	if v := os.Getenv("CHALLD_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
}
