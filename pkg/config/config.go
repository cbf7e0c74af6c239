package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DeBrosOfficial/ledgerharness/pkg/constants"
)

// Config represents the configuration of a ledger harness
type Config struct {
	Endpoint  EndpointConfig  `yaml:"endpoint"`
	Chain     ChainConfig     `yaml:"chain"`
	Keys      KeysConfig      `yaml:"keys"`
	Contracts ContractsConfig `yaml:"contracts"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EndpointConfig identifies the ledger RPC service
type EndpointConfig struct {
	Scheme  string        `yaml:"scheme"`  // http or https
	Host    string        `yaml:"host"`    // e.g. 127.0.0.1
	Port    int           `yaml:"port"`    // e.g. 8888
	Timeout time.Duration `yaml:"timeout"` // per-request timeout
}

// URL renders the endpoint as scheme://host:port.
func (e EndpointConfig) URL() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = constants.DefaultScheme
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)))
}

// ChainConfig holds ledger-side conventions and the submission window
type ChainConfig struct {
	SystemAccount  string `yaml:"system_account"`  // owner of newaccount/setcode/setabi
	DefaultCreator string `yaml:"default_creator"` // creator used by CreateAccount
	BlocksBehind   int    `yaml:"blocks_behind"`   // reference block distance from head
	ExpireSeconds  int    `yaml:"expire_seconds"`  // validity window after the reference block
}

// Expiration returns the validity window as a duration.
func (c ChainConfig) Expiration() time.Duration {
	return time.Duration(c.ExpireSeconds) * time.Second
}

// KeysConfig lists additional signing keys
type KeysConfig struct {
	PrivateKeys  []string `yaml:"private_keys"`  // WIF or PVT_K1_ encoded
	SkipDefaults bool     `yaml:"skip_defaults"` // do not seed the development keys
}

// ContractsConfig locates deployable packages
type ContractsConfig struct {
	Root string `yaml:"root"` // directory containing <pkg>/build/<pkg>/
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json, console
	OutputFile string `yaml:"output_file"` // Empty for stdout
	Colors     bool   `yaml:"colors"`
}

// DefaultConfig returns a configuration for the local development ledger
func DefaultConfig() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			Scheme:  constants.DefaultScheme,
			Host:    constants.DefaultHost,
			Port:    constants.DefaultPort,
			Timeout: constants.DefaultRequestTimeout,
		},
		Chain: ChainConfig{
			SystemAccount:  constants.SystemAccount,
			DefaultCreator: constants.DefaultCreator,
			BlocksBehind:   constants.DefaultBlocksBehind,
			ExpireSeconds:  constants.DefaultExpireSeconds,
		},
		Keys: KeysConfig{
			PrivateKeys: []string{},
		},
		Contracts: ContractsConfig{
			Root: ".",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Colors: true,
		},
	}
}

// Load reads a YAML config file on top of the defaults and applies
// environment overrides. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	if err := DecodeStrict(f, cfg); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides (LEDGER_RPC_URL).
func (c *Config) ApplyEnv() error {
	raw := strings.TrimSpace(os.Getenv(constants.EnvRPCURL))
	if raw == "" {
		return nil
	}
	endpoint, err := ParseEndpoint(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", constants.EnvRPCURL, err)
	}
	endpoint.Timeout = c.Endpoint.Timeout
	c.Endpoint = endpoint
	return nil
}

// ParseEndpoint parses scheme://host:port. A missing port defaults to 8888.
func ParseEndpoint(raw string) (EndpointConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return EndpointConfig{}, err
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return EndpointConfig{}, fmt.Errorf("expected scheme://host:port, got %q", raw)
	}
	port := constants.DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return EndpointConfig{}, fmt.Errorf("invalid port %q", p)
		}
	}
	return EndpointConfig{Scheme: u.Scheme, Host: u.Hostname(), Port: port}, nil
}
