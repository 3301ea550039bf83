// Package config loads the ledger's configuration surface: database
// connection parameters, the node's own keypair, its federation keyring,
// and the consensus plugin name (§6.3).
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the recognized options of §6.3. Load populates it from the
// environment, optionally overlaid with a YAML file for values the
// environment leaves unset.
type Config struct {
	DatabaseHost string `yaml:"database_host"`
	DatabasePort int    `yaml:"database_port"`
	DatabaseName string `yaml:"database_name"`

	// KeypairPublic/KeypairPrivate are this node's base-58 Ed25519 keys.
	// Both must be set for Validate to pass.
	KeypairPublic  string `yaml:"keypair_public"`
	KeypairPrivate string `yaml:"keypair_private"`

	// Keyring lists the base-58 public keys of the other federation
	// members (self excluded).
	Keyring []string `yaml:"keyring"`

	// ConsensusPlugin names the consensus.Plugin implementation to load.
	// "default" selects consensus.NewDefaultPlugin.
	ConsensusPlugin string `yaml:"consensus_plugin"`
}

type fileOverlay struct {
	DatabaseHost    string   `yaml:"database_host"`
	DatabasePort    int      `yaml:"database_port"`
	DatabaseName    string   `yaml:"database_name"`
	KeypairPublic   string   `yaml:"keypair_public"`
	KeypairPrivate  string   `yaml:"keypair_private"`
	Keyring         []string `yaml:"keyring"`
	ConsensusPlugin string   `yaml:"consensus_plugin"`
}

// Load reads Config from the environment, then fills every field the
// environment leaves unset from the YAML file at path (ignored if path is
// empty or the file does not exist), matching the "environment then a
// config file" precedence of §9's autoconfigure note: the environment
// always wins. The built-in defaults for host, port, and name apply only
// when neither source sets them.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DatabaseHost:    getEnv("LEDGER_DATABASE_HOST", "localhost"),
		DatabasePort:    getEnvInt("LEDGER_DATABASE_PORT", 5432),
		DatabaseName:    getEnv("LEDGER_DATABASE_NAME", "ledger"),
		KeypairPublic:   getEnv("LEDGER_KEYPAIR_PUBLIC", ""),
		KeypairPrivate:  getEnv("LEDGER_KEYPAIR_PRIVATE", ""),
		Keyring:         splitNonEmpty(getEnv("LEDGER_KEYRING", "")),
		ConsensusPlugin: getEnv("LEDGER_CONSENSUS_PLUGIN", "default"),
	}

	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, err
	}
	if os.Getenv("LEDGER_DATABASE_HOST") == "" && overlay.DatabaseHost != "" {
		cfg.DatabaseHost = overlay.DatabaseHost
	}
	if os.Getenv("LEDGER_DATABASE_PORT") == "" && overlay.DatabasePort != 0 {
		cfg.DatabasePort = overlay.DatabasePort
	}
	if os.Getenv("LEDGER_DATABASE_NAME") == "" && overlay.DatabaseName != "" {
		cfg.DatabaseName = overlay.DatabaseName
	}
	if cfg.KeypairPublic == "" {
		cfg.KeypairPublic = overlay.KeypairPublic
	}
	if cfg.KeypairPrivate == "" {
		cfg.KeypairPrivate = overlay.KeypairPrivate
	}
	if len(cfg.Keyring) == 0 {
		cfg.Keyring = overlay.Keyring
	}
	if cfg.ConsensusPlugin == "default" && overlay.ConsensusPlugin != "" {
		cfg.ConsensusPlugin = overlay.ConsensusPlugin
	}
	return cfg, nil
}

// Validate checks the data-shape invariants Load alone cannot: that a
// database name and host were resolved. It does not check the keypair —
// that requirement is enforced by pkg/ledger.New, per §6.3 and §7, since
// ErrKeypairNotFound is a construction-time concern, not a loading one.
func (c *Config) Validate() error {
	if c.DatabaseHost == "" {
		return errConfig("database host is required")
	}
	if c.DatabaseName == "" {
		return errConfig("database name is required")
	}
	return nil
}

func errConfig(msg string) error {
	return &configError{msg: msg}
}

type configError struct{ msg string }

func (e *configError) Error() string { return "config: " + e.msg }

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
