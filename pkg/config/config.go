// Copyright 2025 Certen Protocol
//
// Package config loads the proof service's configuration from a YAML
// file, with environment variables overriding individual fields the
// same way the teacher's original Config.Load layered os.Getenv reads
// over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreConfig configures the embedded proof store (component D, §4.2).
type StoreConfig struct {
	Path               string        `yaml:"path"`
	RocksDBLRUCapacity int64         `yaml:"rocksdb_lru_capacity"`
	RocksDBEnableMetrics bool        `yaml:"rocksdb_enable_metrics"`
	MinProofTTL        time.Duration `yaml:"min_proof_ttl"`
	CompactionInterval time.Duration `yaml:"compaction_interval"`

	// CPUWorkers sizes the fixed worker pool store_block dispatches its
	// pure cell transforms onto (§5: "typically 2-8 workers, bounded
	// above by 8 for the ingest path"). Values outside [2, 8] are
	// clamped when the store opens.
	CPUWorkers int `yaml:"cpu_workers"`
}

// NodeStoreConfig configures the raw block store the subscriber
// writes full blocks into before deriving proof artifacts (§4.3).
type NodeStoreConfig struct {
	Path          string `yaml:"path"`
	Backend       string `yaml:"backend"` // "goleveldb" or "memdb", per cometbft-db
	ArchiveBlocks bool   `yaml:"archive_blocks"`
}

// HTTPConfig configures the two HTTP surfaces listed in spec §6.
type HTTPConfig struct {
	ListenAddr          string        `yaml:"listen_addr"`
	ProofChainTimeout   time.Duration `yaml:"proof_chain_timeout"`
	SourceChainTimeout  time.Duration `yaml:"source_chain_timeout"`
	RateLimitPerMinute  int           `yaml:"rate_limit_per_minute"`
	RateLimitWhitelist  []string      `yaml:"rate_limit_whitelist"`
	// EnableMetrics exposes GET /metrics (DESIGN.md: `prometheus/client_golang` wiring).
	EnableMetrics       bool          `yaml:"enable_metrics"`
}

// UploaderPairConfig is one (src, dst) key-block sync pair (component G).
type UploaderPairConfig struct {
	Name               string        `yaml:"name"`
	Src                NetworkConfig `yaml:"src"`
	Dst                NetworkConfig `yaml:"dst"`
	BridgeAddress      string        `yaml:"bridge_address"`
	WalletSeed         string        `yaml:"wallet_seed_hex"`
	WalletWorkchain    int32         `yaml:"wallet_workchain"`
	WalletCodeBOC      string        `yaml:"wallet_code_boc_path"`
	LibStoreCodeBOC    string        `yaml:"lib_store_code_boc_path"`
	MinRequiredBalance uint64        `yaml:"min_required_balance_nanoton"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	MessageValue       uint64        `yaml:"message_value_nanoton"`
}

// NetworkConfig selects and configures one network client backend
// (lite-client or JSON-RPC gateway), per §4.4's capability set.
type NetworkConfig struct {
	Kind         string `yaml:"kind"` // "liteclient" or "jsonrpc"
	Endpoint     string `yaml:"endpoint"`
	ConfigURL    string `yaml:"config_url"` // liteclient: path to a global config JSON file
	APIKey       string `yaml:"api_key"`    // jsonrpc: gateway auth
}

// AuditConfig enables the optional Postgres sync-history audit table
// (DESIGN.md: `github.com/lib/pq` wiring).
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url"`
}

// TelemetryConfig enables the optional Firestore epoch mirror
// (DESIGN.md: `cloud.google.com/go/firestore` wiring).
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ProjectID      string `yaml:"project_id"`
	CredentialsPath string `yaml:"credentials_path"`
	Collection     string `yaml:"collection"`
}

// Config is the top-level process configuration.
type Config struct {
	LogLevel  string               `yaml:"log_level"`
	Source    NetworkConfig        `yaml:"source"` // chain the block subscriber (E) ingests from
	Store     StoreConfig          `yaml:"store"`
	NodeStore NodeStoreConfig      `yaml:"node_store"`
	HTTP      HTTPConfig           `yaml:"http"`
	Uploaders []UploaderPairConfig `yaml:"uploaders"`
	Audit     AuditConfig          `yaml:"audit"`
	Telemetry TelemetryConfig      `yaml:"telemetry"`
}

// Default returns the configuration defaults named throughout spec §4.2/§6.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Path:                 "./data/proofs",
			RocksDBLRUCapacity:   4 << 30, // 4 GiB
			RocksDBEnableMetrics: false,
			MinProofTTL:          14 * 24 * time.Hour,
			CompactionInterval:   10 * time.Minute,
			CPUWorkers:           4,
		},
		NodeStore: NodeStoreConfig{
			Path:    "./data/blocks",
			Backend: "goleveldb",
		},
		HTTP: HTTPConfig{
			ListenAddr:         ":8080",
			ProofChainTimeout:  time.Second,
			SourceChainTimeout: 10 * time.Second,
			RateLimitPerMinute: 60,
			EnableMetrics:      true,
		},
	}
}

// Load reads a YAML config file (if path is non-empty and exists),
// merges it over Default(), and applies environment variable
// overrides for the fields operators most often need to tweak per
// deployment without editing the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.Store.Path = getEnv("PROOF_STORE_PATH", cfg.Store.Path)
	cfg.NodeStore.Path = getEnv("NODE_STORE_PATH", cfg.NodeStore.Path)
	cfg.HTTP.ListenAddr = getEnv("HTTP_LISTEN_ADDR", cfg.HTTP.ListenAddr)
	cfg.Store.MinProofTTL = getEnvDuration("MIN_PROOF_TTL", cfg.Store.MinProofTTL)
	cfg.Store.CompactionInterval = getEnvDuration("COMPACTION_INTERVAL", cfg.Store.CompactionInterval)
	cfg.Store.RocksDBLRUCapacity = getEnvInt64("ROCKSDB_LRU_CAPACITY", cfg.Store.RocksDBLRUCapacity)
	cfg.Store.RocksDBEnableMetrics = getEnvBool("ROCKSDB_ENABLE_METRICS", cfg.Store.RocksDBEnableMetrics)
	cfg.Store.CPUWorkers = int(getEnvInt64("STORE_CPU_WORKERS", int64(cfg.Store.CPUWorkers)))
	cfg.Audit.DatabaseURL = getEnv("AUDIT_DATABASE_URL", cfg.Audit.DatabaseURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

// Validate checks the configuration is internally consistent enough
// to start the service; per spec §6 a failure here is a fatal
// initialization error (process exit code 1).
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path is required")
	}
	if c.Store.MinProofTTL <= 0 {
		return fmt.Errorf("config: store.min_proof_ttl must be positive")
	}
	if c.HTTP.ListenAddr == "" {
		return fmt.Errorf("config: http.listen_addr is required")
	}
	for i, u := range c.Uploaders {
		if u.BridgeAddress == "" {
			return fmt.Errorf("config: uploaders[%d].bridge_address is required", i)
		}
		if u.WalletSeed == "" {
			return fmt.Errorf("config: uploaders[%d].wallet_seed_hex is required", i)
		}
		if u.WalletCodeBOC == "" {
			return fmt.Errorf("config: uploaders[%d].wallet_code_boc_path is required", i)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
