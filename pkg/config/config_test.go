package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	want := Default()
	if cfg.Store.Path != want.Store.Path {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, want.Store.Path)
	}
	if cfg.Store.MinProofTTL != 14*24*time.Hour {
		t.Errorf("Store.MinProofTTL = %v, want 14 days", cfg.Store.MinProofTTL)
	}
	if cfg.Store.CompactionInterval != 10*time.Minute {
		t.Errorf("Store.CompactionInterval = %v, want 10m", cfg.Store.CompactionInterval)
	}
	if cfg.Store.RocksDBLRUCapacity != 4<<30 {
		t.Errorf("Store.RocksDBLRUCapacity = %d, want 4 GiB", cfg.Store.RocksDBLRUCapacity)
	}
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load on a missing file should fall back to defaults, got error: %v", err)
	}
	if cfg.HTTP.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want default :8080", cfg.HTTP.ListenAddr)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
store:
  path: /custom/proofs
  min_proof_ttl: 1h
http:
  listen_addr: ":9090"
  rate_limit_per_minute: 5
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Path != "/custom/proofs" {
		t.Errorf("Store.Path = %q, want /custom/proofs", cfg.Store.Path)
	}
	if cfg.Store.MinProofTTL != time.Hour {
		t.Errorf("Store.MinProofTTL = %v, want 1h", cfg.Store.MinProofTTL)
	}
	if cfg.HTTP.ListenAddr != ":9090" {
		t.Errorf("HTTP.ListenAddr = %q, want :9090", cfg.HTTP.ListenAddr)
	}
	if cfg.HTTP.RateLimitPerMinute != 5 {
		t.Errorf("HTTP.RateLimitPerMinute = %d, want 5", cfg.HTTP.RateLimitPerMinute)
	}
	// NodeStore wasn't set in the file; defaults must survive the merge.
	if cfg.NodeStore.Backend != "goleveldb" {
		t.Errorf("NodeStore.Backend = %q, want default goleveldb to survive a partial override", cfg.NodeStore.Backend)
	}
}

func TestLoadEnvOverridesFileAndDefaults(t *testing.T) {
	t.Setenv("PROOF_STORE_PATH", "/env/proofs")
	t.Setenv("MIN_PROOF_TTL", "2h")
	t.Setenv("ROCKSDB_ENABLE_METRICS", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Path != "/env/proofs" {
		t.Errorf("Store.Path = %q, want env override /env/proofs", cfg.Store.Path)
	}
	if cfg.Store.MinProofTTL != 2*time.Hour {
		t.Errorf("Store.MinProofTTL = %v, want env override 2h", cfg.Store.MinProofTTL)
	}
	if !cfg.Store.RocksDBEnableMetrics {
		t.Error("Store.RocksDBEnableMetrics should be true from env override")
	}
}

func TestValidateRequiresStorePath(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject an empty store path")
	}
}

func TestValidateRequiresPositiveTTL(t *testing.T) {
	cfg := Default()
	cfg.Store.MinProofTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject a non-positive min_proof_ttl")
	}
}

func TestValidateRequiresUploaderFields(t *testing.T) {
	cfg := Default()
	cfg.Uploaders = []UploaderPairConfig{{Name: "ton-to-eth"}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject an uploader pair missing bridge_address/wallet_seed_hex/wallet_code_boc_path")
	}

	cfg.Uploaders[0].BridgeAddress = "0:aa"
	cfg.Uploaders[0].WalletSeed = "deadbeef"
	cfg.Uploaders[0].WalletCodeBOC = "/path/to/code.boc"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate should accept a fully-specified uploader pair, got: %v", err)
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default() config should validate cleanly, got: %v", err)
	}
}
