// Copyright 2025 Certen Protocol
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/pkg/config"
	"github.com/tychoproof/ton-proof-bridge/pkg/database"
	"github.com/tychoproof/ton-proof-bridge/pkg/firestore"
	"github.com/tychoproof/ton-proof-bridge/pkg/kvdb"
	"github.com/tychoproof/ton-proof-bridge/pkg/netclient"
	"github.com/tychoproof/ton-proof-bridge/pkg/proofstore"
	"github.com/tychoproof/ton-proof-bridge/pkg/server"
	"github.com/tychoproof/ton-proof-bridge/pkg/subscriber"
	"github.com/tychoproof/ton-proof-bridge/pkg/uploader"
)

// version/build are overridden at link time with -ldflags, the same
// way the teacher's release tooling stamps its own binaries.
var (
	version = "dev"
	build   = "unknown"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("🚀 starting ton-proof-bridge %s (%s)", version, build)

	var (
		configPath = flag.String("config", "", "path to config.yaml (overrides defaults and env vars)")
		showHelp   = flag.Bool("help", false, "show this help message")
	)
	flag.Parse()
	if *showHelp {
		printHelp()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()

	log.Printf("💾 opening node block store backend=%s path=%s", cfg.NodeStore.Backend, cfg.NodeStore.Path)
	nodeStore, err := kvdb.Open(cfg.NodeStore.Backend, "nodestore", cfg.NodeStore.Path)
	if err != nil {
		log.Fatalf("❌ open node store: %v", err)
	}
	defer nodeStore.Close()

	log.Printf("💾 opening proof store path=%s", cfg.Store.Path)
	proofStore, err := proofstore.Open(proofstore.Config{
		Path:               cfg.Store.Path,
		LRUCapacityBytes:   cfg.Store.RocksDBLRUCapacity,
		EnableMetrics:      cfg.Store.RocksDBEnableMetrics,
		MinProofTTLSec:     int64(cfg.Store.MinProofTTL.Seconds()),
		CompactionInterval: cfg.Store.CompactionInterval,
		CPUWorkers:         cfg.Store.CPUWorkers,
		Logger:             log.New(log.Writer(), "[proofstore] ", log.LstdFlags),
		Registerer:         registry,
	})
	if err != nil {
		log.Fatalf("❌ open proof store: %v", err)
	}
	defer proofStore.Close()

	log.Printf("📡 connecting to source network kind=%s", cfg.Source.Kind)
	sourceClient, err := netclient.Build(ctx, "source", netclient.BackendConfig{
		Kind:      cfg.Source.Kind,
		Endpoint:  cfg.Source.Endpoint,
		ConfigURL: cfg.Source.ConfigURL,
		APIKey:    cfg.Source.APIKey,
	})
	if err != nil {
		log.Fatalf("❌ connect to source network: %v", err)
	}
	log.Println("✅ connected to source network")

	sub := subscriber.New(nodeStore, proofStore, netclient.SignatureSourceAdapter{Client: sourceClient},
		cfg.NodeStore.ArchiveBlocks, log.New(log.Writer(), "[subscriber] ", log.LstdFlags))

	if err := coldStartVset(ctx, sourceClient, sub); err != nil {
		log.Fatalf("❌ cold start: install current validator set: %v", err)
	}
	log.Println("✅ installed current validator set; ready to ingest")

	var auditClient *database.Client
	if cfg.Audit.Enabled {
		log.Println("🗄️ connecting to audit database...")
		auditClient, err = database.NewClient(ctx, database.Config{
			DatabaseURL: cfg.Audit.DatabaseURL,
			Logger:      log.New(log.Writer(), "[audit] ", log.LstdFlags),
		})
		if err != nil {
			log.Printf("⚠️ audit database disabled: %v", err)
			auditClient = nil
		} else if err := auditClient.MigrateUp(ctx); err != nil {
			log.Printf("⚠️ audit database migration failed: %v", err)
		} else {
			log.Println("✅ audit database connected")
			defer auditClient.Close()
		}
	}

	var syncMirror *firestore.SyncMirror
	if cfg.Telemetry.Enabled {
		log.Println("🔥 connecting to firestore telemetry mirror...")
		fsClient, err := firestore.NewClient(ctx, firestore.ClientConfig{
			ProjectID:       cfg.Telemetry.ProjectID,
			CredentialsFile: cfg.Telemetry.CredentialsPath,
			Enabled:         true,
			Logger:          log.New(log.Writer(), "[firestore] ", log.LstdFlags),
		})
		if err != nil {
			log.Printf("⚠️ firestore telemetry disabled: %v", err)
		} else {
			defer fsClient.Close()
			syncMirror, err = firestore.NewSyncMirror(firestore.SyncMirrorConfig{
				Client:     fsClient,
				Collection: cfg.Telemetry.Collection,
				Logger:     log.New(log.Writer(), "[firestore] ", log.LstdFlags),
			})
			if err != nil {
				log.Printf("⚠️ firestore sync mirror disabled: %v", err)
				syncMirror = nil
			} else {
				log.Println("✅ firestore telemetry mirror connected")
			}
		}
	}

	uploaders := make([]*uploader.Uploader, 0, len(cfg.Uploaders))
	for _, pairCfg := range cfg.Uploaders {
		up, err := buildUploader(ctx, pairCfg, registry)
		if err != nil {
			log.Fatalf("❌ build uploader %s: %v", pairCfg.Name, err)
		}

		var recorders uploader.MultiRecorder
		if auditClient != nil {
			recorders = append(recorders, auditClient)
		}
		if syncMirror != nil {
			recorders = append(recorders, syncMirror)
		}
		if len(recorders) > 0 {
			up.SetAuditRecorder(recorders)
		}

		uploaders = append(uploaders, up)
		go up.Run(ctx)
		log.Printf("✅ uploader %s running (poll_interval=%s)", pairCfg.Name, pairCfg.PollInterval)
	}

	mux := http.NewServeMux()
	metrics := server.NewMetrics()
	rateLimiter := server.NewRateLimiter(cfg.HTTP.RateLimitPerMinute, cfg.HTTP.RateLimitWhitelist)
	proofHandlers := server.NewProofChainHandlers(proofStore, log.New(log.Writer(), "[proofchain] ", log.LstdFlags))

	mux.HandleFunc("/", wrap(metrics, "/", server.VersionHandler(version, build)))
	mux.HandleFunc("/v1/proof_chain/", wrap(metrics, "/v1/proof_chain/l2", routeProofChain(proofHandlers, rateLimiter)))
	if cfg.HTTP.EnableMetrics {
		mux.Handle("/metrics", metrics.Handler())
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("🌐 proof-chain API listening on %s", cfg.HTTP.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ http server shutdown: %v", err)
	}

	log.Println("✅ stopped")
}

// coldStartVset resolves the race §5 describes between process start
// and the first live block arriving: it fetches the source network's
// latest key block and installs its current validator set before any
// PrepareBlock call can need one.
func coldStartVset(ctx context.Context, src netclient.NetworkClient, sub *subscriber.Subscriber) error {
	seqno, err := src.GetLatestKeyBlockSeqno(ctx)
	if err != nil {
		return fmt.Errorf("get latest key block seqno: %w", err)
	}
	kb, err := src.GetKeyBlock(ctx, seqno)
	if err != nil {
		return fmt.Errorf("get key block %d: %w", seqno, err)
	}
	sub.SetCurrentVset(kb.CurrentVset)
	return nil
}

// routeProofChain dispatches between the L2 and source-network proof-
// chain variants named in spec §6 by how many path segments follow the
// account address: two (address, lt) is the cacheable L2 variant,
// three (address, lt, hash) is the rate-limited source-network one.
func routeProofChain(h *server.ProofChainHandlers, rl *server.RateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/v1/proof_chain/")
		parts := strings.Split(strings.Trim(path, "/"), "/")
		if len(parts) >= 3 {
			rl.Middleware(h.HandleSourceNetwork)(w, r)
			return
		}
		h.HandleL2(w, r)
	}
}

// wrap applies the request-id and metrics middleware every route gets,
// labeling metrics by route rather than by the raw request path.
func wrap(m *server.Metrics, route string, next http.HandlerFunc) http.HandlerFunc {
	return server.WithRequestID(m.Instrument(route, next))
}

// buildUploader constructs one (src, dst) key-block sync pair from its
// configuration: both network clients, the custodial wallet loaded
// from its seed and code cells, and the Uploader that drives them.
func buildUploader(ctx context.Context, cfg config.UploaderPairConfig, registry *prometheus.Registry) (*uploader.Uploader, error) {
	srcClient, err := netclient.Build(ctx, cfg.Name+":src", netclient.BackendConfig{
		Kind: cfg.Src.Kind, Endpoint: cfg.Src.Endpoint, ConfigURL: cfg.Src.ConfigURL, APIKey: cfg.Src.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("src network client: %w", err)
	}
	dstClient, err := netclient.Build(ctx, cfg.Name+":dst", netclient.BackendConfig{
		Kind: cfg.Dst.Kind, Endpoint: cfg.Dst.Endpoint, ConfigURL: cfg.Dst.ConfigURL, APIKey: cfg.Dst.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("dst network client: %w", err)
	}

	seed, err := hex.DecodeString(cfg.WalletSeed)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet_seed_hex: want %d raw bytes hex-encoded: %w", ed25519.SeedSize, err)
	}
	priv := ed25519.NewKeyFromSeed(seed)

	walletCode, err := loadBOC(cfg.WalletCodeBOC)
	if err != nil {
		return nil, fmt.Errorf("wallet_code_boc_path: %w", err)
	}
	var libStoreCode *cell.Cell
	if cfg.LibStoreCodeBOC != "" {
		libStoreCode, err = loadBOC(cfg.LibStoreCodeBOC)
		if err != nil {
			return nil, fmt.Errorf("lib_store_code_boc_path: %w", err)
		}
	}

	wallet, err := uploader.NewWallet(cfg.WalletWorkchain, priv, walletCode, libStoreCode, dstClient,
		cfg.MinRequiredBalance, log.New(log.Writer(), fmt.Sprintf("[uploader:%s:wallet] ", cfg.Name), log.LstdFlags))
	if err != nil {
		return nil, fmt.Errorf("build wallet: %w", err)
	}

	bridgeAddr, err := address.ParseAddr(cfg.BridgeAddress)
	if err != nil {
		return nil, fmt.Errorf("bridge_address: %w", err)
	}
	var bridgeHash [32]byte
	copy(bridgeHash[:], bridgeAddr.Data())
	bridge := netclient.Account{Workchain: int32(bridgeAddr.Workchain()), ID: bridgeHash}

	up := uploader.New(cfg.Name, srcClient, dstClient, bridge, wallet, cfg.PollInterval, cfg.MessageValue,
		log.New(log.Writer(), fmt.Sprintf("[uploader:%s] ", cfg.Name), log.LstdFlags))
	up.SetMetrics(registry)
	return up, nil
}

func loadBOC(path string) (*cell.Cell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return cell.FromBOC(data)
}

func printHelp() {
	fmt.Println("ton-proof-bridge: transaction inclusion proofs for a TON-family blockchain")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ton-proof-bridge [OPTIONS]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config=PATH   path to config.yaml")
	fmt.Println("  --help          show this help message")
}
