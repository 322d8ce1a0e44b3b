package netclient

import (
	"context"
	"fmt"

	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
)

// BackendConfig is the subset of pkg/config.NetworkConfig the factory
// needs, duplicated here rather than imported to keep this package free
// of a dependency on pkg/config (config depends on nothing; netclient
// stays a leaf the same way).
type BackendConfig struct {
	Kind      string // "liteclient" or "jsonrpc"
	Endpoint  string
	ConfigURL string
	APIKey    string
}

// Build constructs the NetworkClient backend named by cfg.Kind, the
// single switchpoint main.go uses to turn a configured network into a
// live client without either caller needing to know the concrete type.
func Build(ctx context.Context, name string, cfg BackendConfig) (NetworkClient, error) {
	switch cfg.Kind {
	case "liteclient":
		return NewLiteClient(ctx, name, cfg.ConfigURL)
	case "jsonrpc":
		return NewJRPCClient(name, cfg.Endpoint)
	default:
		return nil, fmt.Errorf("netclient: unknown backend kind %q for %s", cfg.Kind, name)
	}
}

// SignatureSourceAdapter wraps any NetworkClient to satisfy
// pkg/subscriber.SignatureSource, without subscriber needing to import
// this package's concrete client types or vice versa.
type SignatureSourceAdapter struct {
	Client NetworkClient
}

func (a SignatureSourceAdapter) LoadMasterchainSignatures(ctx context.Context, seqno uint32) ([]cellproof.SignatureEntry, error) {
	return a.Client.GetBlockSignatures(ctx, seqno)
}
