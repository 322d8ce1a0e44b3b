// Copyright 2025 Certen Protocol

package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"

	"github.com/tychoproof/ton-proof-bridge/pkg/proofstore"
)

// ProofChainHandlers serves the build-proof query described in spec
// §6: GET /v1/proof_chain/{address}/{lt} (the L2 variant, cacheable)
// and GET /v1/proof_chain/{address}/{lt}/{hash} (the source-network
// variant, rate-limited per IP outside a whitelist). Both delegate to
// the same proofstore.Store.BuildProof — component D does not
// distinguish where a request came from, only the transport layer
// does, per §2's dataflow.
type ProofChainHandlers struct {
	store   *proofstore.Store
	logger  *log.Logger
}

func NewProofChainHandlers(store *proofstore.Store, logger *log.Logger) *ProofChainHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[proofchain] ", log.LstdFlags)
	}
	return &ProofChainHandlers{store: store, logger: logger}
}

type proofChainResponse struct {
	ProofChain string `json:"proofChain"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HandleL2 serves GET /v1/proof_chain/{address}/{lt} with a 1-second
// request timeout, per spec §5.
func (h *ProofChainHandlers) HandleL2(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "/v1/proof_chain/", time.Second)
}

// HandleSourceNetwork serves GET /v1/proof_chain/{address}/{lt}/{hash}
// with a 10-second request timeout, per spec §5. It runs the same
// local BuildProof lookup as HandleL2; the {hash} segment is not read.
func (h *ProofChainHandlers) HandleSourceNetwork(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "/v1/proof_chain/", 10*time.Second)
}

func (h *ProofChainHandlers) handle(w http.ResponseWriter, r *http.Request, prefix string, timeout time.Duration) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		h.writeError(w, http.StatusBadRequest, "badRequest", "expected /{address}/{lt}[/{hash}]")
		return
	}
	addrStr, ltStr := parts[0], parts[1]

	addr, err := address.ParseAddr(addrStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "badRequest", fmt.Sprintf("invalid address: %v", err))
		return
	}
	lt, err := strconv.ParseUint(ltStr, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "badRequest", "invalid lt")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	var hash [32]byte
	copy(hash[:], addr.Data())
	account := proofstore.Account{Workchain: int32(addr.Workchain()), Hash: hash}

	proofCell, err := h.store.BuildProof(ctx, account, lt)
	if err != nil {
		if ctx.Err() != nil {
			h.writeError(w, http.StatusInternalServerError, "internal", "request timed out")
			return
		}
		h.logger.Printf("build_proof(%s, %d) failed: %v", addrStr, lt, err)
		h.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if proofCell == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	boc := proofCell.ToBOC()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=604800") // 1 week
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(proofChainResponse{ProofChain: base64.StdEncoding.EncodeToString(boc)})
}

func (h *ProofChainHandlers) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: code, Message: message})
}
