package signer

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/celo-org/celo-monorepo-sub009/chain"
	"github.com/celo-org/celo-monorepo-sub009/metrics"
	"github.com/celo-org/celo-monorepo-sub009/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

// Handler exposes the signer HTTP surface.
type Handler struct {
	orchestrator *Orchestrator
	chain        chain.Reader
	log          *slog.Logger
}

// NewHandler creates the signer HTTP handler.
func NewHandler(orchestrator *Orchestrator, chainReader chain.Reader, log *slog.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, chain: chainReader, log: log}
}

// RegisterRoutes registers the signer endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post(protocol.PartialSigEndpoint, h.handlePartialSig)
	r.Post(protocol.QuotaEndpoint, h.handleQuota)
	r.Get(protocol.StatusEndpoint, h.handleStatus)
}

func (h *Handler) handlePartialSig(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	metrics.SignRequests.Inc()

	body, err := readBody(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, status, err := h.orchestrator.HandleSignRequest(r.Context(), body, r.Header.Get(protocol.AuthorizationHeader))
	if err != nil {
		recordRejection(status)
		http.Error(w, err.Error(), status)
		return
	}

	metrics.PartialSignatures.Inc()
	for _, warning := range resp.Warnings {
		if warning == protocol.WarnDuplicateRequest {
			metrics.DuplicateRequests.Inc()
		}
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleQuota(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := readBody(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, status, err := h.orchestrator.HandleQuotaRequest(r.Context(), body, r.Header.Get(protocol.AuthorizationHeader))
	if err != nil {
		recordRejection(status)
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, status, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := &protocol.StatusResponse{Version: protocol.Version, Service: "signer"}
	if block, err := h.chain.BlockNumber(r.Context()); err == nil {
		resp.BlockNumber = block
	}
	writeJSON(w, http.StatusOK, resp)
}

func recordRejection(status int) {
	switch status {
	case http.StatusForbidden:
		metrics.QuotaDenials.Inc()
	case http.StatusUnauthorized:
		metrics.AuthFailures.Inc()
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, protocol.MaxBodyBytes))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody[T any](body []byte) (*T, error) {
	var msg T
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func isWellFormedAccount(account string) bool {
	return common.IsHexAddress(account)
}
