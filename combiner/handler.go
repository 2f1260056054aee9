package combiner

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/celo-org/celo-monorepo-sub009/metrics"
	"github.com/celo-org/celo-monorepo-sub009/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Handler exposes the combiner HTTP surface. The combiner is called
// directly from browsers and mobile clients, so its routes carry CORS
// headers.
type Handler struct {
	combiner *Combiner
	log      *slog.Logger
}

// NewHandler creates the combiner HTTP handler.
func NewHandler(c *Combiner, log *slog.Logger) *Handler {
	return &Handler{combiner: c, log: log}
}

// RegisterRoutes registers the combiner endpoints, including the legacy
// alias older clients still call.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", protocol.AuthorizationHeader},
	}))

	r.Post(protocol.CombinedSigEndpoint, h.handleCombinedSig)
	r.Post(protocol.DistributedBlindedSaltAlias, h.handleCombinedSig)
	r.Post(protocol.QuotaEndpoint, h.handleQuota)
	r.Get(protocol.StatusEndpoint, h.handleStatus)
}

func (h *Handler) handleCombinedSig(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, protocol.MaxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req protocol.SignRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !common.IsHexAddress(req.Account) {
		http.Error(w, "malformed account address", http.StatusBadRequest)
		return
	}

	resp, status, err := h.combiner.CombineSign(r.Context(), &req, body, r.Header.Get(protocol.AuthorizationHeader))
	if err != nil {
		metrics.CombineFailures.Inc()
		http.Error(w, err.Error(), status)
		return
	}

	metrics.CombineSuccesses.Inc()
	writeJSON(w, status, resp)
}

func (h *Handler) handleQuota(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, protocol.MaxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req protocol.QuotaRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !common.IsHexAddress(req.Account) {
		http.Error(w, "malformed account address", http.StatusBadRequest)
		return
	}

	resp, status, err := h.combiner.CombineQuota(r.Context(), &req, body, r.Header.Get(protocol.AuthorizationHeader))
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, status, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &protocol.StatusResponse{
		Version: protocol.Version,
		Service: "combiner",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
