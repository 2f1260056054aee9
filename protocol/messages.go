package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
)

// Version identifies the protocol revision carried in every response.
const Version = "1.1.0"

// AuthorizationHeader carries the client's signature over the canonical
// request body.
const AuthorizationHeader = "Authorization"

// Signer and combiner endpoint paths. The combiner mirrors the signer
// surface one level up; /getDistributedBlindedSalt is the legacy alias
// older clients still call.
const (
	PartialSigEndpoint          = "/getBlindedMessagePartialSig"
	QuotaEndpoint               = "/getQuota"
	CombinedSigEndpoint         = "/getBlindedMessageSig"
	DistributedBlindedSaltAlias = "/getDistributedBlindedSalt"
	StatusEndpoint              = "/status"
)

// SignRequest asks for a (partial or combined) signature over a blinded
// phone-number hash.
type SignRequest struct {
	Account                 string  `json:"account"`
	BlindedQueryPhoneNumber string  `json:"blindedQueryPhoneNumber"`
	HashedPhoneNumber       string  `json:"hashedPhoneNumber,omitempty"`
	Timestamp               int64   `json:"timestamp,omitempty"`
	SessionID               string  `json:"sessionID,omitempty"`
	Domain                  *Domain `json:"domain,omitempty"`
}

// AccountAddress returns the parsed requester address. Callers must
// validate the request first.
func (r *SignRequest) AccountAddress() common.Address {
	return common.HexToAddress(r.Account)
}

// QuotaRequest asks for an account's current quota standing without
// consuming any.
type QuotaRequest struct {
	Account           string `json:"account"`
	HashedPhoneNumber string `json:"hashedPhoneNumber,omitempty"`
	SessionID         string `json:"sessionID,omitempty"`
}

// AccountAddress returns the parsed requester address.
func (r *QuotaRequest) AccountAddress() common.Address {
	return common.HexToAddress(r.Account)
}

// WarningCode annotates a response with a soft failure that did not
// prevent signing.
type WarningCode string

const (
	// WarnDuplicateRequest marks a replayed request; the signature is
	// re-derived and the query counter is left untouched.
	WarnDuplicateRequest WarningCode = "duplicate_request"

	// WarnBookkeepingFailure marks a failed counter increment or
	// request record write after admission. The signature is still
	// returned; withholding it over a bookkeeping fault would be worse
	// than an under-counted quota.
	WarnBookkeepingFailure WarningCode = "bookkeeping_failure"

	// WarnPartialChainRead marks quota figures computed with one or
	// more chain reads degraded to their documented fallback.
	WarnPartialChainRead WarningCode = "partial_chain_read"

	// WarnSignerDisagreement marks combiner responses where signers
	// reported inconsistent quota figures or block numbers.
	WarnSignerDisagreement WarningCode = "signer_disagreement"
)

// SignResponse carries a signature plus the quota accounting observed
// while admitting the request. Success is false when a warning-grade
// fault occurred during bookkeeping; the signature is still present.
type SignResponse struct {
	Success             bool          `json:"success"`
	Version             string        `json:"version"`
	Signature           string        `json:"signature,omitempty"`
	PerformedQueryCount int64         `json:"performedQueryCount"`
	TotalQuota          int64         `json:"totalQuota"`
	BlockNumber         uint64        `json:"blockNumber"`
	Warnings            []WarningCode `json:"warnings,omitempty"`
	Error               string        `json:"error,omitempty"`
}

// QuotaResponse reports an account's quota standing.
type QuotaResponse struct {
	Success             bool          `json:"success"`
	Version             string        `json:"version"`
	PerformedQueryCount int64         `json:"performedQueryCount"`
	TotalQuota          int64         `json:"totalQuota"`
	BlockNumber         uint64        `json:"blockNumber"`
	Warnings            []WarningCode `json:"warnings,omitempty"`
	Error               string        `json:"error,omitempty"`
}

// StatusResponse reports service identity and chain view for
// diagnostics.
type StatusResponse struct {
	Version     string `json:"version"`
	Service     string `json:"service"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

// DecodeMessage reads and decodes a JSON message from a reader.
func DecodeMessage[T any](r io.Reader) (*T, error) {
	var msg T
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return &msg, nil
}

// SerializeMessage encodes a message as JSON.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
