package signer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/celo-org/celo-monorepo-sub009/chain"
	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/celo-org/celo-monorepo-sub009/protocol"
	"github.com/celo-org/celo-monorepo-sub009/quota"
	"github.com/celo-org/celo-monorepo-sub009/store"
)

// State is a signing session's position in the protocol state machine.
type State int

const (
	StateReceived State = iota
	StateAuthenticated
	StateValidated
	StateQuotaChecked
	StateSigned
	StateResponded
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "RECEIVED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateValidated:
		return "VALIDATED"
	case StateQuotaChecked:
		return "QUOTA_CHECKED"
	case StateSigned:
		return "SIGNED"
	case StateResponded:
		return "RESPONDED"
	default:
		return "UNKNOWN"
	}
}

// session tracks one request through the state machine, mostly so
// rejections can name the state they happened in.
type session struct {
	state   State
	request *protocol.SignRequest
}

func (s *session) advance(next State) {
	s.state = next
}

// Orchestrator drives signing sessions. It holds no per-request state;
// instances are safe for concurrent use.
type Orchestrator struct {
	keyShare *crypto.KeyShare
	quota    *quota.Service
	chain    chain.Reader
	store    store.RequestStore
	log      *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates a session orchestrator.
func NewOrchestrator(keyShare *crypto.KeyShare, quotaSvc *quota.Service, chainReader chain.Reader, requestStore store.RequestStore, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		keyShare: keyShare,
		quota:    quotaSvc,
		chain:    chainReader,
		store:    requestStore,
		log:      log,
		now:      time.Now,
	}
}

// HandleSignRequest runs one request through
// RECEIVED → AUTHENTICATED → VALIDATED → QUOTA_CHECKED → SIGNED →
// RESPONDED. Rejections return a nil response plus the HTTP status for
// the rejection reason.
func (o *Orchestrator) HandleSignRequest(ctx context.Context, body []byte, authHeader string) (*protocol.SignResponse, int, error) {
	req, err := decodeBody[protocol.SignRequest](body)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	sess := &session{state: StateReceived, request: req}

	// RECEIVED → AUTHENTICATED. The account field must be parseable
	// before we can check anything against it.
	if !isWellFormedAccount(req.Account) {
		return nil, http.StatusBadRequest, fmt.Errorf("%w: malformed account address", protocol.ErrInvalidInput)
	}
	if err := o.authenticate(ctx, req, body, authHeader); err != nil {
		o.log.Info("rejected unauthenticated request",
			"account", req.Account, "state", sess.state.String())
		return nil, http.StatusUnauthorized, err
	}
	sess.advance(StateAuthenticated)

	// AUTHENTICATED → VALIDATED.
	if err := protocol.ValidateSignRequest(req, o.now()); err != nil {
		return nil, http.StatusBadRequest, err
	}
	sess.advance(StateValidated)

	// VALIDATED → QUOTA_CHECKED. Duplicates short-circuit: the
	// signature is deterministic, so it is re-derived without touching
	// the counter.
	account := req.AccountAddress()
	fp := crypto.RequestFingerprint(req.Domain.Tag(), account, req.BlindedQueryPhoneNumber, req.Domain.FingerprintExtras()...)

	if dup, err := o.store.RequestExists(ctx, fp); err == nil && dup {
		return o.respondDuplicate(ctx, sess, fp)
	} else if err != nil {
		o.log.Warn("replay check failed, proceeding to quota", "err", err)
	}

	status, outcome, err := o.quota.CheckAndConsume(ctx, account, req.HashedPhoneNumber, req.SessionID, fp)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("quota check: %w", err)
	}
	if !outcome.Sufficient {
		o.log.Info("rejected for insufficient quota",
			"account", req.Account,
			"queryCount", status.QueryCount,
			"totalQuota", status.TotalQuota)
		return nil, http.StatusForbidden, errors.New("quota exceeded")
	}
	sess.advance(StateQuotaChecked)

	// QUOTA_CHECKED → SIGNED.
	partial, err := crypto.PartialSign(o.keyShare, req.BlindedQueryPhoneNumber)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("computing partial signature: %w", err)
	}
	sess.advance(StateSigned)

	// SIGNED → RESPONDED.
	resp := &protocol.SignResponse{
		Success:             outcome.BookkeepingErr == nil,
		Version:             protocol.Version,
		Signature:           base64.StdEncoding.EncodeToString(partial),
		PerformedQueryCount: status.QueryCount,
		TotalQuota:          status.TotalQuota,
		BlockNumber:         status.BlockNumber,
	}
	if outcome.Duplicate {
		resp.Warnings = append(resp.Warnings, protocol.WarnDuplicateRequest)
	}
	if outcome.BookkeepingErr != nil {
		resp.Warnings = append(resp.Warnings, protocol.WarnBookkeepingFailure)
		resp.Error = "bookkeeping failure, signature still valid"
	}
	if status.Degraded {
		resp.Warnings = append(resp.Warnings, protocol.WarnPartialChainRead)
	}
	sess.advance(StateResponded)

	return resp, http.StatusOK, nil
}

// respondDuplicate re-derives the signature for an already-admitted
// fingerprint and annotates the response, leaving the counter alone.
func (o *Orchestrator) respondDuplicate(ctx context.Context, sess *session, fp crypto.Fingerprint) (*protocol.SignResponse, int, error) {
	req := sess.request

	status, err := o.quota.Check(ctx, req.AccountAddress(), req.HashedPhoneNumber)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("quota status for duplicate: %w", err)
	}

	partial, err := crypto.PartialSign(o.keyShare, req.BlindedQueryPhoneNumber)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("re-deriving signature for duplicate: %w", err)
	}

	o.log.Info("served duplicate request", "account", req.Account, "fingerprint", string(fp)[:16])

	resp := &protocol.SignResponse{
		Success:             true,
		Version:             protocol.Version,
		Signature:           base64.StdEncoding.EncodeToString(partial),
		PerformedQueryCount: status.QueryCount,
		TotalQuota:          status.TotalQuota,
		BlockNumber:         status.BlockNumber,
		Warnings:            []protocol.WarningCode{protocol.WarnDuplicateRequest},
	}
	return resp, http.StatusOK, nil
}

// HandleQuotaRequest reports an account's quota standing without
// consuming any.
func (o *Orchestrator) HandleQuotaRequest(ctx context.Context, body []byte, authHeader string) (*protocol.QuotaResponse, int, error) {
	req, err := decodeBody[protocol.QuotaRequest](body)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	if !isWellFormedAccount(req.Account) {
		return nil, http.StatusBadRequest, fmt.Errorf("%w: malformed account address", protocol.ErrInvalidInput)
	}
	if err := o.authenticateQuota(ctx, req, body, authHeader); err != nil {
		return nil, http.StatusUnauthorized, err
	}
	if err := protocol.ValidateQuotaRequest(req); err != nil {
		return nil, http.StatusBadRequest, err
	}

	status, err := o.quota.Check(ctx, req.AccountAddress(), req.HashedPhoneNumber)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("quota check: %w", err)
	}

	resp := &protocol.QuotaResponse{
		Success:             true,
		Version:             protocol.Version,
		PerformedQueryCount: status.QueryCount,
		TotalQuota:          status.TotalQuota,
		BlockNumber:         status.BlockNumber,
	}
	if status.Degraded {
		resp.Warnings = append(resp.Warnings, protocol.WarnPartialChainRead)
	}
	return resp, http.StatusOK, nil
}

// authenticate accepts a signature by the account's primary key, or by
// its on-chain registered DEK when one exists. The DEK read failing is
// not fatal; the primary-key path still applies.
func (o *Orchestrator) authenticate(ctx context.Context, req *protocol.SignRequest, body []byte, authHeader string) error {
	if authHeader == "" {
		return fmt.Errorf("%w: missing authorization", crypto.ErrUnauthenticated)
	}

	account := req.AccountAddress()
	accountErr := crypto.VerifyAccountSignature(account, body, authHeader)
	if accountErr == nil {
		return nil
	}

	dek, err := o.chain.DataEncryptionKey(ctx, account)
	if err != nil {
		o.log.Warn("DEK lookup failed", "account", req.Account, "err", err)
		return accountErr
	}
	if len(dek) == 0 {
		return accountErr
	}
	return crypto.VerifyDEKSignature(dek, body, authHeader)
}

func (o *Orchestrator) authenticateQuota(ctx context.Context, req *protocol.QuotaRequest, body []byte, authHeader string) error {
	if authHeader == "" {
		return fmt.Errorf("%w: missing authorization", crypto.ErrUnauthenticated)
	}

	account := req.AccountAddress()
	accountErr := crypto.VerifyAccountSignature(account, body, authHeader)
	if accountErr == nil {
		return nil
	}

	dek, err := o.chain.DataEncryptionKey(ctx, account)
	if err != nil || len(dek) == 0 {
		return accountErr
	}
	return crypto.VerifyDEKSignature(dek, body, authHeader)
}
