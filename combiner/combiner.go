package combiner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/celo-org/celo-monorepo-sub009/protocol"
	"github.com/google/uuid"
)

// ErrNotEnoughSigners indicates the threshold cannot be met with the
// signers that have not already failed.
var ErrNotEnoughSigners = errors.New("not enough signers to reach threshold")

// Combiner aggregates partial signatures from N signers into one
// client-facing signature.
type Combiner struct {
	signers []SignerClient
	pub     *crypto.PublicShares

	// blockDrift is the largest spread of signer-reported block numbers
	// tolerated before a disagreement warning is attached.
	blockDrift uint64

	log *slog.Logger
}

// New creates a combiner over the given signers. The threshold comes
// from the published key shares.
func New(signers []SignerClient, pub *crypto.PublicShares, blockDrift uint64, log *slog.Logger) (*Combiner, error) {
	if len(signers) < pub.Threshold() {
		return nil, fmt.Errorf("%d signers configured but threshold is %d", len(signers), pub.Threshold())
	}
	return &Combiner{signers: signers, pub: pub, blockDrift: blockDrift, log: log}, nil
}

// signerResult is one signer's outcome on the collection channel.
type signerResult struct {
	url    string
	resp   *protocol.SignResponse
	status int
	err    error
}

// CombineSign fans the request out to every signer, collects partial
// signatures until the threshold is met, and interpolates the aggregate
// signature. Stragglers are cancelled once the threshold is reached.
// When the threshold becomes unreachable it fails fast with the
// dominant failure reason instead of waiting for remaining timeouts.
func (c *Combiner) CombineSign(ctx context.Context, req *protocol.SignRequest, body []byte, authHeader string) (*protocol.SignResponse, int, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := c.log.With("session", sessionID, "account", req.Account)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan signerResult, len(c.signers))
	for _, signer := range c.signers {
		go func(s SignerClient) {
			resp, status, err := s.PartialSign(ctx, body, authHeader)
			results <- signerResult{url: s.URL(), resp: resp, status: status, err: err}
		}(signer)
	}

	threshold := c.pub.Threshold()
	var (
		partials      [][]byte
		quotaFigures  []quotaFigure
		quotaDenied   int
		unauthorized  int
		otherFailures int
	)

	for range c.signers {
		select {
		case <-ctx.Done():
			return nil, http.StatusInternalServerError, ctx.Err()
		case res := <-results:
			if res.err != nil {
				switch res.status {
				case http.StatusForbidden:
					quotaDenied++
				case http.StatusUnauthorized:
					unauthorized++
				default:
					otherFailures++
				}
				log.Warn("signer request failed", "signer", res.url, "status", res.status, "err", res.err)
			} else if partial, err := c.verifiedPartial(req.BlindedQueryPhoneNumber, res.resp.Signature); err != nil {
				otherFailures++
				log.Warn("discarding unverifiable partial signature", "signer", res.url, "err", err)
			} else {
				partials = append(partials, partial)
				quotaFigures = append(quotaFigures, quotaFigure{
					url:         res.url,
					queryCount:  res.resp.PerformedQueryCount,
					totalQuota:  res.resp.TotalQuota,
					blockNumber: res.resp.BlockNumber,
				})
			}
		}

		if len(partials) >= threshold {
			cancel()
			return c.respondCombined(log, req, partials, quotaFigures)
		}

		failures := quotaDenied + unauthorized + otherFailures
		if len(c.signers)-failures < threshold {
			cancel()
			return nil, failFastStatus(quotaDenied, unauthorized, otherFailures), c.failFastError(log, quotaDenied, unauthorized, otherFailures)
		}
	}

	// Unreachable given the fail-fast check above, kept as a guard.
	return nil, http.StatusInternalServerError, ErrNotEnoughSigners
}

func (c *Combiner) respondCombined(log *slog.Logger, req *protocol.SignRequest, partials [][]byte, figures []quotaFigure) (*protocol.SignResponse, int, error) {
	combined, err := crypto.CombinePartials(c.pub, req.BlindedQueryPhoneNumber, partials, len(c.signers))
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("combining partial signatures: %w", err)
	}

	resp := &protocol.SignResponse{
		Success:   true,
		Version:   protocol.Version,
		Signature: base64.StdEncoding.EncodeToString(combined),
	}
	c.foldQuotaFigures(log, figures, &resp.PerformedQueryCount, &resp.TotalQuota, &resp.BlockNumber, &resp.Warnings)
	return resp, http.StatusOK, nil
}

func (c *Combiner) failFastError(log *slog.Logger, quotaDenied, unauthorized, otherFailures int) error {
	log.Info("threshold unreachable",
		"quotaDenied", quotaDenied,
		"unauthorized", unauthorized,
		"otherFailures", otherFailures,
		"threshold", c.pub.Threshold())

	switch {
	case quotaDenied >= unauthorized && quotaDenied >= otherFailures:
		return errors.New("quota exceeded")
	case unauthorized > otherFailures:
		return crypto.ErrUnauthenticated
	default:
		return ErrNotEnoughSigners
	}
}

func failFastStatus(quotaDenied, unauthorized, otherFailures int) int {
	switch {
	case quotaDenied >= unauthorized && quotaDenied >= otherFailures:
		return http.StatusForbidden
	case unauthorized > otherFailures:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// quotaFigure is one signer's view of the account's quota standing.
type quotaFigure struct {
	url         string
	queryCount  int64
	totalQuota  int64
	blockNumber uint64
}

// foldQuotaFigures reduces per-signer quota views to one client-facing
// set. The maximum of each figure is reported; signers that have seen
// more requests or newer blocks are closer to the truth than ones
// lagging behind. Spreads beyond tolerance attach a disagreement
// warning without failing the request.
func (c *Combiner) foldQuotaFigures(log *slog.Logger, figures []quotaFigure, queryCount, totalQuota *int64, blockNumber *uint64, warnings *[]protocol.WarningCode) {
	if len(figures) == 0 {
		return
	}

	minBlock, maxBlock := figures[0].blockNumber, figures[0].blockNumber
	disagree := false
	for _, f := range figures {
		if f.queryCount > *queryCount {
			*queryCount = f.queryCount
		}
		if f.totalQuota > *totalQuota {
			*totalQuota = f.totalQuota
		}
		if f.blockNumber > maxBlock {
			maxBlock = f.blockNumber
		}
		if f.blockNumber < minBlock {
			minBlock = f.blockNumber
		}
		if f.queryCount != figures[0].queryCount || f.totalQuota != figures[0].totalQuota {
			disagree = true
		}
	}
	*blockNumber = maxBlock

	if maxBlock-minBlock > c.blockDrift {
		disagree = true
		log.Warn("signer block numbers drifted beyond tolerance", "min", minBlock, "max", maxBlock)
	}
	if disagree {
		*warnings = append(*warnings, protocol.WarnSignerDisagreement)
	}
}

func (c *Combiner) verifiedPartial(blindedMessage, signature string) ([]byte, error) {
	partial, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("decoding partial signature: %w", err)
	}
	if err := crypto.VerifyPartial(c.pub, blindedMessage, partial); err != nil {
		return nil, err
	}
	return partial, nil
}

// CombineQuota fans a quota lookup out to every signer and reports the
// maximum figures observed, with a disagreement warning when signers
// differ. At least threshold signers must answer.
func (c *Combiner) CombineQuota(ctx context.Context, req *protocol.QuotaRequest, body []byte, authHeader string) (*protocol.QuotaResponse, int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := c.log.With("account", req.Account)

	type quotaResult struct {
		url    string
		resp   *protocol.QuotaResponse
		status int
		err    error
	}
	results := make(chan quotaResult, len(c.signers))
	for _, signer := range c.signers {
		go func(s SignerClient) {
			resp, status, err := s.Quota(ctx, body, authHeader)
			results <- quotaResult{url: s.URL(), resp: resp, status: status, err: err}
		}(signer)
	}

	var (
		figures      []quotaFigure
		unauthorized int
		failures     int
	)
	for range c.signers {
		select {
		case <-ctx.Done():
			return nil, http.StatusInternalServerError, ctx.Err()
		case res := <-results:
			if res.err != nil {
				if res.status == http.StatusUnauthorized {
					unauthorized++
				}
				failures++
				log.Warn("signer quota request failed", "signer", res.url, "status", res.status, "err", res.err)
				continue
			}
			figures = append(figures, quotaFigure{
				url:         res.url,
				queryCount:  res.resp.PerformedQueryCount,
				totalQuota:  res.resp.TotalQuota,
				blockNumber: res.resp.BlockNumber,
			})
		}
	}

	if len(figures) < c.pub.Threshold() {
		if unauthorized > 0 && unauthorized >= failures-unauthorized {
			return nil, http.StatusUnauthorized, crypto.ErrUnauthenticated
		}
		return nil, http.StatusInternalServerError, ErrNotEnoughSigners
	}

	resp := &protocol.QuotaResponse{Success: true, Version: protocol.Version}
	c.foldQuotaFigures(log, figures, &resp.PerformedQueryCount, &resp.TotalQuota, &resp.BlockNumber, &resp.Warnings)
	return resp, http.StatusOK, nil
}
