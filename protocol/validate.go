package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxBodyBytes caps accepted request bodies. Anything larger is not
	// a legitimate signing request.
	MaxBodyBytes = 1 << 17

	// TimestampWindow bounds how stale a timestamped request may be.
	TimestampWindow = 5 * time.Minute

	// blindedMessageLength is the decoded size of a well-formed blinded
	// message (a G1 point).
	blindedMessageLength = 64
)

// ErrInvalidInput wraps all structural validation failures; callers map
// it to a 400.
var ErrInvalidInput = errors.New("invalid input")

var identifierHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidateSignRequest performs the structural checks of the VALIDATED
// transition: well-formed address, present and correctly sized blinded
// message, well-formed optional identifier hash, unexpired timestamp,
// well-formed domain. Point-on-curve checking is left to the signer.
func ValidateSignRequest(req *SignRequest, now time.Time) error {
	if !common.IsHexAddress(req.Account) {
		return fmt.Errorf("%w: malformed account address %q", ErrInvalidInput, req.Account)
	}
	if req.BlindedQueryPhoneNumber == "" {
		return fmt.Errorf("%w: missing blinded message", ErrInvalidInput)
	}

	raw, err := base64.StdEncoding.DecodeString(req.BlindedQueryPhoneNumber)
	if err != nil {
		return fmt.Errorf("%w: blinded message is not base64", ErrInvalidInput)
	}
	if len(raw) != blindedMessageLength {
		return fmt.Errorf("%w: blinded message must decode to %d bytes, got %d", ErrInvalidInput, blindedMessageLength, len(raw))
	}

	if req.HashedPhoneNumber != "" && !identifierHashRe.MatchString(req.HashedPhoneNumber) {
		return fmt.Errorf("%w: malformed identifier hash", ErrInvalidInput)
	}

	if req.Timestamp != 0 {
		ts := time.UnixMilli(req.Timestamp)
		if now.Sub(ts) > TimestampWindow {
			return fmt.Errorf("%w: request timestamp expired", ErrInvalidInput)
		}
		if ts.Sub(now) > TimestampWindow {
			return fmt.Errorf("%w: request timestamp in the future", ErrInvalidInput)
		}
	}

	if err := req.Domain.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// ValidateQuotaRequest checks a quota lookup request.
func ValidateQuotaRequest(req *QuotaRequest) error {
	if !common.IsHexAddress(req.Account) {
		return fmt.Errorf("%w: malformed account address %q", ErrInvalidInput, req.Account)
	}
	if req.HashedPhoneNumber != "" && !identifierHashRe.MatchString(req.HashedPhoneNumber) {
		return fmt.Errorf("%w: malformed identifier hash", ErrInvalidInput)
	}
	return nil
}
