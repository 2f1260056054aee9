package protocol

import (
	"encoding/binary"
	"fmt"
)

// DomainKind selects the rate-limit and replay policy for a request.
// Dispatch is an explicit switch over kinds rather than inheritance;
// each kind carries its own options struct.
type DomainKind string

const (
	// PhoneNumberDomain is the legacy ODIS domain: quota derived from
	// on-chain verification status, balances and transaction history,
	// replay detected on the (account, blinded message) pair.
	PhoneNumberDomain DomainKind = "phone_number"

	// SequentialDelayDomain enforces an ordered sequence of stages per
	// account. The stage counter is folded into the replay fingerprint:
	// re-submitting an old stage is a duplicate, the next stage is a
	// fresh request.
	SequentialDelayDomain DomainKind = "sequential_delay"
)

// Domain is the tagged union of request domains. A nil Domain on a
// request means PhoneNumberDomain.
type Domain struct {
	Kind            DomainKind              `json:"kind"`
	SequentialDelay *SequentialDelayOptions `json:"sequentialDelay,omitempty"`
}

// SequentialDelayOptions carries the per-request state of the
// sequential-delay domain.
type SequentialDelayOptions struct {
	// Stage is the client's position in the delay sequence,
	// monotonically increasing per account.
	Stage uint64 `json:"stage"`

	// Salt separates independent delay sequences for one account.
	Salt string `json:"salt,omitempty"`
}

// Validate checks the union is well-formed: a known kind with exactly
// the options that kind requires.
func (d *Domain) Validate() error {
	if d == nil {
		return nil
	}
	switch d.Kind {
	case PhoneNumberDomain:
		if d.SequentialDelay != nil {
			return fmt.Errorf("domain %s does not take sequentialDelay options", d.Kind)
		}
		return nil
	case SequentialDelayDomain:
		if d.SequentialDelay == nil {
			return fmt.Errorf("domain %s requires sequentialDelay options", d.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown domain kind %q", d.Kind)
	}
}

// Tag returns the fingerprint namespace for the domain.
func (d *Domain) Tag() string {
	if d == nil {
		return string(PhoneNumberDomain)
	}
	return string(d.Kind)
}

// FingerprintExtras returns the domain policy inputs folded into the
// replay fingerprint beyond the account and blinded message.
func (d *Domain) FingerprintExtras() [][]byte {
	if d == nil {
		return nil
	}
	switch d.Kind {
	case SequentialDelayDomain:
		var stage [8]byte
		binary.BigEndian.PutUint64(stage[:], d.SequentialDelay.Stage)
		return [][]byte{stage[:], []byte(d.SequentialDelay.Salt)}
	default:
		return nil
	}
}
