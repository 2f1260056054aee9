package crypto

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/share"
)

// Suite is the pairing suite used for all threshold-BLS operations.
// Blinded messages and signatures live in G1, public key shares in G2.
var Suite = bn256.NewSuite()

const (
	// KeyShareLength is the serialized length of a private key share:
	// a 2-byte big-endian share index followed by a 32-byte scalar.
	KeyShareLength = 2 + 32

	// PointLength is the marshaled length of a G1 point (blinded
	// messages and signatures).
	PointLength = 64

	// PartialSignatureLength is the serialized length of one signer's
	// contribution: a 2-byte share index followed by a G1 point.
	PartialSignatureLength = 2 + PointLength
)

// KeyShare is one signer's private share of the threshold signing key.
type KeyShare struct {
	priShare *share.PriShare
}

// NewKeyShareFromBytes deserializes a key share from its wire form.
func NewKeyShareFromBytes(data []byte) (*KeyShare, error) {
	if len(data) != KeyShareLength {
		return nil, fmt.Errorf("key share must be %d bytes, got %d", KeyShareLength, len(data))
	}

	v := Suite.G2().Scalar()
	if err := v.UnmarshalBinary(data[2:]); err != nil {
		return nil, fmt.Errorf("unmarshaling share scalar: %w", err)
	}

	return &KeyShare{priShare: &share.PriShare{
		I: int(binary.BigEndian.Uint16(data[:2])),
		V: v,
	}}, nil
}

// NewKeyShareFromString deserializes a key share from a hex string.
func NewKeyShareFromString(data string) (*KeyShare, error) {
	raw, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return NewKeyShareFromBytes(raw)
}

// Index returns the share index, used to tag partial signatures so the
// combiner can verify and interpolate them.
func (k *KeyShare) Index() int {
	return k.priShare.I
}

// Bytes serializes the key share. The result contains sensitive key
// material and must be handled accordingly.
func (k *KeyShare) Bytes() ([]byte, error) {
	scalar, err := k.priShare.V.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 2, KeyShareLength)
	binary.BigEndian.PutUint16(out, uint16(k.priShare.I))
	return append(out, scalar...), nil
}

// PublicShares holds the published commitment polynomial of the
// threshold key. It verifies individual partial signatures and the
// combined aggregate, and defines the threshold t.
type PublicShares struct {
	pubPoly   *share.PubPoly
	threshold int
}

// NewPublicShares wraps a commitment polynomial. The threshold equals
// the number of commitments.
func NewPublicShares(commits []kyber.Point) (*PublicShares, error) {
	if len(commits) == 0 {
		return nil, errors.New("no commitments")
	}
	return &PublicShares{
		pubPoly:   share.NewPubPoly(Suite.G2(), Suite.G2().Point().Base(), commits),
		threshold: len(commits),
	}, nil
}

// NewPublicSharesFromString deserializes the commitment polynomial from
// hex-encoded concatenated G2 points.
func NewPublicSharesFromString(data string) (*PublicShares, error) {
	raw, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}

	pointLen := Suite.G2().PointLen()
	if len(raw) == 0 || len(raw)%pointLen != 0 {
		return nil, fmt.Errorf("commitments must be a multiple of %d bytes", pointLen)
	}

	commits := make([]kyber.Point, 0, len(raw)/pointLen)
	for i := 0; i < len(raw); i += pointLen {
		p := Suite.G2().Point()
		if err := p.UnmarshalBinary(raw[i : i+pointLen]); err != nil {
			return nil, fmt.Errorf("unmarshaling commitment %d: %w", i/pointLen, err)
		}
		commits = append(commits, p)
	}

	return NewPublicShares(commits)
}

// Threshold returns the number of partial signatures required to
// recover the aggregate.
func (p *PublicShares) Threshold() int {
	return p.threshold
}

// Eval returns the public key share for the given share index.
func (p *PublicShares) Eval(i int) kyber.Point {
	return p.pubPoly.Eval(i).V
}

// AggregateKey returns the combined public key the final signature
// verifies against.
func (p *PublicShares) AggregateKey() kyber.Point {
	return p.pubPoly.Commit()
}

// String returns the hex-encoded commitment polynomial.
func (p *PublicShares) String() (string, error) {
	_, commits := p.pubPoly.Info()
	out := make([]byte, 0, len(commits)*Suite.G2().PointLen())
	for _, c := range commits {
		raw, err := c.MarshalBinary()
		if err != nil {
			return "", err
		}
		out = append(out, raw...)
	}
	return hex.EncodeToString(out), nil
}

// GenerateKeyShares deals a fresh threshold key: n private shares of
// which any t recover the signing key. Intended for tests and local
// development; production shares come from an offline ceremony.
func GenerateKeyShares(t, n int) ([]*KeyShare, *PublicShares, error) {
	if t < 1 || t > n {
		return nil, nil, fmt.Errorf("invalid threshold %d of %d", t, n)
	}

	secret := Suite.G2().Scalar().Pick(Suite.RandomStream())
	priPoly := share.NewPriPoly(Suite.G2(), t, secret, Suite.RandomStream())
	pubPoly := priPoly.Commit(Suite.G2().Point().Base())

	shares := make([]*KeyShare, 0, n)
	for _, s := range priPoly.Shares(n) {
		shares = append(shares, &KeyShare{priShare: s})
	}

	_, commits := pubPoly.Info()
	pub, err := NewPublicShares(commits)
	if err != nil {
		return nil, nil, err
	}
	return shares, pub, nil
}
