package crypto

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
)

// ErrMalformedBlindedMessage indicates the submitted blinded message is
// not a valid curve point and cannot be signed.
var ErrMalformedBlindedMessage = errors.New("malformed blinded message point")

// DecodeBlindedMessage decodes a base64 blinded message into a G1 point.
// The signer never learns the underlying identifier; it only checks that
// the submitted bytes encode a point it can multiply.
func DecodeBlindedMessage(blinded string) (kyber.Point, error) {
	raw, err := base64.StdEncoding.DecodeString(blinded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlindedMessage, err)
	}
	if len(raw) != PointLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedBlindedMessage, PointLength, len(raw))
	}

	point := Suite.G1().Point()
	if err := point.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlindedMessage, err)
	}
	return point, nil
}

// PartialSign computes one signer's contribution: the blinded point
// multiplied by the private key share. The result is deterministic for a
// given share and message, so replayed requests re-derive the same
// signature without any stored state.
func PartialSign(keyShare *KeyShare, blindedMessage string) ([]byte, error) {
	point, err := DecodeBlindedMessage(blindedMessage)
	if err != nil {
		return nil, err
	}

	sig := Suite.G1().Point().Mul(keyShare.priShare.V, point)
	raw, err := sig.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling partial signature: %w", err)
	}

	out := make([]byte, 2, PartialSignatureLength)
	binary.BigEndian.PutUint16(out, uint16(keyShare.priShare.I))
	return append(out, raw...), nil
}

// VerifyPartial checks a partial signature against the published key
// share for its index: e(sigma_i, g2) == e(B, pk_i).
func VerifyPartial(pub *PublicShares, blindedMessage string, partial []byte) error {
	index, sigPoint, err := decodePartial(partial)
	if err != nil {
		return err
	}

	msgPoint, err := DecodeBlindedMessage(blindedMessage)
	if err != nil {
		return err
	}

	left := Suite.Pair(sigPoint, Suite.G2().Point().Base())
	right := Suite.Pair(msgPoint, pub.Eval(index))
	if !left.Equal(right) {
		return fmt.Errorf("partial signature for share %d does not verify", index)
	}
	return nil
}

// CombinePartials interpolates at least threshold partial signatures
// into the aggregate signature and verifies the result against the
// aggregate public key. Extra partials beyond the threshold are
// tolerated; invalid ones must be filtered out beforehand via
// VerifyPartial.
func CombinePartials(pub *PublicShares, blindedMessage string, partials [][]byte, n int) ([]byte, error) {
	if len(partials) < pub.threshold {
		return nil, fmt.Errorf("need %d partial signatures, got %d", pub.threshold, len(partials))
	}

	pubShares := make([]*share.PubShare, 0, len(partials))
	for _, partial := range partials {
		index, sigPoint, err := decodePartial(partial)
		if err != nil {
			return nil, err
		}
		pubShares = append(pubShares, &share.PubShare{I: index, V: sigPoint})
	}

	combined, err := share.RecoverCommit(Suite.G1(), pubShares, pub.threshold, n)
	if err != nil {
		return nil, fmt.Errorf("recovering aggregate signature: %w", err)
	}

	raw, err := combined.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling aggregate signature: %w", err)
	}

	if err := VerifyCombined(pub, blindedMessage, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// VerifyCombined checks the aggregate signature against the combined
// public key: e(sigma, g2) == e(B, pk).
func VerifyCombined(pub *PublicShares, blindedMessage string, signature []byte) error {
	msgPoint, err := DecodeBlindedMessage(blindedMessage)
	if err != nil {
		return err
	}

	sigPoint := Suite.G1().Point()
	if err := sigPoint.UnmarshalBinary(signature); err != nil {
		return fmt.Errorf("unmarshaling aggregate signature: %w", err)
	}

	left := Suite.Pair(sigPoint, Suite.G2().Point().Base())
	right := Suite.Pair(msgPoint, pub.AggregateKey())
	if !left.Equal(right) {
		return errors.New("aggregate signature does not verify")
	}
	return nil
}

func decodePartial(partial []byte) (int, kyber.Point, error) {
	if len(partial) != PartialSignatureLength {
		return 0, nil, fmt.Errorf("partial signature must be %d bytes, got %d", PartialSignatureLength, len(partial))
	}

	point := Suite.G1().Point()
	if err := point.UnmarshalBinary(partial[2:]); err != nil {
		return 0, nil, fmt.Errorf("unmarshaling partial signature point: %w", err)
	}
	return int(binary.BigEndian.Uint16(partial[:2])), point, nil
}
