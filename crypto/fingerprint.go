package crypto

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Fingerprint identifies a signing request for replay detection. Two
// requests with the same fingerprint are the same request; the store
// keeps one record per fingerprint.
type Fingerprint string

// RequestFingerprint derives the fingerprint for a request. The domain
// tag separates fingerprint spaces between domains, and extra carries
// domain policy inputs (e.g. a sequential-delay stage counter) so that
// a replay of an old stage collides while the next stage is fresh.
func RequestFingerprint(domainTag string, account common.Address, blindedMessage string, extra ...[]byte) Fingerprint {
	h := sha3.NewLegacyKeccak256()

	writeLengthPrefixed(h, []byte(domainTag))
	writeLengthPrefixed(h, account.Bytes())
	writeLengthPrefixed(h, []byte(blindedMessage))
	for _, e := range extra {
		writeLengthPrefixed(h, e)
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

func writeLengthPrefixed(h interface{ Write([]byte) (int, error) }, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	h.Write(lenBuf[:])
	h.Write(data)
}
