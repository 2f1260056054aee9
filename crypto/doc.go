// Package crypto provides the cryptographic primitives for the ODIS
// quota and threshold-signing protocol.
//
// This package implements the operations required to blindly sign a
// client's blinded phone-number hash under a threshold BLS scheme:
//
//   - Key shares (PriShare scalars) and the published public polynomial
//     used to verify individual contributions
//   - Partial signing of a blinded curve point with a locally-held share
//   - Verification of partial signatures against published key shares
//   - Lagrange recovery of the aggregate signature from a quorum of
//     partial signatures
//   - Request authentication: ECDSA account signatures over the
//     canonical request body, and the registered-DEK scheme
//   - Replay fingerprints derived from request contents
//
// The pairing suite is BN256. Blinding itself happens client-side; the
// signer only ever sees an opaque curve point and multiplies it by its
// key share, so the underlying identifier is never revealed.
package crypto
