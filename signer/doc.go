// Package signer implements one ODIS signer: the per-request session
// state machine tying together authentication, validation, replay
// detection, quota accounting and partial signing, plus the HTTP
// surface the combiner (or a client directly) calls.
//
// Requests are handled independently and concurrently; the only shared
// mutable state is the request store, whose transaction isolation
// serializes quota increments per account.
package signer
