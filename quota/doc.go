// Package quota decides whether an account may consume one unit of
// signing quota and, if so, consumes it atomically.
//
// Total quota is a deterministic function of current chain state:
// verification status, combined balances and transaction counts across
// the account and its registered wallet, weighted by configured
// constants. Nothing of the computation is persisted; only the
// performed-query counter is, and it moves exactly once per admitted,
// non-duplicate request.
package quota
