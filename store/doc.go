// Package store persists quota accounting and replay-protection state:
// a per-account performed-query counter and one record per admitted
// request fingerprint. The two writes for an admission happen in a
// single transaction so a duplicate fingerprint can never increment the
// counter, and concurrent requests for the same account serialize on
// the account row.
package store
