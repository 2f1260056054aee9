// Package chain is the read-only boundary to the blockchain node.
//
// The quota computation needs five observations per request: the
// account's transaction count, native and stable-token balances, its
// verification status, its wallet-address mapping, and the current
// block number. Reader narrows the node to exactly those operations.
//
// Every outbound read goes through a RetryPolicy (bounded attempts,
// capped exponential backoff, overall timeout). After retries are
// exhausted the value is reported as unknown via a per-field Result,
// never silently as zero; the quota layer applies the documented
// per-field fallbacks.
package chain
