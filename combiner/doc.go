// Package combiner implements the ODIS combiner: it fans one client
// request out to all configured signers, collects partial signatures
// until the threshold is met, verifies each partial against the
// published key shares, and interpolates the aggregate signature.
//
// The combiner forwards the client's body bytes unchanged so the
// Authorization signature over them stays verifiable at each signer.
// Once the threshold is reached, in-flight signer requests are
// cancelled and their eventual responses discarded.
package combiner
