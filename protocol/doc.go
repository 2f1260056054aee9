// Package protocol defines the wire types shared by the signer and
// combiner services: signing and quota requests, responses with quota
// accounting fields, warning codes for soft failures, the request
// domain tagged union, and input validation.
//
// The signer and combiner speak the same request shape; the combiner
// forwards client requests to signers unchanged and returns a response
// of the same form carrying the combined signature.
package protocol
