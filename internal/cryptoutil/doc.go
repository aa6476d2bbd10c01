// Package cryptoutil holds the hashing and MAC primitives used for request
// authentication and content fingerprints.
//
// It supports:
//   - HMAC-SHA256 and HMAC-SHA1 over a message, base64 encoded
//   - plain SHA-256 / SHA-1 digests, base64 encoded
//   - constant-time comparison of encoded digests and MACs
//   - SHA-256 hex fingerprints for HTTP entity tags
package cryptoutil
