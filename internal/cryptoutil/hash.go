package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // sha1 is a negotiated Hawk algorithm, not used for storage
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
)

var ErrUnsupportedAlgorithm = errors.New("cryptoutil: unsupported algorithm")

const (
	SHA256 = "sha256"
	SHA1   = "sha1"
)

// HashFunc returns the constructor for a named algorithm.
func HashFunc(alg string) (func() hash.Hash, error) {
	switch alg {
	case SHA256:
		return sha256.New, nil
	case SHA1:
		return sha1.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// HMACBase64 returns base64(HMAC-alg(key, msg)).
func HMACBase64(alg string, key []byte, msg string) (string, error) {
	fn, err := HashFunc(alg)
	if err != nil {
		return "", err
	}
	m := hmac.New(fn, key)
	m.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(m.Sum(nil)), nil
}

// DigestBase64 returns base64(alg(parts...)), hashing parts in order.
func DigestBase64(alg string, parts ...[]byte) (string, error) {
	fn, err := HashFunc(alg)
	if err != nil {
		return "", err
	}
	h := fn()
	for _, p := range parts {
		h.Write(p)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// HashEqual performs constant-time comparison of two encoded digests or MACs.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex computes the SHA-256 hash of data as lowercase hex
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
