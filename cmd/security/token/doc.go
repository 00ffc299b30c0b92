// Package token provides keyed hashing for opaque values that must not be
// stored or logged verbatim (client IPs and emails used as throttling keys).
//
// With a key configured it uses HMAC-SHA256; without one it falls back to
// plain SHA-256, which is only acceptable outside production.
package token
