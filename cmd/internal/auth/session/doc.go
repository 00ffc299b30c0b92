// Package session tracks one row per authenticated device and enforces the
// per-account session limit.
//
// A session is Active until it is terminated, evicted to make room for a
// newer login, or found expired. Expiry is discovered lazily when a session is
// next read (inactivity window or absolute expiry); a periodic Sweeper removes
// rows nobody reads again.
//
// Create is atomic with the limit check: the Postgres store serializes
// concurrent logins of one account on that account's row lock.
package session
