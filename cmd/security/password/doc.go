// Package password provides password hashing, verification and policy checks.
//
// New hashes are Argon2id in the PHC string format. Verify also accepts bcrypt
// hashes ($2a$, $2b$, $2y$) so accounts imported from older systems can still
// sign in; NeedsRehash reports when such a hash should be upgraded.
//
// Hash strings are treated as untrusted input during Verify and are bounded so
// a stored hash cannot force pathological memory or CPU usage.
package password
