// Package identity owns accounts and credential verification.
//
// Register validates and hashes a new account's password before persisting it.
// Verify always performs exactly one password-hash comparison, against a dummy
// hash when the email is unknown, and reports unknown email and wrong password
// with the same ErrInvalidCredentials.
package identity
