package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sessiond/cmd/identity/ids"
	"sessiond/cmd/security/password"
)

// Verifier registers accounts and checks credentials.
type Verifier struct {
	store     Store
	passwords password.Config
	dummyHash string
	log       *slog.Logger
	now       func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier precomputes the dummy hash with the same parameters as real hashes.
func NewVerifier(store Store, passwords password.Config, log *slog.Logger, opts ...VerifierOption) (*Verifier, error) {
	if store == nil {
		return nil, errors.New("identity: nil store")
	}
	if err := passwords.Check(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	dummy, err := passwords.DummyHash()
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}

	v := &Verifier{
		store:     store,
		passwords: passwords,
		dummyHash: dummy,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Register creates a standard account. Password policy violations are
// ErrInvalidInput; a taken email is ErrConflict.
func (v *Verifier) Register(ctx context.Context, name, email, plain string) (Account, error) {
	const op = "identity.Register"

	displayName, ok := normalizeDisplayName(name)
	if !ok {
		return Account{}, invalid(op, "name must be 1-100 characters")
	}
	emailNorm := NormalizeEmail(email)
	if !validEmail(emailNorm) {
		return Account{}, invalid(op, "email is malformed")
	}

	hash, err := v.passwords.Hash(plain)
	if err != nil {
		if password.IsPolicyError(err) {
			return Account{}, invalid(op, err.Error())
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}

	now := v.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}

	a := Account{
		ID:           id,
		Email:        strings.TrimSpace(email),
		EmailNorm:    emailNorm,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         RoleStandard,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := v.store.CreateAccount(ctx, a); err != nil {
		return Account{}, err
	}
	return a, nil
}

// Verify returns the account for a matching email/password pair.
//
// Exactly one hash comparison runs on every call. Unknown email and wrong
// password both yield ErrInvalidCredentials.
func (v *Verifier) Verify(ctx context.Context, email, plain string) (Account, error) {
	const op = "identity.Verify"

	a, err := v.store.GetByEmail(ctx, NormalizeEmail(email))
	found := err == nil
	if err != nil && !IsNotFound(err) {
		return Account{}, err
	}

	hash := v.dummyHash
	if found {
		hash = a.PasswordHash
	}

	ok, verr := v.passwords.Verify(hash, plain)
	if verr != nil && found {
		v.log.Error("identity.verify.bad_hash", "account_id", a.ID, "err", verr)
	}
	if !found || !ok {
		return Account{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	if a.Locked {
		return Account{}, OpError{Op: op, Kind: ErrAccountLocked}
	}

	if v.passwords.NeedsRehash(a.PasswordHash) {
		v.rehash(ctx, a.ID, plain)
	}
	return a, nil
}

// rehash upgrades legacy or weaker hashes after a successful login. Failures
// are logged; the login itself already succeeded.
func (v *Verifier) rehash(ctx context.Context, accountID, plain string) {
	cfg := v.passwords
	// Legacy passwords predate the current policy; only the hash is upgraded.
	cfg.Policy = password.Policy{MinLength: 1, MaxLength: cfg.Policy.MaxLength}

	h, err := cfg.Hash(plain)
	if err != nil {
		v.log.Warn("identity.rehash.fail", "account_id", accountID, "err", err)
		return
	}
	if err := v.store.UpdatePasswordHash(ctx, accountID, h, v.now()); err != nil {
		v.log.Warn("identity.rehash.fail", "account_id", accountID, "err", err)
	}
}

// Get returns the account by id.
func (v *Verifier) Get(ctx context.Context, id string) (Account, error) {
	return v.store.GetByID(ctx, id)
}

// TouchActivity stamps the account's last-activity time.
func (v *Verifier) TouchActivity(ctx context.Context, id string) error {
	return v.store.TouchActivity(ctx, id, v.now())
}

// SetRole changes the account's role.
func (v *Verifier) SetRole(ctx context.Context, id string, role Role) error {
	return v.store.SetRole(ctx, id, role, v.now())
}
