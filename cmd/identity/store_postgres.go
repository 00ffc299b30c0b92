package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pool is owned by the caller; this store never closes it.
// Table identifiers are schema-qualified and quoted.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const accountColumns = `id, email, email_norm, display_name, password_hash, role, locked,
	created_at, updated_at, last_activity_at`

func (s *PostgresStore) accounts() string {
	return pgx.Identifier{s.schema, "accounts"}.Sanitize()
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a Account) error {
	const op = "identity.CreateAccount"

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.accounts()+` (
		     id, email, email_norm, display_name, password_hash, role, locked,
		     created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		a.ID,
		a.Email,
		a.EmailNorm,
		a.DisplayName,
		a.PasswordHash,
		string(a.Role),
		a.Locked,
		a.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, emailNorm string) (Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+s.accounts()+` WHERE email_norm = $1`,
		emailNorm,
	)
	return scanAccount("identity.GetByEmail", row)
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+s.accounts()+` WHERE id = $1`,
		id,
	)
	return scanAccount("identity.GetByID", row)
}

func (s *PostgresStore) TouchActivity(ctx context.Context, id string, now time.Time) error {
	return s.exec(ctx, "identity.TouchActivity",
		`UPDATE `+s.accounts()+` SET last_activity_at = GREATEST(COALESCE(last_activity_at, $2), $2) WHERE id = $1`,
		id, now,
	)
}

func (s *PostgresStore) SetRole(ctx context.Context, id string, role Role, now time.Time) error {
	if !role.Valid() {
		return invalid("identity.SetRole", "unknown role")
	}
	return s.exec(ctx, "identity.SetRole",
		`UPDATE `+s.accounts()+` SET role = $2, updated_at = $3 WHERE id = $1`,
		id, string(role), now,
	)
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	return s.exec(ctx, "identity.UpdatePasswordHash",
		`UPDATE `+s.accounts()+` SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, now,
	)
}

func (s *PostgresStore) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

func scanAccount(op string, row pgx.Row) (Account, error) {
	var (
		a    Account
		role string
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.EmailNorm,
		&a.DisplayName,
		&a.PasswordHash,
		&role,
		&a.Locked,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	a.Role = Role(role)
	return a, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_accounts_email_norm" || strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "pkey"):
		return "id", true
	default:
		return "unique", true
	}
}
