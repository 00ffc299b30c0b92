package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
// The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the accounts and sessions tables (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

const sessionColumns = `id, account_id, browser, os, device_class, user_agent, ip,
	created_at, last_activity_at, expires_at`

func (s *PostgresStore) sessions() string {
	return pgx.Identifier{s.schema, "sessions"}.Sanitize()
}

func (s *PostgresStore) accounts() string {
	return pgx.Identifier{s.schema, "accounts"}.Sanitize()
}

func (s *PostgresStore) Create(ctx context.Context, in Session, limit int, staleBefore time.Time) ([]Session, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Concurrent logins of one account queue here until this tx ends.
	var one int
	err = tx.QueryRow(ctx,
		`SELECT 1 FROM `+s.accounts()+` WHERE id = $1 FOR UPDATE`,
		in.AccountID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM `+s.sessions()+`
		  WHERE account_id = $1 AND (expires_at <= $2 OR last_activity_at < $3)`,
		in.AccountID, in.CreatedAt, staleBefore,
	); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT `+sessionColumns+` FROM `+s.sessions()+`
		  WHERE account_id = $1
		  ORDER BY created_at ASC, id ASC`,
		in.AccountID,
	)
	if err != nil {
		return nil, err
	}
	live, err := collectSessions(rows)
	if err != nil {
		return nil, err
	}

	var evicted []Session
	if overflow := len(live) - limit + 1; overflow > 0 {
		evicted = live[:overflow]
		ids := make([]string, 0, len(evicted))
		for _, row := range evicted {
			ids = append(ids, row.ID)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM `+s.sessions()+` WHERE id = ANY($1)`,
			ids,
		); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+s.sessions()+` (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		in.ID,
		in.AccountID,
		in.Device.Browser,
		in.Device.OS,
		string(in.Device.Class),
		in.Device.UserAgent,
		in.IP,
		in.CreatedAt,
		in.LastActivityAt,
		in.ExpiresAt,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return evicted, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM `+s.sessions()+` WHERE id = $1`,
		id,
	)
	out, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return out, err
}

func (s *PostgresStore) Touch(ctx context.Context, id string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.sessions()+`
		    SET last_activity_at = GREATEST(last_activity_at, $2)
		  WHERE id = $1`,
		id, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id, accountID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.sessions()+` WHERE id = $1 AND account_id = $2`,
		id, accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var owner string
	err = s.pool.QueryRow(ctx,
		`SELECT account_id FROM `+s.sessions()+` WHERE id = $1`,
		id,
	).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrForbidden
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.sessions()+` WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) DeleteAllExcept(ctx context.Context, accountID, keepID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.sessions()+` WHERE account_id = $1 AND id <> $2`,
		accountID, keepID,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM `+s.sessions()+`
		  WHERE account_id = $1
		  ORDER BY created_at ASC, id ASC`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.sessions()+` WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectSessions(rows pgx.Rows) ([]Session, error) {
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		s     Session
		class string
	)
	err := row.Scan(
		&s.ID,
		&s.AccountID,
		&s.Device.Browser,
		&s.Device.OS,
		&class,
		&s.Device.UserAgent,
		&s.IP,
		&s.CreatedAt,
		&s.LastActivityAt,
		&s.ExpiresAt,
	)
	if err != nil {
		return Session{}, err
	}
	s.Device.Class = DeviceClass(class)
	return s, nil
}
