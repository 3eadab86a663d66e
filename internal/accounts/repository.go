package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when an account lookup finds no matching record.
	ErrNotFound = errors.New("account not found")

	// ErrDuplicate is returned when a record violates the natural key.
	ErrDuplicate = errors.New("account already linked")

	// ErrStoreDisabled is returned by callers that were started without a
	// configured account store.
	ErrStoreDisabled = errors.New("account store not configured")
)

const accountColumns = `id, user_id, platform, username, verification_code, verified,
	verification_code_found, last_verification_attempt, verification_error, created_at`

// PostgresStore provides persistence for linked accounts against PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Link creates the account record for (userID, platform, username) with a
// freshly generated verification code. Re-linking an existing account keeps
// its ID, rotates the code and clears its verification state.
func (s *PostgresStore) Link(ctx context.Context, userID string, platform Platform, username string) (*Account, error) {
	code, err := NewVerificationCode()
	if err != nil {
		return nil, err
	}

	q := `
		INSERT INTO user_accounts (id, user_id, platform, username, verification_code, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)
		ON CONFLICT (user_id, platform, username) DO UPDATE SET
			verification_code = EXCLUDED.verification_code,
			verified = false,
			verification_code_found = NULL,
			last_verification_attempt = NULL,
			verification_error = NULL
		RETURNING ` + accountColumns
	return s.scanOne(ctx, q, uuid.New(), userID, platform, NormalizeUsername(username), code, time.Now().UTC())
}

// Get retrieves an account by its natural key.
func (s *PostgresStore) Get(ctx context.Context, userID string, platform Platform, username string) (*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM user_accounts
		WHERE user_id = $1 AND platform = $2 AND username = $3`
	return s.scanOne(ctx, q, userID, platform, NormalizeUsername(username))
}

// GetVerificationCode returns the code assigned to the account, or "" if the
// account exists without one.
func (s *PostgresStore) GetVerificationCode(ctx context.Context, userID string, platform Platform, username string) (string, error) {
	var code *string
	err := s.db.QueryRow(ctx,
		`SELECT verification_code FROM user_accounts
		 WHERE user_id = $1 AND platform = $2 AND username = $3`,
		userID, platform, NormalizeUsername(username),
	).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get verification code: %w", err)
	}
	if code == nil {
		return "", nil
	}
	return *code, nil
}

// ListByUser returns every account linked by the user in creation order.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM user_accounts WHERE user_id = $1 ORDER BY created_at`
	return s.scanAll(ctx, q, userID)
}

// ListPending returns up to limit accounts that were never attempted or whose
// last attempt is older than cutoff, in the table's native order.
func (s *PostgresStore) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM user_accounts
		WHERE last_verification_attempt IS NULL OR last_verification_attempt < $1
		LIMIT $2`
	return s.scanAll(ctx, q, cutoff, limit)
}

// UpdateVerification writes the outcome of a verification attempt.
func (s *PostgresStore) UpdateVerification(ctx context.Context, id uuid.UUID, upd VerificationUpdate) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE user_accounts SET
			verified = $2,
			verification_code_found = $3,
			last_verification_attempt = $4,
			verification_error = $5
		 WHERE id = $1`,
		id, upd.Verified, upd.CodeFound, upd.AttemptedAt, upd.Error,
	)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetCode assigns a new verification code to an existing account and
// returns it. Verification state is left untouched until the next attempt.
func (s *PostgresStore) ResetCode(ctx context.Context, id uuid.UUID) (string, error) {
	code, err := NewVerificationCode()
	if err != nil {
		return "", err
	}
	tag, err := s.db.Exec(ctx, `UPDATE user_accounts SET verification_code = $2 WHERE id = $1`, id, code)
	if err != nil {
		return "", fmt.Errorf("reset verification code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrNotFound
	}
	return code, nil
}

// Ping checks connectivity to the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) scanOne(ctx context.Context, q string, args ...any) (*Account, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, mapPgError(err)
		}
		return nil, ErrNotFound
	}
	a, err := scanAccount(rows)
	if err != nil {
		return nil, err
	}
	return a, mapPgError(rows.Err())
}

func (s *PostgresStore) scanAll(ctx context.Context, q string, args ...any) ([]*Account, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

// scanAccount reads one row in accountColumns order.
func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	if err := row.Scan(
		&a.ID, &a.UserID, &a.Platform, &a.Username, &a.VerificationCode, &a.Verified,
		&a.CodeFound, &a.LastAttemptAt, &a.LastError, &a.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
