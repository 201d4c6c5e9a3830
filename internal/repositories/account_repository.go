package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"authportal/internal/models"
)

// AccountRepository is the authoritative credential store.
//
// Code redemption is always a single conditional write: the artifact is cleared only while it
// still holds the given purpose and code and has not expired at now, and any purpose-specific
// change lands in the same statement. The bool result is false when nothing matched.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	FindByIdentity(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	SetVerification(ctx context.Context, id string, v *models.VerificationArtifact) error
	// ClearVerification drops the artifact if it still holds purpose and code, expired or not.
	ClearVerification(ctx context.Context, id string, purpose models.Purpose, code string, at time.Time) error
	ConsumeVerification(ctx context.Context, id string, purpose models.Purpose, code string, now time.Time) (bool, error)
	ConsumeAndMarkVerified(ctx context.Context, id, code string, now time.Time) (bool, error)
	ResetCredential(ctx context.Context, id, code, passwordHash string, now time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

const uniqueViolation = "23505"

type accountRepository struct {
	DB *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{DB: db}
}

func (r *accountRepository) Create(ctx context.Context, a *models.Account) error {
	const q = `
		INSERT INTO accounts (id, email, identity_key, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	_, err := r.DB.ExecContext(ctx, q, a.ID, a.Email, a.IdentityKey, a.PasswordHash, a.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectAccount = `
		SELECT
			id, email, identity_key, password_hash, email_verified_at,
			verification_code, verification_purpose, verification_issued_at, verification_expires_at,
			created_at, updated_at
		FROM accounts
`

func (r *accountRepository) FindByIdentity(ctx context.Context, email string) (*models.Account, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx, selectAccount+` WHERE identity_key = $1`, models.NormalizeIdentity(email)))
}

func (r *accountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx, selectAccount+` WHERE id = $1`, id))
}

func (r *accountRepository) scanOne(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	var (
		verifiedAt sql.NullTime
		code       sql.NullString
		purpose    sql.NullString
		issuedAt   sql.NullTime
		expiresAt  sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.IdentityKey, &a.PasswordHash, &verifiedAt,
		&code, &purpose, &issuedAt, &expiresAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		a.EmailVerifiedAt = &t
	}
	if code.Valid && purpose.Valid {
		a.Verification = &models.VerificationArtifact{
			Code:      code.String,
			Purpose:   models.Purpose(purpose.String),
			IssuedAt:  issuedAt.Time,
			ExpiresAt: expiresAt.Time,
		}
	}
	return a, nil
}

func (r *accountRepository) SetVerification(ctx context.Context, id string, v *models.VerificationArtifact) error {
	const q = `
		UPDATE accounts
		SET
			verification_code = $2,
			verification_purpose = $3,
			verification_issued_at = $4,
			verification_expires_at = $5,
			updated_at = $4
		WHERE id = $1
	`
	return r.execOne(ctx, q, id, v.Code, string(v.Purpose), v.IssuedAt, v.ExpiresAt)
}

func (r *accountRepository) ClearVerification(ctx context.Context, id string, purpose models.Purpose, code string, at time.Time) error {
	const q = `
		UPDATE accounts
		SET
			verification_code = NULL,
			verification_purpose = NULL,
			verification_issued_at = NULL,
			verification_expires_at = NULL,
			updated_at = $4
		WHERE id = $1 AND verification_purpose = $2 AND verification_code = $3
	`
	_, err := r.DB.ExecContext(ctx, q, id, string(purpose), code, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *accountRepository) ConsumeVerification(ctx context.Context, id string, purpose models.Purpose, code string, now time.Time) (bool, error) {
	const q = `
		UPDATE accounts
		SET
			verification_code = NULL,
			verification_purpose = NULL,
			verification_issued_at = NULL,
			verification_expires_at = NULL,
			updated_at = $4
		WHERE id = $1 AND verification_purpose = $2 AND verification_code = $3
			AND verification_expires_at > $4
	`
	return r.execMatched(ctx, q, id, string(purpose), code, now)
}

func (r *accountRepository) ConsumeAndMarkVerified(ctx context.Context, id, code string, now time.Time) (bool, error) {
	const q = `
		UPDATE accounts
		SET
			email_verified_at = $4,
			verification_code = NULL,
			verification_purpose = NULL,
			verification_issued_at = NULL,
			verification_expires_at = NULL,
			updated_at = $4
		WHERE id = $1 AND verification_purpose = $2 AND verification_code = $3
			AND verification_expires_at > $4
	`
	return r.execMatched(ctx, q, id, string(models.PurposeEmailVerification), code, now)
}

func (r *accountRepository) ResetCredential(ctx context.Context, id, code, passwordHash string, now time.Time) (bool, error) {
	const q = `
		UPDATE accounts
		SET
			password_hash = $5,
			verification_code = NULL,
			verification_purpose = NULL,
			verification_issued_at = NULL,
			verification_expires_at = NULL,
			updated_at = $4
		WHERE id = $1 AND verification_purpose = $2 AND verification_code = $3
			AND verification_expires_at > $4
	`
	return r.execMatched(ctx, q, id, string(models.PurposePasswordReset), code, now, passwordHash)
}

func (r *accountRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM accounts WHERE id = $1`, id)
}

func (r *accountRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// execMatched reports whether a conditional statement touched exactly one row.
func (r *accountRepository) execMatched(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// execOne runs a statement that must touch exactly one account row.
func (r *accountRepository) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
