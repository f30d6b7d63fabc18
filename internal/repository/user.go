package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storefront/storefront-go/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
	ErrTokenNotFound  = errors.New("token not found")
)

const (
	userColumns = `id, email, first_name, last_name, password_hash, is_admin, email_verified,
		verification_token_hash, password_reset_token_hash, password_reset_expiry, created_at, updated_at`

	insertUserQuery = `INSERT INTO users
		(email, first_name, last_name, password_hash, is_admin, email_verified, verification_token_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectUserByEmailQuery = `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	selectUserByIDQuery    = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	selectUserByResetTokenQuery = `SELECT ` + userColumns + ` FROM users
		WHERE password_reset_token_hash = ? AND password_reset_expiry >= ?`

	verifyEmailQuery = `UPDATE users SET email_verified = TRUE, verification_token_hash = NULL
		WHERE verification_token_hash = ?`

	updatePasswordQuery = `UPDATE users SET password_hash = ? WHERE id = ?`

	setResetTokenQuery = `UPDATE users SET password_reset_token_hash = ?, password_reset_expiry = ?
		WHERE id = ?`

	resetPasswordQuery = `UPDATE users
		SET password_hash = ?, password_reset_token_hash = NULL, password_reset_expiry = NULL
		WHERE password_reset_token_hash = ? AND password_reset_expiry >= ?`
)

// UserRepository handles user persistence operations.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user and sets the generated ID on the user struct.
// The unique email index is the only guard against concurrent registrations.
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx, insertUserQuery,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.IsAdmin,
		user.EmailVerified,
		user.VerificationTokenHash,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}

	now := time.Now().UTC()
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, ErrUserNotFound, selectUserByEmailQuery, email)
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, ErrUserNotFound, selectUserByIDQuery, id)
}

// GetByResetToken returns the holder of an unexpired reset token without
// consuming it. Unknown or expired tokens yield ErrTokenNotFound.
func (r *UserRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	return r.getOne(ctx, ErrTokenNotFound, selectUserByResetTokenQuery, tokenHash, now.UTC())
}

// VerifyEmail marks the owner of the verification token as verified and
// clears the token in a single statement.
func (r *UserRepository) VerifyEmail(ctx context.Context, tokenHash string) error {
	return r.execOne(ctx, ErrTokenNotFound, verifyEmailQuery, tokenHash)
}

// UpdatePassword replaces a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.execOne(ctx, ErrUserNotFound, updatePasswordQuery, passwordHash, id)
}

// SetResetToken stores a password reset token, replacing any earlier one.
// The expiry is truncated to whole seconds; DATETIME would round it up.
func (r *UserRepository) SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	return r.execOne(ctx, ErrUserNotFound, setResetTokenQuery, tokenHash, expiresAt.UTC().Truncate(time.Second), id)
}

// ResetPassword consumes an unexpired reset token and sets the new password
// hash. A token that is unknown, already used or expired yields ErrTokenNotFound.
func (r *UserRepository) ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) error {
	return r.execOne(ctx, ErrTokenNotFound, resetPasswordQuery, passwordHash, tokenHash, now.UTC())
}

func (r *UserRepository) getOne(ctx context.Context, notFound error, query string, args ...any) (*model.User, error) {
	var (
		user        model.User
		verifyToken sql.NullString
		resetToken  sql.NullString
		resetExpiry sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash,
		&user.IsAdmin, &user.EmailVerified, &verifyToken, &resetToken, &resetExpiry,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if verifyToken.Valid {
		user.VerificationTokenHash = &verifyToken.String
	}
	if resetToken.Valid {
		user.PasswordResetTokenHash = &resetToken.String
	}
	if resetExpiry.Valid {
		user.PasswordResetExpiry = &resetExpiry.Time
	}

	return &user, nil
}

// execOne runs an UPDATE that must touch exactly one row; zero rows maps to notFound.
func (r *UserRepository) execOne(ctx context.Context, notFound error, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
