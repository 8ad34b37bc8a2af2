package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"echoheritage/model"
)

// ErrDuplicateUser is returned when an email is already registered.
var ErrDuplicateUser = errors.New("user already exists")

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByEmailToken(ctx context.Context, token string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdateRole(ctx context.Context, id int64, role string) error
	MarkVerified(ctx context.Context, id int64) error
	SetEmailToken(ctx context.Context, id int64, token string) error
	SetPassword(ctx context.Context, id int64, passwordHash string) error
	TouchLastActive(ctx context.Context, id int64) error
}

// mysqlUserRepository implements UserRepository for MySQL.
type mysqlUserRepository struct {
	db *sql.DB
}

// NewMySQLUserRepository creates a new mysqlUserRepository.
func NewMySQLUserRepository(db *sql.DB) UserRepository {
	return &mysqlUserRepository{db: db}
}

const userColumns = `id, name, country, email, password_hash, role, email_verified,
	COALESCE(email_token, ''), last_active, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Country, &u.Email, &u.PasswordHash, &u.Role,
		&u.EmailVerified, &u.EmailToken, &u.LastActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser adds a new user to the database.
func (r *mysqlUserRepository) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	query := `INSERT INTO users (name, country, email, password_hash, role, email_verified, email_token, last_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare create user statement: %w", err)
	}
	defer stmt.Close()

	role := user.Role
	if role == "" {
		role = model.RoleUser
	}
	res, err := stmt.ExecContext(ctx, user.Name, user.Country, user.Email, user.PasswordHash,
		role, user.EmailVerified, user.EmailToken, time.Now())
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "duplicate entry") {
			return 0, ErrDuplicateUser
		}
		return 0, fmt.Errorf("failed to execute create user statement: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for user: %w", err)
	}
	return id, nil
}

// GetUserByID retrieves a user by ID. A missing row propagates sql.ErrNoRows.
func (r *mysqlUserRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to scan user row for ID %d: %w", id, err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email. A missing row propagates
// sql.ErrNoRows.
func (r *mysqlUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to scan user row for email %s: %w", email, err)
	}
	return user, nil
}

// GetUserByEmailToken retrieves a user by a pending verification/reset token.
// An unknown token propagates sql.ErrNoRows.
func (r *mysqlUserRepository) GetUserByEmailToken(ctx context.Context, token string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email_token = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("email token: %w", sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to scan user row for token: %w", err)
	}
	return user, nil
}

// ListUsers returns all accounts ordered by ID.
func (r *mysqlUserRepository) ListUsers(ctx context.Context) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user in ListUsers: %w", err)
		}
		users = append(users, user)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListUsers: %w", err)
	}
	return users, nil
}

// UpdateRole changes a user's role.
func (r *mysqlUserRepository) UpdateRole(ctx context.Context, id int64, role string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, id); err != nil {
		return fmt.Errorf("failed to update role for user %d: %w", id, err)
	}
	return nil
}

// MarkVerified flags the email as verified and clears the token.
func (r *mysqlUserRepository) MarkVerified(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET email_verified = TRUE, email_token = NULL, last_active = ? WHERE id = ?`, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark user %d verified: %w", id, err)
	}
	return nil
}

// SetEmailToken stores a fresh verification/reset token.
func (r *mysqlUserRepository) SetEmailToken(ctx context.Context, id int64, token string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET email_token = ? WHERE id = ?`, token, id); err != nil {
		return fmt.Errorf("failed to set email token for user %d: %w", id, err)
	}
	return nil
}

// SetPassword replaces the password hash and clears any pending token.
func (r *mysqlUserRepository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, email_token = NULL, last_active = ? WHERE id = ?`, passwordHash, time.Now(), id); err != nil {
		return fmt.Errorf("failed to set password for user %d: %w", id, err)
	}
	return nil
}

// TouchLastActive records account activity.
func (r *mysqlUserRepository) TouchLastActive(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_active = ? WHERE id = ?`, time.Now(), id); err != nil {
		return fmt.Errorf("failed to touch last_active for user %d: %w", id, err)
	}
	return nil
}
