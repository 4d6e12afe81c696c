package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/storefront-kit/storefront/auth"
)

const userColumns = "id, email, first_name, last_name, phone, password_hash, created_at, updated_at"

// UserRepository persists auth.User records inside PostgreSQL.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository wraps an existing *sql.DB connection.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user auth.User) error {
	const query = `INSERT INTO users (id, email, first_name, last_name, phone, password_hash, created_at, updated_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.LastName, user.Phone,
		user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return translateUserError(err)
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (auth.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

// UpdateUserPartial applies a patch onto an existing user. COALESCE leaves
// unset fields alone without a read-modify-write round trip.
func (r *UserRepository) UpdateUserPartial(ctx context.Context, userID string, patch auth.UserPatch) (auth.User, error) {
	const query = `UPDATE users
                   SET first_name = COALESCE($2::text, first_name),
                       last_name = COALESCE($3::text, last_name),
                       phone = COALESCE($4::text, phone),
                       updated_at = $5
                   WHERE id = $1
                   RETURNING ` + userColumns
	row := r.db.QueryRowContext(ctx, query,
		userID, patch.FirstName, patch.LastName, patch.Phone, time.Now().UTC())
	return r.scanUser(row)
}

func (r *UserRepository) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return translateUserError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) ListUsers(ctx context.Context, limit, offset int) ([]auth.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, translateUserError(err)
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		var user auth.User
		err := rows.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName,
			&user.Phone, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) scanUser(row *sql.Row) (auth.User, error) {
	var user auth.User
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&user.Phone, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, auth.ErrUserNotFound
		}
		return auth.User{}, translateUserError(err)
	}
	return user, nil
}

func translateUserError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return auth.ErrUserEmailInUse
	}
	return err
}
