package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elmyly/whaty/internal/entities"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// NormalizeEmail lowercases and trims an email for the unique index.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepository) Create(user *entities.User) error {
	return r.db.QueryRow(context.Background(),
		"INSERT INTO users (email, password_hash, role, quota_limit, quota_used) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		NormalizeEmail(user.Email), user.PasswordHash, user.Role, user.QuotaLimit, user.QuotaUsed).Scan(&user.ID)
}

func (r *UserRepository) GetByEmail(email string) (*entities.User, error) {
	var user entities.User
	err := r.db.QueryRow(context.Background(),
		"SELECT id, email, password_hash, role, quota_limit, quota_used FROM users WHERE email = $1",
		NormalizeEmail(email)).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.QuotaLimit, &user.QuotaUsed)

	if err == pgx.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(id int) (*entities.User, error) {
	var user entities.User
	err := r.db.QueryRow(context.Background(),
		"SELECT id, email, password_hash, role, quota_limit, quota_used FROM users WHERE id = $1",
		id).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.QuotaLimit, &user.QuotaUsed)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetAllUsers() ([]entities.User, error) {
	rows, err := r.db.Query(context.Background(),
		"SELECT id, email, role, quota_limit, quota_used FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []entities.User{}
	for rows.Next() {
		var u entities.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.QuotaLimit, &u.QuotaUsed); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateQuota overwrites both quota figures for a user.
func (r *UserRepository) UpdateQuota(id, quotaLimit, quotaUsed int) error {
	_, err := r.db.Exec(context.Background(),
		"UPDATE users SET quota_limit = $1, quota_used = $2 WHERE id = $3",
		quotaLimit, quotaUsed, id)
	return err
}

func (r *UserRepository) UpdateRole(id int, role string) error {
	_, err := r.db.Exec(context.Background(),
		"UPDATE users SET role = $1 WHERE id = $2", role, id)
	return err
}

func (r *UserRepository) Delete(id int) error {
	_, err := r.db.Exec(context.Background(), "DELETE FROM users WHERE id = $1", id)
	return err
}

type UserStats struct {
	TotalUsers int
	AdminCount int
}

func (r *UserRepository) GetStats() (*UserStats, error) {
	var stats UserStats
	err := r.db.QueryRow(context.Background(),
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE role = 'admin') FROM users").
		Scan(&stats.TotalUsers, &stats.AdminCount)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
