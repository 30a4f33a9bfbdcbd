package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KaiyuWei/chat-box/internal/domain"
)

// DummyUserID es el usuario fijo de desarrollo. Sin sistema de auth, toda
// conversación pertenece a este usuario.
const DummyUserID int64 = 1

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (domain.User, error)
	EnsureDummyUser(ctx context.Context) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	const query = `
		SELECT id, username, email, created_at
		FROM users
		WHERE id = $1
	`

	var u domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// EnsureDummyUser garantiza que el usuario de desarrollo con ID 1 exista.
func (r *PgUserRepository) EnsureDummyUser(ctx context.Context) error {
	if _, err := r.GetByID(ctx, DummyUserID); err == nil {
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	const query = `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, DummyUserID, "dummy_user", "dummy@example.com", "dummy_hash_hash")
	return err
}
