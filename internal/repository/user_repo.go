package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rickshaw-auth/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
// Las búsquedas devuelven pgx.ErrNoRows cuando no hay fila.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	Verify(ctx context.Context, email string) (domain.User, error)
	UpdateOTP(ctx context.Context, email, otp string, expiresAt time.Time) error
	SetResetToken(ctx context.Context, email, tokenHash string, expiresAt time.Time) error
	GetByResetTokenHash(ctx context.Context, tokenHash string) (domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	ClearResetToken(ctx context.Context, id string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `id, name, email, password, role, is_verified, otp, otp_expires_at, password_reset_token, password_reset_expires_at, created_at`

// Create inserta un usuario nuevo. Si ya existe una fila sin verificar con el
// mismo email la sobreescribe (camino de re-registro); si la fila existente
// está verificada no toca nada y devuelve pgx.ErrNoRows.
func (r *PgUserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	const query = `
		INSERT INTO users (id, name, email, password, role, otp, otp_expires_at, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
		    password = EXCLUDED.password,
		    role = EXCLUDED.role,
		    otp = EXCLUDED.otp,
		    otp_expires_at = EXCLUDED.otp_expires_at
		WHERE users.is_verified = false
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Otp,
		user.OtpExpiresAt,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// Verify marca el usuario como verificado y limpia el OTP consumido.
func (r *PgUserRepository) Verify(ctx context.Context, email string) (domain.User, error) {
	query := `
		UPDATE users
		SET is_verified = true, otp = NULL, otp_expires_at = NULL
		WHERE email = $1
		RETURNING ` + userColumns
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PgUserRepository) UpdateOTP(ctx context.Context, email, otp string, expiresAt time.Time) error {
	const query = `UPDATE users SET otp = $1, otp_expires_at = $2 WHERE email = $3`
	tag, err := r.pool.Exec(ctx, query, otp, expiresAt, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) SetResetToken(ctx context.Context, email, tokenHash string, expiresAt time.Time) error {
	const query = `UPDATE users SET password_reset_token = $1, password_reset_expires_at = $2 WHERE email = $3`
	tag, err := r.pool.Exec(ctx, query, tokenHash, expiresAt, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE password_reset_token = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *PgUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password = $1 WHERE id = $2`
	tag, err := r.pool.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) ClearResetToken(ctx context.Context, id string) error {
	const query = `UPDATE users SET password_reset_token = NULL, password_reset_expires_at = NULL WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) scanUser(row pgx.Row) (domain.User, error) {
	var (
		u         domain.User
		password  *string
		otp       *string
		resetHash *string
	)
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&password,
		&u.Role,
		&u.IsVerified,
		&otp,
		&u.OtpExpiresAt,
		&resetHash,
		&u.PasswordResetExpiresAt,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	if password != nil {
		u.PasswordHash = *password
	}
	if otp != nil {
		u.Otp = *otp
	}
	if resetHash != nil {
		u.PasswordResetTokenHash = *resetHash
	}
	return u, nil
}
