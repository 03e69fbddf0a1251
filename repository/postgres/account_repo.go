package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/repository"
)

const accountColumns = `id, email, name, role, store_id, partner_id, status, password_hash, password_salt, created_at, updated_at`

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository instantiates a Postgres-backed account repository.
func NewAccountRepository(pool *pgxpool.Pool) repository.AccountRepository {
	return &accountRepository{pool: pool}
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if uuid.Validate(id) != nil {
		return nil, domain.ErrAccountNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

func (r *accountRepository) Upsert(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return domain.ErrInvalidPayload
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))

	const query = `
	INSERT INTO accounts (id, email, name, role, store_id, partner_id, status, password_hash, password_salt, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()), NOW())
	ON CONFLICT (id) DO UPDATE
	SET email = EXCLUDED.email,
		name = EXCLUDED.name,
		role = EXCLUDED.role,
		store_id = EXCLUDED.store_id,
		partner_id = EXCLUDED.partner_id,
		status = EXCLUDED.status,
		password_hash = EXCLUDED.password_hash,
		password_salt = EXCLUDED.password_salt,
		updated_at = NOW()
	RETURNING created_at, updated_at;
	`

	var createdAt, updatedAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		account.ID,
		account.Email,
		account.Name,
		account.Role,
		account.StoreID,
		account.PartnerID,
		account.Status,
		account.PasswordHash,
		account.PasswordSalt,
		nullTime(account.CreatedAt),
	).Scan(&createdAt, &updatedAt); err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return domain.NewError(domain.ErrCodeConflict, "email already registered")
		}
		return classify("upsert account", err)
	}

	account.CreatedAt = createdAt
	account.UpdatedAt = updatedAt
	return nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&a.Role,
		&a.StoreID,
		&a.PartnerID,
		&a.Status,
		&a.PasswordHash,
		&a.PasswordSalt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, classify("scan account", err)
	}
	return &a, nil
}
