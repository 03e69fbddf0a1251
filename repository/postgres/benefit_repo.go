package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/repository"
)

const benefitColumns = `id, variant, name, description, partner_id, store_id, active, created_at, updated_at`

type benefitRepository struct {
	pool *pgxpool.Pool
}

// NewBenefitRepository returns a Postgres-backed implementation of BenefitRepository.
func NewBenefitRepository(pool *pgxpool.Pool) repository.BenefitRepository {
	return &benefitRepository{pool: pool}
}

func (r *benefitRepository) Create(ctx context.Context, b *domain.Benefit) error {
	if b == nil {
		return domain.ErrInvalidPayload
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO benefits (id, variant, name, description, partner_id, store_id, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		b.ID,
		b.Variant,
		b.Name,
		b.Description,
		b.PartnerID,
		b.StoreID,
		b.Active,
	).Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return classify("insert benefit", err)
	}
	return nil
}

func (r *benefitRepository) GetByID(ctx context.Context, id string) (*domain.Benefit, error) {
	if uuid.Validate(id) != nil {
		return nil, domain.ErrBenefitNotFound
	}
	query := `SELECT ` + benefitColumns + ` FROM benefits WHERE id = $1`
	return scanBenefit(r.pool.QueryRow(ctx, query, id))
}

func (r *benefitRepository) List(ctx context.Context, filter repository.BenefitFilter) ([]domain.Benefit, error) {
	query := `SELECT ` + benefitColumns + `
	FROM benefits
	WHERE ($1 = '' OR variant = $1)
	  AND ($2 = '' OR partner_id = $2)
	  AND ($3 = '' OR store_id = $3)
	  AND ($4::boolean IS NULL OR active = $4)
	  AND ($5 = '' OR variant = 'oficial' OR store_id = $5)
	ORDER BY created_at DESC
	LIMIT $6 OFFSET $7
	`
	rows, err := r.pool.Query(ctx, query,
		string(filter.Variant),
		filter.PartnerID,
		filter.StoreID,
		filter.Active,
		filter.VisibleToStore,
		clampLimit(filter.Limit),
		filter.Offset,
	)
	if err != nil {
		return nil, classify("list benefits", err)
	}
	return collectBenefits(rows)
}

func (r *benefitRepository) ListAvailable(ctx context.Context, storeID string) ([]domain.Benefit, error) {
	query := `SELECT ` + benefitColumns + `
	FROM benefits
	WHERE active
	  AND (variant = 'oficial' OR (variant = 'loja' AND store_id = $1))
	ORDER BY variant, name
	`
	rows, err := r.pool.Query(ctx, query, storeID)
	if err != nil {
		return nil, classify("list available benefits", err)
	}
	return collectBenefits(rows)
}

func (r *benefitRepository) SetActive(ctx context.Context, id string, active bool) (*domain.Benefit, error) {
	if uuid.Validate(id) != nil {
		return nil, domain.ErrBenefitNotFound
	}
	query := `
	UPDATE benefits
	SET active = $2, updated_at = NOW()
	WHERE id = $1
	RETURNING ` + benefitColumns
	return scanBenefit(r.pool.QueryRow(ctx, query, id, active))
}

func collectBenefits(rows pgx.Rows) ([]domain.Benefit, error) {
	defer rows.Close()

	var benefits []domain.Benefit
	for rows.Next() {
		b, err := scanBenefit(rows)
		if err != nil {
			return nil, err
		}
		benefits = append(benefits, *b)
	}
	return benefits, classify("list benefits", rows.Err())
}

func scanBenefit(row rowScanner) (*domain.Benefit, error) {
	var b domain.Benefit
	if err := row.Scan(
		&b.ID,
		&b.Variant,
		&b.Name,
		&b.Description,
		&b.PartnerID,
		&b.StoreID,
		&b.Active,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBenefitNotFound
		}
		return nil, classify("scan benefit", err)
	}
	return &b, nil
}
