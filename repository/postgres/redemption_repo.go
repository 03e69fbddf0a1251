package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/repository"
)

type redemptionRepository struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewRedemptionRepository returns a Postgres-backed implementation of RedemptionRepository.
func NewRedemptionRepository(pool *pgxpool.Pool) repository.RedemptionRepository {
	return &redemptionRepository{
		pool:   pool,
		tracer: otel.Tracer("clientevip/repository/postgres"),
	}
}

// Append inserts through a SELECT on the membership row so the eligibility check and
// the write are one statement. FOR SHARE makes a concurrent cancellation either land
// first (and exclude the row) or wait for this insert.
func (r *redemptionRepository) Append(ctx context.Context, red *domain.Redemption) (err error) {
	if red == nil {
		return domain.ErrInvalidPayload
	}
	if red.ID == "" {
		red.ID = uuid.NewString()
	}
	ctx, span := r.tracer.Start(ctx, "redemptions.append",
		trace.WithAttributes(
			attribute.String("membership.id", red.MembershipID),
			attribute.String("benefit.id", red.BenefitID),
		))
	defer endSpan(span, &err)

	const query = `
	INSERT INTO redemptions (id, membership_id, benefit_id, partner_id, store_id, benefit_variant, validated_by, redeemed_at)
	SELECT $1::uuid, m.id, $3::uuid, $4::text, $5::text, $6::text, $7::text, $8::timestamptz
	FROM memberships m
	WHERE m.id = $2::uuid
	  AND m.cancelled_at IS NULL
	  AND m.activation_date <= $8::timestamptz
	  AND m.valid_until >= $8::timestamptz
	FOR SHARE
	`
	tag, err := r.pool.Exec(ctx, query,
		red.ID,
		red.MembershipID,
		red.BenefitID,
		red.PartnerID,
		red.StoreID,
		string(red.Variant),
		red.ValidatedBy,
		red.RedeemedAt,
	)
	if err != nil {
		return classify("append redemption", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetAttributes(attribute.Bool("redemption.rejected", true))
		return domain.ErrMembershipNotEligible
	}
	return nil
}

func (r *redemptionRepository) List(ctx context.Context, filter repository.RedemptionFilter) ([]domain.Redemption, error) {
	const query = `
	SELECT id, membership_id, benefit_id, partner_id, store_id, benefit_variant, validated_by, redeemed_at
	FROM redemptions
	WHERE ($1 = '' OR membership_id::text = $1)
	  AND ($2 = '' OR partner_id = $2)
	  AND ($3 = '' OR store_id = $3)
	ORDER BY redeemed_at DESC, id
	LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		filter.MembershipID,
		filter.PartnerID,
		filter.StoreID,
		clampLimit(filter.Limit),
		filter.Offset,
	)
	if err != nil {
		return nil, classify("list redemptions", err)
	}
	defer rows.Close()

	var redemptions []domain.Redemption
	for rows.Next() {
		var red domain.Redemption
		if err := rows.Scan(
			&red.ID,
			&red.MembershipID,
			&red.BenefitID,
			&red.PartnerID,
			&red.StoreID,
			&red.Variant,
			&red.ValidatedBy,
			&red.RedeemedAt,
		); err != nil {
			return nil, classify("scan redemption", err)
		}
		redemptions = append(redemptions, red)
	}
	return redemptions, classify("list redemptions", rows.Err())
}
