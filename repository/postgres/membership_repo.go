package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/pkg/vipcode"
	"github.com/fastygo/clientevip/repository"
)

const membershipColumns = `
	m.id, m.client_name, m.contact_info, m.store_id, m.digital_code, m.physical_code,
	m.activation_date, m.valid_until, m.status, m.renewal_date, m.cancelled_at,
	m.version, m.created_at, m.updated_at`

type membershipRepository struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewMembershipRepository returns a Postgres-backed implementation of MembershipRepository.
func NewMembershipRepository(pool *pgxpool.Pool) repository.MembershipRepository {
	return &membershipRepository{
		pool:   pool,
		tracer: otel.Tracer("clientevip/repository/postgres"),
	}
}

func (r *membershipRepository) Create(ctx context.Context, m *domain.Membership) (err error) {
	if m == nil || m.DigitalCode == "" {
		return domain.ErrInvalidPayload
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	ctx, span := r.tracer.Start(ctx, "memberships.create",
		trace.WithAttributes(
			attribute.String("membership.id", m.ID),
			attribute.String("membership.store_id", m.StoreID),
		),
	)
	defer endSpan(span, &err)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify("begin create membership", err)
	}
	defer tx.Rollback(ctx)

	const insertMembership = `
	INSERT INTO memberships (id, client_name, contact_info, store_id, digital_code, physical_code,
		activation_date, valid_until, status, renewal_date, cancelled_at, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
	RETURNING version, created_at, updated_at
	`
	if err := tx.QueryRow(ctx, insertMembership,
		m.ID,
		m.ClientName,
		m.ContactInfo,
		m.StoreID,
		m.DigitalCode,
		nullString(m.PhysicalCode),
		m.ActivationDate,
		m.ValidUntil,
		m.Status,
		nullTimePtr(m.RenewalDate),
		nullTimePtr(m.CancelledAt),
	).Scan(&m.Version, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return classify("insert membership", err)
	}

	if err := insertCode(ctx, tx, m.ID, m.DigitalCode, vipcode.KindDigital); err != nil {
		return err
	}
	if m.PhysicalCode != "" {
		if err := insertCode(ctx, tx, m.ID, m.PhysicalCode, vipcode.KindPhysical); err != nil {
			return err
		}
	}
	for i := range m.Vehicles {
		if err := insertVehicle(ctx, tx, m.ID, &m.Vehicles[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit create membership", err)
	}
	return nil
}

func (r *membershipRepository) GetByID(ctx context.Context, id string) (_ *domain.Membership, err error) {
	ctx, span := r.tracer.Start(ctx, "memberships.get_by_id",
		trace.WithAttributes(attribute.String("membership.id", id)))
	defer endSpan(span, &err)

	if uuid.Validate(id) != nil {
		return nil, domain.ErrMembershipNotFound
	}
	query := `SELECT` + membershipColumns + ` FROM memberships m WHERE m.id = $1`
	m, err := scanMembership(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, classify("get membership", err)
	}
	if err := r.loadVehicles(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByCode resolves through the union dictionary of live digital and physical codes.
func (r *membershipRepository) GetByCode(ctx context.Context, code string) (_ *domain.Membership, err error) {
	ctx, span := r.tracer.Start(ctx, "memberships.get_by_code")
	defer endSpan(span, &err)

	query := `SELECT` + membershipColumns + `
	FROM membership_codes c
	JOIN memberships m ON m.id = c.membership_id
	WHERE c.code = $1 AND c.retired_at IS NULL`
	m, err := scanMembership(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVIPCodeNotFound
		}
		return nil, classify("resolve code", err)
	}
	if err := r.loadVehicles(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *membershipRepository) List(ctx context.Context, filter repository.MembershipFilter) (_ []domain.Membership, err error) {
	ctx, span := r.tracer.Start(ctx, "memberships.list",
		trace.WithAttributes(
			attribute.String("filter.store_id", filter.StoreID),
			attribute.String("filter.status", string(filter.Status)),
		))
	defer endSpan(span, &err)

	at := filter.At
	if at.IsZero() {
		at = time.Now()
	}
	window := filter.ExpiringWindow
	if window <= 0 {
		window = domain.DefaultExpiringWindow
	}

	query := `SELECT` + membershipColumns + `
	FROM memberships m
	WHERE ($1 = '' OR m.store_id = $1)
	  AND ($2 = '' OR (CASE
		WHEN m.cancelled_at IS NOT NULL THEN 'cancelled'
		WHEN m.renewal_date IS NOT NULL AND $3::timestamptz <= m.valid_until THEN 'renewed'
		WHEN $3::timestamptz > m.valid_until THEN 'expired'
		WHEN m.valid_until - $3::timestamptz <= ($4::bigint * INTERVAL '1 second') THEN 'expiring'
		ELSE 'active'
	  END) = $2)
	ORDER BY m.created_at DESC
	LIMIT $5 OFFSET $6
	`
	rows, err := r.pool.Query(ctx, query,
		filter.StoreID,
		string(filter.Status),
		at,
		int64(window/time.Second),
		clampLimit(filter.Limit),
		filter.Offset,
	)
	if err != nil {
		return nil, classify("list memberships", err)
	}
	defer rows.Close()

	var memberships []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, classify("scan membership", err)
		}
		memberships = append(memberships, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list memberships", err)
	}
	span.SetAttributes(attribute.Int("memberships.count", len(memberships)))
	return memberships, nil
}

// Update persists renewal and cancellation state with a version compare-and-set.
func (r *membershipRepository) Update(ctx context.Context, m *domain.Membership) (err error) {
	if m == nil {
		return domain.ErrInvalidPayload
	}
	ctx, span := r.tracer.Start(ctx, "memberships.update",
		trace.WithAttributes(
			attribute.String("membership.id", m.ID),
			attribute.Int("expected.version", m.Version),
		))
	defer endSpan(span, &err)

	const query = `
	UPDATE memberships
	SET valid_until = $3,
		renewal_date = $4,
		cancelled_at = $5,
		status = $6,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $2
	RETURNING version, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		m.ID,
		m.Version,
		m.ValidUntil,
		nullTimePtr(m.RenewalDate),
		nullTimePtr(m.CancelledAt),
		m.Status,
	).Scan(&m.Version, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return r.missOrConflict(ctx, r.pool, m.ID)
	}
	return classify("update membership", err)
}

// IssuePhysicalCode retires the current physical code, if any, and registers code in
// its place. Retired codes keep their dictionary row so they are never reissued.
func (r *membershipRepository) IssuePhysicalCode(ctx context.Context, m *domain.Membership, code string) (err error) {
	if m == nil || code == "" {
		return domain.ErrInvalidPayload
	}
	ctx, span := r.tracer.Start(ctx, "memberships.issue_physical_code",
		trace.WithAttributes(
			attribute.String("membership.id", m.ID),
			attribute.Int("expected.version", m.Version),
		))
	defer endSpan(span, &err)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify("begin issue physical code", err)
	}
	defer tx.Rollback(ctx)

	const bump = `
	UPDATE memberships
	SET physical_code = $3,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $2 AND cancelled_at IS NULL
	RETURNING version, updated_at
	`
	var (
		version   int
		updatedAt time.Time
	)
	if err := tx.QueryRow(ctx, bump, m.ID, m.Version, code).Scan(&version, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missOrConflict(ctx, tx, m.ID)
		}
		return classify("bump membership version", err)
	}

	const retire = `
	UPDATE membership_codes
	SET retired_at = NOW()
	WHERE membership_id = $1 AND kind = 'physical' AND retired_at IS NULL
	`
	if _, err := tx.Exec(ctx, retire, m.ID); err != nil {
		return classify("retire physical code", err)
	}
	if err := insertCode(ctx, tx, m.ID, code, vipcode.KindPhysical); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit issue physical code", err)
	}

	m.PhysicalCode = code
	m.Version = version
	m.UpdatedAt = updatedAt
	return nil
}

func (r *membershipRepository) AddVehicle(ctx context.Context, m *domain.Membership, v *domain.Vehicle) (err error) {
	if m == nil || v == nil {
		return domain.ErrInvalidPayload
	}
	ctx, span := r.tracer.Start(ctx, "memberships.add_vehicle",
		trace.WithAttributes(attribute.String("membership.id", m.ID)))
	defer endSpan(span, &err)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify("begin add vehicle", err)
	}
	defer tx.Rollback(ctx)

	const bump = `
	UPDATE memberships
	SET version = version + 1, updated_at = NOW()
	WHERE id = $1 AND version = $2
	RETURNING version, updated_at
	`
	var (
		version   int
		updatedAt time.Time
	)
	if err := tx.QueryRow(ctx, bump, m.ID, m.Version).Scan(&version, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missOrConflict(ctx, tx, m.ID)
		}
		return classify("bump membership version", err)
	}
	if err := insertVehicle(ctx, tx, m.ID, v); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit add vehicle", err)
	}

	m.Vehicles = append(m.Vehicles, *v)
	m.Version = version
	m.UpdatedAt = updatedAt
	return nil
}

// UpdateStatus refreshes the display cache only. It does not take part in the
// version protocol.
func (r *membershipRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	const query = `UPDATE memberships SET status = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return classify("update membership status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMembershipNotFound
	}
	return nil
}

func (r *membershipRepository) loadVehicles(ctx context.Context, m *domain.Membership) error {
	const query = `
	SELECT id, brand, model, year, plate, purchase_date, created_at
	FROM membership_vehicles
	WHERE membership_id = $1
	ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query, m.ID)
	if err != nil {
		return classify("load vehicles", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Vehicle
		if err := rows.Scan(&v.ID, &v.Brand, &v.Model, &v.Year, &v.Plate, &v.PurchaseDate, &v.CreatedAt); err != nil {
			return classify("scan vehicle", err)
		}
		m.Vehicles = append(m.Vehicles, v)
	}
	return classify("load vehicles", rows.Err())
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *membershipRepository) missOrConflict(ctx context.Context, q querier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM memberships WHERE id = $1)`, id).Scan(&exists); err != nil {
		return classify("check membership", err)
	}
	if !exists {
		return domain.ErrMembershipNotFound
	}
	return domain.ErrConcurrentUpdate
}

func insertCode(ctx context.Context, tx pgx.Tx, membershipID, code string, kind vipcode.Kind) error {
	const query = `INSERT INTO membership_codes (code, membership_id, kind) VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, query, code, membershipID, string(kind)); err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return domain.ErrCodeCollision
		}
		return classify("insert code", err)
	}
	return nil
}

func insertVehicle(ctx context.Context, tx pgx.Tx, membershipID string, v *domain.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	const query = `
	INSERT INTO membership_vehicles (id, membership_id, brand, model, year, plate, purchase_date)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at
	`
	if err := tx.QueryRow(ctx, query,
		v.ID,
		membershipID,
		v.Brand,
		v.Model,
		v.Year,
		v.Plate,
		v.PurchaseDate,
	).Scan(&v.CreatedAt); err != nil {
		return classify("insert vehicle", err)
	}
	return nil
}

func scanMembership(row rowScanner) (*domain.Membership, error) {
	var m domain.Membership
	var physical *string

	if err := row.Scan(
		&m.ID,
		&m.ClientName,
		&m.ContactInfo,
		&m.StoreID,
		&m.DigitalCode,
		&physical,
		&m.ActivationDate,
		&m.ValidUntil,
		&m.Status,
		&m.RenewalDate,
		&m.CancelledAt,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if physical != nil {
		m.PhysicalCode = *physical
	}
	return &m, nil
}

func endSpan(span trace.Span, err *error) {
	if err != nil && *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}
