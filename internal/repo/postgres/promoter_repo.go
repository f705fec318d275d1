package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aforo/aforo/internal/domain"
)

type PromoterRepo interface {
	Create(ctx context.Context, tenantID string, in *domain.PromoterCreateReq) (*domain.Promoter, error)
	GetByID(ctx context.Context, tenantID, id string) (*domain.Promoter, error)
	List(ctx context.Context, tenantID string, activeOnly bool) ([]domain.Promoter, error)
	Update(ctx context.Context, tenantID, id string, patch domain.PromoterPatch) (*domain.Promoter, error)
	// Deactivate soft-deletes: reservations keep the reference so
	// historical reports stay attributable.
	Deactivate(ctx context.Context, tenantID, id string) (bool, error)
}

type PromoterRepoImpl struct{ pool *pgxpool.Pool }

func NewPromoterRepo(pool *pgxpool.Pool) *PromoterRepoImpl { return &PromoterRepoImpl{pool: pool} }

const promoterCols = `id, tenant_id, name, phone, email, active, created_at`

func scanPromoter(row pgx.Row) (*domain.Promoter, error) {
	var p domain.Promoter
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Phone, &p.Email, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PromoterRepoImpl) Create(ctx context.Context, tenantID string, in *domain.PromoterCreateReq) (*domain.Promoter, error) {
	const q = `INSERT INTO promoters (id, tenant_id, name, phone, email, active)
		VALUES ($1,$2,$3,$4,$5,true)
		RETURNING ` + promoterCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanPromoter(r.pool.QueryRow(ctx, q, uuid.NewString(), tenantID, in.Name, in.Phone, in.Email))
}

func (r *PromoterRepoImpl) GetByID(ctx context.Context, tenantID, id string) (*domain.Promoter, error) {
	const q = `SELECT ` + promoterCols + ` FROM promoters WHERE id=$1 AND tenant_id=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanPromoter(r.pool.QueryRow(ctx, q, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *PromoterRepoImpl) List(ctx context.Context, tenantID string, activeOnly bool) ([]domain.Promoter, error) {
	q := `SELECT ` + promoterCols + ` FROM promoters WHERE tenant_id=$1`
	if activeOnly {
		q += ` AND active`
	}
	q += ` ORDER BY name ASC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ps := make([]domain.Promoter, 0, 16)
	for rows.Next() {
		p, err := scanPromoter(rows)
		if err != nil {
			return nil, err
		}
		ps = append(ps, *p)
	}
	return ps, rows.Err()
}

func (r *PromoterRepoImpl) Update(ctx context.Context, tenantID, id string, patch domain.PromoterPatch) (*domain.Promoter, error) {
	const q = `UPDATE promoters SET
		name   = COALESCE($3, name),
		phone  = COALESCE($4, phone),
		email  = COALESCE($5, email),
		active = COALESCE($6, active)
	WHERE id=$1 AND tenant_id=$2
	RETURNING ` + promoterCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanPromoter(r.pool.QueryRow(ctx, q, id, tenantID,
		patch.Name, patch.Phone, patch.Email, patch.Active))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *PromoterRepoImpl) Deactivate(ctx context.Context, tenantID, id string) (bool, error) {
	const q = `UPDATE promoters SET active=false WHERE id=$1 AND tenant_id=$2 AND active`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, tenantID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

var _ PromoterRepo = (*PromoterRepoImpl)(nil)
