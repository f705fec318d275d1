package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aforo/aforo/internal/domain"
)

type WalkInRepo interface {
	Create(ctx context.Context, tenantID string, in *domain.WalkInCreateReq) (*domain.WalkInRecord, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]domain.WalkInRecord, error)
	ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]domain.WalkInRecord, error)
	Delete(ctx context.Context, tenantID, id string) (bool, error)
}

type WalkInRepoImpl struct{ pool *pgxpool.Pool }

func NewWalkInRepo(pool *pgxpool.Pool) *WalkInRepoImpl { return &WalkInRepoImpl{pool: pool} }

const walkInCols = `id, tenant_id, person_count, occurred_at, notes, recorded_by, created_at`

func (r *WalkInRepoImpl) Create(ctx context.Context, tenantID string, in *domain.WalkInCreateReq) (*domain.WalkInRecord, error) {
	const q = `INSERT INTO walk_ins (id, tenant_id, person_count, occurred_at, notes, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING ` + walkInCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var w domain.WalkInRecord
	err := r.pool.QueryRow(ctx, q, uuid.NewString(), tenantID,
		in.PersonCount, in.OccurredAt, in.Notes, in.RecordedBy,
	).Scan(&w.ID, &w.TenantID, &w.PersonCount, &w.OccurredAt, &w.Notes, &w.RecordedBy, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalkInRepoImpl) List(ctx context.Context, tenantID string, limit, offset int) ([]domain.WalkInRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT ` + walkInCols + ` FROM walk_ins
		WHERE tenant_id=$1 ORDER BY occurred_at DESC LIMIT $2 OFFSET $3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ws := make([]domain.WalkInRecord, 0, limit)
	for rows.Next() {
		var w domain.WalkInRecord
		if err := rows.Scan(&w.ID, &w.TenantID, &w.PersonCount, &w.OccurredAt, &w.Notes, &w.RecordedBy, &w.CreatedAt); err != nil {
			return nil, err
		}
		ws = append(ws, w)
	}
	return ws, rows.Err()
}

func (r *WalkInRepoImpl) ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]domain.WalkInRecord, error) {
	const q = `SELECT ` + walkInCols + ` FROM walk_ins
		WHERE tenant_id=$1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at ASC`
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ws := make([]domain.WalkInRecord, 0, 64)
	for rows.Next() {
		var w domain.WalkInRecord
		if err := rows.Scan(&w.ID, &w.TenantID, &w.PersonCount, &w.OccurredAt, &w.Notes, &w.RecordedBy, &w.CreatedAt); err != nil {
			return nil, err
		}
		ws = append(ws, w)
	}
	return ws, rows.Err()
}

func (r *WalkInRepoImpl) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	const q = `DELETE FROM walk_ins WHERE id=$1 AND tenant_id=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, tenantID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

var _ WalkInRepo = (*WalkInRepoImpl)(nil)
