package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/token"
)

type GuestPassRepo interface {
	Create(ctx context.Context, tenantID string, in *domain.GuestPassCreateReq) (*domain.EventGuestPass, error)
	GetByToken(ctx context.Context, qrToken string) (*domain.EventGuestPass, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]domain.EventGuestPass, error)
	ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]domain.EventGuestPass, error)
	// Redeem flips redeemed false->true for exactly one caller. The
	// returned bool is false when the pass was already redeemed.
	Redeem(ctx context.Context, tenantID, id string) (bool, error)
}

type GuestPassRepoImpl struct{ pool *pgxpool.Pool }

func NewGuestPassRepo(pool *pgxpool.Pool) *GuestPassRepoImpl {
	return &GuestPassRepoImpl{pool: pool}
}

const guestPassCols = `id, tenant_id, qr_token, guest_name, guest_count,
redeemed, redeemed_at, created_at`

func scanGuestPass(row pgx.Row) (*domain.EventGuestPass, error) {
	var p domain.EventGuestPass
	err := row.Scan(
		&p.ID, &p.TenantID, &p.QRToken, &p.GuestName, &p.GuestCount,
		&p.Redeemed, &p.RedeemedAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GuestPassRepoImpl) Create(ctx context.Context, tenantID string, in *domain.GuestPassCreateReq) (*domain.EventGuestPass, error) {
	const q = `INSERT INTO event_guest_passes (
    id, tenant_id, qr_token, guest_name, guest_count, redeemed
  ) VALUES ($1,$2,$3,$4,$5,false)
  RETURNING ` + guestPassCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanGuestPass(r.pool.QueryRow(ctx, q,
		uuid.NewString(), tenantID, token.Issue(), in.GuestName, in.GuestCount))
}

func (r *GuestPassRepoImpl) GetByToken(ctx context.Context, qrToken string) (*domain.EventGuestPass, error) {
	const q = `SELECT ` + guestPassCols + ` FROM event_guest_passes WHERE qr_token=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanGuestPass(r.pool.QueryRow(ctx, q, qrToken))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *GuestPassRepoImpl) List(ctx context.Context, tenantID string, limit, offset int) ([]domain.EventGuestPass, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT ` + guestPassCols + ` FROM event_guest_passes
		WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGuestPasses(rows, limit)
}

func (r *GuestPassRepoImpl) ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]domain.EventGuestPass, error) {
	const q = `SELECT ` + guestPassCols + ` FROM event_guest_passes
		WHERE tenant_id=$1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC`
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGuestPasses(rows, 64)
}

func collectGuestPasses(rows pgx.Rows, capHint int) ([]domain.EventGuestPass, error) {
	ps := make([]domain.EventGuestPass, 0, capHint)
	for rows.Next() {
		p, err := scanGuestPass(rows)
		if err != nil {
			return nil, err
		}
		ps = append(ps, *p)
	}
	return ps, rows.Err()
}

// Redeem is a conditional update, never read-then-write: of two concurrent
// callers exactly one sees RowsAffected()==1.
func (r *GuestPassRepoImpl) Redeem(ctx context.Context, tenantID, id string) (bool, error) {
	const q = `UPDATE event_guest_passes
		SET redeemed=true, redeemed_at=now()
		WHERE id=$1 AND tenant_id=$2 AND redeemed=false`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, tenantID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

var _ GuestPassRepo = (*GuestPassRepoImpl)(nil)
