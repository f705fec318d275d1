package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/token"
)

type ReservationRepo interface {
	Create(ctx context.Context, tenantID, actor string, in *domain.ReservationCreateReq) (*domain.Reservation, error)
	GetByID(ctx context.Context, tenantID, id string) (*domain.Reservation, error)
	GetByToken(ctx context.Context, qrToken string) (*domain.Reservation, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]domain.Reservation, error)
	ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Reservation, error)
	Update(ctx context.Context, tenantID, id, actor string, patch domain.ReservationPatch) (*domain.Reservation, error)
	Cancel(ctx context.Context, tenantID, id, actor string) (bool, error)
	// IncrementAttendance applies delta under a per-row lock, clamps the
	// counter at zero, derives the new status and returns the result.
	IncrementAttendance(ctx context.Context, tenantID, id string, delta int, actor string) (*domain.AttendanceResult, error)
}

type ReservationRepoImpl struct{ pool *pgxpool.Pool }

func NewReservationRepo(pool *pgxpool.Pool) *ReservationRepoImpl {
	return &ReservationRepoImpl{pool: pool}
}

const reservationCols = `id, tenant_id, customer_name, phone, email, reserved_at,
table_ref, capacity, promoter_id, status, attendance_count, qr_token,
notes, last_modified_at, last_modified_by, created_at`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(
		&r.ID, &r.TenantID, &r.CustomerName, &r.Phone, &r.Email, &r.ReservedAt,
		&r.TableRef, &r.Capacity, &r.PromoterID, &r.Status, &r.AttendanceCount,
		&r.QRToken, &r.Notes, &r.LastModifiedAt, &r.LastModifiedBy, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *ReservationRepoImpl) Create(ctx context.Context, tenantID, actor string, in *domain.ReservationCreateReq) (*domain.Reservation, error) {
	const q = `INSERT INTO reservations (
    id, tenant_id, customer_name, phone, email, reserved_at,
    table_ref, capacity, promoter_id, status, attendance_count, qr_token,
    notes, last_modified_at, last_modified_by
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'pending',0,$10,$11,now(),$12)
  RETURNING ` + reservationCols

	id := uuid.NewString()
	qrToken := token.Issue()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanReservation(r.pool.QueryRow(ctx, q, id, tenantID,
		in.CustomerName, in.Phone, in.Email, in.ReservedAt,
		in.TableRef, in.Capacity, in.PromoterID, qrToken, in.Notes, actor,
	))
}

func (r *ReservationRepoImpl) GetByID(ctx context.Context, tenantID, id string) (*domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations WHERE id=$1 AND tenant_id=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := scanReservation(r.pool.QueryRow(ctx, q, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *ReservationRepoImpl) GetByToken(ctx context.Context, qrToken string) (*domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations WHERE qr_token=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := scanReservation(r.pool.QueryRow(ctx, q, qrToken))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *ReservationRepoImpl) List(ctx context.Context, tenantID string, limit, offset int) ([]domain.Reservation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT ` + reservationCols + ` FROM reservations
		WHERE tenant_id=$1 ORDER BY reserved_at DESC LIMIT $2 OFFSET $3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows, limit)
}

func (r *ReservationRepoImpl) ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations
		WHERE tenant_id=$1 AND reserved_at >= $2 AND reserved_at < $3
		ORDER BY reserved_at ASC`
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows, 64)
}

func collectReservations(rows pgx.Rows, capHint int) ([]domain.Reservation, error) {
	rs := make([]domain.Reservation, 0, capHint)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		rs = append(rs, *res)
	}
	return rs, rows.Err()
}

func (r *ReservationRepoImpl) Update(ctx context.Context, tenantID, id, actor string, patch domain.ReservationPatch) (*domain.Reservation, error) {
	const q = `UPDATE reservations SET
		customer_name    = COALESCE($3, customer_name),
		phone            = COALESCE($4, phone),
		email            = COALESCE($5, email),
		reserved_at      = COALESCE($6, reserved_at),
		table_ref        = COALESCE($7, table_ref),
		capacity         = COALESCE($8, capacity),
		promoter_id      = COALESCE($9, promoter_id),
		notes            = COALESCE($10, notes),
		attendance_count = GREATEST(0, COALESCE($11, attendance_count)),
		last_modified_at = now(),
		last_modified_by = $12
	WHERE id=$1 AND tenant_id=$2 AND status <> 'cancelled'
	RETURNING ` + reservationCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := scanReservation(r.pool.QueryRow(ctx, q, id, tenantID,
		patch.CustomerName, patch.Phone, patch.Email, patch.ReservedAt, patch.TableRef,
		patch.Capacity, patch.PromoterID, patch.Notes, patch.AttendanceCount, actor,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *ReservationRepoImpl) Cancel(ctx context.Context, tenantID, id, actor string) (bool, error) {
	const q = `UPDATE reservations
		SET status='cancelled', last_modified_at=now(), last_modified_by=$3
		WHERE id=$1 AND tenant_id=$2 AND status <> 'cancelled'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, tenantID, actor)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *ReservationRepoImpl) IncrementAttendance(ctx context.Context, tenantID, id string, delta int, actor string) (*domain.AttendanceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Retried on serialization or deadlock failures; the row lock makes
	// concurrent increments queue rather than clobber each other, so a
	// conflict here is rare and always safe to retry.
	var result *domain.AttendanceResult
	for attempt := 0; attempt < 3; attempt++ {
		res, err := r.incrementOnce(ctx, tenantID, id, delta, actor)
		if err == nil {
			result = res
			break
		}
		if !isRetryable(err) {
			return nil, err
		}
		if attempt == 2 {
			return nil, domain.ErrConcurrencyConflict
		}
	}
	return result, nil
}

func (r *ReservationRepoImpl) incrementOnce(ctx context.Context, tenantID, id string, delta int, actor string) (*domain.AttendanceResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const sel = `SELECT status, attendance_count, capacity FROM reservations
		WHERE id=$1 AND tenant_id=$2 FOR UPDATE`

	var status domain.ReservationStatus
	var count, capacity int
	err = tx.QueryRow(ctx, sel, id, tenantID).Scan(&status, &count, &capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}

	if !domain.CanIncrement(status) {
		return nil, domain.ErrInvalidStateTransition
	}

	newCount := count + delta
	if newCount < 0 {
		newCount = 0
	}
	newStatus := domain.NextStatus(status, newCount, capacity)

	const upd = `UPDATE reservations
		SET attendance_count=$3, status=$4, last_modified_at=now(), last_modified_by=$5
		WHERE id=$1 AND tenant_id=$2`
	if _, err := tx.Exec(ctx, upd, id, tenantID, newCount, newStatus, actor); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &domain.AttendanceResult{
		ReservationID:   id,
		AttendanceCount: newCount,
		Capacity:        capacity,
		Excess:          domain.Excess(newCount, capacity),
		Status:          newStatus,
	}, nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

var _ ReservationRepo = (*ReservationRepoImpl)(nil)
