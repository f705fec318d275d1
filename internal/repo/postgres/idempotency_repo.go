package postgres

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aforo/aforo/internal/domain"
)

// IdempotencyRepo guards the retry of a single confirmed increment. The key
// is minted once when the staff device opens its confirmation dialog; a
// retried network call replays the stored result instead of re-applying
// the delta. A fresh scan of the same ticket gets a fresh key.
//
// The key is claimed before the increment runs, so two racing calls with
// the same key can never both apply: exactly one wins the insert, the
// other sees the claim.
type IdempotencyRepo interface {
	// Reserve claims key for one in-flight increment. won reports whether
	// the caller holds the claim. When the key was already claimed, stored
	// carries the recorded result, or nil while the holder is still in
	// flight.
	Reserve(ctx context.Context, key string, ttl time.Duration) (won bool, stored *domain.AttendanceResult, err error)
	// Complete records the applied result under a key the caller reserved.
	Complete(ctx context.Context, key string, result *domain.AttendanceResult) error
	// Release frees a reserved key whose increment failed, so a retry can
	// run. Completed records are never released.
	Release(ctx context.Context, key string) error
	// CleanupExpired removes expired idempotency records.
	CleanupExpired(ctx context.Context) (int64, error)
}

type IdempotencyRepoImpl struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepo(pool *pgxpool.Pool) *IdempotencyRepoImpl {
	return &IdempotencyRepoImpl{pool: pool}
}

// hashKey hashes the raw key for privacy and consistent length.
func hashKey(key string) string {
	hasher := sha256.New()
	hasher.Write([]byte(key))
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

func (r *IdempotencyRepoImpl) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, *domain.AttendanceResult, error) {
	// An expired row is reclaimed in place; a live one makes the insert a
	// no-op and the caller reads whatever the holder recorded.
	const claim = `INSERT INTO checkin_idempotency (key_hash, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (key_hash) DO UPDATE
		SET reservation_id = NULL, attendance_count = NULL, capacity = NULL,
			status = NULL, expires_at = EXCLUDED.expires_at
		WHERE checkin_idempotency.expires_at <= now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, claim, hashKey(key), time.Now().Add(ttl))
	if err != nil {
		return false, nil, err
	}
	if ct.RowsAffected() > 0 {
		return true, nil, nil
	}

	const read = `SELECT reservation_id, attendance_count, capacity, status
		FROM checkin_idempotency
		WHERE key_hash = $1 AND expires_at > now()`

	var (
		reservationID   *string
		count, capacity *int
		status          *domain.ReservationStatus
	)
	err = r.pool.QueryRow(ctx, read, hashKey(key)).Scan(&reservationID, &count, &capacity, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		// the claim expired between the insert and this read
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if reservationID == nil {
		// claimed but not yet completed
		return false, nil, nil
	}

	res := &domain.AttendanceResult{
		ReservationID:   *reservationID,
		AttendanceCount: *count,
		Capacity:        *capacity,
		Status:          *status,
	}
	res.Excess = domain.Excess(res.AttendanceCount, res.Capacity)
	return false, res, nil
}

func (r *IdempotencyRepoImpl) Complete(ctx context.Context, key string, result *domain.AttendanceResult) error {
	const q = `UPDATE checkin_idempotency
		SET reservation_id=$2, attendance_count=$3, capacity=$4, status=$5
		WHERE key_hash=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, hashKey(key),
		result.ReservationID, result.AttendanceCount, result.Capacity, result.Status)
	return err
}

func (r *IdempotencyRepoImpl) Release(ctx context.Context, key string) error {
	const q = `DELETE FROM checkin_idempotency
		WHERE key_hash=$1 AND reservation_id IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, hashKey(key))
	return err
}

func (r *IdempotencyRepoImpl) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, `DELETE FROM checkin_idempotency WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

var _ IdempotencyRepo = (*IdempotencyRepoImpl)(nil)
