package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/edurail/quotaguard/internal/models"
	"github.com/edurail/quotaguard/internal/store"
)

// ReservationStore implements store.ReservationStore using PostgreSQL.
// Concurrent reservations against the same organization serialize on a
// SELECT ... FOR UPDATE row lock on the organizations table; the parent row
// is locked rather than the child table being written, so reservations for
// different organizations never contend.
type ReservationStore struct {
	pool *pgxpool.Pool
}

// NewReservationStore creates a new PostgreSQL-backed reservation store.
// It shares the connection pool with other stores.
func NewReservationStore(pool *pgxpool.Pool) *ReservationStore {
	return &ReservationStore{
		pool: pool,
	}
}

const organizationColumns = `org_id, name, total_points, used_points, teacher_seat_limit, buffer_percent, created_at, updated_at`

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var org models.Organization
	err := row.Scan(
		&org.OrgID,
		&org.Name,
		&org.TotalPoints,
		&org.UsedPoints,
		&org.TeacherSeatLimit,
		&org.BufferPercent,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, mapPostgresError(err)
	}
	return &org, nil
}

// GetOrganization retrieves an organization's limits and buffer configuration.
func (s *ReservationStore) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := fmt.Sprintf(`SELECT %s FROM organizations WHERE org_id = $1`, organizationColumns)
	return scanOrganization(s.pool.QueryRow(ctx, query, orgID))
}

// Snapshot returns the committed aggregate for a resource kind. This read
// happens outside any write transaction, so it is advisory only.
func (s *ReservationStore) Snapshot(ctx context.Context, orgID uuid.UUID, kind models.ResourceKind) (float64, error) {
	switch kind {
	case models.ResourcePoints:
		var used float64
		err := s.pool.QueryRow(ctx,
			`SELECT used_points FROM organizations WHERE org_id = $1`, orgID,
		).Scan(&used)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, store.ErrOrganizationNotFound
			}
			return 0, mapPostgresError(err)
		}
		return used, nil

	case models.ResourceSeats:
		var count int64
		err := s.pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM memberships
			WHERE organization_id = $1 AND is_active AND role <> $2
		`, orgID, models.RoleOwner).Scan(&count)
		if err != nil {
			return 0, mapPostgresError(err)
		}
		return float64(count), nil

	default:
		return 0, fmt.Errorf("unknown resource kind %q", kind)
	}
}

// Begin opens a transaction and acquires the row lock on the organization.
// The lock wait is bounded by the context deadline via a transaction-local
// lock_timeout; expiry maps to store.ErrLockTimeout with no write performed.
func (s *ReservationStore) Begin(ctx context.Context, orgID uuid.UUID) (store.ReservationTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		waitBudget := time.Until(deadline)
		if waitBudget <= 0 {
			_ = tx.Rollback(ctx)
			return nil, store.ErrLockTimeout
		}
		// lock_timeout only accepts a literal, not a bind parameter
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", waitBudget.Milliseconds()))
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, mapPostgresError(err)
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM organizations WHERE org_id = $1 FOR UPDATE`, organizationColumns)
	org, err := scanOrganization(tx.QueryRow(ctx, query, orgID))
	if err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, err
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Msg("Acquired organization row lock")

	return &reservationTx{tx: tx, org: org}, nil
}

// AppendRejectionLog records a rejected or timed-out attempt in its own
// committed write, independent of any rolled-back reservation transaction.
func (s *ReservationStore) AppendRejectionLog(ctx context.Context, entry *models.ConsumptionLogEntry) error {
	if err := insertLogEntry(ctx, s.pool, entry); err != nil {
		return err
	}

	log.Debug().
		Str("org_id", entry.OrgID.String()).
		Str("outcome", string(entry.Outcome)).
		Msg("Recorded rejected reservation")

	return nil
}

// ListLogEntries returns the newest audit rows for an organization.
func (s *ReservationStore) ListLogEntries(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.ConsumptionLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, organization_id, actor_id, feature_type, unit_type,
		       unit_count, points_deducted, outcome, created_at
		FROM consumption_log
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var entries []*models.ConsumptionLogEntry
	for rows.Next() {
		var e models.ConsumptionLogEntry
		err := rows.Scan(
			&e.EntryID,
			&e.OrgID,
			&e.ActorID,
			&e.FeatureType,
			&e.UnitType,
			&e.UnitCount,
			&e.PointsDeducted,
			&e.Outcome,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return entries, nil
}

// execer covers both pgxpool.Pool and pgx.Tx for log inserts.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLogEntry(ctx context.Context, db execer, entry *models.ConsumptionLogEntry) error {
	_, err := db.Exec(ctx, `
		INSERT INTO consumption_log (
			entry_id, organization_id, actor_id, feature_type, unit_type,
			unit_count, points_deducted, outcome, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`,
		entry.EntryID,
		entry.OrgID,
		entry.ActorID,
		entry.FeatureType,
		entry.UnitType,
		entry.UnitCount,
		entry.PointsDeducted,
		entry.Outcome,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", mapPostgresError(err))
	}
	return nil
}
