package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/edurail/quotaguard/internal/models"
	"github.com/edurail/quotaguard/internal/store"
)

// reservationTx is one reservation attempt's open transaction. The
// organization row stays locked until Commit or Rollback, so re-reads through
// this handle are race-free: no concurrent reservation against the same
// organization can have advanced past its own speculative write.
type reservationTx struct {
	tx  pgx.Tx
	org *models.Organization
}

var _ store.ReservationTx = (*reservationTx)(nil)

// Organization returns the organization row as locked, including debits made
// through this handle.
func (r *reservationTx) Organization() *models.Organization {
	clone := *r.org
	return &clone
}

// DebitPoints increments used_points inside the transaction. The write is
// flushed to the transaction's working set, visible to this handle's reads
// and invisible to other transactions until commit.
func (r *reservationTx) DebitPoints(ctx context.Context, amount float64) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE organizations
		SET used_points = used_points + $1, updated_at = NOW()
		WHERE org_id = $2
	`, amount, r.org.OrgID)
	if err != nil {
		return mapPostgresError(err)
	}
	r.org.UsedPoints += amount
	return nil
}

// InsertMembership speculatively inserts an active membership row.
func (r *reservationTx) InsertMembership(ctx context.Context, m *models.Membership) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO memberships (
			membership_id, organization_id, teacher_id, role, is_active,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`,
		m.MembershipID,
		m.OrgID,
		m.TeacherID,
		m.Role,
		m.IsActive,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("teacher %s already has an active membership: %w",
				m.TeacherID, err)
		}
		return mapPostgresError(err)
	}
	return nil
}

// DeactivateMembership marks the teacher's active membership inactive.
func (r *reservationTx) DeactivateMembership(ctx context.Context, teacherID uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE memberships
		SET is_active = FALSE, updated_at = NOW()
		WHERE organization_id = $1 AND teacher_id = $2 AND is_active
	`, r.org.OrgID, teacherID)
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrMembershipNotFound
	}
	return nil
}

// UsedPoints re-reads the points aggregate inside the transaction, observing
// this handle's own speculative debit.
func (r *reservationTx) UsedPoints(ctx context.Context) (float64, error) {
	var used float64
	err := r.tx.QueryRow(ctx,
		`SELECT used_points FROM organizations WHERE org_id = $1`, r.org.OrgID,
	).Scan(&used)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return used, nil
}

// ActiveSeatCount re-reads the active non-owner membership count inside the
// transaction, observing this handle's own speculative insert.
func (r *reservationTx) ActiveSeatCount(ctx context.Context) (int32, error) {
	var count int32
	err := r.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM memberships
		WHERE organization_id = $1 AND is_active AND role <> $2
	`, r.org.OrgID, models.RoleOwner).Scan(&count)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return count, nil
}

// AppendLog stages an audit row so it commits atomically with the resource
// write.
func (r *reservationTx) AppendLog(ctx context.Context, entry *models.ConsumptionLogEntry) error {
	return insertLogEntry(ctx, r.tx, entry)
}

// Commit makes the speculative writes durable and releases the row lock.
func (r *reservationTx) Commit(ctx context.Context) error {
	if err := r.tx.Commit(ctx); err != nil {
		return mapPostgresError(err)
	}
	return nil
}

// Rollback discards the speculative writes. Safe to call after Commit.
func (r *reservationTx) Rollback(ctx context.Context) error {
	err := r.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return mapPostgresError(err)
	}
	return nil
}
