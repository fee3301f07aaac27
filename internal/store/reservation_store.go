package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/edurail/quotaguard/internal/models"
)

// Sentinel errors for reservation store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrMembershipNotFound        = errors.New("membership not found")

	// ErrLockTimeout is returned when the organization row lock could not be
	// acquired before the caller's deadline.
	ErrLockTimeout = errors.New("organization lock not acquired before deadline")
)

// ReservationStore exposes the transactional primitives the reservation
// protocol is built on. Only the protocol is permitted to mutate
// Organization.UsedPoints or insert active memberships; every other code path
// treats those fields as read-only.
type ReservationStore interface {
	// GetOrganization returns the organization's limits and buffer
	// configuration. Returns ErrOrganizationNotFound if it doesn't exist.
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// Snapshot returns the current aggregate for a resource kind as seen by a
	// plain read: UsedPoints for points, the active non-owner membership
	// count for seats. It reads committed state only, so it is advisory; the
	// authoritative read happens inside an open ReservationTx.
	Snapshot(ctx context.Context, orgID uuid.UUID, kind models.ResourceKind) (float64, error)

	// Begin opens a transaction and acquires the row-level lock on the
	// organization record, serializing all concurrent reservations against
	// the same organization. The context deadline bounds the lock wait;
	// ErrLockTimeout is returned when it expires first.
	Begin(ctx context.Context, orgID uuid.UUID) (ReservationTx, error)

	// AppendRejectionLog durably records a rejected or timed-out attempt in
	// its own committed write, independent of any rolled-back transaction.
	AppendRejectionLog(ctx context.Context, entry *models.ConsumptionLogEntry) error

	// ListLogEntries returns the newest audit rows for an organization, the
	// ledger an auditor uses to reconstruct UsedPoints.
	ListLogEntries(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.ConsumptionLogEntry, error)
}

// ReservationTx is one reservation attempt's open transaction. The
// organization row is locked for the lifetime of the handle; exactly one of
// Commit or Rollback must be called.
type ReservationTx interface {
	// Organization returns the organization row as locked, including any
	// uncommitted writes made through this handle.
	Organization() *models.Organization

	// DebitPoints increments UsedPoints by amount as a speculative write,
	// visible to subsequent reads on this handle but not to other
	// transactions until Commit.
	DebitPoints(ctx context.Context, amount float64) error

	// InsertMembership speculatively inserts an active membership row.
	InsertMembership(ctx context.Context, m *models.Membership) error

	// DeactivateMembership speculatively marks a membership inactive.
	// Returns ErrMembershipNotFound if no active row matches.
	DeactivateMembership(ctx context.Context, teacherID uuid.UUID) error

	// UsedPoints re-reads the points aggregate, observing this transaction's
	// own speculative writes.
	UsedPoints(ctx context.Context) (float64, error)

	// ActiveSeatCount re-reads the active non-owner membership count,
	// observing this transaction's own speculative writes.
	ActiveSeatCount(ctx context.Context) (int32, error)

	// AppendLog stages an audit row inside the transaction so it commits
	// atomically with the resource write.
	AppendLog(ctx context.Context, entry *models.ConsumptionLogEntry) error

	// Commit makes the speculative writes durable and releases the row lock.
	Commit(ctx context.Context) error

	// Rollback discards all speculative writes and releases the row lock.
	// Safe to call after Commit.
	Rollback(ctx context.Context) error
}
