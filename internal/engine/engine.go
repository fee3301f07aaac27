// Package engine implements the atomic reservation protocol that keeps
// per-organization seat caps and points quotas from being exceeded under
// concurrent load. All coordination happens through the backing store's
// transaction and locking primitives; the engine holds no shared mutable
// state between requests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edurail/quotaguard/internal/models"
	"github.com/edurail/quotaguard/internal/points"
	"github.com/edurail/quotaguard/internal/policy"
	"github.com/edurail/quotaguard/internal/store"
	"github.com/edurail/quotaguard/internal/telemetry"
)

// DefaultBufferPercent is the tolerance band applied when an organization has
// no per-organization buffer configured.
const DefaultBufferPercent = 0.20

// Engine executes reservations against a single backing store.
type Engine struct {
	store         store.ReservationStore
	defaultBuffer float64
	metrics       *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultBuffer overrides the fallback buffer percentage applied to
// organizations without their own buffer configuration.
func WithDefaultBuffer(percent float64) Option {
	return func(e *Engine) { e.defaultBuffer = percent }
}

// New creates a reservation engine backed by st.
func New(st store.ReservationStore, opts ...Option) *Engine {
	e := &Engine{
		store:         st,
		defaultBuffer: DefaultBufferPercent,
		metrics:       telemetry.GetMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReserveConsumption converts the requested usage to points and debits the
// organization's budget if the post-write total stays inside the limit plus
// buffer. The context deadline bounds the wait for the organization row lock.
func (e *Engine) ReserveConsumption(ctx context.Context, req *ConsumptionRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	amount, err := points.Convert(req.UnitType, req.UnitCount)
	if err != nil {
		return nil, err
	}

	org, err := e.store.GetOrganization(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	buffer := e.bufferFor(org)

	// Fast pre-check against committed state. Advisory only: the
	// authoritative check happens inside the locked transaction, this one
	// just avoids lock contention for requests that cannot possibly fit.
	if org.PointsLimited() {
		current, err := e.store.Snapshot(ctx, req.OrgID, models.ResourcePoints)
		if err != nil {
			return nil, err
		}
		if current+amount > *org.TotalPoints*(1+buffer) {
			e.metrics.PrecheckRejectedTotal.Add(ctx, 1)
			e.recordRejection(ctx, newConsumptionLogEntry(req, models.OutcomeRejected))
			return nil, &QuotaExceededError{
				Resource:      models.ResourcePoints,
				HardLimit:     *org.TotalPoints,
				ProposedTotal: current + amount,
				BufferPercent: buffer,
			}
		}
	}

	tx, err := e.beginLocked(ctx, req.OrgID)
	if err != nil {
		if errors.Is(err, ErrContentionTimeout) {
			e.recordRejection(ctx, newConsumptionLogEntry(req, models.OutcomeTimedOut))
		}
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	// Limits may have been reconfigured since the pre-check read; the locked
	// row is authoritative.
	org = tx.Organization()
	buffer = e.bufferFor(org)

	// Speculative write: flushed into the transaction's working set so the
	// re-read below observes it, invisible to other transactions until
	// commit.
	if err := tx.DebitPoints(ctx, amount); err != nil {
		return nil, fmt.Errorf("failed to debit points: %w", err)
	}

	total, err := tx.UsedPoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify points aggregate: %w", err)
	}

	decision := policy.Classify(total, org.TotalPoints, buffer)
	if !decision.Permitted() {
		if err := tx.Rollback(ctx); err != nil {
			return nil, fmt.Errorf("failed to roll back rejected reservation: %w", err)
		}
		e.metrics.ReservationsRejectedTotal.Add(ctx, 1)
		e.recordRejection(ctx, newConsumptionLogEntry(req, models.OutcomeRejected))
		return nil, &QuotaExceededError{
			Resource:      models.ResourcePoints,
			HardLimit:     *org.TotalPoints,
			ProposedTotal: total,
			BufferPercent: buffer,
		}
	}

	outcome := models.OutcomeAllowed
	if decision == policy.AllowWithWarning {
		outcome = models.OutcomeAllowedWithWarning
	}

	entry := newConsumptionLogEntry(req, outcome)
	entry.PointsDeducted = amount
	if err := tx.AppendLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append audit log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}

	e.countCommit(ctx, outcome)
	e.metrics.PointsDeductedTotal.Add(ctx, amount)

	log.Debug().
		Str("org_id", req.OrgID.String()).
		Str("feature", req.FeatureType).
		Float64("points", amount).
		Float64("total", total).
		Str("outcome", string(outcome)).
		Msg("Committed consumption reservation")

	return &Result{
		Outcome:        outcome,
		PointsDeducted: amount,
		Remaining:      remaining(org.TotalPoints, total),
	}, nil
}

// ReserveSeat adds a teacher membership, counted against the organization's
// seat limit unless the role is owner. Seat ceilings are exact: no buffer
// band applies to counts.
func (e *Engine) ReserveSeat(ctx context.Context, req *SeatRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	org, err := e.store.GetOrganization(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}

	enforced := org.SeatLimited() && req.Role != models.RoleOwner

	if enforced {
		current, err := e.store.Snapshot(ctx, req.OrgID, models.ResourceSeats)
		if err != nil {
			return nil, err
		}
		if current+1 > float64(*org.TeacherSeatLimit) {
			e.metrics.PrecheckRejectedTotal.Add(ctx, 1)
			e.recordRejection(ctx, newSeatLogEntry(req, models.OutcomeRejected))
			return nil, &QuotaExceededError{
				Resource:      models.ResourceSeats,
				HardLimit:     float64(*org.TeacherSeatLimit),
				ProposedTotal: current + 1,
			}
		}
	}

	tx, err := e.beginLocked(ctx, req.OrgID)
	if err != nil {
		if errors.Is(err, ErrContentionTimeout) {
			e.recordRejection(ctx, newSeatLogEntry(req, models.OutcomeTimedOut))
		}
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	org = tx.Organization()
	enforced = org.SeatLimited() && req.Role != models.RoleOwner

	membership := &models.Membership{
		MembershipID: uuid.Must(uuid.NewV7()),
		OrgID:        req.OrgID,
		TeacherID:    req.TeacherID,
		Role:         req.Role,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := tx.InsertMembership(ctx, membership); err != nil {
		return nil, fmt.Errorf("failed to insert membership: %w", err)
	}

	var seatsRemaining *float64
	if enforced {
		count, err := tx.ActiveSeatCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to verify seat count: %w", err)
		}

		limit := float64(*org.TeacherSeatLimit)
		if policy.Classify(float64(count), &limit, 0) == policy.Reject {
			if err := tx.Rollback(ctx); err != nil {
				return nil, fmt.Errorf("failed to roll back rejected reservation: %w", err)
			}
			e.metrics.ReservationsRejectedTotal.Add(ctx, 1)
			e.recordRejection(ctx, newSeatLogEntry(req, models.OutcomeRejected))
			return nil, &QuotaExceededError{
				Resource:      models.ResourceSeats,
				HardLimit:     limit,
				ProposedTotal: float64(count),
			}
		}
		seatsRemaining = remaining(&limit, float64(count))
	}

	entry := newSeatLogEntry(req, models.OutcomeAllowed)
	if err := tx.AppendLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append audit log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}

	e.metrics.ReservationsAllowedTotal.Add(ctx, 1)
	e.metrics.SeatsReservedTotal.Add(ctx, 1)

	log.Debug().
		Str("org_id", req.OrgID.String()).
		Str("teacher_id", req.TeacherID.String()).
		Str("role", req.Role).
		Msg("Committed seat reservation")

	return &Result{
		Outcome:   models.OutcomeAllowed,
		Remaining: seatsRemaining,
	}, nil
}

// ReleaseSeat deactivates a teacher's membership. It takes the organization
// row lock so releases serialize with concurrent reservations.
func (e *Engine) ReleaseSeat(ctx context.Context, orgID, teacherID uuid.UUID) error {
	if _, err := e.store.GetOrganization(ctx, orgID); err != nil {
		return err
	}

	tx, err := e.beginLocked(ctx, orgID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := tx.DeactivateMembership(ctx, teacherID); err != nil {
		return err
	}

	entry := &models.ConsumptionLogEntry{
		EntryID:     uuid.Must(uuid.NewV7()),
		OrgID:       orgID,
		ActorID:     teacherID,
		FeatureType: "seat_release",
		UnitType:    string(models.ResourceSeats),
		UnitCount:   1,
		Outcome:     models.OutcomeAllowed,
		CreatedAt:   time.Now(),
	}
	if err := tx.AppendLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit seat release: %w", err)
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Str("teacher_id", teacherID.String()).
		Msg("Released seat")

	return nil
}

// RemainingQuota returns the points still available under the hard limit,
// nil when the organization is unbounded. Read-only: dashboards must never
// mutate quota state.
func (e *Engine) RemainingQuota(ctx context.Context, orgID uuid.UUID) (*float64, error) {
	org, err := e.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !org.PointsLimited() {
		return nil, nil
	}
	return remaining(org.TotalPoints, org.UsedPoints), nil
}

// AuditTrail returns the newest audit rows for an organization.
func (e *Engine) AuditTrail(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.ConsumptionLogEntry, error) {
	return e.store.ListLogEntries(ctx, orgID, limit)
}

// beginLocked opens the reservation transaction and maps lock-wait expiry to
// the contention timeout error, recording the wait duration either way.
func (e *Engine) beginLocked(ctx context.Context, orgID uuid.UUID) (store.ReservationTx, error) {
	started := time.Now()
	tx, err := e.store.Begin(ctx, orgID)
	e.metrics.LockWaitDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	if err != nil {
		if errors.Is(err, store.ErrLockTimeout) {
			e.metrics.LockTimeoutsTotal.Add(ctx, 1)
			log.Warn().
				Str("org_id", orgID.String()).
				Dur("waited", time.Since(started)).
				Msg("Lock wait exceeded deadline")
			return nil, ErrContentionTimeout
		}
		return nil, fmt.Errorf("failed to begin reservation: %w", err)
	}
	return tx, nil
}

func (e *Engine) bufferFor(org *models.Organization) float64 {
	if org.BufferPercent > 0 {
		return org.BufferPercent
	}
	return e.defaultBuffer
}

func (e *Engine) countCommit(ctx context.Context, outcome models.Outcome) {
	if outcome == models.OutcomeAllowedWithWarning {
		e.metrics.ReservationsWarnedTotal.Add(ctx, 1)
		return
	}
	e.metrics.ReservationsAllowedTotal.Add(ctx, 1)
}

// remaining clamps limit - used at zero; inside the buffer band the nominal
// budget is spent.
func remaining(limit *float64, used float64) *float64 {
	if limit == nil {
		return nil
	}
	r := *limit - used
	if r < 0 {
		r = 0
	}
	return &r
}
