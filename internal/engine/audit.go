package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edurail/quotaguard/internal/models"
)

// newConsumptionLogEntry builds the audit row for a points reservation.
// PointsDeducted stays zero unless the reservation commits.
func newConsumptionLogEntry(req *ConsumptionRequest, outcome models.Outcome) *models.ConsumptionLogEntry {
	return &models.ConsumptionLogEntry{
		EntryID:     uuid.Must(uuid.NewV7()),
		OrgID:       req.OrgID,
		ActorID:     req.ActorID,
		FeatureType: req.FeatureType,
		UnitType:    string(req.UnitType),
		UnitCount:   req.UnitCount,
		Outcome:     outcome,
		CreatedAt:   time.Now(),
	}
}

// newSeatLogEntry builds the audit row for a seat reservation.
func newSeatLogEntry(req *SeatRequest, outcome models.Outcome) *models.ConsumptionLogEntry {
	return &models.ConsumptionLogEntry{
		EntryID:     uuid.Must(uuid.NewV7()),
		OrgID:       req.OrgID,
		ActorID:     req.TeacherID,
		FeatureType: "membership",
		UnitType:    string(models.ResourceSeats),
		UnitCount:   1,
		Outcome:     outcome,
		CreatedAt:   time.Now(),
	}
}

// recordRejection durably logs a rejected or timed-out attempt in its own
// committed write, outside the rolled-back reservation transaction. A failure
// here must not mask the reservation outcome, so it is logged rather than
// returned.
func (e *Engine) recordRejection(ctx context.Context, entry *models.ConsumptionLogEntry) {
	// The caller's deadline may already be expired (contention timeouts), so
	// the audit write runs on a detached context.
	ctx = context.WithoutCancel(ctx)
	if err := e.store.AppendRejectionLog(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("org_id", entry.OrgID.String()).
			Str("outcome", string(entry.Outcome)).
			Msg("Failed to record rejected reservation in audit log")
	}
}
