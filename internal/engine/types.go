package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/edurail/quotaguard/internal/models"
	"github.com/edurail/quotaguard/internal/points"
)

// ConsumptionRequest asks to debit an organization's points budget for one
// feature invocation. The caller's context deadline bounds the lock wait.
type ConsumptionRequest struct {
	OrgID       uuid.UUID
	ActorID     uuid.UUID
	FeatureType string
	UnitType    points.Unit
	UnitCount   int64
}

// Validate checks request fields that would otherwise fail deep inside the
// protocol.
func (r *ConsumptionRequest) Validate() error {
	if r.OrgID == uuid.Nil {
		return fmt.Errorf("organization id is required")
	}
	if r.UnitCount < 0 {
		return fmt.Errorf("unit count must be non-negative, got %d", r.UnitCount)
	}
	return nil
}

// SeatRequest asks to add a teacher to an organization, counted against the
// seat limit unless the role is owner.
type SeatRequest struct {
	OrgID     uuid.UUID
	TeacherID uuid.UUID
	Role      string
}

// Validate checks request fields.
func (r *SeatRequest) Validate() error {
	if r.OrgID == uuid.Nil {
		return fmt.Errorf("organization id is required")
	}
	if r.TeacherID == uuid.Nil {
		return fmt.Errorf("teacher id is required")
	}
	if r.Role == "" {
		return fmt.Errorf("role is required")
	}
	return nil
}

// Result reports a committed reservation. Remaining is measured against the
// hard limit (clamped at zero inside the buffer band) and is nil when the
// organization is unbounded.
type Result struct {
	Outcome        models.Outcome
	PointsDeducted float64
	Remaining      *float64
}
