package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how an attempted reservation ended.
type Outcome string

const (
	OutcomeAllowed            Outcome = "ALLOWED"
	OutcomeAllowedWithWarning Outcome = "ALLOWED_WITH_WARNING"
	OutcomeRejected           Outcome = "REJECTED"
	// OutcomeTimedOut records attempts that never reached the verification
	// step because the organization row lock could not be acquired in time.
	OutcomeTimedOut Outcome = "TIMED_OUT"
)

// ResourceKind selects which ceiling a reservation is charged against.
type ResourceKind string

const (
	ResourcePoints ResourceKind = "points"
	ResourceSeats  ResourceKind = "seats"
)

// ConsumptionLogEntry is one row of the append-only audit ledger. Entries are
// never updated or deleted; the sum of PointsDeducted over committed
// ALLOWED/ALLOWED_WITH_WARNING rows equals Organization.UsedPoints.
type ConsumptionLogEntry struct {
	EntryID        uuid.UUID // UUIDv7
	OrgID          uuid.UUID
	ActorID        uuid.UUID
	FeatureType    string
	UnitType       string
	UnitCount      int64
	PointsDeducted float64
	Outcome        Outcome
	CreatedAt      time.Time
}
