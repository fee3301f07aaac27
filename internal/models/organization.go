package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant that owns limits. TotalPoints and
// TeacherSeatLimit are nil when the corresponding ceiling is unbounded.
type Organization struct {
	OrgID            uuid.UUID // UUIDv7
	Name             string
	TotalPoints      *float64 // points budget for the current billing period
	UsedPoints       float64  // mutated only by the reservation protocol
	TeacherSeatLimit *int32   // cap on active non-owner memberships
	BufferPercent    float64  // soft-limit tolerance band, e.g. 0.20
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PointsLimited reports whether the organization has a points ceiling.
func (o *Organization) PointsLimited() bool {
	return o.TotalPoints != nil
}

// SeatLimited reports whether the organization has a teacher seat ceiling.
func (o *Organization) SeatLimited() bool {
	return o.TeacherSeatLimit != nil
}
