package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership roles. Owner memberships never count against the seat limit.
const (
	RoleOwner   = "owner"
	RoleTeacher = "teacher"
)

// Membership represents one teacher's active association with an organization.
// The count of rows with IsActive and a non-owner role must never exceed the
// organization's TeacherSeatLimit once committed.
type Membership struct {
	MembershipID uuid.UUID // UUIDv7
	OrgID        uuid.UUID
	TeacherID    uuid.UUID
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
