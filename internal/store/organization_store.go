package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/edurail/quotaguard/internal/models"
)

// OrganizationStore defines provisioning operations for organizations.
// Provisioning itself belongs to an external collaborator; the engine only
// reads limits, but tests and host processes need create/update access.
type OrganizationStore interface {
	// Create creates a new organization.
	// Returns ErrOrganizationAlreadyExists if the ID is already taken.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// UpdateLimits replaces the organization's ceilings and buffer
	// configuration. UsedPoints is deliberately not touched here.
	UpdateLimits(ctx context.Context, orgID uuid.UUID, totalPoints *float64, seatLimit *int32, bufferPercent float64) error

	// Delete deletes an organization and, via FK constraints, its
	// memberships and log entries.
	Delete(ctx context.Context, orgID uuid.UUID) error
}
