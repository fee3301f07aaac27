package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/edurail/quotaguard/internal/models"
	"github.com/edurail/quotaguard/internal/store"
)

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
// It shares the connection pool with the reservation store.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			org_id, name, total_points, used_points, teacher_seat_limit,
			buffer_percent, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.TotalPoints,
		org.UsedPoints,
		org.TeacherSeatLimit,
		org.BufferPercent,
		org.CreatedAt,
		org.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := fmt.Sprintf(`SELECT %s FROM organizations WHERE org_id = $1`, organizationColumns)
	return scanOrganization(s.pool.QueryRow(ctx, query, orgID))
}

// UpdateLimits replaces the organization's ceilings and buffer configuration.
// UsedPoints is deliberately untouched: only the reservation protocol mutates
// it.
func (s *OrganizationStore) UpdateLimits(ctx context.Context, orgID uuid.UUID, totalPoints *float64, seatLimit *int32, bufferPercent float64) error {
	query := `
		UPDATE organizations SET
			total_points = $2,
			teacher_seat_limit = $3,
			buffer_percent = $4,
			updated_at = $5
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		orgID,
		totalPoints,
		seatLimit,
		bufferPercent,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to update organization limits: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Msg("Updated organization limits")

	return nil
}

// Delete deletes an organization by ID.
// This will cascade-delete memberships and log entries via FK constraints.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	query := `DELETE FROM organizations WHERE org_id = $1`

	result, err := s.pool.Exec(ctx, query, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Info().
		Str("org_id", orgID.String()).
		Msg("Deleted organization (and cascade-deleted memberships and log entries)")

	return nil
}
