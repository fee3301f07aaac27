// Package memory provides in-memory implementations of the store interfaces.
// These are for testing only - data is lost on restart. The per-organization
// lock channel stands in for the database row lock: reservations against the
// same organization serialize, and lock waits respect the context deadline.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edurail/quotaguard/internal/models"
	"github.com/edurail/quotaguard/internal/store"
)

// Store implements store.ReservationStore and store.OrganizationStore using
// in-memory state.
type Store struct {
	mu   sync.RWMutex
	orgs map[uuid.UUID]*orgState
}

type orgState struct {
	lock        chan struct{} // capacity 1; holding the token is holding the row lock
	org         models.Organization
	memberships []models.Membership
	logEntries  []models.ConsumptionLogEntry
}

var (
	_ store.ReservationStore  = (*Store)(nil)
	_ store.OrganizationStore = (*Store)(nil)
)

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		orgs: make(map[uuid.UUID]*orgState),
	}
}

// Create creates a new organization in memory.
func (s *Store) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orgs[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	s.orgs[org.OrgID] = &orgState{
		lock: make(chan struct{}, 1),
		org:  *org,
	}

	return nil
}

// Get retrieves an organization by ID.
func (s *Store) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return s.GetOrganization(ctx, orgID)
}

// GetOrganization retrieves an organization by ID.
func (s *Store) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.orgs[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := st.org
	return &clone, nil
}

// UpdateLimits replaces the organization's ceilings and buffer configuration.
func (s *Store) UpdateLimits(ctx context.Context, orgID uuid.UUID, totalPoints *float64, seatLimit *int32, bufferPercent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.orgs[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	st.org.TotalPoints = totalPoints
	st.org.TeacherSeatLimit = seatLimit
	st.org.BufferPercent = bufferPercent
	st.org.UpdatedAt = time.Now()

	return nil
}

// Delete deletes an organization by ID.
func (s *Store) Delete(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orgs[orgID]; !exists {
		return store.ErrOrganizationNotFound
	}

	delete(s.orgs, orgID)

	return nil
}

// Snapshot returns the committed aggregate for a resource kind.
func (s *Store) Snapshot(ctx context.Context, orgID uuid.UUID, kind models.ResourceKind) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.orgs[orgID]
	if !exists {
		return 0, store.ErrOrganizationNotFound
	}

	switch kind {
	case models.ResourcePoints:
		return st.org.UsedPoints, nil
	case models.ResourceSeats:
		return float64(countActiveSeats(st.memberships)), nil
	default:
		return 0, errors.New("unknown resource kind " + string(kind))
	}
}

// Begin acquires the organization's lock, waiting until the context deadline
// at most.
func (s *Store) Begin(ctx context.Context, orgID uuid.UUID) (store.ReservationTx, error) {
	s.mu.RLock()
	st, exists := s.orgs[orgID]
	s.mu.RUnlock()
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	select {
	case st.lock <- struct{}{}:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, store.ErrLockTimeout
		}
		return nil, ctx.Err()
	}

	return &reservationTx{store: s, state: st}, nil
}

// AppendRejectionLog records a rejected or timed-out attempt immediately.
func (s *Store) AppendRejectionLog(ctx context.Context, entry *models.ConsumptionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.orgs[entry.OrgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	st.logEntries = append(st.logEntries, *entry)
	return nil
}

// ListLogEntries returns the newest audit rows for an organization.
func (s *Store) ListLogEntries(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.ConsumptionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.orgs[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	entries := make([]*models.ConsumptionLogEntry, 0, len(st.logEntries))
	for i := range st.logEntries {
		clone := st.logEntries[i]
		entries = append(entries, &clone)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}

func countActiveSeats(memberships []models.Membership) int32 {
	var count int32
	for i := range memberships {
		if memberships[i].IsActive && memberships[i].Role != models.RoleOwner {
			count++
		}
	}
	return count
}
