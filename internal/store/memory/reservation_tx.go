package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edurail/quotaguard/internal/models"
	"github.com/edurail/quotaguard/internal/store"
)

// reservationTx stages writes until Commit, mirroring the visibility rules of
// a real transaction: reads through the handle observe staged writes, plain
// store reads do not.
type reservationTx struct {
	store *Store
	state *orgState

	pointsDelta  float64
	inserted     []models.Membership
	deactivated  []uuid.UUID
	stagedLog    []models.ConsumptionLogEntry
	finishedOnce sync.Once
}

var _ store.ReservationTx = (*reservationTx)(nil)

func (r *reservationTx) Organization() *models.Organization {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	clone := r.state.org
	clone.UsedPoints += r.pointsDelta
	return &clone
}

func (r *reservationTx) DebitPoints(ctx context.Context, amount float64) error {
	r.pointsDelta += amount
	return nil
}

func (r *reservationTx) InsertMembership(ctx context.Context, m *models.Membership) error {
	r.inserted = append(r.inserted, *m)
	return nil
}

func (r *reservationTx) DeactivateMembership(ctx context.Context, teacherID uuid.UUID) error {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for i := range r.state.memberships {
		m := &r.state.memberships[i]
		if m.TeacherID == teacherID && m.IsActive {
			r.deactivated = append(r.deactivated, teacherID)
			return nil
		}
	}
	return store.ErrMembershipNotFound
}

func (r *reservationTx) UsedPoints(ctx context.Context) (float64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.state.org.UsedPoints + r.pointsDelta, nil
}

func (r *reservationTx) ActiveSeatCount(ctx context.Context) (int32, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	count := countActiveSeats(r.state.memberships)
	count += countActiveSeats(r.inserted)
	for _, teacherID := range r.deactivated {
		// Owner memberships never counted toward the limit, so deactivating
		// one must not decrement.
		for i := range r.state.memberships {
			m := &r.state.memberships[i]
			if m.TeacherID == teacherID && m.IsActive && m.Role != models.RoleOwner {
				count--
				break
			}
		}
	}
	return count, nil
}

func (r *reservationTx) AppendLog(ctx context.Context, entry *models.ConsumptionLogEntry) error {
	r.stagedLog = append(r.stagedLog, *entry)
	return nil
}

func (r *reservationTx) Commit(ctx context.Context) error {
	r.finishedOnce.Do(func() {
		r.store.mu.Lock()
		r.state.org.UsedPoints += r.pointsDelta
		r.state.org.UpdatedAt = time.Now()
		r.state.memberships = append(r.state.memberships, r.inserted...)
		for _, teacherID := range r.deactivated {
			for i := range r.state.memberships {
				m := &r.state.memberships[i]
				if m.TeacherID == teacherID && m.IsActive {
					m.IsActive = false
					m.UpdatedAt = time.Now()
				}
			}
		}
		r.state.logEntries = append(r.state.logEntries, r.stagedLog...)
		r.store.mu.Unlock()

		<-r.state.lock
	})
	return nil
}

func (r *reservationTx) Rollback(ctx context.Context) error {
	r.finishedOnce.Do(func() {
		r.pointsDelta = 0
		r.inserted = nil
		r.deactivated = nil
		r.stagedLog = nil

		<-r.state.lock
	})
	return nil
}
