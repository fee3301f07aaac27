//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/edurail/quotaguard/internal/engine"
	"github.com/edurail/quotaguard/internal/logger"
	"github.com/edurail/quotaguard/internal/models"
	"github.com/edurail/quotaguard/internal/points"
	"github.com/edurail/quotaguard/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*ReservationStore, *OrganizationStore, func()) {
	log.Logger = logger.Setup(true)

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString:  connString,
		AutoMigrate: true, // Enable migrations for tests
	})
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return NewReservationStore(pool), NewOrganizationStore(pool), cleanup
}

func createTestOrg(t *testing.T, ctx context.Context, orgs *OrganizationStore, totalPoints *float64, usedPoints float64, seatLimit *int32) uuid.UUID {
	t.Helper()

	orgID := uuid.Must(uuid.NewV7())
	err := orgs.Create(ctx, &models.Organization{
		OrgID:            orgID,
		Name:             "Integration Test Org",
		TotalPoints:      totalPoints,
		UsedPoints:       usedPoints,
		TeacherSeatLimit: seatLimit,
		BufferPercent:    0.20,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	})
	require.NoError(t, err)
	return orgID
}

func f64(v float64) *float64 { return &v }
func i32(v int32) *int32     { return &v }

func TestIntegration_ConsumptionLifecycle(t *testing.T) {
	ctx := context.Background()
	resStore, orgStore, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	eng := engine.New(resStore)

	t.Run("within limit commits", func(t *testing.T) {
		orgID := createTestOrg(t, ctx, orgStore, f64(100), 0, nil)

		res, err := eng.ReserveConsumption(ctx, &engine.ConsumptionRequest{
			OrgID:       orgID,
			ActorID:     uuid.Must(uuid.NewV7()),
			FeatureType: "speech_assessment",
			UnitType:    points.UnitSeconds,
			UnitCount:   42,
		})
		require.NoError(t, err)
		require.Equal(t, models.OutcomeAllowed, res.Outcome)
		require.InDelta(t, 42.0, res.PointsDeducted, 1e-9)

		org, err := orgStore.Get(ctx, orgID)
		require.NoError(t, err)
		require.InDelta(t, 42.0, org.UsedPoints, 1e-9)
	})

	t.Run("buffer band warns", func(t *testing.T) {
		orgID := createTestOrg(t, ctx, orgStore, f64(100), 95, nil)

		res, err := eng.ReserveConsumption(ctx, &engine.ConsumptionRequest{
			OrgID:       orgID,
			ActorID:     uuid.Must(uuid.NewV7()),
			FeatureType: "speech_assessment",
			UnitType:    points.UnitSeconds,
			UnitCount:   10,
		})
		require.NoError(t, err)
		require.Equal(t, models.OutcomeAllowedWithWarning, res.Outcome)

		org, err := orgStore.Get(ctx, orgID)
		require.NoError(t, err)
		require.InDelta(t, 105.0, org.UsedPoints, 1e-9)
	})

	t.Run("over buffer rejects without partial debit", func(t *testing.T) {
		orgID := createTestOrg(t, ctx, orgStore, f64(100), 115, nil)

		_, err := eng.ReserveConsumption(ctx, &engine.ConsumptionRequest{
			OrgID:       orgID,
			ActorID:     uuid.Must(uuid.NewV7()),
			FeatureType: "speech_assessment",
			UnitType:    points.UnitSeconds,
			UnitCount:   10,
		})
		var quotaErr *engine.QuotaExceededError
		require.ErrorAs(t, err, &quotaErr)

		org, err := orgStore.Get(ctx, orgID)
		require.NoError(t, err)
		require.InDelta(t, 115.0, org.UsedPoints, 1e-9)

		entries, err := resStore.ListLogEntries(ctx, orgID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, models.OutcomeRejected, entries[0].Outcome)
	})
}

func TestIntegration_ConcurrentSeatRace(t *testing.T) {
	ctx := context.Background()
	resStore, orgStore, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	eng := engine.New(resStore)
	orgID := createTestOrg(t, ctx, orgStore, nil, 0, i32(3))

	const workers = 10

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.ReserveSeat(ctx, &engine.SeatRequest{
				OrgID:     orgID,
				TeacherID: uuid.Must(uuid.NewV7()),
				Role:      models.RoleTeacher,
			})
		}(i)
	}
	wg.Wait()

	var committed int
	for _, err := range errs {
		if err == nil {
			committed++
		} else {
			var quotaErr *engine.QuotaExceededError
			require.ErrorAs(t, err, &quotaErr)
		}
	}
	require.Equal(t, 3, committed)

	seats, err := resStore.Snapshot(ctx, orgID, models.ResourceSeats)
	require.NoError(t, err)
	require.InDelta(t, 3.0, seats, 1e-9)

	entries, err := resStore.ListLogEntries(ctx, orgID, workers+1)
	require.NoError(t, err)
	require.Len(t, entries, workers)
}

func TestIntegration_ConcurrentPointsNoOvershoot(t *testing.T) {
	ctx := context.Background()
	resStore, orgStore, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	eng := engine.New(resStore)
	orgID := createTestOrg(t, ctx, orgStore, f64(100), 0, nil)

	const workers = 30

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.ReserveConsumption(ctx, &engine.ConsumptionRequest{
				OrgID:       orgID,
				ActorID:     uuid.Must(uuid.NewV7()),
				FeatureType: "speech_assessment",
				UnitType:    points.UnitSeconds,
				UnitCount:   10,
			})
		}(i)
	}
	wg.Wait()

	var committed int
	for _, err := range errs {
		if err == nil {
			committed++
		}
	}
	require.Equal(t, 12, committed, "largest prefix not exceeding limit*1.2")

	org, err := orgStore.Get(ctx, orgID)
	require.NoError(t, err)
	require.InDelta(t, 120.0, org.UsedPoints, 1e-9)
}

func TestIntegration_LockTimeout(t *testing.T) {
	ctx := context.Background()
	resStore, orgStore, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgID := createTestOrg(t, ctx, orgStore, f64(100), 0, nil)

	// hold the row lock in one transaction
	blocker, err := resStore.Begin(ctx, orgID)
	require.NoError(t, err)
	defer blocker.Rollback(ctx) //nolint:errcheck

	lockCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	_, err = resStore.Begin(lockCtx, orgID)
	require.ErrorIs(t, err, store.ErrLockTimeout)
}
