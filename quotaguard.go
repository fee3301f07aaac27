// Package quotaguard enforces per-organization resource limits: a points
// quota for feature consumption and a seat cap on active teacher
// memberships. It is invoked in-process around feature execution; the host
// routes requests, authenticates callers, and translates the error taxonomy
// into user-facing messages.
//
// The implementation lives under internal/; this package is the importable
// surface. Construct an Engine over one of the store backends:
//
//	pool, err := quotaguard.NewPool(ctx, cfg.Database.PoolConfig())
//	eng := quotaguard.New(quotaguard.NewReservationStore(pool))
//	res, err := eng.ReserveConsumption(ctx, &quotaguard.ConsumptionRequest{...})
package quotaguard

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edurail/quotaguard/internal/config"
	"github.com/edurail/quotaguard/internal/engine"
	"github.com/edurail/quotaguard/internal/models"
	"github.com/edurail/quotaguard/internal/points"
	"github.com/edurail/quotaguard/internal/store"
	"github.com/edurail/quotaguard/internal/store/memory"
	"github.com/edurail/quotaguard/internal/store/postgres"
)

// Engine executes reservations against a single backing store.
type Engine = engine.Engine

// Option configures an Engine.
type Option = engine.Option

// DefaultBufferPercent is the tolerance band applied when an organization has
// no per-organization buffer configured.
const DefaultBufferPercent = engine.DefaultBufferPercent

// New creates a reservation engine backed by st.
func New(st ReservationStore, opts ...Option) *Engine {
	return engine.New(st, opts...)
}

// WithDefaultBuffer overrides the fallback buffer percentage applied to
// organizations without their own buffer configuration.
func WithDefaultBuffer(percent float64) Option {
	return engine.WithDefaultBuffer(percent)
}

// Request and result types.
type (
	ConsumptionRequest = engine.ConsumptionRequest
	SeatRequest        = engine.SeatRequest
	Result             = engine.Result
)

// Domain model types.
type (
	Organization        = models.Organization
	Membership          = models.Membership
	ConsumptionLogEntry = models.ConsumptionLogEntry
	Outcome             = models.Outcome
	ResourceKind        = models.ResourceKind
)

const (
	OutcomeAllowed            = models.OutcomeAllowed
	OutcomeAllowedWithWarning = models.OutcomeAllowedWithWarning
	OutcomeRejected           = models.OutcomeRejected
	OutcomeTimedOut           = models.OutcomeTimedOut

	ResourcePoints = models.ResourcePoints
	ResourceSeats  = models.ResourceSeats

	RoleOwner   = models.RoleOwner
	RoleTeacher = models.RoleTeacher
)

// Unit is a recognized usage unit. The set is closed on purpose.
type Unit = points.Unit

const (
	UnitSeconds    = points.UnitSeconds
	UnitCharacters = points.UnitCharacters
	UnitImages     = points.UnitImages
	UnitMinutes    = points.UnitMinutes
)

// Convert returns the points cost of count units.
func Convert(unit Unit, count int64) (float64, error) {
	return points.Convert(unit, count)
}

// Error taxonomy. The host translates kinds into user-facing messages.
type (
	QuotaExceededError = engine.QuotaExceededError
	ErrorKind          = engine.Kind
)

var (
	ErrContentionTimeout    = engine.ErrContentionTimeout
	ErrUnrecognizedUnit     = points.ErrUnrecognizedUnit
	ErrOrganizationNotFound = store.ErrOrganizationNotFound
	ErrMembershipNotFound   = store.ErrMembershipNotFound
)

const (
	KindUnknown              = engine.KindUnknown
	KindUnrecognizedUnit     = engine.KindUnrecognizedUnit
	KindQuotaExceeded        = engine.KindQuotaExceeded
	KindContentionTimeout    = engine.KindContentionTimeout
	KindOrganizationNotFound = engine.KindOrganizationNotFound
)

// ClassifyError maps an error returned by the engine to its taxonomy kind.
func ClassifyError(err error) ErrorKind {
	return engine.ClassifyError(err)
}

// Retryable reports whether the caller may usefully retry the same request.
func Retryable(err error) bool {
	return engine.Retryable(err)
}

// Store contracts and backends.
type (
	ReservationStore  = store.ReservationStore
	ReservationTx     = store.ReservationTx
	OrganizationStore = store.OrganizationStore

	MemoryStore = memory.Store
	PoolConfig  = postgres.PoolConfig
)

// NewMemoryStore creates an in-memory store implementing both the reservation
// and organization contracts. For testing only; data is lost on restart.
func NewMemoryStore() *MemoryStore {
	return memory.NewStore()
}

// NewPool creates a PostgreSQL connection pool, optionally running the
// embedded schema migrations.
func NewPool(ctx context.Context, cfg *PoolConfig) (*pgxpool.Pool, error) {
	return postgres.NewPool(ctx, cfg)
}

// NewReservationStore creates a PostgreSQL-backed reservation store.
func NewReservationStore(pool *pgxpool.Pool) *postgres.ReservationStore {
	return postgres.NewReservationStore(pool)
}

// NewOrganizationStore creates a PostgreSQL-backed organization store sharing
// the reservation store's pool.
func NewOrganizationStore(pool *pgxpool.Pool) *postgres.OrganizationStore {
	return postgres.NewOrganizationStore(pool)
}

// Host-process configuration.
type (
	Config         = config.Config
	DatabaseConfig = config.DatabaseConfig
)

// LoadConfig reads, parses, and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig parses a YAML config document, applies defaults, and validates.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}
