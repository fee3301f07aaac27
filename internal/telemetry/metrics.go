package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/edurail/quotaguard"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Reservation outcome metrics
	ReservationsAllowedTotal  metric.Int64Counter
	ReservationsWarnedTotal   metric.Int64Counter
	ReservationsRejectedTotal metric.Int64Counter

	// Contention metrics
	PrecheckRejectedTotal metric.Int64Counter
	LockTimeoutsTotal     metric.Int64Counter
	LockWaitDuration      metric.Float64Histogram

	// Consumption metrics
	PointsDeductedTotal metric.Float64Counter
	SeatsReservedTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.ReservationsAllowedTotal, _ = meter.Int64Counter(
		"quotaguard.reservations.allowed.total",
		metric.WithDescription("Total number of reservations committed within the hard limit"),
		metric.WithUnit("{reservation}"),
	)

	m.ReservationsWarnedTotal, _ = meter.Int64Counter(
		"quotaguard.reservations.warned.total",
		metric.WithDescription("Total number of reservations committed inside the buffer band"),
		metric.WithUnit("{reservation}"),
	)

	m.ReservationsRejectedTotal, _ = meter.Int64Counter(
		"quotaguard.reservations.rejected.total",
		metric.WithDescription("Total number of reservations rejected over the limit plus buffer"),
		metric.WithUnit("{reservation}"),
	)

	m.PrecheckRejectedTotal, _ = meter.Int64Counter(
		"quotaguard.precheck.rejected.total",
		metric.WithDescription("Total number of reservations fast-failed before opening a transaction"),
		metric.WithUnit("{reservation}"),
	)

	m.LockTimeoutsTotal, _ = meter.Int64Counter(
		"quotaguard.lock.timeouts.total",
		metric.WithDescription("Total number of reservations aborted waiting for the organization row lock"),
		metric.WithUnit("{timeout}"),
	)

	m.LockWaitDuration, _ = meter.Float64Histogram(
		"quotaguard.lock.wait.duration",
		metric.WithDescription("Time spent acquiring the organization row lock"),
		metric.WithUnit("ms"),
	)

	m.PointsDeductedTotal, _ = meter.Float64Counter(
		"quotaguard.points.deducted.total",
		metric.WithDescription("Total points committed against organization budgets"),
		metric.WithUnit("{point}"),
	)

	m.SeatsReservedTotal, _ = meter.Int64Counter(
		"quotaguard.seats.reserved.total",
		metric.WithDescription("Total teacher seats committed"),
		metric.WithUnit("{seat}"),
	)

	return m
}
