package engine

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/battlearena/combat-engine/internal/engine"

type instruments struct {
	resolved   metric.Int64Counter
	rejected   metric.Int64Counter
	collisions metric.Int64Counter
	contacts   metric.Int64Counter
	duration   metric.Float64Histogram
}

// newInstruments uses the global OTel meter (no-op if not configured).
func newInstruments() (*instruments, error) {
	m := otel.Meter(instrumentationName)
	var (
		ins instruments
		err error
	)

	ins.resolved, err = m.Int64Counter(
		"engine.fires.resolved",
		metric.WithDescription("Fires that completed simulation and resolution"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resolved counter: %w", err)
	}

	ins.rejected, err = m.Int64Counter(
		"engine.fires.rejected",
		metric.WithDescription("Fires rejected before simulation or failed during it"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}

	ins.collisions, err = m.Int64Counter(
		"engine.collisions",
		metric.WithDescription("Collisions that ended a projectile flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating collisions counter: %w", err)
	}

	ins.contacts, err = m.Int64Counter(
		"physics.contacts",
		metric.WithDescription("Contact-begin events raised by the physics world"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating contacts counter: %w", err)
	}

	ins.duration, err = m.Float64Histogram(
		"engine.fire.duration",
		metric.WithDescription("Wall time spent handling one fire"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &ins, nil
}
