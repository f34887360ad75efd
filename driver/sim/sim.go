// Package sim provides simulated sensors and actuators for hosts without
// field hardware.
package sim

import (
	"context"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"
)

// Sensor reports Value perturbed by uniform noise in [-Jitter, Jitter].
type Sensor struct {
	Value  float64
	Jitter float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSensor(value, jitter float64, seed uint64) *Sensor {
	return &Sensor{
		Value:  value,
		Jitter: jitter,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Sensor) MeasureValue(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.Jitter == 0 {
		return s.Value, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Value + s.Jitter*(2*s.rng.Float64()-1), nil
}

// Actuators records the commanded relay states.
type Actuators struct {
	Log *zap.Logger

	mu     sync.Mutex
	pump   bool
	spray  bool
	closed bool
}

func (a *Actuators) SetWaterPump(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pump != on {
		a.Log.Info("water pump switched", zap.Bool("on", on))
	}
	a.pump = on
	return nil
}

func (a *Actuators) SetPesticideSpray(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.spray != on {
		a.Log.Info("pesticide spray switched", zap.Bool("on", on))
	}
	a.spray = on
	return nil
}

// State returns the current pump and sprayer states.
func (a *Actuators) State() (pump, spray bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pump, a.spray
}

func (a *Actuators) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Actuators) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pump, a.spray, a.closed = false, false, true
	return nil
}
