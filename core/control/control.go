// Package control runs the periodic decision cycle of the field controller:
// sample the sensors, infer actuator intensities, switch the actuators and
// report the readings.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"example.com/fieldctl/core/fuzzy"
	"example.com/fieldctl/core/readings"
	"example.com/fieldctl/core/rules"
	"example.com/fieldctl/net/telemetry"
)

type State int32

const (
	Idle State = iota
	Sampling
	Inferring
	Actuating
	Transmitting
	ShuttingDown
)

var stateNames = [...]string{
	Idle:         "idle",
	Sampling:     "sampling",
	Inferring:    "inferring",
	Actuating:    "actuating",
	Transmitting: "transmitting",
	ShuttingDown: "shutting down",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

const DefaultThreshold = 50

var (
	errNoEngine    = errors.New("no inference engine configured")
	errNoActuators = errors.New("no actuators configured")
	errNoActuator  = errors.New("no actuator for output")
	errInvalidLoop = errors.New("invalid loop timing")
)

// Actuators switches the two field actuators. Set operations are idempotent.
type Actuators interface {
	SetWaterPump(on bool) error
	SetPesticideSpray(on bool) error
	Close() error
}

// Predictor computes advisory estimates. Its results are reported but never
// drive the actuators.
type Predictor interface {
	Models() []string
	FeatureVector(id string, values map[string]float64) ([]float64, error)
	Predict(ctx context.Context, id string, features []float64) (float64, error)
}

type ActuatorError struct {
	Actuator string
	Cause    error
}

func (e *ActuatorError) Error() string {
	return fmt.Sprintf("failed to switch %s: %v", e.Actuator, e.Cause)
}

func (e *ActuatorError) Unwrap() error { return e.Cause }

// Cycle records what one decision cycle observed and did.
type Cycle struct {
	Seq         uint64
	Readings    []readings.Reading
	Results     map[string]fuzzy.Result
	Decisions   map[string]bool
	Predictions map[string]float64
	// Skipped is set when acquisition failed and the actuators were left
	// untouched.
	Skipped bool
	Errors  []error
}

type Loop struct {
	Log         *zap.Logger
	Engine      *fuzzy.Config
	Sources     []*readings.Source
	Actuators   Actuators
	Predictor   Predictor
	Transmitter telemetry.Transmitter
	// Closers are released after the actuators on shutdown.
	Closers []io.Closer

	Period          time.Duration
	SensorTimeout   time.Duration
	PredictTimeout  time.Duration
	TransmitTimeout time.Duration
	Threshold       float64
	Samples         int

	Registerer prometheus.Registerer

	state   atomic.Int32
	seq     uint64
	metrics *loopMetrics
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) enter(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev != s {
		l.Log.Debug("state transition", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

func (l *Loop) init() {
	if l.metrics == nil {
		l.metrics = newLoopMetrics(l.Registerer)
	}
	if l.Samples < 1 {
		l.Samples = 1
	}
}

func (l *Loop) setActuator(output string, on bool) error {
	switch output {
	case rules.WaterPump:
		return l.Actuators.SetWaterPump(on)
	case rules.PesticideSpray:
		return l.Actuators.SetPesticideSpray(on)
	default:
		return errNoActuator
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (l *Loop) sample(ctx context.Context, c *Cycle) bool {
	l.enter(Sampling)
	rs, err := readings.Acquire(ctx, l.SensorTimeout, l.Sources, l.Samples)
	if err != nil && ctx.Err() != nil {
		l.Log.Info("acquisition interrupted by stop request", zap.Uint64("cycle", c.Seq))
		c.Errors = append(c.Errors, ctx.Err())
		return false
	}
	if err != nil {
		var fs readings.Faults
		if errors.As(err, &fs) {
			for _, f := range fs {
				l.metrics.sensorFaults.WithLabelValues(f.SensorID).Inc()
				l.Log.Error("failed to read sensor", zap.String("sensor", f.SensorID), zap.Error(f.Cause))
				c.Errors = append(c.Errors, f)
			}
		} else {
			c.Errors = append(c.Errors, err)
		}
		l.Log.Warn("skipping cycle, actuators hold their state", zap.Uint64("cycle", c.Seq))
		return false
	}
	c.Readings = rs
	for _, r := range rs {
		l.metrics.sensorValue.WithLabelValues(r.SensorID).Set(r.Value)
		l.Log.Debug("sensor reading",
			zap.String("sensor", r.SensorID), zap.Float64("value", r.Value), zap.String("unit", r.Unit))
	}
	return true
}

func (l *Loop) infer(c *Cycle) {
	l.enter(Inferring)
	in := l.Engine.Fuzzify(readings.Values(c.Readings))
	for _, out := range l.Engine.Outputs() {
		res, err := l.Engine.Compute(out, in)
		var w *fuzzy.NoRuleFiredWarning
		switch {
		case err == nil:
		case errors.As(err, &w):
			l.metrics.noRuleFired.WithLabelValues(out).Inc()
			l.Log.Info("no rule fired, using fallback",
				zap.String("output", out), zap.Float64("fallback", w.Fallback))
		default:
			l.metrics.inferenceFaults.WithLabelValues(out).Inc()
			l.Log.Error("inference failed, actuator holds its state", zap.String("output", out), zap.Error(err))
			c.Errors = append(c.Errors, err)
			continue
		}
		l.metrics.outputValue.WithLabelValues(out).Set(res.Value)
		l.Log.Debug("crisp output",
			zap.String("output", out), zap.Float64("value", res.Value), zap.Float64s("strengths", res.Strengths))
		c.Results[out] = res
	}
}

func (l *Loop) predict(ctx context.Context, c *Cycle) {
	if l.Predictor == nil {
		return
	}
	values := readings.Values(c.Readings)
	for _, id := range l.Predictor.Models() {
		x, err := l.Predictor.FeatureVector(id, values)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, l.PredictTimeout)
			var y float64
			y, err = l.Predictor.Predict(pctx, id, x)
			cancel()
			if err == nil {
				l.metrics.predictionValue.WithLabelValues(id).Set(y)
				l.Log.Debug("advisory prediction", zap.String("model", id), zap.Float64("value", y))
				c.Predictions[id] = y
				continue
			}
		}
		l.metrics.predictionFaults.WithLabelValues(id).Inc()
		l.Log.Error("advisory prediction failed", zap.String("model", id), zap.Error(err))
		c.Errors = append(c.Errors, err)
	}
}

func (l *Loop) actuate(c *Cycle) {
	l.enter(Actuating)
	for _, out := range l.Engine.Outputs() {
		res, ok := c.Results[out]
		if !ok {
			continue
		}
		on := res.Value > l.Threshold
		err := l.setActuator(out, on)
		if err != nil {
			l.metrics.actuatorFaults.WithLabelValues(out).Inc()
			l.Log.Error("failed to switch actuator",
				zap.String("actuator", out), zap.Bool("on", on), zap.Error(err))
			c.Errors = append(c.Errors, &ActuatorError{Actuator: out, Cause: err})
			continue
		}
		l.metrics.actuatorState.WithLabelValues(out).Set(boolGauge(on))
		c.Decisions[out] = on
	}
	l.Log.Info("decision",
		zap.Uint64("cycle", c.Seq),
		zap.Any("readings", readings.Values(c.Readings)),
		zap.Any("actuators", c.Decisions))
}

func (l *Loop) transmit(ctx context.Context, c *Cycle) {
	l.enter(Transmitting)
	if l.Transmitter == nil {
		return
	}
	tctx, cancel := context.WithTimeout(ctx, l.TransmitTimeout)
	defer cancel()
	err := l.Transmitter.Transmit(tctx, telemetry.NewMessage(c.Readings))
	if err != nil {
		l.metrics.transmissionFaults.Inc()
		l.Log.Error("dropping telemetry", zap.Uint64("cycle", c.Seq), zap.Error(err))
		c.Errors = append(c.Errors, err)
		return
	}
	l.metrics.transmissions.Inc()
}

// RunCycle performs one decision cycle and returns to Idle. Faults are
// logged and recorded in the returned Cycle; none of them is fatal.
func (l *Loop) RunCycle(ctx context.Context) Cycle {
	l.init()
	l.seq++
	c := Cycle{
		Seq:         l.seq,
		Results:     map[string]fuzzy.Result{},
		Decisions:   map[string]bool{},
		Predictions: map[string]float64{},
	}
	l.metrics.cyclesStarted.Inc()
	defer l.enter(Idle)

	if !l.sample(ctx, &c) {
		c.Skipped = true
		return c
	}
	l.infer(&c)
	l.predict(ctx, &c)
	l.actuate(&c)
	l.transmit(ctx, &c)
	l.metrics.cyclesCompleted.Inc()
	return c
}

func (l *Loop) validate() error {
	if l.Engine == nil {
		return errNoEngine
	}
	if l.Actuators == nil {
		return errNoActuators
	}
	if l.Period <= 0 || l.SensorTimeout <= 0 ||
		(l.Predictor != nil && l.PredictTimeout <= 0) ||
		(l.Transmitter != nil && l.TransmitTimeout <= 0) {
		return errInvalidLoop
	}
	return nil
}

// shutdown forces both actuators off and releases all hardware handles.
func (l *Loop) shutdown() {
	l.enter(ShuttingDown)
	if err := l.Actuators.SetWaterPump(false); err != nil {
		l.Log.Error("failed to switch off actuator", zap.String("actuator", rules.WaterPump), zap.Error(err))
	}
	if err := l.Actuators.SetPesticideSpray(false); err != nil {
		l.Log.Error("failed to switch off actuator", zap.String("actuator", rules.PesticideSpray), zap.Error(err))
	}
	if err := l.Actuators.Close(); err != nil {
		l.Log.Error("failed to release actuators", zap.Error(err))
	}
	for _, c := range l.Closers {
		if err := c.Close(); err != nil {
			l.Log.Error("failed to release resource", zap.Error(err))
		}
	}
	l.Log.Info("actuators switched off, hardware released")
}

// Run executes a cycle immediately and then once per period until ctx is
// canceled. Whatever state the loop is in when Run returns, the actuators
// end up off and released, also when the loop is rejected as invalid.
func (l *Loop) Run(ctx context.Context) error {
	err := l.validate()
	if err != nil {
		if l.Actuators != nil && l.Log != nil {
			l.shutdown()
		}
		return err
	}
	l.init()
	defer l.shutdown()

	ticker := time.NewTicker(l.Period)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			l.Log.Info("stop requested", zap.Uint64("cycles", l.seq))
			return nil
		}
		_ = l.RunCycle(ctx)
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}
