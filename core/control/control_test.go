package control_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"example.com/fieldctl/core/control"
	"example.com/fieldctl/core/fuzzy"
	"example.com/fieldctl/core/predict"
	"example.com/fieldctl/core/readings"
	"example.com/fieldctl/core/rules"
	"example.com/fieldctl/net/telemetry"
)

type meter struct {
	mu  sync.Mutex
	v   float64
	err error
}

func (p *meter) set(v float64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v, p.err = v, err
}

func (p *meter) MeasureValue(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v, p.err
}

type relays struct {
	mu       sync.Mutex
	pump     bool
	spray    bool
	calls    int
	closed   bool
	pumpErr  error
	sprayErr error
}

func (r *relays) SetWaterPump(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.pumpErr != nil {
		return r.pumpErr
	}
	r.pump = on
	return nil
}

func (r *relays) SetPesticideSpray(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.sprayErr != nil {
		return r.sprayErr
	}
	r.spray = on
	return nil
}

func (r *relays) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *relays) snapshot() (pump, spray bool, calls int, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pump, r.spray, r.calls, r.closed
}

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

type outbox struct {
	mu   sync.Mutex
	msgs []telemetry.Message
	err  error
}

func (o *outbox) Transmit(_ context.Context, m telemetry.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, m)
	return nil
}

type field struct {
	meters map[string]*meter
	relays *relays
	outbox *outbox
	reg    *prometheus.Registry
	loop   *control.Loop
}

func newField(t *testing.T, temp, hum, soil, ph float64) *field {
	t.Helper()
	engine, _, err := rules.NewConfig()
	if err != nil {
		t.Fatal(err)
	}
	f := &field{
		meters: map[string]*meter{
			rules.Temperature:  {v: temp},
			rules.Humidity:     {v: hum},
			rules.SoilMoisture: {v: soil},
			rules.PHLevel:      {v: ph},
		},
		relays: &relays{},
		outbox: &outbox{},
		reg:    prometheus.NewRegistry(),
	}
	var srcs []*readings.Source
	for _, id := range rules.Inputs {
		srcs = append(srcs, readings.NewSource(id, "", f.meters[id]))
	}
	f.loop = &control.Loop{
		Log:             zap.NewNop(),
		Engine:          engine,
		Sources:         srcs,
		Actuators:       f.relays,
		Transmitter:     f.outbox,
		Period:          10 * time.Millisecond,
		SensorTimeout:   time.Second,
		PredictTimeout:  time.Second,
		TransmitTimeout: time.Second,
		Threshold:       control.DefaultThreshold,
		Samples:         1,
		Registerer:      f.reg,
	}
	return f
}

func metricValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					match = true
				}
			}
			if !match {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestRunCycleScenarios(t *testing.T) {
	tests := []struct {
		name            string
		temp, hum, soil float64
		ph              float64
		pump, spray     bool
	}{
		{"hot and dry", 90, 20, 10, 7, true, true},
		{"moderate", 50, 50, 50, 7, false, false},
		{"acidic and dry", 25, 30, 10, 3, true, true},
		{"wet and neutral", 25, 30, 90, 7, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newField(t, tt.temp, tt.hum, tt.soil, tt.ph)
			c := f.loop.RunCycle(context.Background())
			if c.Skipped {
				t.Fatalf("cycle skipped: %v", c.Errors)
			}
			pump, spray, _, _ := f.relays.snapshot()
			if pump != tt.pump || spray != tt.spray {
				t.Errorf("pump, spray = %v, %v; want %v, %v", pump, spray, tt.pump, tt.spray)
			}
			if c.Decisions[rules.WaterPump] != tt.pump || c.Decisions[rules.PesticideSpray] != tt.spray {
				t.Errorf("decisions = %v", c.Decisions)
			}
			if len(f.outbox.msgs) != 1 {
				t.Fatalf("transmitted %d messages, want 1", len(f.outbox.msgs))
			}
			if d := f.outbox.msgs[0].SensorData; d.Temperature != tt.temp || d.PHLevel != tt.ph {
				t.Errorf("telemetry = %+v", d)
			}
			if f.loop.State() != control.Idle {
				t.Errorf("state after cycle = %v, want idle", f.loop.State())
			}
		})
	}
}

func TestModerateFallback(t *testing.T) {
	f := newField(t, 50, 50, 50, 7)
	c := f.loop.RunCycle(context.Background())
	for _, out := range rules.Outputs {
		r := c.Results[out]
		if !r.Fallback || r.Value != 50 {
			t.Errorf("%s: result %+v; want fallback 50", out, r)
		}
		if n := metricValue(t, f.reg, "fieldctl_no_rule_fired", "output", out); n != 1 {
			t.Errorf("%s: no_rule_fired = %v, want 1", out, n)
		}
	}
	if len(c.Errors) != 0 {
		t.Errorf("cycle errors: %v", c.Errors)
	}
}

func TestSensorFailureHoldsActuators(t *testing.T) {
	f := newField(t, 90, 20, 10, 7)
	f.loop.RunCycle(context.Background())
	_, _, calls0, _ := f.relays.snapshot()

	f.meters[rules.Humidity].set(0, errors.New("checksum mismatch"))
	f.meters[rules.Temperature].set(10, nil)
	f.meters[rules.SoilMoisture].set(90, nil)
	c := f.loop.RunCycle(context.Background())
	if !c.Skipped {
		t.Fatal("cycle with a failed sensor was not skipped")
	}
	var sre *readings.SensorReadError
	if len(c.Errors) != 1 || !errors.As(c.Errors[0], &sre) || sre.SensorID != rules.Humidity {
		t.Errorf("cycle errors = %v; want one humidity SensorReadError", c.Errors)
	}
	pump, spray, calls, _ := f.relays.snapshot()
	if !pump || !spray || calls != calls0 {
		t.Errorf("actuators changed on sensor failure: pump %v, spray %v, calls %d -> %d", pump, spray, calls0, calls)
	}
	if len(f.outbox.msgs) != 1 {
		t.Errorf("telemetry sent for a skipped cycle")
	}
	if n := metricValue(t, f.reg, "fieldctl_sensor_faults", "sensor", rules.Humidity); n != 1 {
		t.Errorf("sensor_faults{humidity} = %v, want 1", n)
	}
}

func TestSensorTimeout(t *testing.T) {
	f := newField(t, 90, 20, 10, 7)
	block := make(chan struct{})
	defer close(block)
	f.loop.Sources[3] = readings.NewSource(rules.PHLevel, "pH", blocking(block))
	f.loop.SensorTimeout = 20 * time.Millisecond

	t0 := time.Now()
	c := f.loop.RunCycle(context.Background())
	if !c.Skipped {
		t.Errorf("cycle with a stuck sensor was not skipped")
	}
	if d := time.Since(t0); d > 2*time.Second {
		t.Errorf("cycle took %v despite a 20ms sensor timeout", d)
	}
	if _, _, calls, _ := f.relays.snapshot(); calls != 0 {
		t.Errorf("actuators switched %d times", calls)
	}
}

type blocking chan struct{}

func (b blocking) MeasureValue(context.Context) (float64, error) {
	<-b
	return 7, nil
}

func TestMissingInputSkipsOutput(t *testing.T) {
	f := newField(t, 90, 20, 10, 3)
	var srcs []*readings.Source
	for _, src := range f.loop.Sources {
		if src.ID != rules.Humidity {
			srcs = append(srcs, src)
		}
	}
	f.loop.Sources = srcs

	c := f.loop.RunCycle(context.Background())
	var me *fuzzy.MissingInputError
	if len(c.Errors) != 1 || !errors.As(c.Errors[0], &me) || me.Variable != rules.Humidity {
		t.Fatalf("cycle errors = %v; want MissingInputError for humidity", c.Errors)
	}
	if _, ok := c.Decisions[rules.WaterPump]; ok {
		t.Errorf("water pump decided without humidity")
	}
	pump, spray, _, _ := f.relays.snapshot()
	if pump || !spray {
		t.Errorf("pump, spray = %v, %v; want false, true", pump, spray)
	}
	if n := metricValue(t, f.reg, "fieldctl_inference_faults", "output", rules.WaterPump); n != 1 {
		t.Errorf("inference_faults{water_pump} = %v, want 1", n)
	}
}

func TestActuatorFailureIsNotFatal(t *testing.T) {
	f := newField(t, 90, 20, 10, 7)
	f.relays.pumpErr = errors.New("relay stuck")
	c := f.loop.RunCycle(context.Background())
	var ae *control.ActuatorError
	if len(c.Errors) != 1 || !errors.As(c.Errors[0], &ae) || ae.Actuator != rules.WaterPump {
		t.Fatalf("cycle errors = %v; want ActuatorError for water_pump", c.Errors)
	}
	if _, spray, _, _ := f.relays.snapshot(); !spray {
		t.Errorf("sprayer not switched after pump failure")
	}
	if len(f.outbox.msgs) != 1 {
		t.Errorf("telemetry not sent after actuator failure")
	}
}

func TestTransmissionFailureIsNotFatal(t *testing.T) {
	f := newField(t, 90, 20, 10, 7)
	f.outbox.err = &telemetry.TransmissionError{Backend: "http", Cause: errors.New("connection refused")}
	c := f.loop.RunCycle(context.Background())
	var te *telemetry.TransmissionError
	if len(c.Errors) != 1 || !errors.As(c.Errors[0], &te) {
		t.Fatalf("cycle errors = %v; want TransmissionError", c.Errors)
	}
	if pump, spray, _, _ := f.relays.snapshot(); !pump || !spray {
		t.Errorf("actuators not switched: pump %v, spray %v", pump, spray)
	}
	if n := metricValue(t, f.reg, "fieldctl_transmission_faults", "", ""); n != 1 {
		t.Errorf("transmission_faults = %v, want 1", n)
	}

	f.outbox.err = nil
	c = f.loop.RunCycle(context.Background())
	if len(c.Errors) != 0 || len(f.outbox.msgs) != 1 {
		t.Errorf("next cycle: errors %v, %d messages", c.Errors, len(f.outbox.msgs))
	}
}

func TestPredictionsAreAdvisory(t *testing.T) {
	f := newField(t, 50, 50, 50, 7)
	h, err := predict.NewHandle(
		&predict.Model{
			ID:           predict.SoilMoisture,
			Kind:         predict.KindLinear,
			Features:     []string{rules.Humidity, rules.Temperature},
			Intercept:    100,
			Coefficients: []float64{1, 1},
		},
		&predict.Model{
			ID:           predict.PlantHealth,
			Kind:         predict.KindLogistic,
			Features:     []string{"leaf_wetness"},
			Coefficients: []float64{1},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	f.loop.Predictor = h

	c := f.loop.RunCycle(context.Background())
	if got := c.Predictions[predict.SoilMoisture]; got != 200 {
		t.Errorf("soil moisture prediction = %v, want 200", got)
	}
	var ie *predict.InferenceError
	if len(c.Errors) != 1 || !errors.As(c.Errors[0], &ie) || ie.ModelID != predict.PlantHealth {
		t.Errorf("cycle errors = %v; want InferenceError for plant_health", c.Errors)
	}
	if pump, spray, _, _ := f.relays.snapshot(); pump || spray {
		t.Errorf("predictions changed the actuators: pump %v, spray %v", pump, spray)
	}
	if len(f.outbox.msgs) != 1 {
		t.Errorf("telemetry not sent")
	}
}

func TestRunShutsDown(t *testing.T) {
	f := newField(t, 90, 20, 10, 3)
	sensorPort := &closer{}
	f.loop.Closers = []io.Closer{sensorPort}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if pump, spray, _, _ := f.relays.snapshot(); pump && spray {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("actuators never switched on")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	pump, spray, _, closed := f.relays.snapshot()
	if pump || spray || !closed {
		t.Errorf("after shutdown: pump %v, spray %v, closed %v", pump, spray, closed)
	}
	if !sensorPort.closed {
		t.Errorf("sensor resources not released")
	}
	if f.loop.State() != control.ShuttingDown {
		t.Errorf("state = %v, want shutting down", f.loop.State())
	}
}

func TestRunCanceledBeforeStart(t *testing.T) {
	f := newField(t, 90, 20, 10, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.loop.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, calls, closed := f.relays.snapshot(); calls != 2 || !closed {
		t.Errorf("calls %d, closed %v; want only the two shutdown commands", calls, closed)
	}
}

func TestRunRejectsInvalidLoop(t *testing.T) {
	f := newField(t, 90, 20, 10, 3)
	f.loop.RunCycle(context.Background())
	if pump, spray, _, _ := f.relays.snapshot(); !pump || !spray {
		t.Fatalf("actuators not switched on: pump %v, spray %v", pump, spray)
	}
	sensorPort := &closer{}
	f.loop.Closers = []io.Closer{sensorPort}
	f.loop.Period = 0
	if err := f.loop.Run(context.Background()); err == nil {
		t.Errorf("Run accepted a zero period")
	}
	pump, spray, _, closed := f.relays.snapshot()
	if pump || spray || !closed {
		t.Errorf("after rejected Run: pump %v, spray %v, closed %v", pump, spray, closed)
	}
	if !sensorPort.closed {
		t.Errorf("sensor resources not released")
	}
}

func TestStopDuringAcquisition(t *testing.T) {
	f := newField(t, 90, 20, 10, 7)
	block := make(chan struct{})
	defer close(block)
	f.loop.Sources[3] = readings.NewSource(rules.PHLevel, "pH", blocking(block))
	f.loop.SensorTimeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	c := f.loop.RunCycle(ctx)
	if !c.Skipped {
		t.Errorf("interrupted cycle was not skipped")
	}
	if len(c.Errors) != 1 || !errors.Is(c.Errors[0], context.Canceled) {
		t.Errorf("cycle errors = %v; want context.Canceled", c.Errors)
	}
	if n := metricValue(t, f.reg, "fieldctl_sensor_faults", "sensor", rules.PHLevel); n != 0 {
		t.Errorf("sensor_faults{ph_level} = %v, want 0", n)
	}
	if _, _, calls, _ := f.relays.snapshot(); calls != 0 {
		t.Errorf("actuators switched %d times", calls)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    control.State
		want string
	}{
		{control.Idle, "idle"},
		{control.Sampling, "sampling"},
		{control.Inferring, "inferring"},
		{control.Actuating, "actuating"},
		{control.Transmitting, "transmitting"},
		{control.ShuttingDown, "shutting down"},
		{control.State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
