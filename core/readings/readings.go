package readings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"example.com/fieldctl/base/floats"
)

// Sensor is a single probe. MeasureValue should honor ctx but callers do not
// rely on it: Measure abandons a call once ctx is done.
type Sensor interface {
	MeasureValue(ctx context.Context) (float64, error)
}

type Source struct {
	ID     string
	Unit   string
	Sensor Sensor

	inFlight atomic.Bool
}

type Reading struct {
	SensorID  string
	Unit      string
	Value     float64
	Timestamp time.Time
}

type SensorReadError struct {
	SensorID string
	Cause    error
}

func (e *SensorReadError) Error() string {
	return fmt.Sprintf("failed to read sensor %q: %v", e.SensorID, e.Cause)
}

func (e *SensorReadError) Unwrap() error { return e.Cause }

// Faults collects the sensor errors of one acquisition.
type Faults []*SensorReadError

func (fs Faults) Error() string {
	ss := make([]string, len(fs))
	for i, f := range fs {
		ss[i] = f.Error()
	}
	return strings.Join(ss, "; ")
}

var (
	errBusy      = errors.New("previous measurement still in progress")
	errNotFinite = errors.New("non-finite value")
)

func NewSource(id, unit string, s Sensor) *Source {
	return &Source{ID: id, Unit: unit, Sensor: s}
}

func (src *Source) measureOnce(ctx context.Context) (float64, error) {
	if !src.inFlight.CompareAndSwap(false, true) {
		return 0, errBusy
	}
	type result struct {
		v   float64
		err error
	}
	c := make(chan result, 1)
	go func() {
		defer src.inFlight.Store(false)
		v, err := src.Sensor.MeasureValue(ctx)
		c <- result{v, err}
	}()
	select {
	case r := <-c:
		if r.err == nil && !floats.Finite(r.v) {
			r.err = errNotFinite
		}
		return r.v, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Measure takes n samples from src and returns their median.
func Measure(ctx context.Context, src *Source, n int) (Reading, error) {
	if n < 1 {
		panic("unexpected number of samples")
	}
	vs := make([]float64, 0, n)
	for range n {
		v, err := src.measureOnce(ctx)
		if err != nil {
			return Reading{}, &SensorReadError{SensorID: src.ID, Cause: err}
		}
		vs = append(vs, v)
	}
	return Reading{
		SensorID:  src.ID,
		Unit:      src.Unit,
		Value:     floats.Median(vs),
		Timestamp: time.Now(),
	}, nil
}

// Acquire measures every source in turn, each bounded by timeout. All sources
// are attempted; on failure the returned error is of type Faults.
func Acquire(ctx context.Context, timeout time.Duration, srcs []*Source, n int) (
	[]Reading, error) {
	var (
		rs []Reading
		fs Faults
	)
	for _, src := range srcs {
		mctx, cancel := context.WithTimeout(ctx, timeout)
		r, err := Measure(mctx, src, n)
		cancel()
		if err != nil {
			var sre *SensorReadError
			if !errors.As(err, &sre) {
				sre = &SensorReadError{SensorID: src.ID, Cause: err}
			}
			fs = append(fs, sre)
			continue
		}
		rs = append(rs, r)
	}
	if len(fs) != 0 {
		return rs, fs
	}
	return rs, nil
}

// Values maps sensor ids to values.
func Values(rs []Reading) map[string]float64 {
	m := make(map[string]float64, len(rs))
	for _, r := range rs {
		m[r.SensorID] = r.Value
	}
	return m
}
