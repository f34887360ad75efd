package soil_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"example.com/fieldctl/driver/soil"
)

type level struct {
	dry bool
	err error
}

func (l level) Dry() (bool, error) { return l.dry, l.err }

type raw float64

func (r raw) MeasureValue(context.Context) (float64, error) { return float64(r), nil }

func TestDigital(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		dry  bool
		want float64
	}{
		{true, 10},
		{false, 80},
	}
	for _, tt := range tests {
		d := &soil.Digital{Probe: level{dry: tt.dry}, DryPercent: 10, WetPercent: 80}
		got, err := d.MeasureValue(ctx)
		if err != nil || got != tt.want {
			t.Errorf("Digital(dry=%v) = %v, %v; want %v", tt.dry, got, err, tt.want)
		}
	}

	errProbe := errors.New("line busy")
	d := &soil.Digital{Probe: level{err: errProbe}}
	if _, err := d.MeasureValue(ctx); !errors.Is(err, errProbe) {
		t.Errorf("Digital with failing probe = %v", err)
	}
}

func TestAnalog(t *testing.T) {
	tests := []struct {
		raw, want float64
	}{
		{3300, 0},
		{1200, 100},
		{2250, 50},
		{4000, 0},
		{500, 100},
	}
	for _, tt := range tests {
		a := &soil.Analog{ADC: raw(tt.raw), DryRaw: 3300, WetRaw: 1200}
		got, err := a.MeasureValue(context.Background())
		if err != nil || math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Analog(%v) = %v, %v; want %v", tt.raw, got, err, tt.want)
		}
	}
}
