// Package soil turns soil-moisture probe outputs into a moisture percentage.
package soil

import (
	"context"

	"example.com/fieldctl/base/floats"
	"example.com/fieldctl/driver/gpio"
)

// LevelReader reads the comparator output of a digital probe.
// true means the probe reports dry soil.
type LevelReader interface {
	Dry() (bool, error)
}

// Digital maps the two states of a comparator probe to fixed percentages.
type Digital struct {
	Probe      LevelReader
	DryPercent float64
	WetPercent float64
}

func (d *Digital) MeasureValue(ctx context.Context) (float64, error) {
	dry, err := d.Probe.Dry()
	if err != nil {
		return 0, err
	}
	if dry {
		return d.DryPercent, nil
	}
	return d.WetPercent, nil
}

// RawReader yields raw ADC counts.
type RawReader interface {
	MeasureValue(ctx context.Context) (float64, error)
}

// Analog linearly maps ADC counts between the calibration points for dry
// and saturated soil onto 0..100 percent, clamping outside them.
type Analog struct {
	ADC    RawReader
	DryRaw float64
	WetRaw float64
}

func (a *Analog) MeasureValue(ctx context.Context) (float64, error) {
	raw, err := a.ADC.MeasureValue(ctx)
	if err != nil {
		return 0, err
	}
	return floats.Rescale(raw, a.DryRaw, a.WetRaw, 0, 100), nil
}

// GPIOProbe is a comparator probe wired to one input line. Typical modules
// drive the line high while the soil is drier than the trim-pot threshold.
type GPIOProbe struct {
	lines *gpio.Lines
}

func NewGPIOProbe(chip string, line int, activeLow bool) (*GPIOProbe, error) {
	flags := gpio.FlagInput
	if activeLow {
		flags |= gpio.FlagActiveLow
	}
	lines, err := gpio.RequestLines(chip, "fieldctl-soil", []int{line}, flags)
	if err != nil {
		return nil, err
	}
	return &GPIOProbe{lines: lines}, nil
}

func (p *GPIOProbe) Dry() (bool, error) {
	vals, err := p.lines.Values()
	if err != nil {
		return false, err
	}
	return vals[0], nil
}

func (p *GPIOProbe) Close() error {
	return p.lines.Close()
}
