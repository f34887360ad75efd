package gpio

import (
	"go.uber.org/zap"
)

const consumer = "fieldctl"

const (
	pumpIndex = iota
	sprayIndex
)

// Actuators drives the water pump and pesticide sprayer relays from two
// output lines of one chip.
type Actuators struct {
	log   *zap.Logger
	lines *Lines
}

func NewActuators(log *zap.Logger, chip string, pumpLine, sprayLine int, activeLow bool) (*Actuators, error) {
	flags := FlagOutput
	if activeLow {
		flags |= FlagActiveLow
	}
	lines, err := RequestLines(chip, consumer, []int{pumpLine, sprayLine}, flags)
	if err != nil {
		return nil, err
	}
	log.Info("requested actuator lines",
		zap.String("chip", chip), zap.Int("water_pump", pumpLine), zap.Int("pesticide_spray", sprayLine))
	return &Actuators{log: log, lines: lines}, nil
}

func (a *Actuators) SetWaterPump(on bool) error {
	return a.lines.SetValue(pumpIndex, on)
}

func (a *Actuators) SetPesticideSpray(on bool) error {
	return a.lines.SetValue(sprayIndex, on)
}

// Close drives both lines inactive and releases them.
func (a *Actuators) Close() error {
	err := a.lines.SetValues([]bool{false, false})
	if err != nil {
		a.log.Error("failed to reset actuator lines", zap.String("chip", a.lines.Chip()), zap.Error(err))
	}
	cerr := a.lines.Close()
	if err == nil {
		err = cerr
	}
	return err
}
