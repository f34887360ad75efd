//go:build !linux

package gpio

import (
	"errors"
)

var errUnsupported = errors.New("GPIO character devices require Linux")

type Lines struct {
	chip    string
	offsets []int
}

func RequestLines(chip, consumer string, offsets []int, flags Flags) (*Lines, error) {
	_, err := EncodeLineRequest(offsets, consumer, flags)
	if err != nil {
		return nil, err
	}
	return nil, errUnsupported
}

func (l *Lines) Chip() string   { return l.chip }
func (l *Lines) Offsets() []int { return append([]int(nil), l.offsets...) }

func (l *Lines) SetValues(vals []bool) error  { return errUnsupported }
func (l *Lines) SetValue(i int, v bool) error { return errUnsupported }
func (l *Lines) Values() ([]bool, error)      { return nil, errUnsupported }
func (l *Lines) Close() error                 { return nil }
