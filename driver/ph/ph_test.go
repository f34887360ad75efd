package ph_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"example.com/fieldctl/driver/ph"
	"example.com/fieldctl/net/modbus"
)

// slave answers every request with a canned frame, delivered in two chunks.
type slave struct {
	resp    func(req []byte) []byte
	reqs    [][]byte
	pending []byte
}

func (s *slave) Write(b []byte) (int, error) {
	s.reqs = append(s.reqs, bytes.Clone(b))
	if s.resp != nil {
		s.pending = append(s.pending, s.resp(b)...)
	}
	return len(b), nil
}

func (s *slave) Read(b []byte) (int, error) {
	if len(s.pending) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := min(len(b), 3, len(s.pending))
	copy(b, s.pending[:n])
	s.pending = s.pending[n:]
	return n, nil
}

func TestMeasureValue(t *testing.T) {
	s := &slave{resp: func([]byte) []byte {
		return modbus.EncodeReadResponse(1, modbus.FuncReadInputRegisters, modbus.Float32Registers(6.5))
	}}
	tr := ph.NewTransmitter(zap.NewNop(), s, 1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := tr.MeasureValue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != 6.5 {
		t.Errorf("MeasureValue = %v, want 6.5", v)
	}
	want := []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x02, 0x71, 0xcb}
	if len(s.reqs) != 1 || !bytes.Equal(s.reqs[0], want) {
		t.Errorf("requests = % x, want % x", s.reqs, want)
	}
}

func TestMeasureValueException(t *testing.T) {
	s := &slave{resp: func([]byte) []byte {
		return modbus.EncodeException(1, modbus.FuncReadInputRegisters, 0x02)
	}}
	tr := ph.NewTransmitter(zap.NewNop(), s, 1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := tr.MeasureValue(ctx)
	var ee *modbus.ExceptionError
	if !errors.As(err, &ee) || ee.Code != 0x02 {
		t.Errorf("MeasureValue = %v; want exception 0x02", err)
	}
}

func TestMeasureValueSilentSlave(t *testing.T) {
	tr := ph.NewTransmitter(zap.NewNop(), &slave{}, 1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := tr.MeasureValue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("MeasureValue = %v; want deadline exceeded", err)
	}

	_, err = tr.MeasureValue(context.Background())
	if err == nil {
		t.Errorf("MeasureValue without deadline succeeded against a silent slave")
	}
}

func TestMeasureValueWrongSlave(t *testing.T) {
	s := &slave{resp: func([]byte) []byte {
		return modbus.EncodeReadResponse(2, modbus.FuncReadInputRegisters, modbus.Float32Registers(7))
	}}
	tr := ph.NewTransmitter(zap.NewNop(), s, 1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := tr.MeasureValue(ctx); err == nil {
		t.Errorf("MeasureValue accepted a response from the wrong slave")
	}
}
