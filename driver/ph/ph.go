// Package ph reads a pH transmitter that speaks Modbus RTU on a serial line.
package ph

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"example.com/fieldctl/net/modbus"
)

const (
	DefaultPort     = "/dev/ttyUSB0"
	DefaultBaudRate = 9600
	DefaultSlave    = 1

	// The value is an IEEE-754 single spread over two input registers.
	numRegisters = 2

	readTimeout = 50 * time.Millisecond
)

var errNoResponse = errors.New("no response from Modbus slave")

// Port is the part of a serial port the transmitter needs.
type Port interface {
	io.ReadWriter
}

type inputFlusher interface {
	ResetInputBuffer() error
}

type Transmitter struct {
	log      *zap.Logger
	port     Port
	slave    byte
	register uint16

	mu  sync.Mutex
	req []byte
	buf []byte
}

func NewTransmitter(log *zap.Logger, port Port, slave byte, register uint16) *Transmitter {
	return &Transmitter{log: log, port: port, slave: slave, register: register}
}

// Open opens the serial device in 8N1 mode and returns a transmitter reading
// the pH value from register of slave.
func Open(log *zap.Logger, dev string, baudRate int, slave byte, register uint16) (*Transmitter, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(dev, mode)
	if err != nil {
		return nil, err
	}
	err = port.SetReadTimeout(readTimeout)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	log.Info("opened pH transmitter",
		zap.String("dev", dev), zap.Int("baud", baudRate), zap.Uint8("slave", slave))
	return NewTransmitter(log, port, slave, register), nil
}

func (t *Transmitter) readFrame(ctx context.Context) ([]byte, error) {
	n := modbus.ResponseLen(numRegisters)
	if cap(t.buf) < n {
		t.buf = make([]byte, n)
	}
	b := t.buf[:n]
	want, got := n, 0
	for got < want {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		k, err := t.port.Read(b[got:want])
		if err != nil {
			return nil, err
		}
		if k == 0 {
			// read timeout expired without data
			if _, ok := ctx.Deadline(); !ok {
				return nil, errNoResponse
			}
			continue
		}
		got += k
		if got >= 2 && b[1]&0x80 != 0 {
			want = modbus.ExceptionLen
		}
	}
	return b[:want], nil
}

// MeasureValue performs one register read. Calls are serialized.
func (t *Transmitter) MeasureValue(ctx context.Context) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := modbus.ReadInputRegistersRequest(&t.req, t.slave, t.register, numRegisters)
	if err != nil {
		return 0, err
	}
	if f, ok := t.port.(inputFlusher); ok {
		_ = f.ResetInputBuffer()
	}
	_, err = t.port.Write(t.req)
	if err != nil {
		return 0, err
	}
	resp, err := t.readFrame(ctx)
	if err != nil {
		return 0, err
	}
	regs, err := modbus.ParseReadInputRegistersResponse(t.slave, numRegisters, resp)
	if err != nil {
		t.log.Debug("invalid Modbus response", zap.Binary("frame", resp), zap.Error(err))
		return 0, err
	}
	v, err := modbus.Float32(regs)
	if err != nil {
		return 0, err
	}
	return float64(v), nil
}

func (t *Transmitter) Close() error {
	if c, ok := t.port.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
