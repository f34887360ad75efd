// Modbus RTU pH transmitter emulator for bench setups without a probe.
//
// Pair it with the controller over a virtual null-modem cable, e.g.
//
//	socat -d -d pty,raw,echo=0,link=/tmp/ttyPH0 pty,raw,echo=0,link=/tmp/ttyPH1
//	phslave -port /tmp/ttyPH1 -ph 6.8
//
// and point sensors.ph_port at /tmp/ttyPH0.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"example.com/fieldctl/driver/ph"
	"example.com/fieldctl/net/modbus"
)

const (
	excIllegalFunction = 0x01
	excIllegalAddress  = 0x02

	readTimeout = 20 * time.Millisecond
)

type emulator struct {
	log      *zap.Logger
	slave    byte
	register uint16
	value    float32
}

// handle returns the response to a request frame, or nil if the frame is
// corrupt or addressed to another slave.
func (e *emulator) handle(frame []byte) []byte {
	req, err := modbus.ParseReadRequest(frame)
	if err != nil && req.Slave == 0 {
		e.log.Debug("dropping frame", zap.Binary("frame", frame), zap.Error(err))
		return nil
	}
	if req.Slave != e.slave {
		return nil
	}
	if err != nil {
		e.log.Info("rejecting request", zap.Any("request", req), zap.Error(err))
		return modbus.EncodeException(e.slave, req.Function, excIllegalFunction)
	}
	if req.Function != modbus.FuncReadInputRegisters {
		return modbus.EncodeException(e.slave, req.Function, excIllegalFunction)
	}
	if req.Addr != e.register || req.Qty != 2 {
		return modbus.EncodeException(e.slave, req.Function, excIllegalAddress)
	}
	e.log.Debug("serving pH", zap.Float32("value", e.value))
	return modbus.EncodeReadResponse(e.slave, req.Function, modbus.Float32Registers(e.value))
}

func (e *emulator) serve(ctx context.Context, rw io.ReadWriter) error {
	var frame []byte
	buf := make([]byte, modbus.RequestLen)
	for ctx.Err() == nil {
		n, err := rw.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			// Inter-frame gap.
			frame = frame[:0]
			continue
		}
		frame = append(frame, buf[:n]...)
		for len(frame) >= modbus.RequestLen {
			resp := e.handle(frame[:modbus.RequestLen])
			if resp == nil {
				frame = frame[1:]
				continue
			}
			frame = frame[modbus.RequestLen:]
			_, err = rw.Write(resp)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func main() {
	var (
		verbose  bool
		port     string
		baudRate int
		slave    int
		register int
		value    float64
	)
	flag.BoolVar(&verbose, "verbose", false, "Verbose logging")
	flag.StringVar(&port, "port", "", "Serial port")
	flag.IntVar(&baudRate, "baud", ph.DefaultBaudRate, "Baud rate")
	flag.IntVar(&slave, "slave", ph.DefaultSlave, "Slave address")
	flag.IntVar(&register, "register", 0, "First input register of the value")
	flag.Float64Var(&value, "ph", 7, "pH value to report")
	flag.Parse()
	if port == "" || slave < 1 || slave > 247 || register < 0 || register > 0xfffe {
		fmt.Fprintln(os.Stderr, "usage: phslave -port <tty> [-baud <n>] [-slave <addr>] [-register <n>] [-ph <value>]")
		os.Exit(1)
	}

	c := zap.NewDevelopmentConfig()
	if !verbose {
		c.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := c.Build()
	if err != nil {
		panic(err)
	}

	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		log.Fatal("failed to open serial port", zap.String("port", port), zap.Error(err))
	}
	defer p.Close()
	err = p.SetReadTimeout(readTimeout)
	if err != nil {
		log.Fatal("failed to set read timeout", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &emulator{log: log, slave: byte(slave), register: uint16(register), value: float32(value)}
	log.Info("emulating pH transmitter",
		zap.String("port", port), zap.Int("slave", slave), zap.Float64("ph", value))
	err = e.serve(ctx, p)
	if err != nil {
		log.Fatal("serial I/O failed", zap.Error(err))
	}
}
