// Package modbus encodes and decodes Modbus RTU frames for the register
// reads used by field transmitters.
package modbus

import (
	"errors"
	"fmt"
	"math"
)

const (
	FuncReadHoldingRegisters = 0x03
	FuncReadInputRegisters   = 0x04

	exceptionFlag = 0x80

	RequestLen   = 8
	ExceptionLen = 5

	// MaxRegisters is the largest quantity a single read may request.
	MaxRegisters = 125
)

var (
	errUnexpectedFrameSize = errors.New("unexpected frame size")
	errInvalidCRC          = errors.New("invalid CRC")
	errUnexpectedSlave     = errors.New("unexpected slave address")
	errUnexpectedFunction  = errors.New("unexpected function code")
	errUnexpectedByteCount = errors.New("unexpected byte count")
	errInvalidQuantity     = errors.New("invalid register quantity")
)

// ExceptionError is a Modbus exception response sent by the slave.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception %#02x for function %#02x", e.Code, e.Function)
}

// CRC16 computes the Modbus CRC (polynomial 0xa001 reflected, initial 0xffff).
// On the wire the low byte goes first.
func CRC16(b []byte) uint16 {
	crc := uint16(0xffff)
	for _, x := range b {
		crc ^= uint16(x)
		for range 8 {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xa001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func appendCRC(b []byte) []byte {
	crc := CRC16(b)
	return append(b, byte(crc), byte(crc>>8))
}

func checkCRC(b []byte) bool {
	n := len(b)
	crc := CRC16(b[:n-2])
	return b[n-2] == byte(crc) && b[n-1] == byte(crc>>8)
}

func encodeReadRequest(b *[]byte, slave, fn byte, addr, qty uint16) error {
	if qty == 0 || qty > MaxRegisters {
		return errInvalidQuantity
	}
	if cap(*b) < RequestLen {
		*b = make([]byte, 0, RequestLen)
	}
	buf := (*b)[:0]
	buf = append(buf,
		slave,
		fn,
		byte(addr>>8),
		byte(addr),
		byte(qty>>8),
		byte(qty),
	)
	*b = appendCRC(buf)
	return nil
}

// ReadInputRegistersRequest encodes a function 4 request for qty registers
// starting at addr into b, reusing its capacity.
func ReadInputRegistersRequest(b *[]byte, slave byte, addr, qty uint16) error {
	return encodeReadRequest(b, slave, FuncReadInputRegisters, addr, qty)
}

// ReadHoldingRegistersRequest encodes a function 3 request.
func ReadHoldingRegistersRequest(b *[]byte, slave byte, addr, qty uint16) error {
	return encodeReadRequest(b, slave, FuncReadHoldingRegisters, addr, qty)
}

// ResponseLen is the length of a successful read response carrying qty
// registers.
func ResponseLen(qty uint16) int {
	return 5 + 2*int(qty)
}

func parseReadResponse(regs []uint16, slave, fn byte, b []byte) ([]uint16, error) {
	if len(b) < ExceptionLen {
		return nil, errUnexpectedFrameSize
	}
	if b[1] == fn|exceptionFlag {
		if len(b) != ExceptionLen {
			return nil, errUnexpectedFrameSize
		}
		if !checkCRC(b) {
			return nil, errInvalidCRC
		}
		if b[0] != slave {
			return nil, errUnexpectedSlave
		}
		return nil, &ExceptionError{Function: fn, Code: b[2]}
	}
	n := int(b[2])
	if len(b) != 5+n {
		return nil, errUnexpectedFrameSize
	}
	if !checkCRC(b) {
		return nil, errInvalidCRC
	}
	if b[0] != slave {
		return nil, errUnexpectedSlave
	}
	if b[1] != fn {
		return nil, errUnexpectedFunction
	}
	if n%2 != 0 || n/2 != len(regs) {
		return nil, errUnexpectedByteCount
	}
	for i := range regs {
		regs[i] = uint16(b[3+2*i])<<8 | uint16(b[4+2*i])
	}
	return regs, nil
}

// ParseReadInputRegistersResponse validates a function 4 response from slave
// and decodes qty big-endian registers.
func ParseReadInputRegistersResponse(slave byte, qty uint16, b []byte) ([]uint16, error) {
	return parseReadResponse(make([]uint16, qty), slave, FuncReadInputRegisters, b)
}

// ParseReadHoldingRegistersResponse is the function 3 counterpart of
// ParseReadInputRegistersResponse.
func ParseReadHoldingRegistersResponse(slave byte, qty uint16, b []byte) ([]uint16, error) {
	return parseReadResponse(make([]uint16, qty), slave, FuncReadHoldingRegisters, b)
}

// Float32 decodes an IEEE-754 single from two registers, high word first.
func Float32(regs []uint16) (float32, error) {
	if len(regs) != 2 {
		return 0, errUnexpectedByteCount
	}
	return math.Float32frombits(uint32(regs[0])<<16 | uint32(regs[1])), nil
}

// ReadRequest is a decoded function 3 or 4 request.
type ReadRequest struct {
	Slave    byte
	Function byte
	Addr     uint16
	Qty      uint16
}

// ParseReadRequest decodes a read request frame as seen by a slave.
func ParseReadRequest(b []byte) (ReadRequest, error) {
	if len(b) != RequestLen {
		return ReadRequest{}, errUnexpectedFrameSize
	}
	if !checkCRC(b) {
		return ReadRequest{}, errInvalidCRC
	}
	req := ReadRequest{
		Slave:    b[0],
		Function: b[1],
		Addr:     uint16(b[2])<<8 | uint16(b[3]),
		Qty:      uint16(b[4])<<8 | uint16(b[5]),
	}
	if req.Function != FuncReadHoldingRegisters && req.Function != FuncReadInputRegisters {
		return req, errUnexpectedFunction
	}
	if req.Qty == 0 || req.Qty > MaxRegisters {
		return req, errInvalidQuantity
	}
	return req, nil
}

// Float32Registers is the inverse of Float32.
func Float32Registers(f float32) []uint16 {
	bits := math.Float32bits(f)
	return []uint16{uint16(bits >> 16), uint16(bits)}
}

// EncodeReadResponse builds a successful read response. Slave simulators and
// tests use it.
func EncodeReadResponse(slave, fn byte, regs []uint16) []byte {
	b := make([]byte, 0, ResponseLen(uint16(len(regs))))
	b = append(b, slave, fn, byte(2*len(regs)))
	for _, r := range regs {
		b = append(b, byte(r>>8), byte(r))
	}
	return appendCRC(b)
}

// EncodeException builds an exception response.
func EncodeException(slave, fn, code byte) []byte {
	return appendCRC([]byte{slave, fn | exceptionFlag, code})
}
