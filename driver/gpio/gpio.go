// Package gpio drives GPIO lines through the Linux character device
// interface (uAPI v2).
package gpio

// References:
// https://www.kernel.org/doc/html/latest/userspace-api/gpio/chardev.html
// include/uapi/linux/gpio.h

import (
	"encoding/binary"
	"errors"
)

type Flags uint64

const (
	FlagActiveLow    Flags = 1 << 1
	FlagInput        Flags = 1 << 2
	FlagOutput       Flags = 1 << 3
	FlagBiasPullUp   Flags = 1 << 8
	FlagBiasPullDown Flags = 1 << 9
)

const (
	// See https://man7.org/linux/man-pages/man2/ioctl.2.html#NOTES

	ioctlWrite = 1
	ioctlRead  = 2

	ioctlDirBits  = 2
	ioctlSizeBits = 14
	ioctlTypeBits = 8
	ioctlSNBits   = 8

	ioctlDirMask  = (1 << ioctlDirBits) - 1
	ioctlSizeMask = (1 << ioctlSizeBits) - 1
	ioctlTypeMask = (1 << ioctlTypeBits) - 1
	ioctlSNMask   = (1 << ioctlSNBits) - 1

	ioctlSNShift   = 0
	ioctlTypeShift = ioctlSNShift + ioctlSNBits
	ioctlSizeShift = ioctlTypeShift + ioctlTypeBits
	ioctlDirShift  = ioctlSizeShift + ioctlSizeBits
)

const (
	MaxLines = 64

	consumerLen = 32

	// struct gpio_v2_line_request
	lineRequestLen         = 592
	lineRequestConsumerOff = 4 * MaxLines
	lineRequestConfigOff   = lineRequestConsumerOff + consumerLen
	lineRequestNumLinesOff = lineRequestConfigOff + 272
	lineRequestFDOff       = lineRequestLen - 4

	// struct gpio_v2_line_values
	lineValuesLen = 16
)

var (
	errNoLines       = errors.New("no GPIO lines requested")
	errTooManyLines  = errors.New("too many GPIO lines requested")
	errInvalidOffset = errors.New("invalid GPIO line offset")
	errInvalidIndex  = errors.New("GPIO line index out of range")
)

func ioctlRequest(d, s, t, n int) uint {
	return (uint(d&ioctlDirMask) << ioctlDirShift) |
		(uint(s&ioctlSizeMask) << ioctlSizeShift) |
		(uint(t&ioctlTypeMask) << ioctlTypeShift) |
		(uint(n&ioctlSNMask) << ioctlSNShift)
}

var (
	IoctlGetLine   = ioctlRequest(ioctlRead|ioctlWrite, lineRequestLen, 0xb4, 0x07)
	IoctlGetValues = ioctlRequest(ioctlRead|ioctlWrite, lineValuesLen, 0xb4, 0x0e)
	IoctlSetValues = ioctlRequest(ioctlRead|ioctlWrite, lineValuesLen, 0xb4, 0x0f)
)

// EncodeLineRequest lays out a struct gpio_v2_line_request for the given
// line offsets. All lines share flags.
func EncodeLineRequest(offsets []int, consumer string, flags Flags) ([]byte, error) {
	if len(offsets) == 0 {
		return nil, errNoLines
	}
	if len(offsets) > MaxLines {
		return nil, errTooManyLines
	}
	b := make([]byte, lineRequestLen)
	for i, off := range offsets {
		if off < 0 || off > 0xffff {
			return nil, errInvalidOffset
		}
		binary.NativeEndian.PutUint32(b[4*i:], uint32(off))
	}
	copy(b[lineRequestConsumerOff:lineRequestConsumerOff+consumerLen-1], consumer)
	// gpio_v2_line_config.flags leads the config struct, no attributes
	binary.NativeEndian.PutUint64(b[lineRequestConfigOff:], uint64(flags))
	binary.NativeEndian.PutUint32(b[lineRequestNumLinesOff:], uint32(len(offsets)))
	return b, nil
}

// LineRequestFD extracts the line file descriptor the kernel stored in a
// completed request.
func LineRequestFD(b []byte) int {
	return int(int32(binary.NativeEndian.Uint32(b[lineRequestFDOff:])))
}

// PackValues converts per-line logical values into the bits and mask of a
// struct gpio_v2_line_values. Only lines listed in idx are masked in; nil idx
// selects all lines.
func PackValues(vals []bool, idx []int) (bits, mask uint64) {
	if idx == nil {
		for i, v := range vals {
			mask |= 1 << i
			if v {
				bits |= 1 << i
			}
		}
		return bits, mask
	}
	for _, i := range idx {
		mask |= 1 << i
		if vals[i] {
			bits |= 1 << i
		}
	}
	return bits, mask
}

// UnpackValues is the inverse of PackValues for n lines.
func UnpackValues(bits uint64, n int) []bool {
	vals := make([]bool, n)
	for i := range vals {
		vals[i] = bits&(1<<i) != 0
	}
	return vals
}

func encodeValues(bits, mask uint64) []byte {
	b := make([]byte, lineValuesLen)
	binary.NativeEndian.PutUint64(b[0:], bits)
	binary.NativeEndian.PutUint64(b[8:], mask)
	return b
}

func decodeBits(b []byte) uint64 {
	return binary.NativeEndian.Uint64(b[0:])
}
