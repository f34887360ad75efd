//go:build linux

package gpio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Lines is a set of GPIO lines held through one line request.
type Lines struct {
	chip    string
	offsets []int
	fd      int
}

func ioctl(fd int, req uint, b []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(req), uintptr(unsafe.Pointer(&b[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

// RequestLines requests the given line offsets on chip (e.g. /dev/gpiochip0).
// Output lines start out inactive.
func RequestLines(chip, consumer string, offsets []int, flags Flags) (*Lines, error) {
	req, err := EncodeLineRequest(offsets, consumer, flags)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Open(chip, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)
	err = ioctl(fd, IoctlGetLine, req)
	if err != nil {
		return nil, err
	}
	return &Lines{
		chip:    chip,
		offsets: append([]int(nil), offsets...),
		fd:      LineRequestFD(req),
	}, nil
}

func (l *Lines) Chip() string   { return l.chip }
func (l *Lines) Offsets() []int { return append([]int(nil), l.offsets...) }

func (l *Lines) setBits(bits, mask uint64) error {
	return ioctl(l.fd, IoctlSetValues, encodeValues(bits, mask))
}

// SetValues sets the logical value of every line.
func (l *Lines) SetValues(vals []bool) error {
	if len(vals) != len(l.offsets) {
		return errInvalidIndex
	}
	return l.setBits(PackValues(vals, nil))
}

// SetValue sets the logical value of the i-th requested line and leaves the
// others untouched.
func (l *Lines) SetValue(i int, v bool) error {
	if i < 0 || i >= len(l.offsets) {
		return errInvalidIndex
	}
	vals := make([]bool, len(l.offsets))
	vals[i] = v
	return l.setBits(PackValues(vals, []int{i}))
}

// Values reads the logical value of every line.
func (l *Lines) Values() ([]bool, error) {
	_, mask := PackValues(make([]bool, len(l.offsets)), nil)
	b := encodeValues(0, mask)
	err := ioctl(l.fd, IoctlGetValues, b)
	if err != nil {
		return nil, err
	}
	return UnpackValues(decodeBits(b), len(l.offsets)), nil
}

func (l *Lines) Close() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}
