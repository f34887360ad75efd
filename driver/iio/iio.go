// Package iio reads channels of Linux Industrial I/O devices through sysfs.
package iio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDevice = "/sys/bus/iio/devices/iio:device0"

	// dht11 driver channels, in milli-degrees Celsius and milli-percent.
	TemperatureChannel = "in_temp_input"
	HumidityChannel    = "in_humidityrelative_input"

	maxNumRetries = 4
	retryInterval = 100 * time.Millisecond
)

var errEmptyChannel = errors.New("empty IIO channel value")

// ReadChannel reads one sysfs attribute of device dev as a number.
func ReadChannel(dev, name string) (float64, error) {
	b, err := os.ReadFile(filepath.Join(dev, name))
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, errEmptyChannel
	}
	return strconv.ParseFloat(s, 64)
}

// Channel is a scaled IIO channel usable as a sensor.
type Channel struct {
	Log    *zap.Logger
	Device string
	Name   string
	Scale  float64
}

func DHT11Temperature(log *zap.Logger, dev string) *Channel {
	return &Channel{Log: log, Device: dev, Name: TemperatureChannel, Scale: 1e-3}
}

func DHT11Humidity(log *zap.Logger, dev string) *Channel {
	return &Channel{Log: log, Device: dev, Name: HumidityChannel, Scale: 1e-3}
}

// VoltageRaw is the unscaled ADC reading of input ch.
func VoltageRaw(log *zap.Logger, dev string, ch int) *Channel {
	return &Channel{Log: log, Device: dev, Name: fmt.Sprintf("in_voltage%d_raw", ch), Scale: 1}
}

// MeasureValue reads the channel, retrying transient failures until the
// context deadline. One-wire sensors like the DHT11 regularly fail a read
// with EIO or ETIMEDOUT.
func (c *Channel) MeasureValue(ctx context.Context) (float64, error) {
	deadline, deadlineIsSet := ctx.Deadline()
	numRetries := 0
	for {
		v, err := ReadChannel(c.Device, c.Name)
		if err == nil {
			return c.Scale * v, nil
		}
		c.Log.Debug("IIO read failed",
			zap.String("dev", c.Device), zap.String("channel", c.Name),
			zap.Int("retry", numRetries), zap.Error(err))
		if errors.Is(err, os.ErrNotExist) || numRetries == maxNumRetries ||
			!deadlineIsSet || !time.Now().Add(retryInterval).Before(deadline) {
			return 0, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(retryInterval):
		}
		numRetries++
	}
}
