// Package telemetry ships sensor readings to a remote collector.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/fieldctl/core/readings"
	"example.com/fieldctl/core/rules"
)

type SensorData struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture float64 `json:"soil_moisture"`
	PHLevel      float64 `json:"ph_level"`
}

// Message is the per-cycle telemetry record. Only the sensor readings are
// serialized.
type Message struct {
	SensorData SensorData `json:"sensor_data"`
	Time       time.Time  `json:"-"`
}

// NewMessage packages the four sensor readings of a cycle. Readings of
// unknown sensors are ignored; the message time is that of the latest
// reading.
func NewMessage(rs []readings.Reading) Message {
	var m Message
	for _, r := range rs {
		switch r.SensorID {
		case rules.Temperature:
			m.SensorData.Temperature = r.Value
		case rules.Humidity:
			m.SensorData.Humidity = r.Value
		case rules.SoilMoisture:
			m.SensorData.SoilMoisture = r.Value
		case rules.PHLevel:
			m.SensorData.PHLevel = r.Value
		default:
			continue
		}
		if r.Timestamp.After(m.Time) {
			m.Time = r.Timestamp
		}
	}
	if m.Time.IsZero() {
		m.Time = time.Now().UTC()
	}
	return m
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Fields returns the readings keyed by sensor id.
func (m Message) Fields() map[string]interface{} {
	return map[string]interface{}{
		rules.Temperature:  m.SensorData.Temperature,
		rules.Humidity:     m.SensorData.Humidity,
		rules.SoilMoisture: m.SensorData.SoilMoisture,
		rules.PHLevel:      m.SensorData.PHLevel,
	}
}

type Transmitter interface {
	Transmit(ctx context.Context, m Message) error
}

type TransmissionError struct {
	Backend string
	Cause   error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("%s telemetry transmission failed: %v", e.Backend, e.Cause)
}

func (e *TransmissionError) Unwrap() error { return e.Cause }

// Discard drops every message.
type Discard struct{}

func (Discard) Transmit(context.Context, Message) error { return nil }
