package telemetry

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const BackendInfluxDB = "influxdb"

// PointWriter is the blocking write API of an InfluxDB client.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes each message as one point with the readings as fields.
type Influx struct {
	writer      PointWriter
	client      influxdb2.Client
	measurement string
	tags        map[string]string
}

func NewInflux(serverURL, token, org, bucket, measurement string, tags map[string]string) *Influx {
	client := influxdb2.NewClient(serverURL, token)
	return &Influx{
		writer:      client.WriteAPIBlocking(org, bucket),
		client:      client,
		measurement: measurement,
		tags:        tags,
	}
}

func NewInfluxWriter(w PointWriter, measurement string, tags map[string]string) *Influx {
	return &Influx{writer: w, measurement: measurement, tags: tags}
}

func (x *Influx) Transmit(ctx context.Context, m Message) error {
	p := influxdb2.NewPoint(x.measurement, x.tags, m.Fields(), m.Time)
	err := x.writer.WritePoint(ctx, p)
	if err != nil {
		return &TransmissionError{Backend: BackendInfluxDB, Cause: err}
	}
	return nil
}

func (x *Influx) Close() error {
	if x.client != nil {
		x.client.Close()
	}
	return nil
}
