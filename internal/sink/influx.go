package sink

import (
	"context"
	"fmt"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxConfig configures the InfluxDB sink
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// Influx writes each sample as one point. Numeric values become fields
// named by value_type; the device name and firmware version are tags.
type Influx struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
}

// NewInflux creates the InfluxDB sink. No connection is made until the
// first write.
func NewInflux(cfg InfluxConfig) (*Influx, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = "airrohr"
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
	}, nil
}

// Name implements Sink
func (i *Influx) Name() string { return "influx" }

// pointFields returns the numeric readings of s
func pointFields(s Sample) map[string]interface{} {
	fields := map[string]interface{}{}
	if s.Readings == nil {
		return fields
	}
	for _, v := range s.Readings.Values {
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			continue
		}
		fields[v.Type] = f
	}
	return fields
}

// Publish implements Sink. Samples without numeric values are skipped.
func (i *Influx) Publish(ctx context.Context, s Sample) error {
	fields := pointFields(s)
	if len(fields) == 0 {
		return nil
	}

	tags := map[string]string{"device": s.Device}
	if s.Readings != nil && s.Readings.SoftwareVersion != "" {
		tags["software_version"] = s.Readings.SoftwareVersion
	}

	point := influxdb2.NewPoint(i.measurement, tags, fields, s.Time())
	if err := i.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close implements Sink
func (i *Influx) Close() error {
	i.client.Close()
	return nil
}
