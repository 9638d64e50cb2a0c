package airrohr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dataResponse is the JSON document served at /data.json by airRohr firmware:
//
//	{"software_version":"NRZ-2020-133","age":"97",
//	 "sensordatavalues":[{"value_type":"SDS_P1","value":"17.43"}, ...]}
type dataResponse struct {
	SoftwareVersion  string      `json:"software_version"`
	Age              string      `json:"age"`
	SensorDataValues []dataEntry `json:"sensordatavalues"`
}

type dataEntry struct {
	ValueType string `json:"value_type"`
	Value     string `json:"value"`
}

// Readings is one snapshot of a node's current measurements
type Readings struct {
	SoftwareVersion string    `json:"software_version"`
	Age             string    `json:"age"`
	Values          []Reading `json:"values"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// Reading is a single (value_type, value) pair, kept verbatim as reported.
// Types outside the known vocabulary are preserved.
type Reading struct {
	Type  string `json:"value_type"`
	Value string `json:"value"`
}

// ParseReadings decodes a data.json body
func ParseReadings(data []byte) (*Readings, error) {
	var resp dataResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sensor data: %w", err)
	}

	values := make([]Reading, 0, len(resp.SensorDataValues))
	for _, e := range resp.SensorDataValues {
		values = append(values, Reading{Type: e.ValueType, Value: e.Value})
	}

	return &Readings{
		SoftwareVersion: resp.SoftwareVersion,
		Age:             resp.Age,
		Values:          values,
	}, nil
}

// Clone returns a deep copy
func (r *Readings) Clone() *Readings {
	if r == nil {
		return nil
	}
	c := *r
	c.Values = append([]Reading(nil), r.Values...)
	return &c
}

// Find returns the first reading of the given kind
func (r *Readings) Find(kind Kind) (Reading, bool) {
	if r == nil {
		return Reading{}, false
	}
	for _, v := range r.Values {
		if v.Kind() == kind {
			return v, true
		}
	}
	return Reading{}, false
}

// Known returns the readings whose type is in the known vocabulary, in
// device order
func (r *Readings) Known() []Reading {
	if r == nil {
		return nil
	}
	var known []Reading
	for _, v := range r.Values {
		if v.Kind() != KindUnknown {
			known = append(known, v)
		}
	}
	return known
}

// Summary returns the formatted known readings joined on one line
func (r *Readings) Summary() string {
	known := r.Known()
	if len(known) == 0 {
		return "no data"
	}
	parts := make([]string, 0, len(known))
	for _, v := range known {
		parts = append(parts, fmt.Sprintf("%s %s", v.Kind(), v.Format()))
	}
	return strings.Join(parts, " • ")
}

// Kind is the measurement a value_type denotes
type Kind int

const (
	KindUnknown Kind = iota
	KindPM10
	KindPM25
	KindPressure
	KindTemperature
	KindHumidity
)

// kindByType maps the value_type vocabulary reported by airRohr sensors
var kindByType = map[string]Kind{
	"SDS_P1":             KindPM10,
	"SDS_P2":             KindPM25,
	"BMP280_pressure":    KindPressure,
	"BME280_pressure":    KindPressure,
	"BMP280_temperature": KindTemperature,
	"BME280_temperature": KindTemperature,
	"temperature":        KindTemperature,
	"BME280_humidity":    KindHumidity,
	"humidity":           KindHumidity,
}

// KindOf classifies a value_type
func KindOf(valueType string) Kind {
	return kindByType[valueType]
}

func (k Kind) String() string {
	switch k {
	case KindPM10:
		return "PM10"
	case KindPM25:
		return "PM2.5"
	case KindPressure:
		return "Pressure"
	case KindTemperature:
		return "Temperature"
	case KindHumidity:
		return "Humidity"
	default:
		return "Unknown"
	}
}

// Unit returns the display unit for the kind
func (k Kind) Unit() string {
	switch k {
	case KindPM10, KindPM25:
		return "µg/m³"
	case KindPressure:
		return "hPa"
	case KindTemperature:
		return "°C"
	case KindHumidity:
		return "%"
	default:
		return ""
	}
}

// Kind classifies the reading's type
func (r Reading) Kind() Kind {
	return KindOf(r.Type)
}

// Format renders the value with its unit, e.g. "12.3 µg/m³". Readings of
// unknown kind render as "".
func (r Reading) Format() string {
	kind := r.Kind()
	if kind == KindUnknown {
		return ""
	}

	value := r.Value
	if kind == KindPressure {
		// BMx280 sensors report Pa
		if pa, err := strconv.ParseFloat(value, 64); err == nil {
			value = strconv.FormatFloat(pa/100, 'f', 2, 64)
		}
	}

	if kind == KindHumidity {
		return value + kind.Unit()
	}
	return value + " " + kind.Unit()
}
