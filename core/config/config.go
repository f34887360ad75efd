// Package config holds the field controller configuration file format.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"example.com/fieldctl/base/floats"
)

const (
	SensorDriverHardware = "hardware"
	SensorDriverSim      = "sim"

	SoilModeDigital = "digital"
	SoilModeADC     = "adc"

	ActuatorDriverGPIO = "gpio"
	ActuatorDriverSim  = "sim"

	BackendNone     = "none"
	BackendIoTHub   = "iothub"
	BackendHTTP     = "http"
	BackendInfluxDB = "influxdb"
)

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

type Sensors struct {
	Driver    string `toml:"driver,omitempty"`
	DHTDevice string `toml:"dht_device,omitempty"`

	SoilMode       string  `toml:"soil_mode,omitempty"`
	SoilGPIOChip   string  `toml:"soil_gpio_chip,omitempty"`
	SoilGPIOLine   int     `toml:"soil_gpio_line,omitempty"`
	SoilActiveLow  bool    `toml:"soil_active_low,omitempty"`
	SoilDryPercent float64 `toml:"soil_dry_percent,omitempty"`
	SoilWetPercent float64 `toml:"soil_wet_percent,omitempty"`
	SoilADCDevice  string  `toml:"soil_adc_device,omitempty"`
	SoilADCChannel int     `toml:"soil_adc_channel,omitempty"`
	SoilADCDry     float64 `toml:"soil_adc_dry,omitempty"`
	SoilADCWet     float64 `toml:"soil_adc_wet,omitempty"`

	PHPort     string `toml:"ph_port,omitempty"`
	PHSlave    int    `toml:"ph_slave,omitempty"`
	PHBaudRate int    `toml:"ph_baud,omitempty"`
	PHRegister int    `toml:"ph_register,omitempty"`

	SimTemperature  float64 `toml:"sim_temperature,omitempty"`
	SimHumidity     float64 `toml:"sim_humidity,omitempty"`
	SimSoilMoisture float64 `toml:"sim_soil_moisture,omitempty"`
	SimPHLevel      float64 `toml:"sim_ph_level,omitempty"`
	SimJitter       float64 `toml:"sim_jitter,omitempty"`
}

type Actuators struct {
	Driver             string `toml:"driver,omitempty"`
	GPIOChip           string `toml:"gpio_chip,omitempty"`
	WaterPumpLine      int    `toml:"water_pump_line,omitempty"`
	PesticideSprayLine int    `toml:"pesticide_spray_line,omitempty"`
	ActiveLow          bool   `toml:"active_low,omitempty"`
}

type Models struct {
	SoilMoisture string `toml:"soil_moisture,omitempty"`
	PlantHealth  string `toml:"plant_health,omitempty"`
}

type Telemetry struct {
	Backend          string `toml:"backend,omitempty"`
	ConnectionString string `toml:"connection_string,omitempty"`
	URL              string `toml:"url,omitempty"`
	InfluxURL        string `toml:"influx_url,omitempty"`
	InfluxToken      string `toml:"influx_token,omitempty"`
	InfluxOrg        string `toml:"influx_org,omitempty"`
	InfluxBucket     string `toml:"influx_bucket,omitempty"`
	Measurement      string `toml:"measurement,omitempty"`
}

type Config struct {
	Period          Duration `toml:"period,omitempty"`
	SensorTimeout   Duration `toml:"sensor_timeout,omitempty"`
	PredictTimeout  Duration `toml:"predict_timeout,omitempty"`
	TransmitTimeout Duration `toml:"transmit_timeout,omitempty"`
	Threshold       float64  `toml:"threshold,omitempty"`
	Samples         int      `toml:"samples,omitempty"`
	MetricsAddr     string   `toml:"metrics_address,omitempty"`

	Sensors   Sensors   `toml:"sensors"`
	Actuators Actuators `toml:"actuators"`
	Models    Models    `toml:"models"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Default returns the configuration of a controller wired like the
// reference field installation.
func Default() Config {
	return Config{
		Period:          Duration(5 * time.Second),
		SensorTimeout:   Duration(2 * time.Second),
		PredictTimeout:  Duration(1 * time.Second),
		TransmitTimeout: Duration(4 * time.Second),
		Threshold:       50,
		Samples:         1,
		MetricsAddr:     "127.0.0.1:8080",
		Sensors: Sensors{
			Driver:          SensorDriverHardware,
			DHTDevice:       "/sys/bus/iio/devices/iio:device0",
			SoilMode:        SoilModeDigital,
			SoilGPIOChip:    "/dev/gpiochip0",
			SoilGPIOLine:    17,
			SoilDryPercent:  10,
			SoilWetPercent:  80,
			SoilADCDevice:   "/sys/bus/iio/devices/iio:device1",
			SoilADCDry:      3300,
			SoilADCWet:      1200,
			PHPort:          "/dev/ttyUSB0",
			PHSlave:         1,
			PHBaudRate:      9600,
			SimTemperature:  25,
			SimHumidity:     50,
			SimSoilMoisture: 50,
			SimPHLevel:      7,
		},
		Actuators: Actuators{
			Driver:             ActuatorDriverGPIO,
			GPIOChip:           "/dev/gpiochip0",
			WaterPumpLine:      18,
			PesticideSprayLine: 23,
		},
		Telemetry: Telemetry{
			Backend:     BackendNone,
			Measurement: "sensor_data",
		},
	}
}

type ValueError struct {
	Key    string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid configuration value for %s: %s", e.Key, e.Reason)
}

// Decode parses raw over the defaults and validates the result. Unknown keys
// are rejected.
func Decode(raw []byte) (Config, error) {
	cfg := Default()
	err := toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(&cfg)
	if err != nil {
		return Config{}, err
	}
	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Decode(raw)
}

func invalid(key, reason string) error {
	return &ValueError{Key: key, Reason: reason}
}

func validLine(l int) bool { return l >= 0 && l <= 0xffff }

func (c *Config) Validate() error {
	durations := []struct {
		key string
		d   Duration
	}{
		{"period", c.Period},
		{"sensor_timeout", c.SensorTimeout},
		{"predict_timeout", c.PredictTimeout},
		{"transmit_timeout", c.TransmitTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return invalid(d.key, "must be positive")
		}
		if d.key != "period" && d.d >= c.Period {
			return invalid(d.key, "must be shorter than period")
		}
	}
	if !floats.Finite(c.Threshold) {
		return invalid("threshold", "must be finite")
	}
	if c.Samples < 1 {
		return invalid("samples", "must be at least 1")
	}

	s := &c.Sensors
	switch s.Driver {
	case SensorDriverHardware:
		switch s.SoilMode {
		case SoilModeDigital:
			if !validLine(s.SoilGPIOLine) {
				return invalid("sensors.soil_gpio_line", "out of range")
			}
		case SoilModeADC:
			if s.SoilADCDry == s.SoilADCWet {
				return invalid("sensors.soil_adc_wet", "must differ from soil_adc_dry")
			}
			if s.SoilADCChannel < 0 {
				return invalid("sensors.soil_adc_channel", "must not be negative")
			}
		default:
			return invalid("sensors.soil_mode", fmt.Sprintf("unknown mode %q", s.SoilMode))
		}
		if s.PHSlave < 1 || s.PHSlave > 247 {
			return invalid("sensors.ph_slave", "must be in range [1, 247]")
		}
		if s.PHBaudRate <= 0 {
			return invalid("sensors.ph_baud", "must be positive")
		}
		if s.PHRegister < 0 || s.PHRegister > 0xfffe {
			return invalid("sensors.ph_register", "out of range")
		}
	case SensorDriverSim:
		if s.SimJitter < 0 {
			return invalid("sensors.sim_jitter", "must not be negative")
		}
	default:
		return invalid("sensors.driver", fmt.Sprintf("unknown driver %q", s.Driver))
	}

	a := &c.Actuators
	switch a.Driver {
	case ActuatorDriverGPIO:
		if !validLine(a.WaterPumpLine) || !validLine(a.PesticideSprayLine) {
			return invalid("actuators", "GPIO line out of range")
		}
		if a.WaterPumpLine == a.PesticideSprayLine {
			return invalid("actuators.pesticide_spray_line", "must differ from water_pump_line")
		}
	case ActuatorDriverSim:
	default:
		return invalid("actuators.driver", fmt.Sprintf("unknown driver %q", a.Driver))
	}

	t := &c.Telemetry
	switch t.Backend {
	case BackendNone:
	case BackendIoTHub:
		if t.ConnectionString == "" {
			return invalid("telemetry.connection_string", "required by the iothub backend")
		}
	case BackendHTTP:
		u, err := url.Parse(t.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("telemetry.url", "must be an absolute http(s) URL")
		}
	case BackendInfluxDB:
		if t.InfluxURL == "" || t.InfluxOrg == "" || t.InfluxBucket == "" {
			return invalid("telemetry", "influx_url, influx_org and influx_bucket are required by the influxdb backend")
		}
		if t.Measurement == "" {
			return invalid("telemetry.measurement", "must not be empty")
		}
	default:
		return invalid("telemetry.backend", fmt.Sprintf("unknown backend %q", t.Backend))
	}
	return nil
}
