package config

import (
	"fmt"
	"os"
	"time"

	"github.com/itohio/golightmeter/pkg/calibration"
	"github.com/itohio/golightmeter/pkg/enlarger"
	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/settings"
	"github.com/itohio/golightmeter/pkg/tsl2585"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Device      DeviceConfig       `yaml:"device"`
	Sensor      SensorConfig       `yaml:"sensor"`
	Exposure    ExposureConfig     `yaml:"exposure"`
	Calibration calibration.Config `yaml:"calibration"`
	Enlarger    EnlargerConfig     `yaml:"enlarger"`
	Output      OutputConfig       `yaml:"output"`
	Mock        MockConfig         `yaml:"mock"`
}

// DeviceConfig describes how the peripheral is wired to the host.
type DeviceConfig struct {
	Kind         string `yaml:"kind"`           // probe or stick
	Bus          string `yaml:"bus"`            // I2C bus name, empty for the first bus
	Interrupt    string `yaml:"interrupt"`      // GPIO pin wired to the sensor interrupt line
	IdleSpeedKHz int    `yaml:"idle_speed_khz"` // bus clock outside fast mode
	FastSpeedKHz int    `yaml:"fast_speed_khz"` // bus clock while draining the FIFO in fast mode
}

// SensorConfig contains measurement parameters.
type SensorConfig struct {
	Gain           tsl2585.Gain  `yaml:"gain"`
	SampleTime     uint16        `yaml:"sample_time"`
	SampleCount    uint16        `yaml:"sample_count"`
	Mode           string        `yaml:"mode"`
	AGC            bool          `yaml:"agc"`
	AGCSamples     uint16        `yaml:"agc_samples"`
	ReadingTimeout time.Duration `yaml:"reading_timeout"`
	AverageSamples int           `yaml:"average_samples"` // Number of samples to average (0 = disabled, default)
}

// ExposureConfig controls exposure detection while reading.
type ExposureConfig struct {
	Window      time.Duration `yaml:"window"`
	Threshold   float32       `yaml:"threshold"`    // basic reading separating lit from dark
	MinDuration time.Duration `yaml:"min_duration"` // shorter lit periods are treated as noise
}

// EnlargerConfig selects and configures the enlarger relay.
type EnlargerConfig struct {
	Backend string                `yaml:"backend"` // serial, modbus or mock
	Serial  SerialConfig          `yaml:"serial"`
	Modbus  enlarger.ModbusConfig `yaml:"modbus"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// OutputConfig selects where samples and profiles are published.
type OutputConfig struct {
	Kind string     `yaml:"kind"` // console or mqtt
	MQTT MQTTConfig `yaml:"mqtt"`
}

type MQTTConfig struct {
	Server         string `yaml:"server"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	StateTopic     string `yaml:"state_topic"`
	ProfileTopic   string `yaml:"profile_topic"`
	DiscoveryTopic string `yaml:"discovery_topic"`
	DiscoveryName  string `yaml:"discovery_name"`
}

// MockConfig contains the simulated lamp and sensor configuration.
type MockConfig struct {
	Lamp  enlarger.Timing `yaml:"lamp"`
	Level float64         `yaml:"level"` // lamp output in counts per ms at 1x gain
	Dark  float64         `yaml:"dark"`  // stray light with the lamp off
	Noise float64         `yaml:"noise"` // relative noise of every result
	Seed  int64           `yaml:"seed"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Kind:         "probe",
			Interrupt:    "GPIO17",
			IdleSpeedKHz: 400,
			FastSpeedKHz: 1000,
		},
		Sensor: SensorConfig{
			Gain:           sensor.DefaultGain,
			SampleTime:     sensor.DefaultSampleTime,
			SampleCount:    sensor.DefaultSampleCount,
			Mode:           "normal",
			AGC:            true,
			AGCSamples:     sensor.DefaultAGCSamples,
			ReadingTimeout: time.Second,
			AverageSamples: 0, // No averaging by default
		},
		Exposure: ExposureConfig{
			Window:      10 * time.Second,
			Threshold:   1,
			MinDuration: 20 * time.Millisecond,
		},
		Calibration: calibration.DefaultConfig(),
		Enlarger: EnlargerConfig{
			Backend: "mock",
			Serial: SerialConfig{
				Port: "/dev/ttyACM0", // COM3 or similar on Windows
				Baud: 115200,
			},
			Modbus: enlarger.ModbusConfig{
				UnitID:  1,
				Timeout: time.Second,
			},
		},
		Output: OutputConfig{
			Kind: "console",
			MQTT: MQTTConfig{
				Server:       "tcp://localhost:1883",
				ClientID:     "lightmeter",
				StateTopic:   "lightmeter/state",
				ProfileTopic: "lightmeter/profile",
			},
		},
		Mock: MockConfig{
			Lamp:  enlarger.DefaultTiming(),
			Level: 50,
			Dark:  0.05,
			Noise: 0.002,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Device.Kind == "" {
		c.Device.Kind = def.Device.Kind
	}
	if c.Device.IdleSpeedKHz <= 0 {
		c.Device.IdleSpeedKHz = def.Device.IdleSpeedKHz
	}
	if c.Device.FastSpeedKHz <= 0 {
		c.Device.FastSpeedKHz = def.Device.FastSpeedKHz
	}

	if !c.Sensor.Gain.Valid() {
		c.Sensor.Gain = def.Sensor.Gain
	}
	if c.Sensor.SampleTime == 0 {
		c.Sensor.SampleTime = def.Sensor.SampleTime
	}
	if c.Sensor.SampleCount == 0 {
		c.Sensor.SampleCount = def.Sensor.SampleCount
	}
	if c.Sensor.Mode == "" {
		c.Sensor.Mode = def.Sensor.Mode
	}
	if c.Sensor.AGCSamples == 0 {
		c.Sensor.AGCSamples = def.Sensor.AGCSamples
	}
	if c.Sensor.ReadingTimeout <= 0 {
		c.Sensor.ReadingTimeout = def.Sensor.ReadingTimeout
	}

	if c.Exposure.Window <= 0 {
		c.Exposure.Window = def.Exposure.Window
	}
	if c.Exposure.Threshold <= 0 {
		c.Exposure.Threshold = def.Exposure.Threshold
	}

	if c.Enlarger.Backend == "" {
		c.Enlarger.Backend = def.Enlarger.Backend
	}
	if c.Enlarger.Serial.Port == "" {
		c.Enlarger.Serial.Port = def.Enlarger.Serial.Port
	}
	if c.Enlarger.Serial.Baud <= 0 {
		c.Enlarger.Serial.Baud = def.Enlarger.Serial.Baud
	}
	if c.Enlarger.Modbus.Timeout <= 0 {
		c.Enlarger.Modbus.Timeout = def.Enlarger.Modbus.Timeout
	}

	if c.Output.Kind == "" {
		c.Output.Kind = def.Output.Kind
	}
	if c.Output.MQTT.Server == "" {
		c.Output.MQTT.Server = def.Output.MQTT.Server
	}
	if c.Output.MQTT.ClientID == "" {
		c.Output.MQTT.ClientID = def.Output.MQTT.ClientID
	}

	if c.Mock.Lamp == (enlarger.Timing{}) {
		c.Mock.Lamp = def.Mock.Lamp
	}
	if c.Mock.Level <= 0 {
		c.Mock.Level = def.Mock.Level
	}
}

// Kind returns the configured peripheral kind.
func (c *Config) Kind() (settings.Kind, error) {
	return settings.ParseKind(c.Device.Kind)
}

// SensorMode returns the configured acquisition mode.
func (c *Config) SensorMode() (sensor.Mode, error) {
	return sensor.ParseMode(c.Sensor.Mode)
}

// Backend returns the configured enlarger backend.
func (c *Config) Backend() (enlarger.Backend, error) {
	return enlarger.ParseBackend(c.Enlarger.Backend)
}
