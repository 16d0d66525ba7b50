package config

import (
	"os"
	"testing"
	"time"

	"github.com/itohio/golightmeter/pkg/calibration"
	"github.com/itohio/golightmeter/pkg/enlarger"
	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/settings"
	"github.com/itohio/golightmeter/pkg/tsl2585"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "test_config_*.yaml")
	require.NoError(t, err)
	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "probe", cfg.Device.Kind)
	assert.Equal(t, 400, cfg.Device.IdleSpeedKHz)
	assert.Equal(t, 1000, cfg.Device.FastSpeedKHz)
	assert.Equal(t, tsl2585.Gain256X, cfg.Sensor.Gain)
	assert.Equal(t, uint16(719), cfg.Sensor.SampleTime)
	assert.Equal(t, uint16(99), cfg.Sensor.SampleCount)
	assert.Equal(t, time.Second, cfg.Sensor.ReadingTimeout)
	assert.Equal(t, 10*time.Second, cfg.Exposure.Window)
	assert.Equal(t, float32(1), cfg.Exposure.Threshold)
	assert.Equal(t, calibration.DefaultConfig(), cfg.Calibration)
	assert.Equal(t, "mock", cfg.Enlarger.Backend)
	assert.Equal(t, 115200, cfg.Enlarger.Serial.Baud)
	assert.Equal(t, "console", cfg.Output.Kind)
	assert.Equal(t, enlarger.DefaultTiming(), cfg.Mock.Lamp)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	name := writeTemp(t, `
device:
  kind: stick
  bus: "/dev/i2c-1"
  interrupt: GPIO27

sensor:
  gain: 5
  sample_time: 359
  sample_count: 9
  mode: fast
  reading_timeout: 250ms
  average_samples: 4

exposure:
  threshold: 2.5
  min_duration: 100ms

calibration:
  reference_readings: 50
  iterations: 3
  stabilize_on: 3s
  min_range_gap: 12

enlarger:
  backend: modbus
  modbus:
    endpoint: "192.168.1.20:502"
    unit_id: 3
    coil: 2

output:
  kind: mqtt
  mqtt:
    server: "tcp://broker:1883"
    state_topic: darkroom/meter

mock:
  lamp:
    turn_on_delay: 25ms
    rise_time: 40ms
    turn_off_delay: 10ms
    fall_time: 80ms
  level: 120
`)

	cfg, err := Load(name)
	require.NoError(t, err)

	assert.Equal(t, "stick", cfg.Device.Kind)
	assert.Equal(t, "/dev/i2c-1", cfg.Device.Bus)
	assert.Equal(t, "GPIO27", cfg.Device.Interrupt)
	assert.Equal(t, tsl2585.Gain16X, cfg.Sensor.Gain)
	assert.Equal(t, uint16(359), cfg.Sensor.SampleTime)
	assert.Equal(t, uint16(9), cfg.Sensor.SampleCount)
	assert.Equal(t, 250*time.Millisecond, cfg.Sensor.ReadingTimeout)
	assert.Equal(t, 4, cfg.Sensor.AverageSamples)
	assert.Equal(t, float32(2.5), cfg.Exposure.Threshold)
	assert.Equal(t, 100*time.Millisecond, cfg.Exposure.MinDuration)
	assert.Equal(t, 10*time.Second, cfg.Exposure.Window)

	assert.Equal(t, 50, cfg.Calibration.ReferenceReadings)
	assert.Equal(t, 3, cfg.Calibration.Iterations)
	assert.Equal(t, 3*time.Second, cfg.Calibration.StabilizeOn)
	assert.Equal(t, float32(12), cfg.Calibration.MinRangeGap)
	assert.Equal(t, calibration.DefaultMaxScanDuration, cfg.Calibration.MaxScanDuration)

	assert.Equal(t, "192.168.1.20:502", cfg.Enlarger.Modbus.Endpoint)
	assert.Equal(t, uint8(3), cfg.Enlarger.Modbus.UnitID)
	assert.Equal(t, uint16(2), cfg.Enlarger.Modbus.Coil)
	assert.Equal(t, time.Second, cfg.Enlarger.Modbus.Timeout)

	assert.Equal(t, "tcp://broker:1883", cfg.Output.MQTT.Server)
	assert.Equal(t, "darkroom/meter", cfg.Output.MQTT.StateTopic)

	assert.Equal(t, 25*time.Millisecond, cfg.Mock.Lamp.TurnOnDelay)
	assert.Equal(t, 80*time.Millisecond, cfg.Mock.Lamp.FallTime)
	assert.Equal(t, float64(120), cfg.Mock.Level)

	kind, err := cfg.Kind()
	require.NoError(t, err)
	assert.Equal(t, settings.KindStick, kind)
	mode, err := cfg.SensorMode()
	require.NoError(t, err)
	assert.Equal(t, sensor.ModeFast, mode)
	backend, err := cfg.Backend()
	require.NoError(t, err)
	assert.Equal(t, enlarger.BackendModbus, backend)
}

func TestLoad_InvalidYAML(t *testing.T) {
	name := writeTemp(t, "invalid: yaml: content: [")

	cfg, err := Load(name)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	name := writeTemp(t, `
enlarger:
  serial:
    port: "/dev/ttyUSB1"
`)

	cfg, err := Load(name)
	require.NoError(t, err)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/ttyUSB1", cfg.Enlarger.Serial.Port)
	assert.Equal(t, 115200, cfg.Enlarger.Serial.Baud)
	assert.Equal(t, "mock", cfg.Enlarger.Backend)
	assert.Equal(t, uint16(99), cfg.Sensor.SampleCount)
}

func TestLoad_ZeroedFields(t *testing.T) {
	name := writeTemp(t, `
device:
  kind: ""
  idle_speed_khz: 0
sensor:
  sample_count: 0
  reading_timeout: 0s
enlarger:
  backend: ""
mock:
  lamp:
    turn_on_delay: 0s
    rise_time: 0s
    turn_off_delay: 0s
    fall_time: 0s
`)

	cfg, err := Load(name)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Device.Kind, cfg.Device.Kind)
	assert.Equal(t, def.Device.IdleSpeedKHz, cfg.Device.IdleSpeedKHz)
	assert.Equal(t, def.Sensor.SampleCount, cfg.Sensor.SampleCount)
	assert.Equal(t, def.Sensor.ReadingTimeout, cfg.Sensor.ReadingTimeout)
	assert.Equal(t, def.Enlarger.Backend, cfg.Enlarger.Backend)
	assert.Equal(t, def.Mock.Lamp, cfg.Mock.Lamp)
}

func TestConfig_InvalidNames(t *testing.T) {
	cfg := Default()
	cfg.Device.Kind = "wand"
	cfg.Sensor.Mode = "burst"
	cfg.Enlarger.Backend = "zigbee"

	_, err := cfg.Kind()
	assert.Error(t, err)
	_, err = cfg.SensorMode()
	assert.Error(t, err)
	_, err = cfg.Backend()
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Enlarger.Backend = "serial"
	cfg.Enlarger.Serial.Port = "/dev/ttyUSB0"
	cfg.Sensor.AverageSamples = 8
	cfg.Calibration.Iterations = 7

	name := writeTemp(t, "")
	require.NoError(t, cfg.Save(name))

	// Load it back and verify
	loaded, err := Load(name)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
