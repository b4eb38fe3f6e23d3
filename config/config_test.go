package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "dry", c.Driver)
	assert.Equal(t, 50*time.Nanosecond, c.Tick)
	assert.Equal(t, 24601, c.Port)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rmtled.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: serial
chip: ws2812
leds: 60
bytes_per_led: 4
color_order: grbw
tick: 25ns
serial:
  device: /dev/ttyUSB1
power:
  ctrl_pin: GPIO17
  status_wait: 500ms
`), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, "serial", c.Driver)
	assert.Equal(t, "ws2812", c.Chip)
	assert.Equal(t, 60, c.LEDs)
	assert.Equal(t, 4, c.BytesPerLED)
	assert.Equal(t, "grbw", c.ColorOrder)
	assert.Equal(t, 25*time.Nanosecond, c.Tick)
	assert.Equal(t, "/dev/ttyUSB1", c.Serial.Device)
	// Unset keys keep their defaults.
	assert.Equal(t, 250000, c.Serial.Baud)
	assert.Equal(t, 255, c.MaxCCV)
	assert.Equal(t, "GPIO17", c.Power.CtrlPin)
	assert.Equal(t, 500*time.Millisecond, c.Power.StatusWait)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("leds: [1, 2"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	c := Default()
	c.Driver = "mmap"
	c.Mmap.Offset = 4096
	c.HTTP = ":8080"
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, c))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RMTLED_DRIVER", "periph")
	t.Setenv("RMTLED_LEDS", "12")
	t.Setenv("RMTLED_STRICT", "true")
	t.Setenv("RMTLED_TICK", "100ns")
	t.Setenv("RMTLED_HTTP", "127.0.0.1:9000")
	t.Setenv("RMTLED_PIN", "not a number")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "periph", c.Driver)
	assert.Equal(t, 12, c.LEDs)
	assert.True(t, c.Strict)
	assert.Equal(t, 100*time.Nanosecond, c.Tick)
	assert.Equal(t, "127.0.0.1:9000", c.HTTP)
	// Unparseable values leave the default alone.
	assert.Equal(t, 18, c.Pin)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadEnvFile(filepath.Join(dir, ".env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RMTLED_CHIP=ws2815\nRMTLED_PORT=7000\n"), 0644))
	// Variables that are already set win over the file.
	t.Setenv("RMTLED_PORT", "7001")
	t.Setenv("RMTLED_CHIP", "")
	os.Unsetenv("RMTLED_CHIP")
	require.NoError(t, LoadEnvFile(path))

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ws2815", c.Chip)
	assert.Equal(t, 7001, c.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"driver", func(c *Config) { c.Driver = "pwm" }},
		{"chip", func(c *Config) { c.Chip = "apa102" }},
		{"unset chip", func(c *Config) { c.Chip = "unset" }},
		{"no leds", func(c *Config) { c.LEDs = 0 }},
		{"too many leds", func(c *Config) { c.LEDs = 70000 }},
		{"width", func(c *Config) { c.BytesPerLED = 2 }},
		{"ccv", func(c *Config) { c.MaxCCV = 256 }},
		{"order", func(c *Config) { c.ColorOrder = "BGR" }},
		{"tick", func(c *Config) { c.Tick = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mod(c)
			assert.Error(t, c.Validate())
		})
	}
}
