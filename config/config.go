// Package config holds the daemon's settings. They come from a YAML file,
// then from RMTLED_* environment variables, which may themselves come from a
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Jon-Bright/rmtled/pixarray"
	"github.com/Jon-Bright/rmtled/ws281x"
)

const EnvPrefix = "RMTLED_"

var Drivers = []string{"dry", "mmap", "periph", "serial", "spi"}

type Mmap struct {
	Path   string `yaml:"path"`
	Offset int64  `yaml:"offset"`
}

type Serial struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

type SPI struct {
	Port   string `yaml:"port"` // "" is the first port periph finds
	FreqHz int64  `yaml:"freq_hz"`
}

type Power struct {
	CtrlPin    string        `yaml:"ctrl_pin,omitempty"`   // e.g. GPIO17, empty for none
	StatusPin  string        `yaml:"status_pin,omitempty"` // only used with CtrlPin
	StatusWait time.Duration `yaml:"status_wait"`
}

type Config struct {
	Driver      string        `yaml:"driver"`
	Chip        string        `yaml:"chip"`
	LEDs        int           `yaml:"leds"`
	BytesPerLED int           `yaml:"bytes_per_led"`
	MaxCCV      int           `yaml:"max_ccv"`
	ColorOrder  string        `yaml:"color_order,omitempty"` // empty picks the strip's default
	Strict      bool          `yaml:"strict"`
	Pin         int           `yaml:"pin"`
	Channel     int           `yaml:"channel"`
	Tick        time.Duration `yaml:"tick"`

	Port int    `yaml:"port"`
	HTTP string `yaml:"http,omitempty"`

	Mmap   Mmap   `yaml:"mmap"`
	Serial Serial `yaml:"serial"`
	SPI    SPI    `yaml:"spi"`
	Power  Power  `yaml:"power"`
}

func Default() *Config {
	return &Config{
		Driver:      "dry",
		Chip:        "ws2812b",
		LEDs:        5 * 32,
		BytesPerLED: 3,
		MaxCCV:      255,
		Pin:         18,
		Tick:        ws281x.DefaultTick,
		Port:        24601,
		Mmap: Mmap{
			Path: "/dev/shm/rmtled",
		},
		Serial: Serial{
			Device:        "/dev/ttyACM0",
			Baud:          250000,
			ReadTimeoutMs: 500,
		},
		SPI: SPI{
			FreqHz: 2500000,
		},
		Power: Power{
			StatusWait: 2 * time.Second,
		},
	}
}

// Load reads path over the defaults and then applies the environment. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("couldn't parse %s: %w", path, err)
		}
	}
	c.ApplyEnv()
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// LoadEnvFile sources path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (c *Config) ApplyEnv() {
	c.Driver = getEnv(EnvPrefix+"DRIVER", c.Driver)
	c.Chip = getEnv(EnvPrefix+"CHIP", c.Chip)
	c.LEDs = getEnvInt(EnvPrefix+"LEDS", c.LEDs)
	c.BytesPerLED = getEnvInt(EnvPrefix+"BYTES_PER_LED", c.BytesPerLED)
	c.MaxCCV = getEnvInt(EnvPrefix+"MAX_CCV", c.MaxCCV)
	c.ColorOrder = getEnv(EnvPrefix+"COLOR_ORDER", c.ColorOrder)
	c.Strict = getEnvBool(EnvPrefix+"STRICT", c.Strict)
	c.Pin = getEnvInt(EnvPrefix+"PIN", c.Pin)
	c.Channel = getEnvInt(EnvPrefix+"CHANNEL", c.Channel)
	c.Tick = getEnvDuration(EnvPrefix+"TICK", c.Tick)
	c.Port = getEnvInt(EnvPrefix+"PORT", c.Port)
	c.HTTP = getEnv(EnvPrefix+"HTTP", c.HTTP)

	c.Mmap.Path = getEnv(EnvPrefix+"MMAP_PATH", c.Mmap.Path)
	c.Serial.Device = getEnv(EnvPrefix+"SERIAL_DEVICE", c.Serial.Device)
	c.Serial.Baud = getEnvInt(EnvPrefix+"SERIAL_BAUD", c.Serial.Baud)
	c.SPI.Port = getEnv(EnvPrefix+"SPI_PORT", c.SPI.Port)
	c.Power.CtrlPin = getEnv(EnvPrefix+"POWER_CTRL_PIN", c.Power.CtrlPin)
	c.Power.StatusPin = getEnv(EnvPrefix+"POWER_STATUS_PIN", c.Power.StatusPin)
}

// Validate checks everything that can be checked without touching hardware.
func (c *Config) Validate() error {
	known := false
	for _, d := range Drivers {
		if c.Driver == d {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown driver %q, want one of %v", c.Driver, Drivers)
	}
	if chip, err := ws281x.ParseChipType(c.Chip); err != nil {
		return err
	} else if chip == ws281x.ChipUnset {
		return fmt.Errorf("chip must be set")
	}
	if c.LEDs < 1 || c.LEDs > 0xffff {
		return fmt.Errorf("leds %d out of range 1..65535", c.LEDs)
	}
	if c.BytesPerLED != 3 && c.BytesPerLED != 4 {
		return fmt.Errorf("bytes_per_led must be 3 or 4, not %d", c.BytesPerLED)
	}
	if c.MaxCCV < 0 || c.MaxCCV > 255 {
		return fmt.Errorf("max_ccv %d out of range 0..255", c.MaxCCV)
	}
	if c.ColorOrder != "" {
		if _, err := pixarray.ParseColorOrder(c.ColorOrder); err != nil {
			return err
		}
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, not %v", c.Tick)
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
