// Package config loads the ssrpwm host configuration.
//
// Values are applied in order: built-in defaults, the TOML file, SSRPWM_*
// environment variables, then command line flags the user explicitly set.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"ssrpwm/core"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SSRPWM_"

// Relay output drivers selectable with board.driver
const (
	DriverGPIO    = "gpio"
	DriverPCF8574 = "pcf8574"
)

// Config is the complete host configuration
type Config struct {
	Board   BoardConfig   `toml:"board"`
	Serial  SerialConfig  `toml:"serial"`
	HTTP    HTTPConfig    `toml:"http"`
	Logging LoggingConfig `toml:"logging"`
	Runtime RuntimeConfig `toml:"runtime"`
}

// BoardConfig describes the relay wiring
type BoardConfig struct {
	Driver       string   `toml:"driver"`
	RelayPins    []uint32 `toml:"relay_pins"`
	HighFreqPins []uint32 `toml:"high_freq_pins"`
	I2CAddress   uint16   `toml:"i2c_address"`
}

// SerialConfig selects the command port. An empty device means commands
// only arrive over HTTP.
type SerialConfig struct {
	Device        string `toml:"device"`
	Baud          int    `toml:"baud"`
	ReadTimeoutMS int    `toml:"read_timeout_ms"`
}

// HTTPConfig configures the status and metrics server. An empty listen
// address disables it.
type HTTPConfig struct {
	Listen string `toml:"listen"`
}

// LoggingConfig selects the log level and output format
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// RuntimeConfig tunes the scheduler loop
type RuntimeConfig struct {
	TickMS        int `toml:"tick_ms"`
	LogRatePerSec int `toml:"log_rate_per_sec"`
}

// Default returns the built-in configuration: the default relay board on
// virtual GPIO, no serial port, HTTP on :8090
func Default() *Config {
	board := core.DefaultBoardConfig()
	return &Config{
		Board: BoardConfig{
			Driver:       DriverGPIO,
			RelayPins:    pinsToUint(board.RelayPins),
			HighFreqPins: pinsToUint(board.HighFreqPins),
			I2CAddress:   0x20,
		},
		Serial: SerialConfig{
			Baud:          115200,
			ReadTimeoutMS: 100,
		},
		HTTP: HTTPConfig{
			Listen: ":8090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Runtime: RuntimeConfig{
			TickMS:        1,
			LogRatePerSec: 5,
		},
	}
}

// Load builds a configuration from defaults, the file at path (if any) and
// the environment. Flags are applied separately with ApplyFlags.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// binding connects one setting to its environment variable and flag
type binding struct {
	env  string
	flag string
	set  func(c *Config, value string) error
}

var bindings = []binding{
	{"BOARD_DRIVER", "driver", func(c *Config, v string) error { c.Board.Driver = v; return nil }},
	{"BOARD_RELAY_PINS", "relay-pins", func(c *Config, v string) (err error) {
		c.Board.RelayPins, err = parsePins(v)
		return err
	}},
	{"BOARD_HIGH_FREQ_PINS", "high-freq-pins", func(c *Config, v string) (err error) {
		c.Board.HighFreqPins, err = parsePins(v)
		return err
	}},
	{"BOARD_I2C_ADDRESS", "i2c-address", func(c *Config, v string) error {
		addr, err := strconv.ParseUint(v, 0, 7)
		c.Board.I2CAddress = uint16(addr)
		return err
	}},
	{"SERIAL_DEVICE", "device", func(c *Config, v string) error { c.Serial.Device = v; return nil }},
	{"SERIAL_BAUD", "baud", func(c *Config, v string) (err error) {
		c.Serial.Baud, err = strconv.Atoi(v)
		return err
	}},
	{"SERIAL_READ_TIMEOUT_MS", "read-timeout-ms", func(c *Config, v string) (err error) {
		c.Serial.ReadTimeoutMS, err = strconv.Atoi(v)
		return err
	}},
	{"HTTP_LISTEN", "listen", func(c *Config, v string) error { c.HTTP.Listen = v; return nil }},
	{"LOGGING_LEVEL", "log-level", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"LOGGING_FORMAT", "log-format", func(c *Config, v string) error { c.Logging.Format = v; return nil }},
	{"RUNTIME_TICK_MS", "tick-ms", func(c *Config, v string) (err error) {
		c.Runtime.TickMS, err = strconv.Atoi(v)
		return err
	}},
	{"RUNTIME_LOG_RATE_PER_SEC", "log-rate", func(c *Config, v string) (err error) {
		c.Runtime.LogRatePerSec, err = strconv.Atoi(v)
		return err
	}},
}

// ApplyEnv applies SSRPWM_* overrides. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, b := range bindings {
		value, ok := lookup(EnvPrefix + b.env)
		if !ok || value == "" {
			continue
		}
		if err := b.set(c, value); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, b.env, value, err)
		}
	}
	return nil
}

// RegisterFlags adds a flag for every setting to fs, with the built-in
// defaults shown in the help text
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.StringP("config", "c", "", "Config file path (TOML)")
	fs.String("driver", d.Board.Driver, "Relay output driver (gpio, pcf8574)")
	fs.String("relay-pins", joinPins(d.Board.RelayPins), "Comma-separated relay pins in relay order")
	fs.String("high-freq-pins", joinPins(d.Board.HighFreqPins), "Comma-separated pins with duty output")
	fs.String("i2c-address", "0x20", "PCF8574 I2C address")
	fs.StringP("device", "d", d.Serial.Device, "Serial device path (empty disables serial input)")
	fs.String("baud", strconv.Itoa(d.Serial.Baud), "Serial baud rate (ignored for USB CDC)")
	fs.String("read-timeout-ms", strconv.Itoa(d.Serial.ReadTimeoutMS), "Serial read timeout in milliseconds")
	fs.StringP("listen", "l", d.HTTP.Listen, "HTTP listen address (empty disables HTTP)")
	fs.String("log-level", d.Logging.Level, "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", d.Logging.Format, "Log format (console, json)")
	fs.String("tick-ms", strconv.Itoa(d.Runtime.TickMS), "Scheduler tick in milliseconds")
	fs.String("log-rate", strconv.Itoa(d.Runtime.LogRatePerSec), "Rejected command log lines per second")
}

// ApplyFlags applies flags the user explicitly set on fs. Flags left at
// their default never override the file or environment.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	for _, b := range bindings {
		f := fs.Lookup(b.flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := b.set(c, f.Value.String()); err != nil {
			return fmt.Errorf("invalid --%s=%q: %w", b.flag, f.Value.String(), err)
		}
	}
	return nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	var errs []error

	switch c.Board.Driver {
	case DriverGPIO:
	case DriverPCF8574:
		for _, pin := range c.Board.RelayPins {
			if pin > 7 {
				errs = append(errs, fmt.Errorf("board.relay_pins: pin %d is not a pcf8574 output", pin))
			}
		}
		if len(c.Board.HighFreqPins) > 0 {
			errs = append(errs, fmt.Errorf("board.high_freq_pins: %v set, but pcf8574 outputs have no duty control", c.Board.HighFreqPins))
		}
		if c.Board.I2CAddress == 0 || c.Board.I2CAddress > 0x7F {
			errs = append(errs, fmt.Errorf("board.i2c_address: 0x%x is not a 7-bit address", c.Board.I2CAddress))
		}
	default:
		errs = append(errs, fmt.Errorf("board.driver: unknown driver %q", c.Board.Driver))
	}

	if len(c.Board.RelayPins) == 0 {
		errs = append(errs, errors.New("board.relay_pins: at least one relay is required"))
	}
	seen := make(map[uint32]bool, len(c.Board.RelayPins))
	for _, pin := range c.Board.RelayPins {
		if seen[pin] {
			errs = append(errs, fmt.Errorf("board.relay_pins: pin %d used twice", pin))
		}
		seen[pin] = true
	}
	for _, pin := range c.Board.HighFreqPins {
		if !seen[pin] {
			errs = append(errs, fmt.Errorf("board.high_freq_pins: pin %d is not a relay pin", pin))
		}
	}

	if c.Serial.Device != "" && c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud: %d must be positive", c.Serial.Baud))
	}
	if c.Serial.ReadTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("serial.read_timeout_ms: %d must not be negative", c.Serial.ReadTimeoutMS))
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil || c.Logging.Level == "" {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	if c.Runtime.TickMS < 1 || c.Runtime.TickMS > 1000 {
		errs = append(errs, fmt.Errorf("runtime.tick_ms: %d out of range 1-1000", c.Runtime.TickMS))
	}
	if c.Runtime.LogRatePerSec < 0 {
		errs = append(errs, fmt.Errorf("runtime.log_rate_per_sec: %d must not be negative", c.Runtime.LogRatePerSec))
	}

	return errors.Join(errs...)
}

// RelayBoard converts the board section for core.NewRelayBoard
func (c *Config) RelayBoard() core.BoardConfig {
	return core.BoardConfig{
		RelayPins:    uintToPins(c.Board.RelayPins),
		HighFreqPins: uintToPins(c.Board.HighFreqPins),
	}
}

func parsePins(s string) ([]uint32, error) {
	var pins []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pin, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad pin %q", part)
		}
		pins = append(pins, uint32(pin))
	}
	return pins, nil
}

func joinPins(pins []uint32) string {
	parts := make([]string, len(pins))
	for i, pin := range pins {
		parts[i] = strconv.FormatUint(uint64(pin), 10)
	}
	return strings.Join(parts, ",")
}

func pinsToUint(pins []core.GPIOPin) []uint32 {
	out := make([]uint32, len(pins))
	for i, pin := range pins {
		out[i] = uint32(pin)
	}
	return out
}

func uintToPins(pins []uint32) []core.GPIOPin {
	out := make([]core.GPIOPin, len(pins))
	for i, pin := range pins {
		out[i] = core.GPIOPin(pin)
	}
	return out
}
