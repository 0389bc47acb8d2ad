// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Comport      ComportSettings    `mapstructure:"comport"`
	PinMode      []PinModeSetting   `mapstructure:"-"`
	Experimental ExperimentalConfig `mapstructure:"experimental"`
	Metadata     map[string]any     `mapstructure:"metadata"`
	Discovery    DiscoveryConfig    `mapstructure:"discovery"`
	Server       ServerConfig       `mapstructure:"server"`
	Security     SecurityConfig     `mapstructure:"security"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ComportSettings mirrors the comport section of a board file. Timeout and
// Warmup are in seconds; zero means unset.
type ComportSettings struct {
	Arduino  string  `mapstructure:"arduino"`
	Port     string  `mapstructure:"port"`
	BaudRate int     `mapstructure:"baudrate"`
	Timeout  float64 `mapstructure:"timeout"`
	DotIno   string  `mapstructure:"dotino"`
	Warmup   float64 `mapstructure:"warmup"`

	// Deploy uploads the firmware before the service connects
	Deploy         bool   `mapstructure:"deploy"`
	// DeployTemplate is the upload command line with {binary}, {firmware}
	// and {port} placeholders. Empty selects the arduino IDE form.
	DeployTemplate string `mapstructure:"deploy_template"`
}

// TimeoutDuration returns the read timeout, zero when unset
func (c ComportSettings) TimeoutDuration() time.Duration {
	return seconds(c.Timeout)
}

// WarmupDuration returns the post-deploy warmup, zero when unset
func (c ComportSettings) WarmupDuration() time.Duration {
	return seconds(c.Warmup)
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// PinModeSetting is one pin entry of the pinmode section, kept in file order
type PinModeSetting struct {
	Pin  int    `json:"pin"`
	Mode string `json:"mode"`
}

// ExperimentalConfig holds features that need the pulse firmware
type ExperimentalConfig struct {
	Optuino bool           `mapstructure:"optuino"`
	Pulse   []PulseSetting `mapstructure:"pulse"`
}

// PulseSetting is a frequency/duration pair preloaded into a pulse slot
type PulseSetting struct {
	Frequency int `mapstructure:"frequency" json:"frequency"`
	Duration  int `mapstructure:"duration" json:"duration"`
}

// DiscoveryConfig selects the port scanners
type DiscoveryConfig struct {
	OnlyKnown   bool          `mapstructure:"only_known"`
	USB         bool          `mapstructure:"usb"`
	Bridges     []string      `mapstructure:"bridges"`
	ScanTimeout time.Duration `mapstructure:"scan_timeout"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	Mode         string        `mapstructure:"mode"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from path and PINO_ environment variables. An
// empty path looks for pino.yaml in the working directory and ./config; a
// missing file is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pino")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("PINO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if used := v.ConfigFileUsed(); used != "" {
		pinModes, err := readPinModes(used)
		if err != nil {
			return nil, err
		}
		config.PinMode = pinModes
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Comport defaults, port has none
	v.SetDefault("comport.baudrate", 115200)
	v.SetDefault("comport.dotino", "proto/proto.ino")

	// Discovery defaults
	v.SetDefault("discovery.only_known", false)
	v.SetDefault("discovery.usb", false)
	v.SetDefault("discovery.scan_timeout", "10s")

	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.mode", "release")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
}

// readPinModes decodes the pinmode mapping as a yaml node so entries keep
// the order they were written in
func readPinModes(path string) ([]PinModeSetting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return ParsePinModes(data)
}

// ParsePinModes extracts the pinmode section of a YAML document. The section
// name matches case-insensitively, as viper does.
func ParsePinModes(data []byte) ([]PinModeSetting, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("unable to parse config: %w", err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, nil
	}

	doc := root.Content[0]
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if !strings.EqualFold(doc.Content[i].Value, "pinmode") {
			continue
		}

		section := doc.Content[i+1]
		if section.Kind == yaml.ScalarNode && section.Tag == "!!null" {
			return nil, nil
		}
		if section.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("pinmode must be a mapping of pin to mode (line %d)", section.Line)
		}

		settings := make([]PinModeSetting, 0, len(section.Content)/2)
		for j := 0; j+1 < len(section.Content); j += 2 {
			key, value := section.Content[j], section.Content[j+1]
			pin, err := strconv.Atoi(key.Value)
			if err != nil {
				return nil, fmt.Errorf("pinmode key %q is not a pin number (line %d)", key.Value, key.Line)
			}
			settings = append(settings, PinModeSetting{Pin: pin, Mode: value.Value})
		}
		return settings, nil
	}
	return nil, nil
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Comport.BaudRate <= 0 {
		return fmt.Errorf("comport.baudrate must be positive")
	}
	if config.Comport.Timeout < 0 {
		return fmt.Errorf("comport.timeout must not be negative")
	}
	if config.Comport.Warmup < 0 {
		return fmt.Errorf("comport.warmup must not be negative")
	}

	for i, p := range config.Experimental.Pulse {
		if p.Frequency < 0 || p.Duration < 0 {
			return fmt.Errorf("experimental.pulse[%d] must not be negative", i)
		}
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
