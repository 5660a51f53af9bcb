// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Poll      PollConfig      `mapstructure:"poll"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SerialConfig represents the diagnostic adapter link configuration.
// Mode selects the transport implementation: "serial" talks to a real
// adapter, "sim" runs the built-in adapter emulator.
type SerialConfig struct {
	Mode         string        `mapstructure:"mode"`
	Port         string        `mapstructure:"port" validate:"required"`
	BaudRate     int           `mapstructure:"baud_rate"`
	DataBits     int           `mapstructure:"data_bits"`
	StopBits     int           `mapstructure:"stop_bits"`
	Parity       string        `mapstructure:"parity"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// EngineConfig represents diagnostic engine behavior
type EngineConfig struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	MinRequestGap    time.Duration `mapstructure:"min_request_gap"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
	ProtocolCooldown time.Duration `mapstructure:"protocol_cooldown"`
	PortCooldown     time.Duration `mapstructure:"port_cooldown"`
	ClearRescanDelay time.Duration `mapstructure:"clear_rescan_delay"`
	ScanOnConnect    bool          `mapstructure:"scan_on_connect"`
	CommandQueueSize int           `mapstructure:"command_queue_size"`
	Debug            bool          `mapstructure:"debug"`
}

// PollConfig represents per-metric poll periods
type PollConfig struct {
	RPMPeriod       time.Duration `mapstructure:"rpm_period"`
	SpeedPeriod     time.Duration `mapstructure:"speed_period"`
	CoolantPeriod   time.Duration `mapstructure:"coolant_period"`
	VoltagePeriod   time.Duration `mapstructure:"voltage_period"`
	TransTempPeriod time.Duration `mapstructure:"trans_temp_period"`
	DTCPeriod       time.Duration `mapstructure:"dtc_period"`
}

// DiscoveryConfig represents adapter port discovery configuration
type DiscoveryConfig struct {
	CandidateTable string `mapstructure:"candidate_table"`
	USBEnabled     bool   `mapstructure:"usb_enabled"`
}

// SecurityConfig represents HTTP security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/obd-service")

	// Environment variable support
	viper.SetEnvPrefix("OBD_SERVICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file; defaults plus environment cover the missing-file case
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8092")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Serial defaults: ELM327 clones ship at 38400 8N1
	viper.SetDefault("serial.mode", "serial")
	viper.SetDefault("serial.port", "/dev/ttyUSB0")
	viper.SetDefault("serial.baud_rate", 38400)
	viper.SetDefault("serial.data_bits", 8)
	viper.SetDefault("serial.stop_bits", 1)
	viper.SetDefault("serial.parity", "none")
	viper.SetDefault("serial.read_timeout", "5s")
	viper.SetDefault("serial.write_timeout", "2s")

	// Engine defaults
	viper.SetDefault("engine.tick_interval", "20ms")
	viper.SetDefault("engine.min_request_gap", "50ms")
	viper.SetDefault("engine.failure_threshold", 15)
	viper.SetDefault("engine.reconnect_delay", "3s")
	viper.SetDefault("engine.protocol_cooldown", "2s")
	viper.SetDefault("engine.port_cooldown", "5s")
	viper.SetDefault("engine.clear_rescan_delay", "2s")
	viper.SetDefault("engine.scan_on_connect", true)
	viper.SetDefault("engine.command_queue_size", 16)
	viper.SetDefault("engine.debug", false)

	// Poll period defaults
	viper.SetDefault("poll.rpm_period", "250ms")
	viper.SetDefault("poll.speed_period", "500ms")
	viper.SetDefault("poll.coolant_period", "1s")
	viper.SetDefault("poll.voltage_period", "1s")
	viper.SetDefault("poll.trans_temp_period", "1s")
	viper.SetDefault("poll.dtc_period", "12s")

	// Discovery defaults
	viper.SetDefault("discovery.candidate_table", "")
	viper.SetDefault("discovery.usb_enabled", true)

	// Security defaults
	viper.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)

	// App defaults
	viper.SetDefault("app.name", "obd-service")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	// Basic validation
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if config.Serial.Mode != "serial" && config.Serial.Mode != "sim" {
		return fmt.Errorf("serial.mode must be one of: [serial sim]")
	}
	if config.Serial.Mode == "serial" && config.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	if config.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}

	if config.Engine.FailureThreshold <= 0 {
		return fmt.Errorf("engine.failure_threshold must be positive")
	}
	if config.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine.tick_interval must be positive")
	}
	if config.Engine.CommandQueueSize <= 0 {
		return fmt.Errorf("engine.command_queue_size must be positive")
	}

	periods := map[string]time.Duration{
		"poll.rpm_period":        config.Poll.RPMPeriod,
		"poll.speed_period":      config.Poll.SpeedPeriod,
		"poll.coolant_period":    config.Poll.CoolantPeriod,
		"poll.voltage_period":    config.Poll.VoltagePeriod,
		"poll.trans_temp_period": config.Poll.TransTempPeriod,
		"poll.dtc_period":        config.Poll.DTCPeriod,
	}
	for key, period := range periods {
		if period <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
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

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.Engine.Debug
}
