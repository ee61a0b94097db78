package config

import (
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

// ProbeConfig is the administrative probe specification. Every field is
// optional; zero values take the prober's defaults (timeout 2s, interval
// 5s, window 8, threshold 3, expected status 200, initial threshold-1).
type ProbeConfig struct {
	Timeout        string `mapstructure:"timeout"`
	Interval       string `mapstructure:"interval"`
	Window         int    `mapstructure:"window"`
	Threshold      int    `mapstructure:"threshold"`
	Initial        *int   `mapstructure:"initial"`
	ExpectedStatus int    `mapstructure:"expected_status"`
	URL            string `mapstructure:"url"`
	Request        string `mapstructure:"request"`
}

type BackendConfig struct {
	Name       string       `mapstructure:"name"`
	Address    string       `mapstructure:"address"`
	HostHeader string       `mapstructure:"host_header"`
	Probe      *ProbeConfig `mapstructure:"probe"`
}

type PoolConfig struct {
	Workers int `mapstructure:"workers"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Probe    ProbeConfig     `mapstructure:"probe"`
	Pool     PoolConfig      `mapstructure:"pool"`
	Backends []BackendConfig `mapstructure:"backends"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":6083")
	viper.SetDefault("pool.workers", 16)
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Pool,
			validation.Required,
			validation.By(func(value interface{}) error {
				pc, ok := value.(PoolConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a PoolConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.Workers,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.Probe,
			validation.By(validateProbeConfig),
		),
		validation.Field(&c.Backends,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateBackendConfig)),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if durationStr == "" {
		return nil
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g. 2s, 500ms)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validateProbeConfig(value interface{}) error {
	var pc ProbeConfig
	switch v := value.(type) {
	case ProbeConfig:
		pc = v
	case *ProbeConfig:
		if v == nil {
			return nil
		}
		pc = *v
	default:
		return validation.NewError("validation_invalid_type", "must be a ProbeConfig")
	}

	if err := validation.ValidateStruct(&pc,
		validation.Field(&pc.Timeout, validation.By(validateDuration)),
		validation.Field(&pc.Interval, validation.By(validateDuration)),
		validation.Field(&pc.Window, validation.Min(0), validation.Max(64)),
		validation.Field(&pc.Threshold, validation.Min(0), validation.Max(64)),
		validation.Field(&pc.ExpectedStatus,
			validation.When(pc.ExpectedStatus != 0, validation.Min(100), validation.Max(599)),
		),
	); err != nil {
		return err
	}

	if pc.Window != 0 && pc.Threshold > pc.Window {
		return validation.NewError("validation_invalid_threshold", "threshold cannot exceed window")
	}
	if pc.Initial != nil && *pc.Initial < 0 {
		return validation.NewError("validation_invalid_initial", "initial cannot be negative")
	}

	return nil
}

func validateBackendConfig(value interface{}) error {
	bc, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	if bc.Name == "" {
		return validation.NewError("validation_empty_name", "backend name cannot be empty")
	}

	if err := validateHostPort(bc.Address); err != nil {
		return err
	}

	if bc.Probe != nil {
		return validateProbeConfig(bc.Probe)
	}

	return nil
}
