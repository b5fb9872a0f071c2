package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tickbars/pkg/bars"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string         `mapstructure:"env" validate:"oneof=dev prod"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Resample ResampleConfig `mapstructure:"resample"`
	Files    FilesConfig    `mapstructure:"files"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"` // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format" validate:"omitempty,oneof=json console"`
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// ResampleConfig describes a resampling job over stored ticks.
type ResampleConfig struct {
	Mode            string   `mapstructure:"mode" validate:"oneof=ohlc volume volume-files ohlc-files import"`
	Symbols         []string `mapstructure:"symbols"` // empty means every stored symbol
	Interval        string   `mapstructure:"interval" validate:"required"`
	FetchInterval   string   `mapstructure:"fetch_interval"`
	Start           string   `mapstructure:"start"`
	End             string   `mapstructure:"end"`
	VolumeSize      float64  `mapstructure:"volume_size" validate:"gt=0"`
	ForceCloseAtEnd bool     `mapstructure:"force_close_at_end"`
	FillMissing     bool     `mapstructure:"fill_missing"`
	Concurrency     int      `mapstructure:"concurrency" validate:"min=1,max=64"`
	Daily           bool     `mapstructure:"daily"`
}

// FilesConfig describes tick files on disk and where bar files go.
type FilesConfig struct {
	Inputs    string `mapstructure:"inputs"`
	OutputDir string `mapstructure:"output_dir"`
	Format    string `mapstructure:"format" validate:"omitempty,oneof=csv json jsonl"`
	Timezone  string `mapstructure:"timezone"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "tickbars")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("resample.mode", "ohlc")
	v.SetDefault("resample.interval", "1m")
	v.SetDefault("resample.volume_size", 1.0)
	v.SetDefault("resample.concurrency", 4)
	v.SetDefault("files.output_dir", "output")
	v.SetDefault("files.format", "csv")
	v.SetDefault("files.timezone", "Asia/Tokyo")
}

// Flags returns the command line flags understood by Load. Flag names match
// config keys, so a set flag overrides config.yaml and the environment.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("resampler", pflag.ContinueOnError)
	fs.String("config", "", "path to config.yaml")
	fs.String("env", "", "environment: dev or prod")
	fs.String("resample.mode", "", "ohlc, volume, volume-files, ohlc-files or import")
	fs.StringSlice("resample.symbols", nil, "symbols to process")
	fs.String("resample.interval", "", "bar interval token, e.g. 5m")
	fs.String("resample.fetch_interval", "", "sub-range width token, e.g. 1d")
	fs.String("resample.start", "", "range start, RFC3339")
	fs.String("resample.end", "", "range end, RFC3339")
	fs.Float64("resample.volume_size", 0, "volume bar size")
	fs.Bool("resample.force_close_at_end", false, "emit the trailing partial volume bar")
	fs.Bool("resample.daily", false, "run the previous day at every local midnight")
	fs.String("files.inputs", "", "tick file glob")
	fs.String("files.output_dir", "", "bar file directory")
	return fs
}

// Load reads configuration from config.yaml, a .env file, environment
// variables (e.g. POSTGRES_HOST) and flags, in increasing precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	path := ""
	if fs != nil {
		path, _ = fs.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		ex, _ := os.Executable()
		if strings.Contains(ex, "go-build") {
			pwd, _ := os.Getwd()
			v.AddConfigPath(filepath.Join(pwd, "../../config"))
		} else {
			v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		}
		v.AddConfigPath("config")
	}

	// Support environment variables with dot notation (e.g., RESAMPLE_INTERVAL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := bindChangedFlags(v, fs); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = cfg.Env
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindChangedFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || err != nil {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	if err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// Validate checks struct tags and the fields only the bars codec can judge.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Resample.IntervalDuration(); err != nil {
		return fmt.Errorf("invalid config: resample.interval: %w", err)
	}
	if _, err := c.Resample.FetchIntervalDuration(); err != nil {
		return fmt.Errorf("invalid config: resample.fetch_interval: %w", err)
	}
	if _, _, err := c.Resample.Window(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Files.Location(); err != nil {
		return fmt.Errorf("invalid config: files.timezone: %w", err)
	}
	return nil
}

func (r ResampleConfig) IntervalDuration() (time.Duration, error) {
	return bars.DecodeInterval(r.Interval)
}

// FetchIntervalDuration is zero when fetch_interval is unset.
func (r ResampleConfig) FetchIntervalDuration() (time.Duration, error) {
	if r.FetchInterval == "" {
		return 0, nil
	}
	return bars.DecodeInterval(r.FetchInterval)
}

// Window parses start and end. Either may be empty, giving a zero time.
func (r ResampleConfig) Window() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if r.Start != "" {
		if start, err = time.Parse(time.RFC3339, r.Start); err != nil {
			return start, end, fmt.Errorf("resample.start: %w", err)
		}
	}
	if r.End != "" {
		if end, err = time.Parse(time.RFC3339, r.End); err != nil {
			return start, end, fmt.Errorf("resample.end: %w", err)
		}
	}
	return start, end, nil
}

// Location loads the reference timezone; empty means UTC.
func (f FilesConfig) Location() (*time.Location, error) {
	if f.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(f.Timezone)
}
