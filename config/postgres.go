package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"min=0,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	// SSMPrefix names the Parameter Store path holding DB_HOST, DB_USER and
	// DB_PASSWORD in prod, e.g. "/tickbars/".
	SSMPrefix string `mapstructure:"ssm_prefix"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds a libpq connection string. In prod the host and credentials
// come from SSM Parameter Store; elsewhere from the config itself.
func (cfg PostgresConfig) DSN(env string) (string, error) {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if env == "prod" {
		var err error
		if host, err = parameterStore(cfg.SSMPrefix+"DB_HOST", true); err != nil {
			return "", err
		}
		if user, err = parameterStore(cfg.SSMPrefix+"DB_USER", true); err != nil {
			return "", err
		}
		if password, err = parameterStore(cfg.SSMPrefix+"DB_PASSWORD", true); err != nil {
			return "", err
		}
	}
	return cfg.dsn(host, user, password), nil
}

func (cfg PostgresConfig) dsn(host, user, password string) string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, cfg.DBName, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}

// parameterStore is swapped out in tests.
var parameterStore = getParameterStoreValue

func getParameterStoreValue(parameterName string, decrypt bool) (string, error) {
	baseCtx := context.Background()
	ctxWithTimeout, cancel := context.WithTimeout(baseCtx, 5*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctxWithTimeout)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}

	client := ssm.NewFromConfig(cfg)

	input := &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	}

	result, err := client.GetParameter(ctxWithTimeout, input)
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", parameterName, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil || *result.Parameter.Value == "" {
		return "", fmt.Errorf("parameter %s is empty", parameterName)
	}

	return *result.Parameter.Value, nil
}
