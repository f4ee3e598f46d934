package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/stayware/message-etl/pkg/logger"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every env-driven setting of the application. Only this
// struct must be used to read configuration values, no direct access to
// env, ini or any other config source should be made.
type Config struct {
	AppEnv  string `env:"APP_ENV" default:"dev"`
	AppName string `env:"APP_NAME" default:"message_etl"`

	HostawayClientID     string `env:"HOSTAWAY_CLIENT_ID"`
	HostawayClientSecret string `env:"HOSTAWAY_CLIENT_SECRET"`
	HostawayBaseUrl      string `env:"HOSTAWAY_BASE_URL" default:"https://api.hostaway.com/v1"`

	PostgresHost     string `env:"POSTGRES_HOST"`
	PostgresPort     string `env:"POSTGRES_PORT"`
	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDatabase string `env:"POSTGRES_DBNAME"`

	HttpListenAddr string `env:"HTTP_LISTEN_ADDR"`

	PromNamespace     string `env:"PROM_NAMESPACE"`
	MetricsListenAddr string `env:"METRICS_LISTEN_ADDR"`

	// Delay inserted before every outbound Hostaway call to stay under
	// the upstream rate limit.
	ApiRequestDelay time.Duration `env:"API_REQUEST_DELAY"`

	EnableDryRun bool `env:"ENABLE_DRY_RUN"`

	NotificationEmail string `env:"NOTIFICATION_EMAIL"`
	SmtpAddr          string `env:"SMTP_ADDR"`

	LogLevel []string `env:"LOG_LEVEL"`
}

// MissingVarsError reports required environment variables that were not
// set. It is the pre-flight failure of an ETL run: nothing has touched
// the network when it is returned.
type MissingVarsError struct {
	Vars []string
}

func (e *MissingVarsError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Vars, ", ")
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Validate checks that the credentials and store settings an ETL run
// cannot proceed without are present.
func (c *Config) Validate() error {
	var missing []string
	if c.HostawayClientID == "" {
		missing = append(missing, "HOSTAWAY_CLIENT_ID")
	}
	if c.HostawayClientSecret == "" {
		missing = append(missing, "HOSTAWAY_CLIENT_SECRET")
	}
	if c.PostgresHost == "" {
		missing = append(missing, "POSTGRES_HOST")
	}
	if c.PostgresDatabase == "" {
		missing = append(missing, "POSTGRES_DBNAME")
	}
	if len(missing) > 0 {
		return &MissingVarsError{Vars: missing}
	}
	return nil
}
