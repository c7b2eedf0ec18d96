package config

import (
	"github.com/zetadesk/mailgate/internal/logger"
	"github.com/zetadesk/mailgate/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12333"`
	APIKey      string `env:"API_KEY"`
	ConfigFile  string `env:"MAILGATE_CONFIG_FILE" envDefault:"mailgate.yaml"`
	Logger      *logger.Config
	Tracing     *tracing.JaegerConfig
}
