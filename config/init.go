package config

import (
	"log"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/zetadesk/mailgate/internal/logger"
	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/internal/tracing"
)

type Config struct {
	AppConfig *AppConfig
	Logger    *logger.Config
	Tracing   *tracing.JaegerConfig
	Service   *models.ServiceConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig: &AppConfig{},
		Logger:    &logger.Config{},
		Tracing:   &tracing.JaegerConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, errors.Wrap(err, "error loading mailgate env config")
	}
	config.AppConfig.Logger = config.Logger
	config.AppConfig.Tracing = config.Tracing

	svc, err := LoadServiceConfig(config.AppConfig.ConfigFile)
	if err != nil {
		return nil, err
	}
	config.Service = svc

	return config, nil
}

// LoadServiceConfig reads and validates the static YAML configuration:
// servers, runtime options and the ticketing endpoint. A missing or
// invalid rest section is fatal at startup.
func LoadServiceConfig(path string) (*models.ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %s", path)
	}

	var svc models.ServiceConfig
	if err := yaml.Unmarshal(data, &svc); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config file %s", path)
	}

	if len(svc.Servers) == 0 {
		return nil, errors.New("no servers configured")
	}
	for i := range svc.Servers {
		if err := svc.Servers[i].Validate(); err != nil {
			return nil, err
		}
	}
	if err := svc.Runtime.Validate(); err != nil {
		return nil, err
	}
	if err := svc.Rest.Validate(); err != nil {
		return nil, err
	}

	return &svc, nil
}
