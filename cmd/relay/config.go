package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Host         string        `envconfig:"RELAY_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"RELAY_PORT" default:"7070"`
	Path         string        `envconfig:"RELAY_PATH" default:"/v1/coordination"`
	WriteTimeout time.Duration `envconfig:"RELAY_WRITE_TIMEOUT" default:"5s"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"INFO"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
