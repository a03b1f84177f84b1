package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds the PERCY_* environment variables the CLI understands.
type Env struct {
	// Enable is false when PERCY_ENABLE is "0" or "false"; commands that need
	// the Percy process then skip themselves.
	Enable        bool   `env:"PERCY_ENABLE" envDefault:"true"`
	ServerAddress string `env:"PERCY_SERVER_ADDRESS"`
	ServerHost    string `env:"PERCY_SERVER_HOST"`
	ServerPort    int    `env:"PERCY_SERVER_PORT"`
	LogLevel      string `env:"PERCY_LOGLEVEL"`
	ConfigPath    string `env:"PERCY_CONFIG"`
	NoColor       string `env:"NO_COLOR"`
}

// LoadEnv parses the environment. When environ is nil the process
// environment is used.
func LoadEnv(environ map[string]string) (*Env, error) {
	var e Env
	var err error
	if environ == nil {
		err = env.Parse(&e)
	} else {
		err = env.ParseWithOptions(&e, env.Options{Environment: environ})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &e, nil
}

// Overrides returns the config values set through the environment.
func (e *Env) Overrides() Object {
	obj := Object{}
	if e.ServerHost != "" {
		obj.Set("percy.host", e.ServerHost)
	}
	if e.ServerPort != 0 {
		obj.Set("percy.port", e.ServerPort)
	}
	return obj
}
