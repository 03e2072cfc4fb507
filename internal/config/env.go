package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable read by Env.
const EnvPrefix = "MUSTER"

// Env is the process environment of the scheduler and the CLI.
type Env struct {
	InstanceName string `envconfig:"INSTANCE_NAME" required:"true"`
	RedisURL     string `envconfig:"REDIS_URL" required:"true"`
	ConfigPath   string `envconfig:"CONFIG" default:"muster.yml"`
	SchemasPath  string `envconfig:"SCHEMAS"`
	HealthAddr   string `envconfig:"HEALTH_ADDR" default:":8080"`
}

// LoadEnv reads MUSTER_* environment variables.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	return &env, nil
}

// ClientEnv is the environment of the muster CLI. Every value may be
// overridden by a flag, so nothing is required here.
type ClientEnv struct {
	InstanceName string `envconfig:"INSTANCE_NAME" default:"default"`
	RedisURL     string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`
	ConfigPath   string `envconfig:"CONFIG" default:"muster.yml"`
	SchemasPath  string `envconfig:"SCHEMAS"`
}

// LoadClientEnv reads MUSTER_* environment variables for the CLI.
func LoadClientEnv() (*ClientEnv, error) {
	var env ClientEnv
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	return &env, nil
}
