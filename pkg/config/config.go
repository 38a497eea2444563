// Package config loads component configuration from the process environment.
// Each component owns a small struct loaded under its own prefix, so wiring
// reads as one MustNew call per collaborator.
//
// The environment can be seeded from a dotenv file, resolved in order: the
// -env flag, the MAFA_ENV_FILE variable, then ./.env when present. Values
// already set in the real environment always win over file values, so a
// deployment can override a checked-in .env without editing it.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const envFileVar = "MAFA_ENV_FILE"

var (
	envFileFlag string
	seedOnce    sync.Once
	seedErr     error
)

// MustNew loads a config struct from the environment and panics on failure.
// Startup configuration is fail-fast: a missing required variable should stop
// the process before it accepts traffic.
func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New loads a config struct from the environment under prefix, seeding the
// environment from a dotenv file once per process.
func New[T any](prefix string) (*T, error) {
	if err := seedEnvironment(); err != nil {
		return nil, fmt.Errorf("seed environment: %w", err)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("load %s config: %w", prefix, err)
	}
	return &conf, nil
}

func seedEnvironment() error {
	seedOnce.Do(func() {
		path, explicit := resolveEnvFile()
		if path == "" {
			return
		}
		if err := seedFromFile(path); err != nil && explicit {
			seedErr = err
		}
	})
	return seedErr
}

// resolveEnvFile picks the dotenv source. The second return reports whether
// the operator named the file explicitly; only then is a read failure fatal.
func resolveEnvFile() (string, bool) {
	if flag.Lookup("env") == nil {
		flag.StringVar(&envFileFlag, "env", "", "path to a dotenv file")
	}
	if !flag.Parsed() {
		flag.Parse()
	}

	if path := strings.TrimSpace(envFileFlag); path != "" {
		return path, true
	}
	if path := strings.TrimSpace(os.Getenv(envFileVar)); path != "" {
		return path, true
	}
	if info, err := os.Stat(".env"); err == nil && !info.IsDir() {
		return ".env", false
	}
	return "", false
}

// seedFromFile exports the file's variables into the process environment,
// keeping any value the environment already carries.
func seedFromFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, present := os.LookupEnv(name); present {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}
