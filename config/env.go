package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/kmlawson/lmsp/errs"
)

// DotenvPath returns the .env file that sits next to the config file.
func DotenvPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".env")
}

// ApplyEnv overrides cfg with LMSP_* variables. Values from dotenvPath are
// used when the process environment does not set the same key. A missing
// dotenv file is not an error.
func ApplyEnv(cfg *Config, dotenvPath string) error {
	environment := make(map[string]string)

	if dotenvPath != "" {
		values, err := godotenv.Read(dotenvPath)
		switch {
		case err == nil:
			for k, v := range values {
				environment[k] = v
			}
		case !errors.Is(err, fs.ErrNotExist):
			return errs.New(errs.ErrorTypeConfig, "cannot read "+dotenvPath, err)
		}
	}

	for _, kv := range os.Environ() {
		key, value, found := strings.Cut(kv, "=")
		if found && strings.HasPrefix(key, EnvPrefix) {
			environment[key] = value
		}
	}

	next := *cfg
	opts := env.Options{Prefix: EnvPrefix, Environment: environment}
	if err := env.ParseWithOptions(&next, opts); err != nil {
		return errs.New(errs.ErrorTypeConfig, "invalid environment override", err)
	}
	if err := Validate(&next); err != nil {
		return err
	}
	*cfg = next
	return nil
}
