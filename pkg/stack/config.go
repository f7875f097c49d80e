package stack

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides of config keys,
// e.g. COGNITO_USERPOOLNAME.
const EnvPrefix = "COGNITO"

// Config holds the named values the stack is assembled from.
type Config struct {
	UserpoolName             string `json:"userpoolName" yaml:"userpoolName" mapstructure:"userpoolName"`
	ScopeName                string `json:"scopeName" yaml:"scopeName" mapstructure:"scopeName"`
	ResourceServerName       string `json:"resourceServerName" yaml:"resourceServerName" mapstructure:"resourceServerName"`
	ResourceServerIdentifier string `json:"resourceServerIdentifier" yaml:"resourceServerIdentifier" mapstructure:"resourceServerIdentifier"`
	ClientName               string `json:"clientName" yaml:"clientName" mapstructure:"clientName"`
	DomainPrefix             string `json:"domainPrefix" yaml:"domainPrefix" mapstructure:"domainPrefix"`
}

var configKeys = []string{
	"userpoolName",
	"scopeName",
	"resourceServerName",
	"resourceServerIdentifier",
	"clientName",
	"domainPrefix",
}

// LoadConfig reads a JSON or YAML config file. Environment variables with
// EnvPrefix override file values. An empty path reads the environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				return Config{}, ErrNotFound("config file", path)
			}
			return Config{}, ErrValidation("failed to read config").WithCause(err).WithResource("config file", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, ErrValidation("failed to decode config").WithCause(err)
	}
	return cfg, nil
}

// Validate reports missing fields. Naming rules are left to the platform.
func (c Config) Validate() error {
	var missing []string
	for key, val := range c.fields() {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return ErrValidation(fmt.Sprintf("missing config values: %s", strings.Join(missing, ", "))).
			WithDetail("missing", missing)
	}
	return nil
}

func (c Config) fields() map[string]string {
	return map[string]string{
		"userpoolName":             c.UserpoolName,
		"scopeName":                c.ScopeName,
		"resourceServerName":       c.ResourceServerName,
		"resourceServerIdentifier": c.ResourceServerIdentifier,
		"clientName":               c.ClientName,
		"domainPrefix":             c.DomainPrefix,
	}
}
