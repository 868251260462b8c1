package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. KEYGATE_SERVER_PORT.
const EnvPrefix = "KEYGATE"

// Bind registers the environment prefix and every default key on v so that
// environment variables override keys that the config file does not set.
func Bind(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	data, err := Default().Marshal()
	if err != nil {
		return err
	}
	var defaults map[string]interface{}
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	setDefaults(v, "", defaults)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, m map[string]interface{}) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]interface{}); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

// FromViper decodes the merged file, environment and flag settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	if err := Bind(v); err != nil {
		return nil, err
	}

	cfg := Default()
	err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Viper reads the file without ${VAR} expansion.
	cfg.Database.DSN = os.ExpandEnv(cfg.Database.DSN)
	cfg.Admin.JWTSecret = os.ExpandEnv(cfg.Admin.JWTSecret)
	cfg.Notify.WebhookURL = os.ExpandEnv(cfg.Notify.WebhookURL)
	cfg.Notify.RedisAddr = os.ExpandEnv(cfg.Notify.RedisAddr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
