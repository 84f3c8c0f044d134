package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yourorg/kb-extract/internal/resolve"
	"github.com/yourorg/kb-extract/internal/writer"
)

const (
	configName = ".kbextract"
	configType = "yaml"
	envPrefix  = "KBX"
)

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"types":        "entity_types",
	"lang":         "lang",
	"format":       "format",
	"output":       "output_dir",
	"images":       "process_images",
	"workers":      "workers",
	"batch-size":   "batch_size",
	"cache":        "cache.path",
	"resolve":      "resolver.enabled",
	"publish":      "publish_uri",
	"cleanup":      "cleanup",
	"metrics-addr": "metrics_addr",
	"log-level":    "log.level",
}

// Load reads configuration from defaults, file, env and the flags in fs
// that appear in FlagKeys. configPath overrides the search in CWD and
// $HOME. A missing config file is not an error.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind flag %s", name)
		}
	}
	return nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("entity_types", []string{"person", "organization"})
	v.SetDefault("lang", "en")
	v.SetDefault("format", string(writer.MessagePack))
	v.SetDefault("output_dir", "output")
	v.SetDefault("process_images", false)
	v.SetDefault("workers", 0)
	v.SetDefault("batch_size", writer.DefaultBatchSize)
	v.SetDefault("max_line_size", "64MiB")
	v.SetDefault("publish_uri", "")
	v.SetDefault("cleanup", false)
	v.SetDefault("metrics_addr", "")

	v.SetDefault("cache.path", "")

	v.SetDefault("resolver.enabled", true)
	v.SetDefault("resolver.endpoint", resolve.DefaultEndpoint)
	v.SetDefault("resolver.batch_size", resolve.MaxBatch)
	v.SetDefault("resolver.timeout", "30s")
	v.SetDefault("resolver.rate", 0)

	v.SetDefault("images.width", 64)
	v.SetDefault("images.timeout", "10s")
	v.SetDefault("images.rate", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
}
