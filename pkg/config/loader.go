package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".analysisd"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for analysisd settings.
const envPrefix = "ANALYSISD"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("pipeline.batch_size", DefaultBatchSize)
	viperCfg.SetDefault("pipeline.batch_timeout", DefaultBatchTimeout)
	viperCfg.SetDefault("pipeline.bounded_capacity", DefaultBoundedCapacity)
	viperCfg.SetDefault("pipeline.batch_parallelism", DefaultBatchParallelism)
	viperCfg.SetDefault("pipeline.action_parallelism", DefaultActionParallelism)
	viperCfg.SetDefault("pipeline.load_concurrency", DefaultLoadConcurrency)

	viperCfg.SetDefault("persistence.dir", DefaultPersistenceDir)
	viperCfg.SetDefault("persistence.basename", DefaultPersistenceBasename)
	viperCfg.SetDefault("persistence.codec", DefaultPersistenceCodec)
	viperCfg.SetDefault("persistence.compress", DefaultPersistenceCompress)

	viperCfg.SetDefault("library.dsn", DefaultLibraryDSN)
	viperCfg.SetDefault("library.debug", false)

	viperCfg.SetDefault("observability.log_level", DefaultLogLevel)
	viperCfg.SetDefault("observability.log_json", DefaultLogJSON)
	viperCfg.SetDefault("observability.environment", "")
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.sample_ratio", DefaultSampleRatio)

	viperCfg.SetDefault("server.metrics_addr", DefaultMetricsAddr)
}
