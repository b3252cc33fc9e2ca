package config

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// LoadConfig reads config.yaml from path (and any userSpecifiedConfigs
// overrides) into cfg, in the style of internal/common/startup.go's
// LoadConfig. It exits the process on a read or decode failure, matching the
// teacher's fail-fast behaviour for configuration errors (spec.md §7,
// category 1).
func LoadConfig(cfg *Configuration, path string, userSpecifiedConfigs []string) {
	viper.SetConfigName("config")
	viper.AddConfigPath(path)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.WithError(err).Error("failed to read allocator config")
			os.Exit(1)
		}
		if len(userSpecifiedConfigs) == 0 {
			log.Warn("no config file found, using defaults")
			*cfg = Default()
			return
		}
	}
	for _, extra := range userSpecifiedConfigs {
		viper.SetConfigFile(extra)
		if err := viper.MergeInConfig(); err != nil {
			log.WithError(err).Error("failed to read allocator config")
			os.Exit(1)
		}
	}
	*cfg = Default()
	if err := viper.Unmarshal(cfg); err != nil {
		log.WithError(err).Error("failed to unmarshal allocator config")
		os.Exit(1)
	}
}

// ConfigureLogging sets up logrus the way internal/common/startup.go does.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}
