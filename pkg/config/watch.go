package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/marmos91/nfs4state/internal/logger"
)

// Watch re-reads the configuration file whenever it changes and passes the
// new, validated configuration to onChange. A file that fails to load or
// validate is logged and ignored; the previous configuration stays in effect.
//
// Only settings that can change at runtime are worth reacting to (for
// example logging.level); the rest require a restart.
func Watch(configPath string, onChange func(*Config)) error {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", "file", e.Name, "error", err)
			return
		}
		logger.Info("Configuration reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
