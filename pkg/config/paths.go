package config

import (
	"os"
	"path/filepath"
)

const appDir = "nfs4state"

// xdgDir resolves an XDG base directory for nfs4state: $env when set,
// otherwise home/<fallback...>. Without a home directory it returns
// noHome.
func xdgDir(env, noHome string, fallback ...string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return noHome
	}
	return filepath.Join(append(append([]string{home}, fallback...), appDir)...)
}

// GetConfigDir returns $XDG_CONFIG_HOME/nfs4state, ~/.config/nfs4state by
// default. It also holds the CLI contexts file.
func GetConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".", ".config")
}

func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetDefaultStateDir returns the directory of runtime data: the pid file,
// the daemon log and the badger lock database.
func GetDefaultStateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(os.TempDir(), appDir), ".local", "state")
}
