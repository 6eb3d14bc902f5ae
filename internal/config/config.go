// Package config loads the daemon's process-wide environment configuration.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"
)

// DaemonConfig holds the listen address and filesystem roots the daemon uses.
type DaemonConfig struct {
	// Listen is the TCP address the WS+HTTP server binds to.
	Listen string `toml:"listen"`
	// BaseNodeFilesDir is the root of per-runtime base build files
	// (./base_node_files/<runtime>/).
	BaseNodeFilesDir string `toml:"base_node_files_dir"`
	// OutputsDir is where the record stores and uploaded program zips live.
	OutputsDir string `toml:"outputs_dir"`
	// LogFile is the rotated log file path the daemon writes alongside its
	// console output; relative paths resolve against the working directory
	// the daemon was started in.
	LogFile string `toml:"log_file"`
}

// NetworkConfig holds constants governing the simulation's bridge network.
type NetworkConfig struct {
	// Name is the docker bridge network name.
	Name string `toml:"name"`
}

// EnvConfig is the root of the process environment configuration, loaded
// from $DIORAMA_HOME/.env.toml and merged over compiled-in defaults.
type EnvConfig struct {
	Home    string `toml:"-"`
	Daemon  DaemonConfig  `toml:"daemon"`
	Network NetworkConfig `toml:"network"`
}

// DefaultConfig is the configuration used when no .env.toml is present, or to
// fill in fields the loaded file leaves unset.
var DefaultConfig = EnvConfig{
	Daemon: DaemonConfig{
		Listen:           ":2697",
		BaseNodeFilesDir: "./base_node_files",
		OutputsDir:       "./out",
		LogFile:          "./out/diorama.log",
	},
	Network: NetworkConfig{
		Name: "DIORAMA_NETWORK",
	},
}

// Load reads $DIORAMA_HOME/.env.toml, if present, and merges it over
// DefaultConfig. A missing file is not an error; the defaults stand alone.
func (c *EnvConfig) Load() error {
	home := os.Getenv("DIORAMA_HOME")
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			home = "."
		}
		home = filepath.Join(home, ".diorama")
	}
	c.Home = home

	*c = mergeDefaults(*c)

	path := filepath.Join(home, ".env.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var loaded EnvConfig
	if _, err := toml.Decode(string(data), &loaded); err != nil {
		return err
	}
	loaded.Home = home

	if err := mergo.Merge(c, loaded, mergo.WithOverride); err != nil {
		return err
	}
	return nil
}

func mergeDefaults(c EnvConfig) EnvConfig {
	merged := DefaultConfig
	if err := mergo.Merge(&merged, c, mergo.WithOverride); err != nil {
		return DefaultConfig
	}
	return merged
}
