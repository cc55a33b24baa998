package config

import "github.com/BurntSushi/toml"

// Load decodes a TOML configuration file at path and fills in any bounds the
// file omits with the protocol defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.EnsureDefaults()
	return &cfg, nil
}
