package config

import (
	"encoding/json"
	"os"
)

// Config is the persistent, on-disk configuration object: exactly the one
// field the wire spec names, kept deliberately small rather than growing a
// general settings bag.
type Config struct {
	AgentSourceDir string `json:"agent_source_dir"`
}

// Load reads {state_dir}/config.json, returning a zero-value Config if the
// file does not yet exist (it is created on demand by Save, not by Load).
func Load(stateDir string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save writes c to {state_dir}/config.json, creating the state directory
// first if needed.
func (c *Config) Save(stateDir string) error {
	if err := EnsureStateDirs(stateDir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(stateDir), data, 0644)
}
