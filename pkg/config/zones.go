package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ZoneOverrides holds optional per-zone control parameter overrides.
// Nil fields fall back to the service-wide defaults in Config.
type ZoneOverrides struct {
	Deadband            *float64 `yaml:"deadband"`
	MinIntervalMinutes  *float64 `yaml:"min_interval_minutes"`
	SoftError           *float64 `yaml:"soft_error"`
	HardError           *float64 `yaml:"hard_error"`
	LimitTimeoutMinutes *float64 `yaml:"limit_timeout_minutes"`
	SlopeThreshold      *float64 `yaml:"slope_threshold"`
}

// zonesDocument is the on-disk shape of the per-zone configuration file
type zonesDocument struct {
	Zones map[string]ZoneOverrides `yaml:"zones"`
}

// LoadZones reads per-zone overrides from a YAML file.
// An empty path returns an empty map - the zones file is optional.
func LoadZones(path string) (map[string]ZoneOverrides, error) {
	if path == "" {
		return map[string]ZoneOverrides{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file %s: %w", path, err)
	}

	var file zonesDocument
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse zones file %s: %w", path, err)
	}

	if file.Zones == nil {
		file.Zones = map[string]ZoneOverrides{}
	}

	return file.Zones, nil
}
