package shape

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration loaded from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Anchor   AnchorConfig   `yaml:"anchor"`
	Portal   PortalConfig   `yaml:"portal"`
	Simplify SimplifyConfig `yaml:"simplify"`
	Overpass OverpassConfig `yaml:"overpass"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// AnchorConfig tunes marker/anchor selection.
type AnchorConfig struct {
	ClusterDistanceKM      float64 `yaml:"clusterDistanceKm"`
	MarkerAreaThresholdPct float64 `yaml:"markerAreaThresholdPct"`
}

// PortalConfig tunes off-screen indicator placement.
type PortalConfig struct {
	MarginPx   float64         `yaml:"marginPx"`
	Exclusions []ExclusionZone `yaml:"exclusions"`
}

// SimplifyConfig sets the import quality tier and optional per-tier budget
// overrides.
type SimplifyConfig struct {
	Quality Quality         `yaml:"quality"`
	Budgets map[Quality]int `yaml:"budgets,omitempty"`
}

// OverpassConfig points at the boundary-import endpoint.
type OverpassConfig struct {
	URL string `yaml:"url"`
}

// MQTTConfig configures optional placement publishing. An empty broker
// disables publishing entirely.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Anchor.ClusterDistanceKM == 0 {
		c.Anchor.ClusterDistanceKM = DefaultClusterDistanceKM
	}
	if c.Anchor.MarkerAreaThresholdPct == 0 {
		c.Anchor.MarkerAreaThresholdPct = DefaultMarkerAreaThresholdPct
	}
	if c.Portal.MarginPx == 0 {
		c.Portal.MarginPx = DefaultPortalMargin
	}
	if c.Simplify.Quality == "" {
		c.Simplify.Quality = QualityHigh
	}
	if c.Overpass.URL == "" {
		c.Overpass.URL = DefaultOverpassURL
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = "geoshift"
	}
}

// LoadConfig loads and validates configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations that would silently misbehave at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Anchor.ClusterDistanceKM <= 0 {
		return fmt.Errorf("anchor.clusterDistanceKm must be positive")
	}
	if c.Anchor.MarkerAreaThresholdPct <= 0 || c.Anchor.MarkerAreaThresholdPct > 100 {
		return fmt.Errorf("anchor.markerAreaThresholdPct must be in (0, 100]")
	}
	if c.Portal.MarginPx <= 0 {
		return fmt.Errorf("portal.marginPx must be positive")
	}
	switch c.Simplify.Quality {
	case QualityLossless, QualityHigh, QualityMedium, QualityLow, QualityMinimal:
	default:
		return fmt.Errorf("simplify.quality unknown tier: %q", c.Simplify.Quality)
	}
	for tier, budget := range c.Simplify.Budgets {
		if budget <= 0 {
			return fmt.Errorf("simplify.budgets[%s] must be positive, got %d", tier, budget)
		}
	}
	for i, z := range c.Portal.Exclusions {
		if z.MinX > z.MaxX || z.MinY > z.MaxY {
			return fmt.Errorf("portal.exclusions[%d] has inverted bounds", i)
		}
	}
	return nil
}
