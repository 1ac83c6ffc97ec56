package shape

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", c.Server.Port)
	}
	if c.Anchor.ClusterDistanceKM != DefaultClusterDistanceKM {
		t.Errorf("cluster distance = %v", c.Anchor.ClusterDistanceKM)
	}
	if c.Portal.MarginPx != DefaultPortalMargin {
		t.Errorf("portal margin = %v", c.Portal.MarginPx)
	}
	if c.Simplify.Quality != QualityHigh {
		t.Errorf("quality = %v, want high", c.Simplify.Quality)
	}
	if c.MQTT.Prefix != "geoshift" {
		t.Errorf("mqtt prefix = %q", c.MQTT.Prefix)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
anchor:
  clusterDistanceKm: 150
  markerAreaThresholdPct: 5
portal:
  marginPx: 32
  exclusions:
    - {minX: 0, minY: 0, maxX: 200, maxY: 50}
simplify:
  quality: medium
  budgets:
    medium: 2500
overpass:
  url: http://localhost:9999/api/interpreter
mqtt:
  broker: tcp://localhost:1883
  prefix: floorplan
`)

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if c.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", c.Server.Port)
	}
	if c.Anchor.ClusterDistanceKM != 150 {
		t.Errorf("cluster distance = %v, want 150", c.Anchor.ClusterDistanceKM)
	}
	if c.Anchor.MarkerAreaThresholdPct != 5 {
		t.Errorf("marker threshold = %v, want 5", c.Anchor.MarkerAreaThresholdPct)
	}
	if c.Portal.MarginPx != 32 {
		t.Errorf("margin = %v, want 32", c.Portal.MarginPx)
	}
	if len(c.Portal.Exclusions) != 1 || c.Portal.Exclusions[0].MaxX != 200 {
		t.Errorf("exclusions = %+v", c.Portal.Exclusions)
	}
	if c.Simplify.Quality != QualityMedium {
		t.Errorf("quality = %v, want medium", c.Simplify.Quality)
	}
	if c.Simplify.Budgets[QualityMedium] != 2500 {
		t.Errorf("medium budget = %d, want 2500", c.Simplify.Budgets[QualityMedium])
	}
	if c.MQTT.Broker != "tcp://localhost:1883" || c.MQTT.Prefix != "floorplan" {
		t.Errorf("mqtt = %+v", c.MQTT)
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
`)
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if c.Overpass.URL != DefaultOverpassURL {
		t.Errorf("overpass url = %q, want default", c.Overpass.URL)
	}
	if c.Simplify.Quality != QualityHigh {
		t.Errorf("quality = %v, want high", c.Simplify.Quality)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [not a map")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"negative cluster distance", func(c *Config) { c.Anchor.ClusterDistanceKM = -1 }},
		{"threshold above 100", func(c *Config) { c.Anchor.MarkerAreaThresholdPct = 150 }},
		{"negative margin", func(c *Config) { c.Portal.MarginPx = -5 }},
		{"unknown quality", func(c *Config) { c.Simplify.Quality = "ultra" }},
		{"zero budget", func(c *Config) { c.Simplify.Budgets = map[Quality]int{QualityLow: 0} }},
		{"inverted exclusion", func(c *Config) {
			c.Portal.Exclusions = []ExclusionZone{{MinX: 10, MaxX: 5, MinY: 0, MaxY: 10}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
