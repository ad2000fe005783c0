package location

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RoutePoint is one vertex of a simulated route.
type RoutePoint struct {
	Lat float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

// Route is a polyline the simulator drives at constant speed, looping
// back to the first point after the last.
type Route struct {
	Name     string       `yaml:"name" validate:"required"`
	SpeedMps float64      `yaml:"speed_mps" validate:"gt=0"`
	Points   []RoutePoint `yaml:"points" validate:"min=2,dive"`
}

// LoadRoute reads and validates a route definition from a YAML file.
func LoadRoute(path string) (*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading route file: %w", err)
	}

	var route Route
	if err := yaml.Unmarshal(data, &route); err != nil {
		return nil, fmt.Errorf("parsing route file: %w", err)
	}

	if err := validator.New().Struct(&route); err != nil {
		return nil, fmt.Errorf("validating route %q: %w", path, err)
	}
	return &route, nil
}
