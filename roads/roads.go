// Package roads holds the fixed set of monitored roads and their sampling points.
package roads

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cityflow/neurotraff/pipeline"
)

//go:embed roads.yaml
var defaultCatalog []byte

// UnknownRoadError is returned for a road name outside the catalog.
type UnknownRoadError struct {
	Name string
}

func (e *UnknownRoadError) Error() string {
	return fmt.Sprintf("unknown road %q", e.Name)
}

type Road struct {
	Name   string   `yaml:"name" json:"name"`
	Points []string `yaml:"points" json:"points"`
}

// Catalog is read-only after Load and safe for concurrent use.
type Catalog struct {
	roads []Road
	index map[string]int
}

type document struct {
	Roads []Road `yaml:"roads"`
}

// Load parses a catalog document. Road names must be unique and every
// point must be a "lat,lon" pair.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode road catalog: %w", err)
	}
	if len(doc.Roads) == 0 {
		return nil, errors.New("road catalog is empty")
	}

	c := &Catalog{index: make(map[string]int, len(doc.Roads))}
	for _, road := range doc.Roads {
		name := strings.TrimSpace(road.Name)
		if name == "" {
			return nil, errors.New("road with empty name")
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("duplicate road %q", name)
		}
		if len(road.Points) == 0 {
			return nil, fmt.Errorf("road %q has no points", name)
		}
		points := make([]string, len(road.Points))
		for i, p := range road.Points {
			p = strings.TrimSpace(p)
			if _, _, err := pipeline.SplitPoint(p); err != nil {
				return nil, fmt.Errorf("road %q point %q: %w", name, p, err)
			}
			points[i] = p
		}
		c.index[name] = len(c.roads)
		c.roads = append(c.roads, Road{Name: name, Points: points})
	}
	return c, nil
}

// LoadFile reads a catalog from path. An empty path yields the built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Load(strings.NewReader(string(defaultCatalog)))
}

// Names lists road names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.roads))
	for i, r := range c.roads {
		names[i] = r.Name
	}
	return names
}

// Roads returns a copy of every road in declaration order.
func (c *Catalog) Roads() []Road {
	out := make([]Road, len(c.roads))
	for i, r := range c.roads {
		out[i] = Road{Name: r.Name, Points: append([]string(nil), r.Points...)}
	}
	return out
}

// Points returns the ordered points of a road. The name is trimmed before lookup.
func (c *Catalog) Points(name string) ([]string, error) {
	name = strings.TrimSpace(name)
	i, ok := c.index[name]
	if !ok {
		return nil, &UnknownRoadError{Name: name}
	}
	return append([]string(nil), c.roads[i].Points...), nil
}

// Slug turns a road name into an MQTT-safe topic segment.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
