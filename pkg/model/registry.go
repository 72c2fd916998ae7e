package model

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry is the static name -> server mapping. It is read-only after
// construction; the tileserver builds a fresh one on reload.
type Registry struct {
	servers map[string]*Server
}

func NewRegistry(servers ...*Server) *Registry {
	r := &Registry{servers: make(map[string]*Server)}

	for _, s := range servers {
		if s == nil || s.Key == "" {
			continue
		}

		r.servers[s.Key] = s
	}

	return r
}

// LoadRegistry reads a yaml list of server descriptions.
func LoadRegistry(path string) (*Registry, error) {
	d, err := os.ReadFile(path)

	if err != nil {
		return nil, err
	}

	var res []*Server

	if err := yaml.Unmarshal(d, &res); err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, fmt.Errorf("no servers in %s", path)
	}

	return NewRegistry(res...), nil
}

func (r *Registry) Get(key string) (*Server, error) {
	if s, ok := r.servers[key]; ok {
		return s, nil
	}

	return nil, fmt.Errorf("unknown server %q, known: %v", key, r.Keys())
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.servers))

	for k := range r.servers {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func (r *Registry) All(f func(s *Server) bool) {
	for _, k := range r.Keys() {
		if !f(r.servers[k]) {
			return
		}
	}
}

// DefaultRegistry covers the usual pro-bono servers so the tool works without
// a registry file.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&Server{
			Key:         "osm",
			Name:        "OpenStreetMap",
			Url:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			MaxZoom:     19,
			TileType:    "png",
			Attribution: "(c) OpenStreetMap contributors",
		},
		&Server{
			Key:         "otm",
			Name:        "OpenTopoMap",
			Url:         "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png",
			MaxZoom:     17,
			TileType:    "png",
			ServerParts: []string{"a", "b", "c"},
			Attribution: "(c) OpenTopoMap (CC-BY-SA)",
		},
		&Server{
			Key:         "google",
			Name:        "Google Hybrid",
			Url:         "http://mt{s}.google.com/vt/lyrs=y&x={x}&y={y}&z={z}",
			MaxZoom:     20,
			TileType:    "jpg",
			ServerParts: []string{"0", "1", "2", "3"},
		},
	)
}
