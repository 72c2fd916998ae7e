package model

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

const DefaultTileSize = 256

// Server describes one remote tile source. Loaded from the registry file,
// immutable afterwards.
type Server struct {
	Name        string   `yaml:"name"`
	Key         string   `yaml:"key"`
	Url         string   `yaml:"url"`
	MinZoom     int      `yaml:"minZoom"`
	MaxZoom     int      `yaml:"maxZoom"`
	TileType    string   `yaml:"tileType"`
	TileSize    int      `yaml:"tileSize"`
	ServerParts []string `yaml:"serverParts"`
	Attribution string   `yaml:"attribution"`
}

func (s *Server) GetKey() string {
	return s.Key
}

func (s *Server) GetName() string {
	return s.Name
}

func (s *Server) GetMinZoom() int {
	return s.MinZoom
}

func (s *Server) GetMaxZoom() int {
	return s.MaxZoom
}

func (s *Server) GetTileSize() int {
	if s.TileSize <= 0 {
		return DefaultTileSize
	}

	return s.TileSize
}

func (s *Server) GetExt() string {
	switch strings.ToLower(s.TileType) {
	case "jpg", "jpeg":
		return "jpg"
	default:
		return "png"
	}
}

func (s *Server) GetContentType() string {
	switch s.GetExt() {
	case "jpg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// GetUrl substitutes {z}, {x}, {y} and, if present, a random {s} server part
// into the url template.
func (s *Server) GetUrl(t Tile) string {
	url := strings.ReplaceAll(s.Url, "{z}", strconv.Itoa(t.Z))
	url = strings.ReplaceAll(url, "{x}", strconv.Itoa(t.X))
	url = strings.ReplaceAll(url, "{y}", strconv.Itoa(t.Y))

	if len(s.ServerParts) > 0 {
		url = strings.ReplaceAll(url, "{s}", s.ServerParts[rand.Intn(len(s.ServerParts))])
	}

	return url
}

// CheckZoom is the fatal pre-flight check: a zoom outside the server's range
// aborts the run before any fetch.
func (s *Server) CheckZoom(zoom int) error {
	if zoom < s.MinZoom || zoom > s.MaxZoom {
		return fmt.Errorf("zoom %d is out of range %d..%d for %s", zoom, s.MinZoom, s.MaxZoom, s.Key)
	}

	return nil
}
