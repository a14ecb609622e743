// Package guard decides whether a caller may see a screen and carries that
// decision out, once, through a navigator or over HTTP.
package guard

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Routes names the landing screens and the public paths.
type Routes struct {
	Login          string   `yaml:"login"`
	Home           string   `yaml:"home"`
	PlatformHome   string   `yaml:"platform_home"`
	PlatformPrefix string   `yaml:"platform_prefix"`
	Public         []string `yaml:"public"` // entries ending in /* match by prefix
}

func DefaultRoutes() Routes {
	return Routes{
		Login:          "/login",
		Home:           "/dashboard",
		PlatformHome:   "/platform/dealerships",
		PlatformPrefix: "/platform",
		Public:         []string{"/login", "/register", "/showroom/*"},
	}
}

// LoadRoutes reads a YAML route table; missing keys keep their defaults.
// An empty path returns the defaults.
func LoadRoutes(path string) (Routes, error) {
	r := DefaultRoutes()
	if path == "" {
		return r, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read routes: %w", err)
	}
	var file Routes
	if err := yaml.Unmarshal(b, &file); err != nil {
		return r, fmt.Errorf("parse routes %s: %w", path, err)
	}
	if file.Login != "" {
		r.Login = file.Login
	}
	if file.Home != "" {
		r.Home = file.Home
	}
	if file.PlatformHome != "" {
		r.PlatformHome = file.PlatformHome
	}
	if file.PlatformPrefix != "" {
		r.PlatformPrefix = strings.TrimRight(file.PlatformPrefix, "/")
	}
	if file.Public != nil {
		r.Public = file.Public
	}
	if !strings.HasPrefix(r.PlatformHome, r.PlatformPrefix) {
		return r, fmt.Errorf("routes: platform_home %q outside platform_prefix %q", r.PlatformHome, r.PlatformPrefix)
	}
	return r, nil
}

func (r Routes) IsPublic(path string) bool {
	for _, p := range r.Public {
		if prefix, ok := strings.CutSuffix(p, "/*"); ok {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// InPlatformArea reports whether path belongs to the platform operator area.
func (r Routes) InPlatformArea(path string) bool {
	return path == r.PlatformPrefix || strings.HasPrefix(path, r.PlatformPrefix+"/")
}
