package mcp

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TransportSSE        = "sse"
	TransportStreamable = "streamable"
)

type ServerConfig struct {
	Name      string            `yaml:"name"`
	URL       string            `yaml:"url"`
	Transport string            `yaml:"transport"`
	Headers   map[string]string `yaml:"headers"`
}

type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

// LoadConfig reads the server list. An empty path yields no servers.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read mcp config: %w", err)
	}
	return ParseConfig(raw)
}

func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse mcp config: %w", err)
	}
	seen := map[string]bool{}
	for i := range cfg.Servers {
		s := &cfg.Servers[i]
		s.Name = strings.TrimSpace(s.Name)
		s.URL = strings.TrimSpace(s.URL)
		s.Transport = strings.ToLower(strings.TrimSpace(s.Transport))
		if s.Transport == "" {
			s.Transport = TransportStreamable
		}
		if s.Name == "" || s.URL == "" {
			return cfg, fmt.Errorf("mcp server %d: name and url required", i)
		}
		if strings.Contains(s.Name, ".") {
			return cfg, fmt.Errorf("mcp server %q: name must not contain '.'", s.Name)
		}
		if s.Transport != TransportSSE && s.Transport != TransportStreamable {
			return cfg, fmt.Errorf("mcp server %q: unknown transport %q", s.Name, s.Transport)
		}
		if seen[s.Name] {
			return cfg, fmt.Errorf("mcp server %q declared twice", s.Name)
		}
		seen[s.Name] = true
	}
	return cfg, nil
}
