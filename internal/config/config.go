// Package config loads the couch-control YAML configuration.
//
// The file is looked up in a fixed order (see SearchPaths) unless a path is
// given explicitly. Fields missing from the file keep their defaults, and
// Validate clamps or rejects out-of-range values so the rest of the program
// only ever sees a checked Config.
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	MinQuality = 1
	MaxQuality = 95
	MinScale   = 0.1
	MaxScale   = 1.0
	MinFPS     = 1
	MaxFPS     = 60
)

// Config is the full configuration surface.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Capture     CaptureConfig     `yaml:"capture"`
	Security    SecurityConfig    `yaml:"security"`
	Performance PerformanceConfig `yaml:"performance"`
}

type ServerConfig struct {
	// Host is the listen address. "auto" is resolved by the CLI to the
	// first LAN address.
	Host string `yaml:"host"`

	// Port serves HTTP; the WebSocket listener uses Port+1.
	Port int `yaml:"port"`

	// StaticDir optionally overrides the embedded front end.
	StaticDir string `yaml:"static_dir"`
}

type CaptureConfig struct {
	Quality int     `yaml:"quality"`
	FPS     int     `yaml:"fps"`
	Scale   float64 `yaml:"scale"`

	// Monitor 0 captures all displays combined, 1+ a single display.
	Monitor int `yaml:"monitor"`
}

type SecurityConfig struct {
	PIN string `yaml:"pin"`

	// TimeoutMinutes shuts the server down after this long without
	// clients. 0 disables the idle timeout.
	TimeoutMinutes int `yaml:"timeout_minutes"`
}

type PerformanceConfig struct {
	UseFastEncoder bool `yaml:"use_fast_encoder"`

	// MaxClients caps concurrent sessions. 0 means unlimited.
	MaxClients int `yaml:"max_clients"`

	// InputBackend is "xdotool", "robotgo" or "" to pick automatically.
	InputBackend string `yaml:"input_backend"`
}

// UnmarshalYAML accepts the legacy use_turbojpeg key as an alias.
func (p *PerformanceConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain PerformanceConfig
	var raw struct {
		plain        `yaml:",inline"`
		UseTurboJPEG *bool `yaml:"use_turbojpeg"`
	}
	raw.plain = plain(*p)
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*p = PerformanceConfig(raw.plain)
	if raw.UseTurboJPEG != nil {
		p.UseFastEncoder = *raw.UseTurboJPEG
	}
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Capture: CaptureConfig{
			Quality: 70,
			FPS:     24,
			Scale:   0.75,
			Monitor: 0,
		},
		Security: SecurityConfig{
			TimeoutMinutes: 30,
		},
		Performance: PerformanceConfig{
			UseFastEncoder: true,
			MaxClients:     3,
		},
	}
}

// WSPort is the port of the WebSocket frame channel.
func (c Config) WSPort() int { return c.Server.Port + 1 }

// IdleTimeout converts TimeoutMinutes; zero means disabled.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.Security.TimeoutMinutes) * time.Minute
}

// SearchPaths lists candidate config files in priority order.
func SearchPaths() []string {
	var paths []string
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(wd, "config.yaml"))
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "couch-control", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "couch-control", "config.yaml"),
			filepath.Join(home, ".couch-control.yaml"),
		)
	}
	return paths
}

// Load reads the configuration. An explicit path must exist; otherwise
// the first existing file from SearchPaths is used, and if none exists
// the defaults are returned. The second return value is the file that
// was read, or "" for defaults.
func Load(path string) (Config, string, error) {
	if path != "" {
		cfg, err := LoadFile(path)
		return cfg, path, err
	}
	for _, candidate := range SearchPaths() {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		cfg, err := LoadFile(candidate)
		return cfg, candidate, err
	}
	cfg := Default()
	return cfg, "", cfg.Validate()
}

// LoadFile parses one YAML file over the defaults and validates it.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate clamps quality, scale and fps into range and rejects values
// that cannot be repaired.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65534 {
		errs = append(errs, fmt.Errorf("server.port %d out of range 1-65534", c.Server.Port))
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	c.Capture.Quality = ClampQuality(c.Capture.Quality)
	c.Capture.Scale = ClampScale(c.Capture.Scale)
	c.Capture.FPS = ClampFPS(c.Capture.FPS)
	if c.Capture.Monitor < 0 {
		errs = append(errs, fmt.Errorf("capture.monitor %d must not be negative", c.Capture.Monitor))
	}
	if c.Security.TimeoutMinutes < 0 {
		errs = append(errs, fmt.Errorf("security.timeout_minutes %d must not be negative", c.Security.TimeoutMinutes))
	}
	if c.Performance.MaxClients < 0 {
		errs = append(errs, fmt.Errorf("performance.max_clients %d must not be negative", c.Performance.MaxClients))
	}
	switch c.Performance.InputBackend {
	case "", "xdotool", "robotgo":
	default:
		errs = append(errs, fmt.Errorf("performance.input_backend %q is not one of xdotool, robotgo", c.Performance.InputBackend))
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c Config) Addr() string { return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port)) }

// WSAddr is the WebSocket listen address.
func (c Config) WSAddr() string { return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.WSPort())) }

func ClampQuality(q int) int { return min(MaxQuality, max(MinQuality, q)) }

func ClampFPS(fps int) int { return min(MaxFPS, max(MinFPS, fps)) }

// ClampScale maps NaN to the maximum scale.
func ClampScale(s float64) float64 {
	if math.IsNaN(s) {
		return MaxScale
	}
	return math.Min(MaxScale, math.Max(MinScale, s))
}
