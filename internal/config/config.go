package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

const (
	minPort = 1
	maxPort = 65535
)

var defaultPorts = []int{8081, 8082, 8083, 8084, 8085}

type Config struct {
	Greeter struct {
		Host              string `yaml:"host"`
		Ports             []int  `yaml:"ports"`
		ExitOnBindFailure bool   `yaml:"exit_on_bind_failure"`
	} `yaml:"greeter"`

	Balancer struct {
		Port        int      `yaml:"port"`
		Backends    []string `yaml:"backends"`
		HealthCheck struct {
			IntervalSec int `yaml:"interval_sec"`
			TimeoutSec  int `yaml:"timeout_sec"`
		} `yaml:"health_check"`
		StatusPath  string `yaml:"status_path"`
		WatchConfig bool   `yaml:"watch_config"`
	} `yaml:"balancer"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var config Config

	config.Greeter.Ports = append([]int(nil), defaultPorts...)

	config.Balancer.Port = 8080
	config.Balancer.HealthCheck.IntervalSec = 10
	config.Balancer.HealthCheck.TimeoutSec = 2
	config.Balancer.StatusPath = "/_lb/status"
	config.Balancer.WatchConfig = true

	config.Logging.Level = "info"
	config.Logging.Format = "json"

	return &config
}

// LoadConfig reads the YAML file at path on top of Default. An empty path
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	if len(c.Greeter.Ports) == 0 {
		return fmt.Errorf("greeter.ports must not be empty")
	}

	seen := make(map[int]struct{}, len(c.Greeter.Ports))
	for _, port := range c.Greeter.Ports {
		if err := validatePort(port); err != nil {
			return fmt.Errorf("greeter.ports: %w", err)
		}
		if _, dup := seen[port]; dup {
			return fmt.Errorf("greeter.ports: duplicate port %d", port)
		}
		seen[port] = struct{}{}
	}

	if err := validatePort(c.Balancer.Port); err != nil {
		return fmt.Errorf("balancer.port: %w", err)
	}
	if _, clash := seen[c.Balancer.Port]; clash {
		return fmt.Errorf("balancer.port %d is also a greeter port", c.Balancer.Port)
	}

	for _, backend := range c.Balancer.Backends {
		u, err := url.Parse(backend)
		if err != nil {
			return fmt.Errorf("balancer.backends: invalid url %q: %w", backend, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("balancer.backends: %q is not an absolute http(s) url", backend)
		}
	}

	if c.Balancer.HealthCheck.IntervalSec <= 0 {
		return fmt.Errorf("balancer.health_check.interval_sec must be positive, got %d",
			c.Balancer.HealthCheck.IntervalSec)
	}
	if c.Balancer.HealthCheck.TimeoutSec <= 0 {
		return fmt.Errorf("balancer.health_check.timeout_sec must be positive, got %d",
			c.Balancer.HealthCheck.TimeoutSec)
	}
	if len(c.Balancer.StatusPath) == 0 || c.Balancer.StatusPath[0] != '/' {
		return fmt.Errorf("balancer.status_path must start with /, got %q", c.Balancer.StatusPath)
	}
	if c.Balancer.StatusPath == "/" {
		return fmt.Errorf("balancer.status_path must not be the root path")
	}

	return nil
}

// Backends returns the load balancer targets. Without an explicit list every
// greeter port on localhost is a target, in port order.
func (c *Config) Backends() []string {
	if len(c.Balancer.Backends) > 0 {
		return append([]string(nil), c.Balancer.Backends...)
	}

	backends := make([]string, 0, len(c.Greeter.Ports))
	for _, port := range c.Greeter.Ports {
		backends = append(backends, "http://localhost:"+strconv.Itoa(port))
	}
	return backends
}

func validatePort(port int) error {
	if port < minPort || port > maxPort {
		return fmt.Errorf("port %d out of range %d-%d", port, minPort, maxPort)
	}
	return nil
}
