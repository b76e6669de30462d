// Package ssdpconfig loads the CLI's YAML configuration: a candidate-path
// precedence chain, environment-variable overrides, and a persisted
// per-device UUID, trimmed to the discover/announce settings.
package ssdpconfig

import (
	_ "embed"
	"fmt"
	"os"
	"os/user"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/fileutils"
)

//go:embed pmossdp.yaml
var defaultConfig []byte

const (
	envConfigFile = "PMOSSDP_CONFIG"
	envPrefix     = "PMOSSDP_CONFIG__"
)

// Config is a loaded, mutable YAML document backed by a file on disk.
type Config struct {
	path string
	mu   sync.Mutex
	data map[string]interface{}
}

// Load loads a configuration following this precedence: filename if
// non-empty, then $PMOSSDP_CONFIG, then ./.pmossdp.yml, then
// $HOME/.pmossdp.yml, finally falling back to the embedded default. Any
// PMOSSDP_CONFIG__-prefixed environment variable overrides a dotted path
// within the loaded document (double underscore separates path segments).
func Load(filename string) *Config {
	data, path := readFirstAvailable(filename)

	cfg := &Config{path: path}
	if err := yaml.Unmarshal(data, &cfg.data); err != nil {
		log.Panicf("ssdpconfig: invalid YAML config: %v", err)
	}
	if cfg.data == nil {
		cfg.data = make(map[string]interface{})
	}
	cfg.data = lowerKeysMap(cfg.data)
	applyEnvOverrides(cfg)

	if cfg.path == "" {
		cfg.path = choosePersistPath(filename)
	}
	return cfg
}

func readFirstAvailable(filename string) ([]byte, string) {
	candidates := []string{filename, os.Getenv(envConfigFile), ".pmossdp.yml", homeConfigPath()}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		data, err := os.ReadFile(candidate)
		if err == nil {
			log.Infof("✅ loaded config from %s", candidate)
			return data, candidate
		}
	}
	log.Infof("✅ using embedded default config")
	return defaultConfig, ""
}

func choosePersistPath(filename string) string {
	for _, candidate := range []string{filename, os.Getenv(envConfigFile), ".pmossdp.yml", homeConfigPath()} {
		if candidate != "" && fileutils.IsWriteable(candidate) {
			return candidate
		}
	}
	return ""
}

func homeConfigPath() string {
	usr, err := user.Current()
	if err != nil {
		return ""
	}
	return path.Join(usr.HomeDir, ".pmossdp.yml")
}

// Save persists the current document back to its backing file, if one was
// chosen during Load.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" {
		return nil
	}
	data, err := yaml.Marshal(c.data)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

func (c *Config) getValue(keyPath []string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current interface{} = c.data
	for _, key := range keyPath {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[strings.ToLower(key)]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (c *Config) setValue(keyPath []string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.data
	for i, key := range keyPath {
		key = strings.ToLower(key)
		if i == len(keyPath)-1 {
			current[key] = value
			return
		}
		next, ok := current[key].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[key] = next
		}
		current = next
	}
}

func lowerKeysMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		lk := strings.ToLower(k)
		if nested, ok := v.(map[string]interface{}); ok {
			out[lk] = lowerKeysMap(nested)
		} else {
			out[lk] = v
		}
	}
	return out
}

func applyEnvOverrides(c *Config) {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyPath := strings.Split(strings.TrimPrefix(parts[0], envPrefix), "__")
		c.setValue(keyPath, convertYAMLScalar(parts[1]))
	}
}

func convertYAMLScalar(s string) interface{} {
	var out interface{}
	if err := yaml.Unmarshal([]byte(s), &out); err != nil {
		return s
	}
	return out
}

// HTTPPort returns host.http_port, defaulting to 8200.
func (c *Config) HTTPPort() int {
	v, ok := c.getValue([]string{"host", "http_port"})
	if port, ok2 := v.(int); ok && ok2 {
		return port
	}
	return 8200
}

// DiscoverWaitSeconds returns discover.wait, defaulting to 6.
func (c *Config) DiscoverWaitSeconds() int {
	v, ok := c.getValue([]string{"discover", "wait"})
	if secs, ok2 := v.(int); ok && ok2 {
		return secs
	}
	return 6
}

// SockPath returns discover.sock, defaulting to /tmp/pmossdp.sock.
func (c *Config) SockPath() string {
	v, ok := c.getValue([]string{"discover", "sock"})
	if s, ok2 := v.(string); ok && ok2 {
		return s
	}
	return "/tmp/pmossdp.sock"
}

// AnnouncePort returns announce.port, defaulting to 8200.
func (c *Config) AnnouncePort() int {
	v, ok := c.getValue([]string{"announce", "port"})
	if port, ok2 := v.(int); ok && ok2 {
		return port
	}
	return 8200
}

// AnnounceType returns announce.type, defaulting to "MediaServer".
func (c *Config) AnnounceType() string {
	v, ok := c.getValue([]string{"announce", "type"})
	if s, ok2 := v.(string); ok && ok2 {
		return s
	}
	return "MediaServer"
}

// DeviceUUID returns the persisted UUID for a local device of the given
// type and name, generating and storing a fresh one on first use.
func (c *Config) DeviceUUID(deviceType, name string) string {
	keyPath := []string{"devices", deviceType, name, "uuid"}
	if v, ok := c.getValue(keyPath); ok {
		if s, ok2 := v.(string); ok2 {
			return s
		}
	}
	id := uuid.New().String()
	c.setValue(keyPath, id)
	c.Save()
	return id
}

// ExpandFilter applies the CLI shorthand: a bare word with no ":" expands
// to a device-type target; "root" expands to the UPnP root-device target.
// A filter that already contains ":" (or is empty) passes through
// unchanged.
func ExpandFilter(filter string) string {
	if filter == "" || strings.Contains(filter, ":") {
		return filter
	}
	if filter == "root" {
		return "upnp:rootdevice"
	}
	return fmt.Sprintf("urn:schemas-upnp-org:device:%s:1", filter)
}
