package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/kruton/etamoo/pkg/gamedb"
)

// Config holds server-level configuration loaded from a YAML file. World
// behavior lives on $server_options; this covers the parts that exist
// before the world does.
type Config struct {
	// --- Identity ---
	ServerName string `yaml:"server_name"`

	// --- Network ---
	Port           int    `yaml:"port"`
	Host           string `yaml:"host"`            // bind address, empty for all interfaces
	MetricsPort    int    `yaml:"metrics_port"`    // 0 disables the metrics endpoint
	MaxConnections int    `yaml:"max_connections"` // 0 means unlimited

	// --- Persistence ---
	DatabasePath string `yaml:"database_path"`
	DumpInterval int    `yaml:"dump_interval"` // minutes between checkpoints, 0 = off

	// --- Logging ---
	LogFile    string `yaml:"log_file"` // empty logs to stderr
	LogMaxSize int    `yaml:"log_max_size"` // megabytes per rotated file
	LogKeep    int    `yaml:"log_keep"`     // rotated files to retain

	// --- Bootstrap ---
	Seed bool `yaml:"seed"` // create a minimal core when the db is empty
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerName:   ServerName,
		Port:         7777,
		DatabasePath: "world.db",
		DumpInterval: 30,
		LogMaxSize:   50,
		LogKeep:      5,
		Seed:         true,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return conf, nil
}

// ListenPoint renders the configured bind endpoint.
func (c *Config) ListenPoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WatchConfig reloads the world's option snapshot whenever the config file
// changes on disk. Option values live in the world, so the reload simply
// recomputes the snapshot; a change to network settings needs a restart.
func (s *Server) WatchConfig(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	base := filepath.Base(path)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				conf, err := LoadConfig(path)
				if err != nil {
					log.Printf("WARNING: config reload failed: %v", err)
					continue
				}
				s.Conf = conf
				s.World.Attempt(func(tx *gamedb.Tx) error {
					s.World.LoadOptions()
					return nil
				})
				log.Printf("Config reloaded from %s", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("WARNING: config watcher: %v", err)
			}
		}
	}()
	return nil
}
