package gqlmock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var Version = "dev"

// PluginConfig contains the configuration for the named plugin
type PluginConfig struct {
	Name   string
	Config json.RawMessage
}

type TimeoutConfig struct {
	ReadTimeout          string        `json:"read"`
	ReadTimeoutDuration  time.Duration `json:"-"`
	WriteTimeout         string        `json:"write"`
	WriteTimeoutDuration time.Duration `json:"-"`
	IdleTimeout          string        `json:"idle"`
	IdleTimeoutDuration  time.Duration `json:"-"`
}

// Config contains the mock server configuration
type Config struct {
	ListenAddress        string          `json:"listen-address"`
	MetricsListenAddress string          `json:"metrics-address"`
	PrivateListenAddress string          `json:"private-address"`
	Port                 int             `json:"port"`
	MetricsPort          int             `json:"metrics-port"`
	PrivatePort          int             `json:"private-port"`
	DefaultTimeouts      TimeoutConfig   `json:"default-timeouts"`
	PublicTimeouts       TimeoutConfig   `json:"public-timeouts"`
	PrivateTimeouts      TimeoutConfig   `json:"private-timeouts"`
	LogLevel             log.Level       `json:"loglevel"`
	Fixtures             []*Fixture      `json:"fixtures"`
	FixtureFiles         []string        `json:"fixture-files"`
	Telemetry            TelemetryConfig `json:"telemetry"`
	Plugins              []PluginConfig
	// Config extensions that can be shared among plugins
	Extensions map[string]json.RawMessage

	plugins     []Plugin
	backend     *Backend
	watcher     *fsnotify.Watcher
	tracer      trace.Tracer
	configFiles []string
	linkedFiles []string
}

func (c *Config) addrOrPort(addr string, port int) string {
	if addr != "" {
		return addr
	}
	return fmt.Sprintf(":%d", port)
}

// PublicAddress returns the host:port string of the public handler
func (c *Config) PublicAddress() string {
	return c.addrOrPort(c.ListenAddress, c.Port)
}

// PrivateAddress returns the address for private port
func (c *Config) PrivateAddress() string {
	return c.addrOrPort(c.PrivateListenAddress, c.PrivatePort)
}

// MetricAddress returns the address for the metric port
func (c *Config) MetricAddress() string {
	return c.addrOrPort(c.MetricsListenAddress, c.MetricsPort)
}

// Load loads or reloads all the config files.
func (c *Config) Load() error {
	c.Extensions = nil
	c.Fixtures = nil
	c.FixtureFiles = nil
	// concatenate plugins and fixtures from all the config files
	var plugins []PluginConfig
	var fixtures []*Fixture
	var fixtureFiles []string
	for _, configFile := range c.configFiles {
		c.Plugins = nil
		c.Fixtures = nil
		c.FixtureFiles = nil
		if err := c.decodeFile(configFile); err != nil {
			return err
		}
		plugins = append(plugins, c.Plugins...)
		fixtures = append(fixtures, c.Fixtures...)
		for _, f := range c.FixtureFiles {
			if !filepath.IsAbs(f) {
				f = filepath.Join(filepath.Dir(configFile), f)
			}
			fixtureFiles = append(fixtureFiles, f)
		}
	}
	c.Plugins = plugins
	c.FixtureFiles = fixtureFiles

	for _, f := range fixtures {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, file := range fixtureFiles {
		loaded, err := LoadFixtures(file)
		if err != nil {
			return err
		}
		fixtures = append(fixtures, loaded...)
	}
	c.Fixtures = fixtures

	logLevel := os.Getenv("GQLMOCK_LOG_LEVEL")
	if level, err := log.ParseLevel(logLevel); err == nil {
		c.LogLevel = level
	} else if logLevel != "" {
		log.WithField("loglevel", logLevel).Warn("invalid loglevel")
	}
	log.SetLevel(c.LogLevel)

	var err error
	c.DefaultTimeouts.ReadTimeoutDuration, err = time.ParseDuration(c.DefaultTimeouts.ReadTimeout)
	if err != nil {
		return fmt.Errorf("invalid default read timeout: %w", err)
	}
	c.DefaultTimeouts.WriteTimeoutDuration, err = time.ParseDuration(c.DefaultTimeouts.WriteTimeout)
	if err != nil {
		return fmt.Errorf("invalid default write timeout: %w", err)
	}
	c.DefaultTimeouts.IdleTimeoutDuration, err = time.ParseDuration(c.DefaultTimeouts.IdleTimeout)
	if err != nil {
		return fmt.Errorf("invalid default idle timeout: %w", err)
	}
	if err = c.loadTimeouts(&c.PublicTimeouts, "public", c.DefaultTimeouts); err != nil {
		return err
	}
	if err = c.loadTimeouts(&c.PrivateTimeouts, "private", c.DefaultTimeouts); err != nil {
		return err
	}

	c.plugins = c.ConfigurePlugins()

	return nil
}

func (c *Config) decodeFile(configFile string) error {
	f, err := os.Open(configFile)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return fmt.Errorf("error decoding config file %q: %w", configFile, err)
	}
	return nil
}

func (c *Config) loadTimeouts(config *TimeoutConfig, name string, defaults TimeoutConfig) error {
	var err error
	if config.ReadTimeout != "" {
		config.ReadTimeoutDuration, err = time.ParseDuration(config.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid %s read timeout: %w", name, err)
		}
	}
	if config.ReadTimeoutDuration == 0 {
		config.ReadTimeoutDuration = defaults.ReadTimeoutDuration
	}
	if config.WriteTimeout != "" {
		config.WriteTimeoutDuration, err = time.ParseDuration(config.WriteTimeout)
		if err != nil {
			return fmt.Errorf("invalid %s write timeout: %w", name, err)
		}
	}
	if config.WriteTimeoutDuration == 0 {
		config.WriteTimeoutDuration = defaults.WriteTimeoutDuration
	}
	if config.IdleTimeout != "" {
		config.IdleTimeoutDuration, err = time.ParseDuration(config.IdleTimeout)
		if err != nil {
			return fmt.Errorf("invalid %s idle timeout: %w", name, err)
		}
	}
	if config.IdleTimeoutDuration == 0 {
		config.IdleTimeoutDuration = defaults.IdleTimeoutDuration
	}
	return nil
}

// watchedFiles returns the config files followed by the fixture files.
func (c *Config) watchedFiles() []string {
	return append(append([]string(nil), c.configFiles...), c.FixtureFiles...)
}

func (c *Config) watchFixtureFiles() error {
	for _, file := range c.FixtureFiles {
		// watch the directory, else we'll lose the watch if the file is relinked
		if err := c.watcher.Add(filepath.Dir(file)); err != nil {
			return fmt.Errorf("error add file to watcher: %w", err)
		}
	}
	c.linkedFiles = c.linkedFiles[:0]
	for _, file := range c.watchedFiles() {
		linkedFile, _ := filepath.EvalSymlinks(file)
		c.linkedFiles = append(c.linkedFiles, linkedFile)
	}
	return nil
}

// Watch reloads the configuration and the fixtures when one of the files
// changes.
func (c *Config) Watch() {
	for {
		select {
		case err := <-c.watcher.Errors:
			log.WithError(err).Error("config watch error")
		case e := <-c.watcher.Events:
			files := c.watchedFiles()
			log.WithFields(log.Fields{"event": e, "files": files, "links": c.linkedFiles}).Debug("received config file event")
			shouldUpdate := false
			for i := range files {
				// we want to reload the config if:
				// - the file was updated, or
				// - the file is a symlink and was changed (k8s config map update)
				if filepath.Clean(e.Name) == files[i] && (e.Op == fsnotify.Write || e.Op == fsnotify.Create) {
					shouldUpdate = true
					break
				}
				currentFile, _ := filepath.EvalSymlinks(files[i])
				if i < len(c.linkedFiles) && c.linkedFiles[i] != "" && c.linkedFiles[i] != currentFile {
					c.linkedFiles[i] = currentFile
					shouldUpdate = true
					break
				}
			}

			if !shouldUpdate {
				log.Debug("nothing to update")
				continue
			}

			if e.Op != fsnotify.Write && e.Op != fsnotify.Create {
				log.Debug("ignoring non write/create event")
				continue
			}

			if err := c.reload(); err != nil {
				log.WithError(err).Error("error reloading config")
			}
		}
	}
}

func (c *Config) reload() error {
	_, span := c.tracer.Start(context.Background(), "Config Reload")
	defer span.End()

	if err := c.Load(); err != nil {
		return err
	}
	if err := c.watchFixtureFiles(); err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("gqlmock.fixtures", len(c.Fixtures)))
	c.backend.SetFixtures(c.Fixtures)
	log.WithField("fixtures", len(c.Fixtures)).Info("config file updated")

	return nil
}

// GetConfig returns operational config for the mock server
func GetConfig(configFiles []string) (*Config, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create watcher: %w", err)
	}
	for _, configFile := range configFiles {
		// watch the directory, else we'll lose the watch if the file is relinked
		err = watcher.Add(filepath.Dir(configFile))
		if err != nil {
			return nil, fmt.Errorf("error add file to watcher: %w", err)
		}
	}

	cfg := Config{
		DefaultTimeouts: TimeoutConfig{
			ReadTimeout:  "5s",
			// flushes can take as long as the test needs
			WriteTimeout: "5m",
			IdleTimeout:  "120s",
		},
		Port:        8082,
		PrivatePort: 8083,
		MetricsPort: 9009,
		LogLevel:    log.DebugLevel,

		watcher:     watcher,
		tracer:      otel.GetTracerProvider().Tracer(instrumentationName),
		configFiles: configFiles,
	}
	if err := cfg.Load(); err != nil {
		return &cfg, err
	}

	return &cfg, cfg.watchFixtureFiles()
}

// ConfigurePlugins calls the Configure method on each plugin.
func (c *Config) ConfigurePlugins() []Plugin {
	var enabledPlugins []Plugin
	for _, pl := range c.Plugins {
		p, ok := RegisteredPlugins()[pl.Name]
		if !ok {
			log.Warnf("plugin %q not found", pl.Name)
			continue
		}
		err := p.Configure(c, pl.Config)
		if err != nil {
			log.WithError(err).Fatalf("error unmarshalling config for plugin %q: %s", pl.Name, err)
		}
		enabledPlugins = append(enabledPlugins, p)
	}

	return enabledPlugins
}

// Init creates the backend answering operations with the configured
// fixtures and initializes the plugins.
func (c *Config) Init() error {
	c.backend = NewBackend(
		WithFixtures(c.Fixtures...),
		WithPlugins(c.plugins...),
	)

	var pluginsNames []string
	for _, plugin := range c.plugins {
		plugin.Init(c.backend)
		pluginsNames = append(pluginsNames, plugin.ID())
	}
	log.Infof("enabled plugins: %v", pluginsNames)
	log.Infof("loaded %d fixtures", len(c.Fixtures))

	return nil
}

// Backend returns the backend created by Init.
func (c *Config) Backend() *Backend {
	return c.backend
}

type arrayFlags []string

func (a *arrayFlags) String() string {
	return strings.Join(*a, ",")
}

func (a *arrayFlags) Set(value string) error {
	*a = append(*a, value)
	return nil
}

// EnabledPlugins returns the plugins configured by Load.
func (c *Config) EnabledPlugins() []Plugin {
	return c.plugins
}
