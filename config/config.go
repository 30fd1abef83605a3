// Package config loads the supervisor's configuration: a YAML file,
// overridable by pflag-declared CLI flags, with optional fsnotify-driven
// live reload. A .env file can be loaded into the process environment
// first; no Config field is read from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/darkphnx/uninterruptible/logging"
)

// Duration wraps time.Duration so YAML values like "30s" or "2m" parse,
// which yaml.v3 does not do for time.Duration on its own.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full set of the server's enumerated options.
type Config struct {
	Bind            string   `yaml:"bind"`
	PIDPath         string   `yaml:"pid_path"`
	AllowedNetworks []string `yaml:"allowed_networks"`
	LogSink         string   `yaml:"log_sink"`
	LogLevel        string   `yaml:"log_level"`
	StartCommand    []string `yaml:"start_command"`
	DrainTimeout    Duration `yaml:"drain_timeout"`

	// TLSCertFile/TLSKeyFile are required when Bind uses the tls scheme.
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
}

// Default returns a Config with the documented defaults: pid_path
// "./<program>.pid", allowed_networks empty (allow all), log_level "info".
func Default(program string) Config {
	return Config{
		PIDPath:  fmt.Sprintf("./%s.pid", program),
		LogLevel: "info",
	}
}

// Load reads a YAML config file at path (if non-empty and it exists),
// loads a .env file from envPath (if non-empty and it exists) into the
// process environment, and layers flag overrides from fs on top. fs is
// expected to have already parsed os.Args by the caller (cmd/gracesrvd
// wires this through cobra/pflag).
func Load(path string, envPath string, fs *pflag.FlagSet, program string) (Config, error) {
	cfg := Default(program)

	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return Config{}, fmt.Errorf("config: load .env %s: %w", envPath, err)
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if fs != nil {
		applyFlagOverrides(&cfg, fs)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) {
	// The bind flag's declared default also fills in a config file that
	// never set one, so a bare `run` with no file still listens somewhere.
	if fs.Changed("bind") || cfg.Bind == "" {
		if v, _ := fs.GetString("bind"); v != "" {
			cfg.Bind = v
		}
	}
	if fs.Changed("pid-path") {
		cfg.PIDPath, _ = fs.GetString("pid-path")
	}
	if fs.Changed("log-level") {
		cfg.LogLevel, _ = fs.GetString("log-level")
	}
	if fs.Changed("log-sink") {
		cfg.LogSink, _ = fs.GetString("log-sink")
	}
	if fs.Changed("drain-timeout") {
		d, _ := fs.GetDuration("drain-timeout")
		cfg.DrainTimeout = Duration(d)
	}
	if fs.Changed("allowed-network") {
		cfg.AllowedNetworks, _ = fs.GetStringArray("allowed-network")
	}
	if fs.Changed("tls-cert") {
		cfg.TLSCertFile, _ = fs.GetString("tls-cert")
	}
	if fs.Changed("tls-key") {
		cfg.TLSKeyFile, _ = fs.GetString("tls-key")
	}
}

// Validate checks the configuration is internally consistent. A failure
// here is fatal at startup, before the PID file is ever written.
func (c Config) Validate() error {
	if c.Bind == "" {
		return fmt.Errorf("config: bind is required")
	}
	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
		}
	}
	if strings.HasPrefix(c.Bind, "tls://") && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		return fmt.Errorf("config: tls_cert_file and tls_key_file are required when bind uses tls://")
	}
	return nil
}

// WatchFile watches path for writes and calls onChange each time it's
// rewritten, for config-file-triggered reload. The returned function stops
// watching. Grounded on hugorm's fsnotify-based config watcher.
func WatchFile(path string, onChange func()) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange()
				}
			case <-watcher.Errors:
				// Non-fatal: config watching is a convenience, not load-bearing.
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
