package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Poll struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"poll"`
	Retry struct {
		Attempts    int           `mapstructure:"attempts"`
		Interval    time.Duration `mapstructure:"interval"`
		Factor      float64       `mapstructure:"factor"`
		MaxInterval time.Duration `mapstructure:"max_interval"`
		Jitter      bool          `mapstructure:"jitter"`
	} `mapstructure:"retry"`
	Artwork struct {
		MaxEdge      int           `mapstructure:"max_edge"`
		ExtractColor bool          `mapstructure:"extract_color"`
		HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	} `mapstructure:"artwork"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Darwin struct {
		Helper      string   `mapstructure:"helper"`
		RepeatCycle []string `mapstructure:"repeat_cycle"`
	} `mapstructure:"darwin"`
	Windows struct {
		PowerShell string `mapstructure:"powershell"`
	} `mapstructure:"windows"`
	Monitor struct {
		Color          string `mapstructure:"color"`
		MaxWidth       int    `mapstructure:"max_width"`
		Artwork        bool   `mapstructure:"artwork"`
		ArtworkColumns int    `mapstructure:"artwork_columns"`
	} `mapstructure:"monitor"`
}

// SafeConfig wraps Config with thread-safe access
type SafeConfig struct {
	mu  sync.RWMutex
	cfg Config
}

// Get returns a copy of the current config (thread-safe read)
func (sc *SafeConfig) Get() Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	cfg := sc.cfg
	cfg.Darwin.RepeatCycle = append([]string(nil), sc.cfg.Darwin.RepeatCycle...)
	return cfg
}

// Set updates the config (thread-safe write)
func (sc *SafeConfig) Set(cfg Config) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cfg = cfg
}

var config = &SafeConfig{}

func init() {
	config.Set(defaultConfig())
}

// Config file changed notification, consumed by the monitor UI
var configChangeChan = make(chan struct{}, 1)

func defaultConfig() Config {
	var cfg Config
	cfg.Poll.Interval = time.Second
	cfg.Retry.Attempts = 5
	cfg.Retry.Interval = time.Second
	cfg.Retry.Factor = 1
	cfg.Retry.MaxInterval = 10 * time.Second
	cfg.Artwork.MaxEdge = 1000
	cfg.Artwork.ExtractColor = false
	cfg.Artwork.HTTPTimeout = 10 * time.Second
	cfg.Log.Level = "info"
	cfg.Darwin.Helper = "nowplaying-cli"
	cfg.Darwin.RepeatCycle = []string{"None", "One", "All"}
	cfg.Windows.PowerShell = "powershell.exe"
	cfg.Monitor.Color = "2"
	cfg.Monitor.MaxWidth = 45
	cfg.Monitor.Artwork = true
	cfg.Monitor.ArtworkColumns = 13
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig()
	v.SetDefault("poll.interval", d.Poll.Interval)
	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.interval", d.Retry.Interval)
	v.SetDefault("retry.factor", d.Retry.Factor)
	v.SetDefault("retry.max_interval", d.Retry.MaxInterval)
	v.SetDefault("retry.jitter", d.Retry.Jitter)
	v.SetDefault("artwork.max_edge", d.Artwork.MaxEdge)
	v.SetDefault("artwork.extract_color", d.Artwork.ExtractColor)
	v.SetDefault("artwork.http_timeout", d.Artwork.HTTPTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("darwin.helper", d.Darwin.Helper)
	v.SetDefault("darwin.repeat_cycle", d.Darwin.RepeatCycle)
	v.SetDefault("windows.powershell", d.Windows.PowerShell)
	v.SetDefault("monitor.color", d.Monitor.Color)
	v.SetDefault("monitor.max_width", d.Monitor.MaxWidth)
	v.SetDefault("monitor.artwork", d.Monitor.Artwork)
	v.SetDefault("monitor.artwork_columns", d.Monitor.ArtworkColumns)
}

// initConfig loads defaults, the config file and MEDIAFETCHER_* environment
// variables into config, then watches the file for live changes. onChange
// runs after every successful reload.
func initConfig(configFile string, onChange func(Config)) {
	setDefaults(viper.GetViper())

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Set config file location following XDG standard
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			homeDir, err := os.UserHomeDir()
			if err == nil {
				configHome = filepath.Join(homeDir, ".config")
			}
		}
		if configHome != "" {
			viper.AddConfigPath(filepath.Join(configHome, "mediafetcher"))
		}
	}

	viper.SetEnvPrefix("MEDIAFETCHER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (ignore error if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: Error reading config file: %v\n", err)
		}
	}

	config.Set(loadConfig(viper.GetViper()))

	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg := loadConfig(viper.GetViper())
		config.Set(cfg)
		if onChange != nil {
			onChange(cfg)
		}
		select {
		case configChangeChan <- struct{}{}:
		default:
			// Channel full, skip notification
		}
	})
	if viper.ConfigFileUsed() != "" {
		viper.WatchConfig()
	}
}

// loadConfig unmarshals v and replaces invalid fields with defaults.
func loadConfig(v *viper.Viper) Config {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Error parsing config: %v\n", err)
		return defaultConfig()
	}
	if errs := validateConfig(&cfg); len(errs) > 0 {
		printConfigWarnings(errs)
		applyDefaultsForInvalidFields(&cfg, errs)
	}
	return cfg
}

type configError struct {
	field   string
	message string
}

func (e configError) Error() string {
	return fmt.Sprintf("%s: %s", e.field, e.message)
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

func validateConfig(cfg *Config) []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, configError{field: field, message: fmt.Sprintf(format, args...)})
	}

	if cfg.Poll.Interval < 50*time.Millisecond || cfg.Poll.Interval > time.Minute {
		add("poll.interval", "must be between 50ms and 1m (got %s)", cfg.Poll.Interval)
	}
	if cfg.Retry.Attempts < 1 || cfg.Retry.Attempts > 20 {
		add("retry.attempts", "must be between 1 and 20 (got %d)", cfg.Retry.Attempts)
	}
	if cfg.Retry.Interval < 0 || cfg.Retry.Interval > 30*time.Second {
		add("retry.interval", "must be between 0 and 30s (got %s)", cfg.Retry.Interval)
	}
	if cfg.Retry.Factor < 1 || cfg.Retry.Factor > 10 {
		add("retry.factor", "must be between 1 and 10 (got %g)", cfg.Retry.Factor)
	}
	if cfg.Retry.MaxInterval < cfg.Retry.Interval || cfg.Retry.MaxInterval > time.Minute {
		add("retry.max_interval", "must be between retry.interval and 1m (got %s)", cfg.Retry.MaxInterval)
	}
	if cfg.Artwork.MaxEdge < 16 {
		add("artwork.max_edge", "must be at least 16 (got %d)", cfg.Artwork.MaxEdge)
	}
	if cfg.Artwork.HTTPTimeout <= 0 {
		add("artwork.http_timeout", "must be positive (got %s)", cfg.Artwork.HTTPTimeout)
	}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		add("log.level", "invalid level '%s'", cfg.Log.Level)
	}
	if cfg.Darwin.Helper == "" {
		add("darwin.helper", "must not be empty")
	}
	if _, err := parseRepeatCycle(cfg.Darwin.RepeatCycle); err != nil {
		add("darwin.repeat_cycle", "%v", err)
	}
	if cfg.Windows.PowerShell == "" {
		add("windows.powershell", "must not be empty")
	}
	if !isValidColor(cfg.Monitor.Color) {
		add("monitor.color", "invalid color format '%s'", cfg.Monitor.Color)
	}
	if cfg.Monitor.MaxWidth < 20 {
		add("monitor.max_width", "must be at least 20 (got %d)", cfg.Monitor.MaxWidth)
	}
	if cfg.Monitor.ArtworkColumns < 1 {
		add("monitor.artwork_columns", "must be at least 1 (got %d)", cfg.Monitor.ArtworkColumns)
	}
	return errs
}

// isValidColor accepts an ANSI color code (0-255) or a #RGB / #RRGGBB hex color
func isValidColor(color string) bool {
	if color == "" {
		return false
	}
	if strings.HasPrefix(color, "#") {
		hex := color[1:]
		if len(hex) != 3 && len(hex) != 6 {
			return false
		}
		for _, c := range hex {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
				return false
			}
		}
		return true
	}
	n, err := strconv.Atoi(color)
	return err == nil && n >= 0 && n <= 255 && strconv.Itoa(n) == color
}

func applyDefaultsForInvalidFields(cfg *Config, errs []error) {
	d := defaultConfig()
	for _, err := range errs {
		ce, ok := err.(configError)
		if !ok {
			continue
		}
		switch ce.field {
		case "poll.interval":
			cfg.Poll.Interval = d.Poll.Interval
		case "retry.attempts":
			cfg.Retry.Attempts = d.Retry.Attempts
		case "retry.interval":
			cfg.Retry.Interval = d.Retry.Interval
		case "retry.factor":
			cfg.Retry.Factor = d.Retry.Factor
		case "retry.max_interval":
			cfg.Retry.MaxInterval = d.Retry.MaxInterval
		case "artwork.max_edge":
			cfg.Artwork.MaxEdge = d.Artwork.MaxEdge
		case "artwork.http_timeout":
			cfg.Artwork.HTTPTimeout = d.Artwork.HTTPTimeout
		case "log.level":
			cfg.Log.Level = d.Log.Level
		case "darwin.helper":
			cfg.Darwin.Helper = d.Darwin.Helper
		case "darwin.repeat_cycle":
			cfg.Darwin.RepeatCycle = d.Darwin.RepeatCycle
		case "windows.powershell":
			cfg.Windows.PowerShell = d.Windows.PowerShell
		case "monitor.color":
			cfg.Monitor.Color = d.Monitor.Color
		case "monitor.max_width":
			cfg.Monitor.MaxWidth = d.Monitor.MaxWidth
		case "monitor.artwork_columns":
			cfg.Monitor.ArtworkColumns = d.Monitor.ArtworkColumns
		}
	}
}

func printConfigWarnings(errs []error) {
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "Warning: invalid config %v, using default\n", err)
	}
}

// retryPolicy returns the bounded retry settings for flaky native reads.
func (c Config) retryPolicy() retryPolicy {
	return retryPolicy{
		Attempts:    c.Retry.Attempts,
		Interval:    c.Retry.Interval,
		Factor:      c.Retry.Factor,
		MaxInterval: c.Retry.MaxInterval,
		Jitter:      c.Retry.Jitter,
	}
}
