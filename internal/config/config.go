package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/seifmios/internal/lexicon"
	"github.com/normanking/seifmios/internal/logging"
)

// Config holds all seifmios configuration. It is loaded from
// ~/.seifmios/config.yaml and can be overridden by SEIFMIOS_* environment variables.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Console    ConsoleConfig    `mapstructure:"console" yaml:"console"`
	Remote     RemoteConfig     `mapstructure:"remote" yaml:"remote"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Transports TransportsConfig `mapstructure:"transports" yaml:"transports"`
}

// EngineConfig holds the learning tunables and the owner loop pacing. Keys
// match the names accepted by the get/set commands.
type EngineConfig struct {
	Seed          uint64        `mapstructure:"seed" yaml:"seed"`
	ThinkTimes    int           `mapstructure:"think_times" yaml:"think_times"`
	ThinkPause    time.Duration `mapstructure:"think_pause" yaml:"think_pause"`
	InboundBuffer int           `mapstructure:"inbound_buffer" yaml:"inbound_buffer"`

	CocategorizeRatio     float64 `mapstructure:"cc_ratio" yaml:"cc_ratio"`
	TravelDistance        int     `mapstructure:"cc_travel" yaml:"cc_travel"`
	CocategorizeMagnitude int     `mapstructure:"cc_magnitude" yaml:"cc_magnitude"`
	ForwardEdgeDistance   int     `mapstructure:"fwd_edge" yaml:"fwd_edge"`
	BackwardEdgeDistance  int     `mapstructure:"bwd_edge" yaml:"bwd_edge"`
	ForwardWordDistance   int     `mapstructure:"fwd_word" yaml:"fwd_word"`
	BackwardWordDistance  int     `mapstructure:"bwd_word" yaml:"bwd_word"`
	MaxWalk               int     `mapstructure:"max_walk" yaml:"max_walk"`
}

// Params converts the tunables into lexicon parameters.
func (e EngineConfig) Params() lexicon.Params {
	return lexicon.Params{
		CocategorizeRatio:     e.CocategorizeRatio,
		TravelDistance:        e.TravelDistance,
		CocategorizeMagnitude: e.CocategorizeMagnitude,
		ForwardEdgeDistance:   e.ForwardEdgeDistance,
		BackwardEdgeDistance:  e.BackwardEdgeDistance,
		ForwardWordDistance:   e.ForwardWordDistance,
		BackwardWordDistance:  e.BackwardWordDistance,
		MaxWalk:               e.MaxWalk,
	}
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// ConsoleConfig controls the interactive front end.
type ConsoleConfig struct {
	// Mode is "auto" (tui on a terminal, plain otherwise), "tui", "plain" or "off".
	Mode   string `mapstructure:"mode" yaml:"mode"`
	Source string `mapstructure:"source" yaml:"source"`
	Author string `mapstructure:"author" yaml:"author"`
}

// RemoteConfig controls the remote command socket.
type RemoteConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Address is a unix socket path, or host:port for TCP.
	Address string `mapstructure:"address" yaml:"address"`
}

// StoreConfig controls snapshot persistence.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// Autosave is a cron spec (e.g. "@every 30m"); empty disables it.
	Autosave    string `mapstructure:"autosave" yaml:"autosave"`
	LoadOnStart bool   `mapstructure:"load_on_start" yaml:"load_on_start"`
	SaveOnExit  bool   `mapstructure:"save_on_exit" yaml:"save_on_exit"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// TransportsConfig lists the chat transports. Transports with AutoConnect are
// started by serve; the rest wait for a connect command.
type TransportsConfig struct {
	ReconnectDelay time.Duration   `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	Server         EndpointConfig  `mapstructure:"server" yaml:"server"`
	WebChat        EndpointConfig  `mapstructure:"webchat" yaml:"webchat"`
	IRC            ConnectorConfig `mapstructure:"irc" yaml:"irc"`
	Discord        ConnectorConfig `mapstructure:"discord" yaml:"discord"`
	Telegram       ConnectorConfig `mapstructure:"telegram" yaml:"telegram"`
	Slack          ConnectorConfig `mapstructure:"slack" yaml:"slack"`
	Redis          ConnectorConfig `mapstructure:"redis" yaml:"redis"`
}

// EndpointConfig is a listener address.
type EndpointConfig struct {
	Address     string `mapstructure:"address" yaml:"address"`
	AutoConnect bool   `mapstructure:"auto_connect" yaml:"auto_connect"`
}

// ConnectorConfig points at a transport's own YAML file.
type ConnectorConfig struct {
	Config      string `mapstructure:"config" yaml:"config"`
	AutoConnect bool   `mapstructure:"auto_connect" yaml:"auto_connect"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	p := lexicon.DefaultParams()
	return &Config{
		Engine: EngineConfig{
			Seed:                  1234,
			ThinkTimes:            20,
			ThinkPause:            10 * time.Millisecond,
			InboundBuffer:         64,
			CocategorizeRatio:     p.CocategorizeRatio,
			TravelDistance:        p.TravelDistance,
			CocategorizeMagnitude: p.CocategorizeMagnitude,
			ForwardEdgeDistance:   p.ForwardEdgeDistance,
			BackwardEdgeDistance:  p.BackwardEdgeDistance,
			ForwardWordDistance:   p.ForwardWordDistance,
			BackwardWordDistance:  p.BackwardWordDistance,
			MaxWalk:               p.MaxWalk,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "~/.seifmios/logs/seifmios.log",
		},
		Console: ConsoleConfig{
			Mode:   "auto",
			Source: "console",
			Author: "me",
		},
		Remote: RemoteConfig{
			Enabled: true,
			Address: "~/.seifmios/ctl.sock",
		},
		Store: StoreConfig{
			Path:        "~/.seifmios/lexicon.db",
			Autosave:    "@every 30m",
			LoadOnStart: true,
			SaveOnExit:  true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9233",
		},
		Transports: TransportsConfig{
			ReconnectDelay: 10 * time.Second,
			Server:         EndpointConfig{Address: "127.0.0.1:2933"},
			WebChat:        EndpointConfig{Address: "127.0.0.1:2934"},
			IRC:            ConnectorConfig{Config: "~/.seifmios/irc.yaml"},
			Discord:        ConnectorConfig{Config: "~/.seifmios/discord.yaml"},
			Telegram:       ConnectorConfig{Config: "~/.seifmios/telegram.yaml"},
			Slack:          ConnectorConfig{Config: "~/.seifmios/slack.yaml"},
			Redis:          ConnectorConfig{Config: "~/.seifmios/redis.yaml"},
		},
	}
}

// DefaultPath returns ~/.seifmios/config.yaml.
func DefaultPath() string {
	return expandPath("~/.seifmios/config.yaml")
}

// Load reads the configuration from the default location.
func Load() (*Config, error) {
	return LoadFromPath(DefaultPath())
}

// LoadFromPath reads the configuration from path, writing the defaults there
// first if the file does not exist yet.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

// Watch calls fn with the reloaded configuration every time the file at path
// is written. Reload failures are logged and skipped.
func Watch(path string, log *logging.Logger, fn func(*Config)) error {
	path = expandPath(path)
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			log.Warn("Ignoring config change in %s: %v", e.Name, err)
			return
		}
		log.Info("Reloaded config from %s", e.Name)
		fn(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: SEIFMIOS_ENGINE_CC_RATIO=0.3
	v.SetEnvPrefix("SEIFMIOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys missing from an older file fall back to the defaults.
	defaults := map[string]any{}
	if data, err := yaml.Marshal(Default()); err == nil {
		_ = yaml.Unmarshal(data, &defaults)
	}
	for key, value := range flatten("", defaults) {
		v.SetDefault(key, value)
	}
	return v
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.Remote.Address = expandPath(cfg.Remote.Address)
	cfg.Store.Path = expandPath(cfg.Store.Path)
	for _, c := range []*ConnectorConfig{&cfg.Transports.IRC, &cfg.Transports.Discord, &cfg.Transports.Telegram, &cfg.Transports.Slack, &cfg.Transports.Redis} {
		c.Config = expandPath(c.Config)
	}
	return &cfg, nil
}

// SaveToPath writes the configuration as YAML.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Engine.Params().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Engine.ThinkTimes < 0 {
		return fmt.Errorf("engine.think_times cannot be negative")
	}
	if c.Engine.ThinkPause < 0 {
		return fmt.Errorf("engine.think_pause cannot be negative")
	}
	if c.Engine.InboundBuffer < 0 {
		return fmt.Errorf("engine.inbound_buffer cannot be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validModes := map[string]bool{"auto": true, "tui": true, "plain": true, "off": true}
	if !validModes[c.Console.Mode] {
		return fmt.Errorf("invalid console mode '%s', must be one of: auto, tui, plain, off", c.Console.Mode)
	}
	if c.Console.Source == "" || c.Console.Author == "" {
		return fmt.Errorf("console.source and console.author cannot be empty")
	}

	if c.Remote.Enabled && c.Remote.Address == "" {
		return fmt.Errorf("remote.address cannot be empty when remote is enabled")
	}
	if c.Store.Autosave != "" {
		if _, err := cron.ParseStandard(c.Store.Autosave); err != nil {
			return fmt.Errorf("invalid store.autosave schedule '%s': %w", c.Store.Autosave, err)
		}
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address cannot be empty when metrics are enabled")
	}
	if c.Transports.ReconnectDelay <= 0 {
		return fmt.Errorf("transports.reconnect_delay must be positive")
	}
	return nil
}

// LoadYAML decodes a transport's own config file into out.
func LoadYAML(path string, out any) error {
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ExpandPath replaces a leading ~ with the home directory.
func ExpandPath(path string) string { return expandPath(path) }

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
