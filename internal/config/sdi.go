package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SDIConfig tunes the transmission pipeline: active channel, retry
// policy, and the buyer-outcome deadline after which delivery is
// deemed accepted.
type SDIConfig struct {
	Channel              string             `mapstructure:"channel"`
	SubmitTimeoutSeconds int                `mapstructure:"submitTimeoutSeconds"`
	OutcomeDeadlineDays  int                `mapstructure:"outcomeDeadlineDays"`
	Retry                SDIRetryConfig     `mapstructure:"retry"`
	Channels             []SDIChannelConfig `mapstructure:"channels"`
}

type SDIRetryConfig struct {
	MaxAttempts         int     `mapstructure:"maxAttempts"`
	InitialDelaySeconds int     `mapstructure:"initialDelaySeconds"`
	Multiplier          float64 `mapstructure:"multiplier"`
	MaxDelaySeconds     int     `mapstructure:"maxDelaySeconds"`
}

// SDIChannelConfig carries per-channel options; keys depend on the
// channel implementation (endpoint, apiKey, script).
type SDIChannelConfig struct {
	Code    string            `mapstructure:"code"`
	Options map[string]string `mapstructure:"options"`
}

func DefaultSDIConfig() SDIConfig {
	return SDIConfig{
		Channel:              "mock",
		SubmitTimeoutSeconds: 30,
		OutcomeDeadlineDays:  15,
		Retry: SDIRetryConfig{
			MaxAttempts:         3,
			InitialDelaySeconds: 5,
			Multiplier:          2,
			MaxDelaySeconds:     60,
		},
		Channels: []SDIChannelConfig{
			{Code: "mock", Options: map[string]string{"script": "accept"}},
		},
	}
}

// ChannelOptions returns the options block for a channel code.
func (c SDIConfig) ChannelOptions(code string) map[string]string {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, channel := range c.Channels {
		if strings.ToLower(strings.TrimSpace(channel.Code)) == code {
			return channel.Options
		}
	}
	return nil
}

type SDIConfigHolder struct {
	current atomic.Value // holds SDIConfig
}

func NewSDIConfigHolder() (*SDIConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("sdi")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/scambio/config") // Volume-mounted config
	v.AddConfigPath("/etc/scambio")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("SCAMBIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		defaults := DefaultSDIConfig()
		v.SetDefault("sdi.channel", defaults.Channel)
		v.SetDefault("sdi.submitTimeoutSeconds", defaults.SubmitTimeoutSeconds)
		v.SetDefault("sdi.outcomeDeadlineDays", defaults.OutcomeDeadlineDays)
		v.SetDefault("sdi.retry", defaults.Retry)
		v.SetDefault("sdi.channels", defaults.Channels)
	}

	var cfg SDIConfig
	if err := v.UnmarshalKey("sdi", &cfg); err != nil {
		return nil, err
	}
	if err := validateSDIConfig(cfg); err != nil {
		return nil, err
	}

	holder := &SDIConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SDIConfig
		if err := v.UnmarshalKey("sdi", &updated); err != nil {
			log.Printf("[sdi-config] reload failed: %v", err)
			return
		}
		if err := validateSDIConfig(updated); err != nil {
			log.Printf("[sdi-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[sdi-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SDIConfigHolder) Get() SDIConfig {
	return h.current.Load().(SDIConfig)
}

// NewStaticSDIConfigHolder wraps a fixed config with no file watching.
func NewStaticSDIConfigHolder(cfg SDIConfig) *SDIConfigHolder {
	holder := &SDIConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateSDIConfig(cfg SDIConfig) error {
	if strings.TrimSpace(cfg.Channel) == "" {
		return errors.New("sdi.channel cannot be empty")
	}
	if cfg.SubmitTimeoutSeconds <= 0 {
		return errors.New("sdi.submitTimeoutSeconds must be positive")
	}
	if cfg.OutcomeDeadlineDays <= 0 {
		return errors.New("sdi.outcomeDeadlineDays must be positive")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("sdi.retry.maxAttempts must be at least 1")
	}
	if cfg.Retry.InitialDelaySeconds < 0 || cfg.Retry.MaxDelaySeconds < 0 {
		return errors.New("sdi.retry delays cannot be negative")
	}
	if cfg.Retry.Multiplier < 1 {
		return errors.New("sdi.retry.multiplier must be at least 1")
	}
	return nil
}
