package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AlertingConfig routes operator alerts such as disputes and amount mismatches.
// It is reloaded from alerting.yml without a restart.
type AlertingConfig struct {
	AdminEmails  []string `mapstructure:"adminEmails"`
	SlackChannel string   `mapstructure:"slackChannel"`
	// OperatorEmails turns off alert emails when false; Slack still fires.
	OperatorEmails bool `mapstructure:"operatorEmails"`
}

func DefaultAlertingConfig(adminEmail string) AlertingConfig {
	cfg := AlertingConfig{
		SlackChannel:   "#payments-ops",
		OperatorEmails: true,
	}
	if adminEmail = strings.TrimSpace(adminEmail); adminEmail != "" {
		cfg.AdminEmails = []string{adminEmail}
	}
	return cfg
}

type AlertingConfigHolder struct {
	current atomic.Value // holds AlertingConfig
}

// NewStaticAlertingHolder returns a holder that never reloads. Used by tests
// and the CLI.
func NewStaticAlertingHolder(cfg AlertingConfig) *AlertingConfigHolder {
	holder := &AlertingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewAlertingConfigHolder(appCfg Config) (*AlertingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("alerting")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/payrecon/config")
	v.AddConfigPath("/etc/payrecon")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYRECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAlertingConfig(appCfg.AdminEmail)
	v.SetDefault("alerting.adminEmails", defaults.AdminEmails)
	v.SetDefault("alerting.slackChannel", defaults.SlackChannel)
	v.SetDefault("alerting.operatorEmails", defaults.OperatorEmails)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg AlertingConfig
	if err := v.UnmarshalKey("alerting", &cfg); err != nil {
		return nil, err
	}
	if err := validateAlertingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticAlertingHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AlertingConfig
		if err := v.UnmarshalKey("alerting", &updated); err != nil {
			log.Printf("[alerting-config] reload failed: %v", err)
			return
		}
		if err := validateAlertingConfig(updated); err != nil {
			log.Printf("[alerting-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[alerting-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *AlertingConfigHolder) Get() AlertingConfig {
	return h.current.Load().(AlertingConfig)
}

func validateAlertingConfig(cfg AlertingConfig) error {
	for _, email := range cfg.AdminEmails {
		if !strings.Contains(email, "@") {
			return errors.New("alerting.adminEmails contains an invalid address")
		}
	}
	if cfg.SlackChannel != "" && !strings.HasPrefix(cfg.SlackChannel, "#") && !strings.HasPrefix(cfg.SlackChannel, "C") {
		return errors.New("alerting.slackChannel must be a #channel name or channel id")
	}
	return nil
}
