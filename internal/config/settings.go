package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	ReceiptPolicyDefault = "default"
	ReceiptPolicyAlways  = "always"
	ReceiptPolicyNever   = "never"
)

// Settings is the small operator-editable blob consulted while writing
// contributions.
type Settings struct {
	ReceiptPolicy  string `mapstructure:"receipt_policy"`
	ForceRecurring bool   `mapstructure:"force_recurring"`
	// MembershipTypes maps a subscription description to a membership type code.
	MembershipTypes map[string]string `mapstructure:"membership_types"`
}

func DefaultSettings() Settings {
	return Settings{
		ReceiptPolicy:   ReceiptPolicyDefault,
		ForceRecurring:  false,
		MembershipTypes: map[string]string{},
	}
}

// ReceiptRequested resolves the receipt policy for a contribution.
func (s Settings) ReceiptRequested(isTest bool) bool {
	switch s.ReceiptPolicy {
	case ReceiptPolicyAlways:
		return true
	case ReceiptPolicyNever:
		return false
	default:
		return !isTest
	}
}

// MembershipTypeFor returns the membership type mapped to a subscription
// description.
func (s Settings) MembershipTypeFor(description string) (string, bool) {
	key := strings.TrimSpace(description)
	if key == "" {
		return "", false
	}
	for name, code := range s.MembershipTypes {
		if strings.EqualFold(strings.TrimSpace(name), key) {
			return code, true
		}
	}
	return "", false
}

type SettingsHolder struct {
	current atomic.Value // holds Settings
}

// NewStaticSettings returns a holder that never reloads.
func NewStaticSettings(s Settings) *SettingsHolder {
	holder := &SettingsHolder{}
	holder.current.Store(normalizeSettings(s))
	return holder
}

func NewSettingsHolder(cfg Config, log *zap.Logger) (*SettingsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.settings")

	v := viper.New()
	if cfg.SettingsPath != "" {
		v.SetConfigFile(cfg.SettingsPath)
	} else {
		v.SetConfigName("pledgesync")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/pledgesync")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PLEDGESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettings()
	v.SetDefault("settings.receipt_policy", defaults.ReceiptPolicy)
	v.SetDefault("settings.force_recurring", defaults.ForceRecurring)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		found = false
	}

	settings, err := decodeSettings(v)
	if err != nil {
		return nil, err
	}

	holder := &SettingsHolder{}
	holder.current.Store(settings)

	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSettings(v)
		if err != nil {
			log.Warn("settings reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("settings reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *SettingsHolder) Get() Settings {
	return h.current.Load().(Settings)
}

func decodeSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.UnmarshalKey("settings", &s); err != nil {
		return Settings{}, err
	}
	s = normalizeSettings(s)
	if err := validateSettings(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func normalizeSettings(s Settings) Settings {
	s.ReceiptPolicy = strings.ToLower(strings.TrimSpace(s.ReceiptPolicy))
	if s.ReceiptPolicy == "" {
		s.ReceiptPolicy = ReceiptPolicyDefault
	}
	if s.MembershipTypes == nil {
		s.MembershipTypes = map[string]string{}
	}
	return s
}

func validateSettings(s Settings) error {
	switch s.ReceiptPolicy {
	case ReceiptPolicyDefault, ReceiptPolicyAlways, ReceiptPolicyNever:
	default:
		return fmt.Errorf("settings.receipt_policy %q is not one of default, always, never", s.ReceiptPolicy)
	}
	return nil
}
