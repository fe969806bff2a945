package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// WebhookConfig tunes webhook ingestion. It is hot-reloadable.
type WebhookConfig struct {
	SignatureTolerance time.Duration
	StoreTimeout       time.Duration
	MaxConflictRetries int
	AckCacheTTL        time.Duration
}

func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		SignatureTolerance: 5 * time.Minute,
		StoreTimeout:       5 * time.Second,
		MaxConflictRetries: 3,
		AckCacheTTL:        24 * time.Hour,
	}
}

type WebhookConfigHolder struct {
	current atomic.Value // holds WebhookConfig
}

// NewStaticWebhookConfigHolder returns a holder that never reloads.
func NewStaticWebhookConfigHolder(cfg WebhookConfig) *WebhookConfigHolder {
	holder := &WebhookConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewWebhookConfigHolder(log *zap.Logger) (*WebhookConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.webhook")

	v := viper.New()
	v.SetConfigName("webhook")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/payflow")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultWebhookConfig()
	v.SetDefault("webhook.signatureTolerance", defaults.SignatureTolerance)
	v.SetDefault("webhook.storeTimeout", defaults.StoreTimeout)
	v.SetDefault("webhook.maxConflictRetries", defaults.MaxConflictRetries)
	v.SetDefault("webhook.ackCacheTTL", defaults.AckCacheTTL)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg := readWebhookConfig(v)
	if err := ValidateWebhookConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticWebhookConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := readWebhookConfig(v)
		if err := holder.Store(updated); err != nil {
			log.Warn("invalid config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		log.Info("reloaded",
			zap.String("file", e.Name),
			zap.Duration("signature_tolerance", updated.SignatureTolerance),
		)
	})

	return holder, nil
}

// readWebhookConfig reads key by key so file values, PAYFLOW_WEBHOOK_* env
// overrides and defaults all apply.
func readWebhookConfig(v *viper.Viper) WebhookConfig {
	return WebhookConfig{
		SignatureTolerance: v.GetDuration("webhook.signatureTolerance"),
		StoreTimeout:       v.GetDuration("webhook.storeTimeout"),
		MaxConflictRetries: v.GetInt("webhook.maxConflictRetries"),
		AckCacheTTL:        v.GetDuration("webhook.ackCacheTTL"),
	}
}

func (h *WebhookConfigHolder) Get() WebhookConfig {
	if h == nil {
		return DefaultWebhookConfig()
	}
	cfg, ok := h.current.Load().(WebhookConfig)
	if !ok {
		return DefaultWebhookConfig()
	}
	return cfg
}

// Store validates cfg and swaps it in; readers see it on their next Get.
func (h *WebhookConfigHolder) Store(cfg WebhookConfig) error {
	if err := ValidateWebhookConfig(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

func ValidateWebhookConfig(cfg WebhookConfig) error {
	if cfg.SignatureTolerance <= 0 {
		return errors.New("webhook.signatureTolerance must be positive")
	}
	if cfg.StoreTimeout <= 0 {
		return errors.New("webhook.storeTimeout must be positive")
	}
	if cfg.MaxConflictRetries < 0 || cfg.MaxConflictRetries > 10 {
		return errors.New("webhook.maxConflictRetries must be between 0 and 10")
	}
	if cfg.AckCacheTTL < 0 {
		return errors.New("webhook.ackCacheTTL cannot be negative")
	}
	return nil
}
