package rewind

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

type (
	Config struct {
		Logger          *zap.Logger          `toml:"-" validate:"-"`
		MeterProvider   metric.MeterProvider `toml:"-" validate:"-"`
		Journal         JournalConfig        `toml:"journal"`
		HistoryLimit    int                  `toml:"history_limit" validate:"gte=0"`
		RetainSnapshots int                  `toml:"retain_snapshots" validate:"gte=0"`
		ConsumerBuffer  int                  `toml:"consumer_buffer" validate:"gte=0"`
		EnableMetrics   bool                 `toml:"enable_metrics"`
	}

	// JournalConfig bounds the JournalWorker. A zero SaveTimeout selects
	// DefaultJournalSaveTimeout
	JournalConfig struct {
		QueueSize   int           `toml:"queue_size" validate:"gt=0"`
		SaveTimeout time.Duration `toml:"save_timeout" validate:"gte=0"`
	}
)

const (
	DefaultHistoryLimit       = 0
	DefaultRetainSnapshots    = 16
	DefaultJournalQueueSize   = 1024
	DefaultJournalSaveTimeout = 30 * time.Second
)

var validate = validator.New()

func DefaultConfig() Config {
	return Config{
		Journal:         DefaultJournalConfig(),
		HistoryLimit:    DefaultHistoryLimit,
		RetainSnapshots: DefaultRetainSnapshots,
		ConsumerBuffer:  DefaultConsumerBuffer,
		EnableMetrics:   true,
	}
}

func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		QueueSize:   DefaultJournalQueueSize,
		SaveTimeout: DefaultJournalSaveTimeout,
	}
}

// LoadConfig decodes a TOML file over DefaultConfig and validates the
// result. Tables the Config does not describe are ignored
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the Config's constraints
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q",
				ErrInvalidConfig, verrs[0].Namespace(), verrs[0].Tag(),
			)
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
