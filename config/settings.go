package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings is the runtime configuration of the datahub binary. It is read
// from datahub.yaml, DATAHUB_* environment variables and command flags.
type Settings struct {
	Log     LogSettings
	Store   StoreSettings
	Flows   FlowsSettings
	Run     RunSettings
	Metrics MetricsSettings
}

// LogSettings configures the logger
type LogSettings struct {
	Format string // json or text
	Level  string // none, debug, info, warn, error
}

// StoreSettings selects the document store backend
type StoreSettings struct {
	Engine         string // memory, sqlite or mongo
	URI            string
	Database       string // mongo only
	ConnectTimeout time.Duration
}

// FlowsSettings locates the flow definitions
type FlowsSettings struct {
	Dir string
}

// RunSettings are the defaults of a flow run
type RunSettings struct {
	BatchSize   int
	ThreadCount int
	RunTrace    bool
}

// MetricsSettings configures the prometheus endpoint
type MetricsSettings struct {
	Enabled bool
	Addr    string
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() *Settings {
	return &Settings{
		Log: LogSettings{
			Format: "text",
			Level:  "info",
		},
		Store: StoreSettings{
			Engine:         "memory",
			Database:       "datahub",
			ConnectTimeout: 5 * time.Second,
		},
		Flows: FlowsSettings{
			Dir: "flows",
		},
		Run: RunSettings{
			BatchSize:   100,
			ThreadCount: 4,
			RunTrace:    true,
		},
		Metrics: MetricsSettings{
			Enabled: false,
			Addr:    "0.0.0.0:2112",
		},
	}
}

// ReadSettings returns the defaults overridden by what v holds. A missing
// config file is not an error.
func ReadSettings(v *viper.Viper) (*Settings, error) {
	settings := DefaultSettings()

	v.SetTypeByDefaultValue(true)
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return settings, nil
}

// Verify checks the settings for inconsistencies
func (s *Settings) Verify() error {
	switch s.Store.Engine {
	case "memory":
	case "sqlite", "mongo":
		if s.Store.URI == "" {
			return fmt.Errorf("store uri is required for the %s engine", s.Store.Engine)
		}
	default:
		return fmt.Errorf("unknown store engine: %q", s.Store.Engine)
	}
	if s.Run.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", s.Run.BatchSize)
	}
	if s.Run.ThreadCount < 1 {
		return fmt.Errorf("thread count must be at least 1, got %d", s.Run.ThreadCount)
	}
	return nil
}
