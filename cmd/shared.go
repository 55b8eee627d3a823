package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/simon020286/go-datahub"
	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/logger"
	"github.com/simon020286/go-datahub/store"
	"github.com/simon020286/go-datahub/store/memory"
	"github.com/simon020286/go-datahub/store/mongo"
	"github.com/simon020286/go-datahub/store/sqlite"
)

// hub bundles what the commands need once settings are read
type hub struct {
	settings *config.Settings
	logger   logger.Logger
	stores   store.Stores
	manager  *datahub.FlowManager
	close    func() error
}

func readSettings() (*config.Settings, error) {
	settings, err := config.ReadSettings(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := settings.Verify(); err != nil {
		return nil, err
	}
	return settings, nil
}

// openHub reads the settings, connects the stores and creates the flow manager.
// Flow definitions are loaded when loadFlows is set.
func openHub(ctx context.Context, loadFlows bool) (*hub, error) {
	settings, err := readSettings()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(settings.Log.Format, settings.Log.Level)
	if err != nil {
		return nil, err
	}

	stores, closer, err := openStores(ctx, settings, log)
	if err != nil {
		return nil, err
	}

	manager, err := datahub.NewFlowManager(stores, datahub.WithLogger(log))
	if err != nil {
		_ = closer()
		return nil, err
	}
	if loadFlows {
		if err := manager.LoadFlows(settings.Flows.Dir); err != nil {
			_ = closer()
			return nil, err
		}
	}

	return &hub{
		settings: settings,
		logger:   log,
		stores:   stores,
		manager:  manager,
		close: func() error {
			err := closer()
			_ = log.Sync()
			return err
		},
	}, nil
}

func openStores(ctx context.Context, settings *config.Settings, log logger.Logger) (store.Stores, func() error, error) {
	switch settings.Store.Engine {
	case "memory":
		log.Info("using 'memory' document store engine")
		stores := memory.NewStores()
		return stores, stores.Close, nil
	case "sqlite":
		ds, err := sqlite.New(settings.Store.URI, &sqlite.Config{
			Logger:        log,
			ExportMetrics: settings.Metrics.Enabled,
		})
		if err != nil {
			return store.Stores{}, nil, fmt.Errorf("initialize sqlite datastore: %w", err)
		}
		log.Info("using 'sqlite' document store engine")
		return ds.Stores(), ds.Close, nil
	case "mongo":
		client, err := mongo.Connect(ctx, mongo.Config{
			URI:            settings.Store.URI,
			Database:       settings.Store.Database,
			ConnectTimeout: settings.Store.ConnectTimeout,
			Logger:         log,
		})
		if err != nil {
			return store.Stores{}, nil, fmt.Errorf("initialize mongo datastore: %w", err)
		}
		log.Info("using 'mongo' document store engine", zap.String("database", settings.Store.Database))
		return client.Stores(), func() error {
			return client.Close(context.Background())
		}, nil
	default:
		return store.Stores{}, nil, fmt.Errorf("storage engine '%s' is unsupported", settings.Store.Engine)
	}
}

// storeByName returns one of the three logical stores
func storeByName(stores store.Stores, name string) (store.DocumentStore, error) {
	switch name {
	case store.StagingName:
		return stores.Staging, nil
	case store.FinalName:
		return stores.Final, nil
	case store.TraceName:
		return stores.Trace, nil
	default:
		return nil, fmt.Errorf("unknown store %q, expected staging, final or trace", name)
	}
}
