package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/report"
	"github.com/bobmcallan/growthfund/internal/router"
	"github.com/bobmcallan/growthfund/internal/services/build"
	"github.com/bobmcallan/growthfund/internal/services/quarterly"
	"github.com/bobmcallan/growthfund/internal/storage/cachefs"
)

// App holds the initialized storage, provider router and services.
// It is the shared core used by every cmd/growthfund command.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Store       *cachefs.Store
	Router      *router.Router
	Writer      *report.Writer
	Builder     *build.Service
	Updater     *quarterly.Service
	StartupTime time.Time

	scheduler *Scheduler
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: the given path, GROWTHFUND_CONFIG,
// growthfund.toml next to the binary, then config/growthfund.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("GROWTHFUND_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "growthfund.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/growthfund.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp loads configuration and initializes all services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewAppWithConfig(config, common.NewLoggerFromConfig(config.Logging))
}

// NewAppWithConfig initializes services from an already loaded config.
// Router options replace the default provider registrations in tests.
func NewAppWithConfig(config *common.Config, logger *common.Logger, opts ...router.Option) (*App, error) {
	startupStart := time.Now()
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	if problems := config.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrConfiguration, strings.Join(problems, "; "))
	}

	store, err := cachefs.NewStore(logger, config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	rt := router.New(config, logger, opts...)
	writer := report.NewWriter(config.Output.Path, logger)

	a := &App{
		Config:      config,
		Logger:      logger,
		Store:       store,
		Router:      rt,
		Writer:      writer,
		Builder:     build.NewService(config, rt, store, store, writer, logger),
		Updater:     quarterly.NewService(config, rt, store, writer, logger),
		StartupTime: startupStart,
	}

	logger.Info().
		Strs("providers", rt.Names()).
		Str("cache", store.DataPath()).
		Str("output", writer.Root()).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// StartScheduler registers the quarterly update job and starts it. The
// scheduler stops when ctx is cancelled or the App is closed.
func (a *App) StartScheduler(ctx context.Context) (*Scheduler, error) {
	s, err := NewScheduler(a.Config.Scheduler.Spec, a.Config.Scheduler.Markets, a.Updater, a.Logger)
	if err != nil {
		return nil, err
	}
	s.Start(ctx)
	a.scheduler = s
	return s, nil
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
}
