package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/adapters/filter"
	"github.com/mikey/greylist-filter/internal/adapters/scorer"
	"github.com/mikey/greylist-filter/internal/config"
	"github.com/mikey/greylist-filter/internal/core"
	"github.com/mikey/greylist-filter/internal/factory"
	"github.com/mikey/greylist-filter/internal/logging"
	"github.com/mikey/greylist-filter/internal/metrics"
	"github.com/mikey/greylist-filter/internal/ports"
	"github.com/mikey/greylist-filter/internal/utils"
	"github.com/mikey/greylist-filter/internal/whitelist"
)

// BuildContainer creates and configures a dependency injection container for the daemon
func BuildContainer(configFile string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return config.New(configFile)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.NewCollector); err != nil {
		return nil, err
	}
	if err := container.Provide(func(c *metrics.Collector) core.Metrics {
		return c
	}); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	return container, nil
}

// provideCommon registers everything from the store up to the email filter. The
// container must already provide *config.Config, *zap.Logger and core.Metrics.
func provideCommon(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewScorerFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return err
	}

	// Register store
	if err := container.Provide(func(f *factory.StoreFactory) (ports.GreylistStore, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(s ports.GreylistStore) core.KVStore {
		return s
	}); err != nil {
		return err
	}
	if err := container.Provide(core.NewReputationStore); err != nil {
		return err
	}
	if err := container.Provide(core.NewRecordStore); err != nil {
		return err
	}

	// Register whitelist
	if err := container.Provide(factory.NewWhitelistHolder); err != nil {
		return err
	}
	if err := container.Provide(func(h *whitelist.Holder) core.WhitelistMatcher {
		return h
	}); err != nil {
		return err
	}

	// Register decision engine
	if err := container.Provide(func(cfg *config.Config) core.EngineConfig {
		return cfg.GetEngine()
	}); err != nil {
		return err
	}
	if err := container.Provide(core.NewEngine); err != nil {
		return err
	}
	if err := container.Provide(func(e *core.Engine) ports.DecisionEngine {
		return e
	}); err != nil {
		return err
	}

	// Register scorer
	if err := container.Provide(func(f *factory.ScorerFactory) (scorer.Scorer, error) {
		return f.CreateScorer()
	}); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(logger *zap.Logger) *utils.TextProcessor {
		return utils.NewTextProcessor(logger)
	}); err != nil {
		return err
	}

	// Register message processor
	if err := container.Provide(factory.HeaderNames); err != nil {
		return err
	}
	if err := container.Provide(filter.NewProcessor); err != nil {
		return err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return err
	}

	return nil
}
