package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/adapters/filter"
	"github.com/mikey/greylist-filter/internal/config"
	"github.com/mikey/greylist-filter/internal/ports"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg       *config.Config
	logger    *zap.Logger
	processor *filter.Processor
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, processor *filter.Processor) *FilterFactory {
	return &FilterFactory{
		cfg:       cfg,
		logger:    logger,
		processor: processor,
	}
}

// CreateEmailFilter creates an email filter based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	srv := f.cfg.GetServer()

	switch srv.FilterType {
	case "postfix":
		return filter.NewPostfixFilter(
			f.processor,
			f.logger,
			srv.ListenAddress,
			srv.Tempfail,
			srv.PostfixAddress,
			srv.PostfixPort,
			srv.PostfixEnabled,
			srv.Timeout,
		), nil
	case "milter":
		return filter.NewMilterFilter(
			f.processor,
			f.logger,
			srv.ListenAddress,
			srv.Tempfail,
			srv.Timeout,
		), nil
	case "cli":
		return filter.NewCliFilter(
			f.processor,
			f.logger,
			f.cfg.GetBool("cli.verbose"),
		)
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", srv.FilterType)
	}
}

// HeaderNames returns the configured decision header names
func HeaderNames(cfg *config.Config) filter.HeaderNames {
	srv := cfg.GetServer()
	return filter.HeaderNames{
		Flag:   srv.FlagHeader,
		Reason: srv.ReasonHeader,
	}
}
