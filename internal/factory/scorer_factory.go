package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/adapters/scorer"
	"github.com/mikey/greylist-filter/internal/config"
)

// ScorerFactory creates the message scorer based on configuration
type ScorerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewScorerFactory creates a new scorer factory
func NewScorerFactory(cfg *config.Config, logger *zap.Logger) *ScorerFactory {
	return &ScorerFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateScorer creates a scorer based on the configuration
func (f *ScorerFactory) CreateScorer() (scorer.Scorer, error) {
	sc := f.cfg.GetScorer()
	sig := f.cfg.GetSignals()

	switch sc.Type {
	case config.ScorerHeaders:
		return scorer.NewHeaderScorer(sig.StatusHeader, sig.FirstContactRule), nil
	case config.ScorerSpamc:
		return scorer.NewSpamcScorer(sc.SpamdAddress, sc.Timeout, sig.StatusHeader, sig.FirstContactRule, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported scorer type: %s", sc.Type)
	}
}
