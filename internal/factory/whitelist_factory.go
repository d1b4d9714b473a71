package factory

import (
	"errors"

	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/config"
	"github.com/mikey/greylist-filter/internal/whitelist"
)

// NewWhitelistHolder creates the whitelist holder and loads the configured file. An
// empty path or a file that cannot be opened leaves the whitelist empty.
func NewWhitelistHolder(cfg *config.Config, logger *zap.Logger) (*whitelist.Holder, error) {
	h := whitelist.NewHolder(logger)
	path := cfg.GetGreylist().WhitelistFile
	if path == "" {
		return h, nil
	}
	if err := h.Reload(path); err != nil && !errors.Is(err, whitelist.ErrNotLoaded) {
		return nil, err
	}
	return h, nil
}
