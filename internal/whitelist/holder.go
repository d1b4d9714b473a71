package whitelist

import (
	"net/netip"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/core"
)

// Holder publishes the current whitelist set. Reloads swap the whole set at once, so
// concurrent readers see either the old or the new list, never a mix.
type Holder struct {
	current atomic.Pointer[Set]
	logger  *zap.Logger
}

// NewHolder creates a holder with an empty set
func NewHolder(logger *zap.Logger) *Holder {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Holder{logger: logger}
	h.current.Store(&Set{})
	return h
}

// Current returns the active set
func (h *Holder) Current() *Set {
	return h.current.Load()
}

// Replace installs set as the active set
func (h *Holder) Replace(set *Set) {
	if set == nil {
		set = &Set{}
	}
	h.current.Store(set)
}

// Reload loads path and installs it. On failure the active set is left unchanged.
func (h *Holder) Reload(path string) error {
	set, err := LoadFile(path, h.logger)
	if err != nil {
		return err
	}
	h.Replace(set)
	return nil
}

// MatchHost implements core.WhitelistMatcher
func (h *Holder) MatchHost(hostname string) (core.WhitelistEntry, bool) {
	return h.Current().MatchHost(hostname)
}

// MatchIP implements core.WhitelistMatcher
func (h *Holder) MatchIP(addr netip.Addr) (core.WhitelistEntry, bool) {
	return h.Current().MatchIP(addr)
}
