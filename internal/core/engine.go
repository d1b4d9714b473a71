package core

import (
	"context"
	"net/netip"
	"strings"

	"go.uber.org/zap"
)

// notSpamFactor scales the required score below which a message is considered clean
const notSpamFactor = 0.5

// Engine combines greylist records, host reputation and the static whitelist into a
// greylisting decision. It holds no mutable state of its own and is safe for concurrent use.
type Engine struct {
	cfg        EngineConfig
	reputation *ReputationStore
	records    *RecordStore
	whitelist  WhitelistMatcher
	logger     *zap.Logger
	metrics    Metrics
}

// NewEngine creates a new decision engine
func NewEngine(
	cfg EngineConfig,
	reputation *ReputationStore,
	records *RecordStore,
	whitelist WhitelistMatcher,
	logger *zap.Logger,
	metrics Metrics,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Engine{
		cfg:        cfg,
		reputation: reputation,
		records:    records,
		whitelist:  whitelist,
		logger:     logger,
		metrics:    metrics,
	}
}

// Decide returns the greylisting decision for one message. It never fails: store
// problems degrade to not greylisting the message.
func (e *Engine) Decide(ctx context.Context, signals *SignalSet) Decision {
	var d Decision
	if signals.FirstContact {
		d = e.firstContact(ctx, signals)
	} else {
		d = e.retry(ctx, signals)
	}

	e.metrics.ObserveDecision(d)
	e.logger.Debug("Greylist decision",
		zap.Bool("first_contact", signals.FirstContact),
		zap.String("sender", signals.SenderAddress),
		zap.String("ip", signals.SourceHost),
		zap.String("hostname", signals.SourceHostname),
		zap.Float64("score", signals.CurrentScore),
		zap.Float64("required", signals.RequiredScore),
		zap.Int("value", d.Value),
		zap.String("reason", d.Reason))

	return d
}

func (e *Engine) firstContact(ctx context.Context, s *SignalSet) Decision {
	// Mail that already looks legitimate is not delayed
	if s.CurrentScore < s.RequiredScore*notSpamFactor {
		return Decision{Value: 0, Reason: ReasonNotSpam}
	}

	sctx, cancel := e.storeContext(ctx)
	count, err := e.reputation.Count(sctx, s.SourceHost)
	cancel()
	if err != nil {
		e.storeFailure("get", ReputationKey(s.SourceHost), err)
		return Decision{Value: 0, Reason: ReasonStoreUnavailable, Skipped: true}
	}
	if count > e.cfg.ReputationThreshold {
		return Decision{Value: 0, Reason: ReasonReputable}
	}

	if entry, ok := e.whitelisted(s); ok {
		e.logger.Debug("Whitelist entry matched",
			zap.String("entry", entry.String()),
			zap.String("ip", s.SourceHost),
			zap.String("hostname", s.SourceHostname))
		return Decision{Value: 0, Reason: entry.String() + triggeredSuffix}
	}

	key := GreylistKey(s)
	sctx, cancel = e.storeContext(ctx)
	err = e.records.BeginWindow(sctx, key, e.cfg.GreylistWindow)
	cancel()
	if err != nil {
		e.storeFailure("set", key, err)
		return Decision{Value: 0, Reason: ReasonStoreUnavailable, Skipped: true}
	}

	return Decision{Value: 1}
}

// retry handles a redelivery. When the reputation counter cannot be read the increment
// is skipped: writing 1 would wipe an established counter after a transient store error,
// and losing one success is the cheaper mistake.
func (e *Engine) retry(ctx context.Context, s *SignalSet) Decision {
	key := GreylistKey(s)

	sctx, cancel := e.storeContext(ctx)
	active, err := e.records.IsActive(sctx, key)
	cancel()
	if err != nil {
		// An unreadable record is treated as expired
		e.storeFailure("get", key, err)
		active = false
	}
	if active {
		return Decision{Value: 1, Reason: ReasonNotExpired}
	}

	sctx, cancel = e.storeContext(ctx)
	defer cancel()

	count, err := e.reputation.Count(sctx, s.SourceHost)
	if err != nil {
		// Leave the stored counter alone
		e.storeFailure("get", ReputationKey(s.SourceHost), err)
		return Decision{Value: 0, Reason: ReasonElapsed}
	}
	if err := e.reputation.RecordSuccess(sctx, s.SourceHost, count, e.cfg.RecordLifetime); err != nil {
		e.storeFailure("set", ReputationKey(s.SourceHost), err)
	}

	return Decision{Value: 0, Reason: ReasonElapsed}
}

// whitelisted checks hostname entries first, then network entries. Hostname entries are
// consulted even when the client has no reverse DNS, so a pattern such as /^$/ can
// whitelist those clients.
func (e *Engine) whitelisted(s *SignalSet) (WhitelistEntry, bool) {
	if e.whitelist == nil {
		return nil, false
	}

	if entry, ok := e.whitelist.MatchHost(s.SourceHostname); ok {
		return entry, true
	}

	addr, err := netip.ParseAddr(strings.Trim(s.SourceHost, "[]"))
	if err != nil {
		return nil, false
	}
	return e.whitelist.MatchIP(addr)
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

func (e *Engine) storeFailure(op, key string, err error) {
	e.metrics.ObserveStoreError(op)
	e.logger.Warn("Greylist store failure",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err))
}
