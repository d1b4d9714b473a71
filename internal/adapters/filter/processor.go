package filter

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/adapters/scorer"
	"github.com/mikey/greylist-filter/internal/core"
	"github.com/mikey/greylist-filter/internal/ports"
	"github.com/mikey/greylist-filter/internal/utils"
)

// defaultProcessTimeout bounds scoring and deciding one message
const defaultProcessTimeout = 30 * time.Second

// HeaderNames are the headers a filter writes the decision into
type HeaderNames struct {
	Flag   string
	Reason string
}

// Processor turns a message into a SignalSet, asks the engine for a decision and
// renders it as headers. It is shared by every host integration.
type Processor struct {
	engine  ports.DecisionEngine
	scorer  scorer.Scorer
	text    *utils.TextProcessor
	headers HeaderNames
	logger  *zap.Logger
}

// NewProcessor creates a new message processor
func NewProcessor(
	engine ports.DecisionEngine,
	sc scorer.Scorer,
	text *utils.TextProcessor,
	headers HeaderNames,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		engine:  engine,
		scorer:  sc,
		text:    text,
		headers: headers,
		logger:  logger,
	}
}

// Process scores msg and returns the engine's decision. Errors mean the message could
// not be scored; the engine was not consulted.
func (p *Processor) Process(ctx context.Context, msg *core.Message) (core.Decision, error) {
	processingID := uuid.NewString()
	logger := p.logger.With(zap.String("processing_id", processingID))

	signals, err := p.Signals(ctx, msg)
	if err != nil {
		logger.Warn("Failed to score message",
			zap.String("sender", msg.Sender),
			zap.Error(err))
		return core.Decision{}, err
	}

	decision := p.engine.Decide(ctx, signals)

	logger.Info("Processed message",
		zap.String("sender", signals.SenderAddress),
		zap.Strings("recipients", msg.Recipients),
		zap.String("ip", signals.SourceHost),
		zap.String("hostname", signals.SourceHostname),
		zap.String("key", core.GreylistKey(signals)),
		zap.Int("value", decision.Value),
		zap.String("reason", decision.Reason))

	return decision, nil
}

// Signals builds the SignalSet for msg. Client details reported by the mail system win
// over the topmost Received header.
func (p *Processor) Signals(ctx context.Context, msg *core.Message) (*core.SignalSet, error) {
	hdr, err := readHeader(msg.Raw)
	if err != nil {
		return nil, err
	}

	score, err := p.scorer.Score(ctx, msg.Raw, hdr)
	if err != nil {
		return nil, fmt.Errorf("failed to score message: %w", err)
	}

	sender := msg.Sender
	if sender == "" {
		sender = hdr.Get("Return-Path")
	}

	hostname, addr := msg.ClientHostname, msg.ClientAddr
	if addr == "" {
		if h, a, ok := scorer.ClientFromHeaders(hdr); ok {
			hostname, addr = h, a.String()
		}
	}
	if addr == "" {
		return nil, fmt.Errorf("no client address for message from %q", msg.Sender)
	}
	if a, err := netip.ParseAddr(strings.Trim(addr, "[]")); err == nil {
		addr = a.Unmap().String()
	}

	return &core.SignalSet{
		FirstContact:   score.FirstContact,
		SenderAddress:  envelopeAddress(sender),
		SourceHost:     addr,
		SourceHostname: strings.TrimSuffix(hostname, "."),
		CurrentScore:   score.Score,
		RequiredScore:  score.Required,
	}, nil
}

// decisionHeaders renders d as the flag and reason header fields
func (p *Processor) decisionHeaders(d core.Decision) []headerField {
	fields := []headerField{{name: p.headers.Flag, value: fmt.Sprintf("%d", d.Value)}}
	if d.Reason != "" {
		fields = append(fields, headerField{
			name:  p.headers.Reason,
			value: p.text.HeaderValue(d.Reason, utils.DefaultHeaderValueSize),
		})
	}
	return fields
}
