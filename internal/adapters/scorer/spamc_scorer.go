package scorer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"time"

	"github.com/teamwork/spamc"
	"go.uber.org/zap"
)

// spamdClient is the part of spamc.Client the scorer needs
type spamdClient interface {
	Symbols(ctx context.Context, msg io.Reader, hdr spamc.Header) (*spamc.ResponseSymbols, error)
	Ping(ctx context.Context) error
}

// SpamcScorer trusts a status header when the message already has one, and otherwise
// asks spamd for the score and the list of rules that hit
type SpamcScorer struct {
	client           spamdClient
	headers          *HeaderScorer
	firstContactRule string
	logger           *zap.Logger
}

// NewSpamcScorer creates a scorer talking to spamd at addr
func NewSpamcScorer(addr string, timeout time.Duration, statusHeader, firstContactRule string, logger *zap.Logger) *SpamcScorer {
	client := spamc.New(addr, &net.Dialer{
		Timeout: timeout,
	})
	return newSpamcScorer(client, statusHeader, firstContactRule, logger)
}

func newSpamcScorer(client spamdClient, statusHeader, firstContactRule string, logger *zap.Logger) *SpamcScorer {
	return &SpamcScorer{
		client:           client,
		headers:          NewHeaderScorer(statusHeader, firstContactRule),
		firstContactRule: firstContactRule,
		logger:           logger,
	}
}

// Ping checks that spamd answers
func (s *SpamcScorer) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("could not ping spamd: %w", err)
	}
	return nil
}

// Score implements Scorer
func (s *SpamcScorer) Score(ctx context.Context, raw []byte, hdr textproto.MIMEHeader) (*Score, error) {
	score, err := s.headers.Score(ctx, raw, hdr)
	if err == nil {
		return score, nil
	}
	if !errors.Is(err, ErrNoStatus) {
		return nil, err
	}

	resp, err := s.client.Symbols(ctx, bytes.NewReader(raw), nil)
	if err != nil {
		return nil, fmt.Errorf("could not check message with spamd: %w", err)
	}

	s.logger.Debug("Scored message with spamd",
		zap.Float64("score", resp.Score),
		zap.Float64("required", resp.BaseScore),
		zap.Strings("symbols", resp.Symbols))

	return &Score{
		Score:        resp.Score,
		Required:     resp.BaseScore,
		Tests:        resp.Symbols,
		FirstContact: hasRule(resp.Symbols, s.firstContactRule),
	}, nil
}
