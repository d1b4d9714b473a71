package filter

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-milter"
	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/core"
)

// MilterFilter implements a milter that adds the decision headers, or tempfails
// greylisted messages when configured to
type MilterFilter struct {
	processor  *Processor
	logger     *zap.Logger
	listenAddr string
	server     *milter.Server
	tempfail   bool
	timeout    time.Duration
}

// NewMilterFilter creates a new Milter filter
func NewMilterFilter(
	processor *Processor,
	logger *zap.Logger,
	listenAddr string,
	tempfail bool,
	timeout time.Duration,
) *MilterFilter {
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	return &MilterFilter{
		processor:  processor,
		logger:     logger,
		listenAddr: listenAddr,
		tempfail:   tempfail,
		timeout:    timeout,
	}
}

// Start starts the Milter filter service
func (f *MilterFilter) Start() error {
	ln, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.listenAddr, err)
	}

	f.server = &milter.Server{
		NewMilter: func() milter.Milter {
			return f.newSession()
		},
		Actions: milter.OptAddHeader,
	}

	f.logger.Info("Milter filter started", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.Serve(ln); err != nil {
			f.logger.Debug("Milter server stopped", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Milter filter service
func (f *MilterFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessMessage returns the decision for msg
func (f *MilterFilter) ProcessMessage(ctx context.Context, msg *core.Message) (core.Decision, error) {
	return f.processor.Process(ctx, msg)
}

func (f *MilterFilter) newSession() *milterSession {
	return &milterSession{filter: f}
}

// milterSession holds the state of one milter connection
type milterSession struct {
	filter *MilterFilter

	hostname string
	addr     string

	sender  string
	headers []headerField
	body    []byte
}

// Connect records the client; postfix passes "[ip]" as the name when there is no rDNS
func (s *milterSession) Connect(host string, family string, _ uint16, addr net.IP, _ *milter.Modifier) (milter.Response, error) {
	if !strings.HasPrefix(host, "[") {
		s.hostname = host
	}
	if (family == "tcp4" || family == "tcp6") && addr != nil {
		s.addr = addr.String()
	}
	return milter.RespContinue, nil
}

func (s *milterSession) Helo(_ string, _ *milter.Modifier) (milter.Response, error) {
	return milter.RespContinue, nil
}

func (s *milterSession) MailFrom(from string, _ *milter.Modifier) (milter.Response, error) {
	s.reset()
	s.sender = envelopeAddress(from)
	return milter.RespContinue, nil
}

func (s *milterSession) RcptTo(_ string, _ *milter.Modifier) (milter.Response, error) {
	return milter.RespContinue, nil
}

func (s *milterSession) Header(name string, value string, _ *milter.Modifier) (milter.Response, error) {
	s.headers = append(s.headers, headerField{name: name, value: value})
	return milter.RespContinue, nil
}

func (s *milterSession) Headers(_ textproto.MIMEHeader, _ *milter.Modifier) (milter.Response, error) {
	return milter.RespContinue, nil
}

func (s *milterSession) BodyChunk(chunk []byte, _ *milter.Modifier) (milter.Response, error) {
	s.body = append(s.body, chunk...)
	return milter.RespContinue, nil
}

// Body runs at end of message and applies the decision
func (s *milterSession) Body(m *milter.Modifier) (milter.Response, error) {
	resp, fields := s.decide()
	for _, h := range fields {
		if err := m.AddHeader(h.name, h.value); err != nil {
			return nil, err
		}
	}
	s.reset()
	return resp, nil
}

func (s *milterSession) Abort(_ *milter.Modifier) error {
	s.reset()
	return nil
}

// decide returns the milter response and the headers to add
func (s *milterSession) decide() (milter.Response, []headerField) {
	ctx, cancel := context.WithTimeout(context.Background(), s.filter.timeout)
	defer cancel()

	decision, err := s.filter.processor.Process(ctx, &core.Message{
		Sender:         s.sender,
		ClientHostname: s.hostname,
		ClientAddr:     s.addr,
		Raw:            buildRaw(s.headers, s.body),
	})
	if err != nil {
		return milter.RespAccept, nil
	}

	if decision.Greylisted() && s.filter.tempfail {
		s.filter.logger.Info("Deferring greylisted message",
			zap.String("sender", s.sender),
			zap.String("reason", decision.Reason))
		return milter.RespTempFail, nil
	}

	return milter.RespAccept, s.filter.processor.decisionHeaders(decision)
}

func (s *milterSession) reset() {
	s.sender = ""
	s.headers = nil
	s.body = nil
}
