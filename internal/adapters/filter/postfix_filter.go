package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/core"
)

// errGreylisted is returned to postfix so the client retries later
var errGreylisted = &smtp.SMTPError{
	Code:         451,
	EnhancedCode: smtp.EnhancedCode{4, 7, 1},
	Message:      "Greylisted, please try again later",
}

// PostfixFilter implements a Postfix after-queue content filter. Messages arrive over
// SMTP, get the decision headers prepended and are handed back to Postfix.
type PostfixFilter struct {
	processor      *Processor
	logger         *zap.Logger
	listenAddr     string
	server         *smtp.Server
	tempfail       bool
	postfixAddr    string
	postfixPort    int
	postfixEnabled bool
	timeout        time.Duration

	// deliver re-injects a processed message
	deliver func(sender string, recipients []string, data []byte) error
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	processor *Processor,
	logger *zap.Logger,
	listenAddr string,
	tempfail bool,
	postfixAddr string,
	postfixPort int,
	postfixEnabled bool,
	timeout time.Duration,
) *PostfixFilter {
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	f := &PostfixFilter{
		processor:      processor,
		logger:         logger,
		listenAddr:     listenAddr,
		tempfail:       tempfail,
		postfixAddr:    postfixAddr,
		postfixPort:    postfixPort,
		postfixEnabled: postfixEnabled,
		timeout:        timeout,
	}
	f.deliver = f.sendToPostfix
	return f
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	ln, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.listenAddr, err)
	}
	f.serve(ln)
	return nil
}

func (f *PostfixFilter) serve(ln net.Listener) {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = ln.Addr().String()
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	f.server.MaxRecipients = 1000

	f.logger.Info("Postfix filter started", zap.String("address", f.server.Addr))

	go func() {
		if err := f.server.Serve(ln); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessMessage returns the decision for msg without delivering it
func (f *PostfixFilter) ProcessMessage(ctx context.Context, msg *core.Message) (core.Decision, error) {
	return f.processor.Process(ctx, msg)
}

// handle decides on one message and either rejects it or re-injects it with the
// decision headers. Messages that cannot be scored are re-injected unchanged.
func (f *PostfixFilter) handle(ctx context.Context, msg *core.Message) error {
	data := msg.Raw

	decision, err := f.processor.Process(ctx, msg)
	if err == nil {
		if decision.Greylisted() && f.tempfail {
			f.logger.Info("Deferring greylisted message",
				zap.String("sender", msg.Sender),
				zap.String("reason", decision.Reason))
			return errGreylisted
		}
		data = prependHeaders(msg.Raw, f.processor.decisionHeaders(decision))
	}

	if !f.postfixEnabled {
		f.logger.Warn("Postfix forwarding disabled, this is likely a misconfiguration")
		return nil
	}

	if err := f.deliver(msg.Sender, msg.Recipients, data); err != nil {
		f.logger.Error("Failed to send message back to Postfix",
			zap.Error(err),
			zap.String("sender", msg.Sender))
		return err
	}
	return nil
}

// sendToPostfix sends the processed message back to Postfix on the configured port
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, data []byte) error {
	postfixAddr := net.JoinHostPort(f.postfixAddr, fmt.Sprintf("%d", f.postfixPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// Already delivered
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data handles the message data
func (s *smtpSession) Data(r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.filter.timeout)
	defer cancel()

	return s.filter.handle(ctx, &core.Message{
		Sender:     s.sender,
		Recipients: s.recipients,
		Raw:        buf.Bytes(),
	})
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
