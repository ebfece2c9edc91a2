package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/mikey/phish-filter/internal/config"
	"github.com/mikey/phish-filter/internal/core"
	"go.uber.org/zap"
)

// analysisErrorHeader is added instead of the verdict headers when a message
// could not be analyzed
const analysisErrorHeader = "X-Phish-Analysis-Error"

// deliverFunc hands a processed message to the next hop
type deliverFunc func(sender string, recipients []string, data []byte) error

// PostfixFilter implements a Postfix after-queue content filter
type PostfixFilter struct {
	service *core.AnalysisService
	logger  *zap.Logger
	cfg     config.ServerConfig
	server  *smtp.Server
	deliver deliverFunc
	timeout time.Duration
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(service *core.AnalysisService, logger *zap.Logger, cfg config.ServerConfig) *PostfixFilter {
	f := &PostfixFilter{
		service: service,
		logger:  logger,
		cfg:     cfg,
		timeout: 30 * time.Second,
	}
	f.deliver = f.relay
	return f
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.cfg.ListenAddress
	f.server.Domain = f.cfg.Hostname
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = f.cfg.MaxMessageBytes
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("Postfix filter starting",
		zap.String("address", f.cfg.ListenAddress),
		zap.String("relay", f.cfg.RelayAddress))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessMessage analyzes a raw message without relaying it
func (f *PostfixFilter) ProcessMessage(ctx context.Context, raw []byte) (*core.Analysis, error) {
	return f.service.AnalyzeBytes(ctx, raw)
}

// handle analyzes one message from a session and relays the tagged copy.
// Analysis failures never block mail; the message passes with an error
// header.
func (f *PostfixFilter) handle(sender string, recipients []string, raw []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	analysisID := uuid.NewString()
	analysis, err := f.ProcessMessage(ctx, raw)
	if err != nil {
		f.logger.Error("Failed to analyze message",
			zap.Error(err),
			zap.String("analysis_id", analysisID),
			zap.String("sender", sender))
		tagged := rewriteMessage(raw, []header{
			{analysisErrorHeader, err.Error()},
			{f.cfg.Headers.AnalysisID, analysisID},
		}, f.headerNames(), "")
		return f.deliver(sender, recipients, tagged)
	}

	if analysis.IsPhishing() && f.cfg.BlockPhishing {
		f.logger.Info("Rejecting phishing message",
			zap.String("analysis_id", analysisID),
			zap.String("sender", sender),
			zap.Float64("final_score", analysis.FinalScore))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as phishing (score: %.2f)", analysis.FinalScore),
		}
	}

	prefix := ""
	if analysis.IsPhishing() && f.cfg.TagSubject {
		prefix = f.cfg.SubjectPrefix
	}
	tagged := rewriteMessage(raw, f.verdictHeaders(analysis, analysisID), f.headerNames(), prefix)
	if err := f.deliver(sender, recipients, tagged); err != nil {
		f.logger.Error("Failed to relay message",
			zap.Error(err),
			zap.String("analysis_id", analysisID),
			zap.String("sender", sender))
		return err
	}

	f.logger.Info("Processed message",
		zap.String("analysis_id", analysisID),
		zap.String("sender", sender),
		zap.String("tier", string(analysis.Tier)),
		zap.Float64("final_score", analysis.FinalScore))
	return nil
}

func (f *PostfixFilter) verdictHeaders(a *core.Analysis, analysisID string) []header {
	return []header{
		{f.cfg.Headers.Tier, string(a.Tier)},
		{f.cfg.Headers.Score, fmt.Sprintf("%.4f", a.FinalScore)},
		{f.cfg.Headers.Verdict, a.PredictionLabel},
		{f.cfg.Headers.Reason, strings.Join(a.Explanation, " ")},
		{f.cfg.Headers.AnalysisID, analysisID},
	}
}

// headerNames lists the headers this filter owns; copies arriving from
// upstream are dropped
func (f *PostfixFilter) headerNames() []string {
	h := f.cfg.Headers
	return []string{h.Tier, h.Score, h.Verdict, h.Reason, h.AnalysisID, analysisErrorHeader}
}

// relay re-injects a message into Postfix at the relay address
func (f *PostfixFilter) relay(sender string, recipients []string, data []byte) error {
	if f.cfg.RelayAddress == "" {
		f.logger.Warn("No relay address configured, dropping processed message")
		return nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", f.cfg.RelayAddress, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(f.timeout)); err != nil {
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
			continue
		}
		recipientOK = true
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
		// the message is already accepted at this point
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

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}
	return s.filter.handle(s.sender, s.recipients, raw)
}

func (s *smtpSession) Logout() error {
	return nil
}
