package mail

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/gantry-app/gantry/internal/config"
)

type captureSender struct {
	to      string
	subject string
	body    string
}

func (c *captureSender) Send(_ context.Context, to, subject, htmlBody string) error {
	c.to, c.subject, c.body = to, subject, htmlBody
	return nil
}

func TestSendEmailVerification(t *testing.T) {
	capture := &captureSender{}
	s := &Service{sender: capture, baseURL: "https://app.example.com"}

	if err := s.SendEmailVerification(context.Background(), "a@x.com", "tok123"); err != nil {
		t.Fatalf("SendEmailVerification() error: %v", err)
	}
	if capture.to != "a@x.com" {
		t.Errorf("expected recipient a@x.com, got %s", capture.to)
	}
	if !strings.Contains(capture.body, "https://app.example.com/verify-email?token=tok123") {
		t.Errorf("body missing verification link: %s", capture.body)
	}
}

func TestSendPasswordReset(t *testing.T) {
	capture := &captureSender{}
	s := &Service{sender: capture, baseURL: "https://app.example.com"}

	if err := s.SendPasswordReset(context.Background(), "a@x.com", "tok456"); err != nil {
		t.Fatalf("SendPasswordReset() error: %v", err)
	}
	if !strings.Contains(capture.body, "https://app.example.com/reset-password?token=tok456") {
		t.Errorf("body missing reset link: %s", capture.body)
	}
}

func TestNewService_TrimsBaseURL(t *testing.T) {
	s := NewService(config.MailConfig{BaseURL: "https://app.example.com/"}, slog.Default())
	if s.baseURL != "https://app.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", s.baseURL)
	}
}

func TestNewService_FallsBackToLogSender(t *testing.T) {
	s := NewService(config.MailConfig{}, slog.Default())
	if _, ok := s.sender.(*LogSender); !ok {
		t.Errorf("expected LogSender without smtp host, got %T", s.sender)
	}

	s = NewService(config.MailConfig{Host: "smtp.example.com", Port: 587}, slog.Default())
	if _, ok := s.sender.(*SMTPSender); !ok {
		t.Errorf("expected SMTPSender with smtp host, got %T", s.sender)
	}
}
