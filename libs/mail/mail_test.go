package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildMessage(t *testing.T) {
	raw := buildMessage("no-reply@clinic.test", Message{
		To:      "ann@example.com",
		ToName:  "Ann",
		Subject: "Appointment confirmed",
		Body:    "line one\nline two",
	})
	if !strings.HasPrefix(raw, "From: no-reply@clinic.test\r\nTo: \"Ann\" <ann@example.com>\r\nSubject: Appointment confirmed\r\n") {
		t.Fatalf("unexpected headers: %q", raw)
	}
	if !strings.HasSuffix(raw, "\r\n\r\nline one\r\nline two\r\n") {
		t.Fatalf("unexpected body: %q", raw)
	}
}

func TestSMTPSenderSend(t *testing.T) {
	s := NewSMTPSender("", "", "")
	var gotAddr string
	var gotTo []string
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo = addr, to
		if from != "no-reply@slotconfirm.local" {
			t.Fatalf("unexpected from %q", from)
		}
		return nil
	}
	if err := s.Send(context.Background(), Message{To: "bob@example.com", Subject: "hi", Body: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "localhost:1025" || len(gotTo) != 1 || gotTo[0] != "bob@example.com" {
		t.Fatalf("unexpected delivery addr=%q to=%v", gotAddr, gotTo)
	}

	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	if err := s.Send(context.Background(), Message{To: "bob@example.com"}); err == nil {
		t.Fatal("expected smtp error")
	}
}

func TestMessageValidation(t *testing.T) {
	s := NewLogSender(discardLogger())
	if err := s.Send(context.Background(), Message{Subject: "no recipient"}); err == nil {
		t.Fatal("expected missing recipient error")
	}
	if err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "x\r\nBcc: evil@example.com"}); err == nil {
		t.Fatal("expected header injection to be rejected")
	}
}

func TestNewSendGridSenderRequiresKey(t *testing.T) {
	if NewSendGridSender(SendGridConfig{FromEmail: "a@example.com"}, nil) != nil {
		t.Fatal("expected nil sender without api key")
	}
	s := NewSendGridSender(SendGridConfig{APIKey: "k", FromEmail: "a@example.com"}, nil)
	if s == nil || s.fromName != "Slot Confirm" {
		t.Fatalf("unexpected sender %+v", s)
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESSenderSend(t *testing.T) {
	api := &fakeSES{}
	s := NewSESSender(api, SESConfig{FromEmail: "desk@clinic.test", FromName: "Clinic"}, discardLogger())
	if err := s.Send(context.Background(), Message{To: "ann@example.com", Subject: "Hello", Body: "Body"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != "Clinic <desk@clinic.test>" {
		t.Fatalf("unexpected from %q", got)
	}
	if got := aws.ToString(api.input.Content.Simple.Body.Text.Data); got != "Body" {
		t.Fatalf("unexpected body %q", got)
	}

	api.err = errors.New("throttled")
	if err := s.Send(context.Background(), Message{To: "ann@example.com"}); err == nil {
		t.Fatal("expected SES error")
	}
}

func TestNewSelectsProvider(t *testing.T) {
	ctx := context.Background()
	if s, err := New(ctx, Config{Provider: "log"}, discardLogger()); err != nil {
		t.Fatalf("log: %v", err)
	} else if _, ok := s.(*LogSender); !ok {
		t.Fatalf("expected LogSender, got %T", s)
	}
	if s, err := New(ctx, Config{}, nil); err != nil {
		t.Fatalf("default: %v", err)
	} else if _, ok := s.(*SMTPSender); !ok {
		t.Fatalf("expected SMTPSender, got %T", s)
	}
	if _, err := New(ctx, Config{Provider: "sendgrid"}, nil); err == nil {
		t.Fatal("expected error without sendgrid key")
	}
	if _, err := New(ctx, Config{Provider: "pigeon"}, nil); err == nil {
		t.Fatal("expected unknown provider error")
	}
}
