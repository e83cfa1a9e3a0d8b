package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"

	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/logger"
	"gopkg.in/gomail.v2"
)

// Attachment is a file sent alongside every message of a job.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Message is a fully rendered email ready for delivery.
type Message struct {
	FromName    string
	From        string
	To          string
	Cc          []string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Validate checks the addresses a transport needs.
func (m *Message) Validate() error {
	if m.From == "" {
		return errors.New("missing sender address")
	}
	return m.validateRecipient()
}

func (m *Message) validateRecipient() error {
	if m.To == "" {
		return errors.New("missing recipient address")
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", m.To, err)
	}
	return nil
}

// Transport delivers one message. Implementations must be safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPTransport sends through an authenticated SMTP relay, one connection per message.
type SMTPTransport struct {
	dialer *gomail.Dialer
}

// NewSMTPTransport builds a transport from validated settings. Port 465 uses implicit TLS.
func NewSMTPTransport(cfg config.SMTPConfig) (*SMTPTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPTransport{dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)}, nil
}

// Send renders msg as multipart/alternative and delivers it.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := t.dialer.DialAndSend(buildMessage(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func buildMessage(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.From, msg.FromName)
	m.SetHeader("To", msg.To)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", msg.Cc...)
	}
	m.SetHeader("Subject", msg.Subject)

	text := msg.Text
	if text == "" {
		text = StripTags(msg.HTML)
	}
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", msg.HTML)

	for _, a := range msg.Attachments {
		data := a.Data
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		m.Attach(a.FileName, settings...)
	}
	return m
}

// DryRunTransport accepts every message with a valid recipient without
// contacting a server. No sender is required.
type DryRunTransport struct{}

func (DryRunTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.validateRecipient(); err != nil {
		return err
	}
	logger.Recipient(msg.To).With(logger.Fields{
		"cc":          len(msg.Cc),
		"attachments": len(msg.Attachments),
	}).Debug(ctx, "Dry run, message not sent: %s", msg.Subject)
	return nil
}
