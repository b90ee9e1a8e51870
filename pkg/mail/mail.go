package mail

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a single transactional email.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// Open picks a Mailer by provider name: sendgrid, resend or console.
func Open(provider, sendgridKey, resendKey, from string) (Mailer, error) {
	switch strings.ToLower(provider) {
	case "sendgrid":
		if sendgridKey == "" {
			return nil, fmt.Errorf("mail: sendgrid api key is empty")
		}
		return NewSendGrid(sendgridKey, from)
	case "resend":
		if resendKey == "" {
			return nil, fmt.Errorf("mail: resend api key is empty")
		}
		return NewResend(resendKey, from), nil
	case "", "console":
		return Console{}, nil
	default:
		return nil, fmt.Errorf("mail: unknown provider %q", provider)
	}
}

type Console struct{}

func (Console) Send(_ context.Context, m Message) error {
	log.Printf("[mail] to=%s subject=%q\n%s", m.To, m.Subject, m.Text)
	return nil
}

type SendGrid struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

func NewSendGrid(apiKey, from string) (*SendGrid, error) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("mail: parse sender: %w", err)
	}
	return &SendGrid{
		client: sendgrid.NewSendClient(apiKey),
		from:   sgmail.NewEmail(addr.Name, addr.Address),
	}, nil
}

func (s *SendGrid) Send(ctx context.Context, m Message) error {
	msg := sgmail.NewSingleEmail(s.from, m.Subject, sgmail.NewEmail("", m.To), m.Text, m.HTML)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type Resend struct {
	client *resend.Client
	from   string
}

func NewResend(apiKey, from string) *Resend {
	return &Resend{client: resend.NewClient(apiKey), from: from}
}

func (r *Resend) Send(ctx context.Context, m Message) error {
	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{m.To},
		Subject: m.Subject,
		Text:    m.Text,
		Html:    m.HTML,
	}
	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	log.Printf("[mail] resend id=%s", sent.Id)
	return nil
}
