package notifier

import (
	"context"
	"log"

	"github.com/kithly/marketplace/pkg/mail"
)

type Notification struct {
	To      string // empty means operators only
	Subject string
	Message string
}

// Notifier delivers a rendered notification (email today, SMS later).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type ConsoleNotifier struct{}

func NewConsole() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

func (c *ConsoleNotifier) Notify(_ context.Context, n Notification) error {
	log.Printf("[notify] to=%q %s :: %s", n.To, n.Subject, n.Message)
	return nil
}

// MailNotifier sends through a mail provider. Notifications without a
// recipient are only logged.
type MailNotifier struct {
	mailer mail.Mailer
}

func NewMail(m mail.Mailer) *MailNotifier {
	return &MailNotifier{mailer: m}
}

func (m *MailNotifier) Notify(ctx context.Context, n Notification) error {
	if n.To == "" {
		return NewConsole().Notify(ctx, n)
	}
	return m.mailer.Send(ctx, mail.Message{To: n.To, Subject: n.Subject, Text: n.Message})
}
