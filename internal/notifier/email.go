package notifier

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// EmailNotifier delivers HTML mail through an SMTP relay. The dialer
// upgrades the connection with STARTTLS when the server offers it.
type EmailNotifier struct {
	Sender    string
	Recipient string
	send      func(m *gomail.Message) error
}

// NewEmailNotifier creates a notifier that logs in as sender.
func NewEmailNotifier(server string, port int, sender, password, recipient string) *EmailNotifier {
	d := gomail.NewDialer(server, port, sender, password)
	return &EmailNotifier{
		Sender:    sender,
		Recipient: recipient,
		send:      func(m *gomail.Message) error { return d.DialAndSend(m) },
	}
}

func (e *EmailNotifier) Name() string { return "email" }

// Deliver sends msg.HTML with msg.Subject.
func (e *EmailNotifier) Deliver(msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", e.Sender)
	m.SetHeader("To", e.Recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := e.send(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
