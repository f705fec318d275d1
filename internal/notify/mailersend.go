package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailersend/mailersend-go"

	"github.com/aforo/aforo/internal/domain"
)

type MailerSendNotifier struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	Enabled bool
}

func NewMailerSendNotifier(apiKey, fromName, fromEmail string) *MailerSendNotifier {
	n := &MailerSendNotifier{
		Enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}
	if n.Enabled {
		n.client = mailersend.NewMailersend(apiKey)
	}
	return n
}

func (n *MailerSendNotifier) SendReservationCreated(ctx context.Context, res *domain.Reservation) error {
	subject := "Your reservation is booked"
	text := fmt.Sprintf(
		"Hi %s, your table for %d is booked for %s. Present this code at the door: %s",
		res.CustomerName, res.Capacity, res.ReservedAt.Format(time.RFC1123), res.QRToken,
	)
	return n.send(ctx, res.CustomerName, res.Email, subject, text)
}

func (n *MailerSendNotifier) SendReservationCancelled(ctx context.Context, res *domain.Reservation) error {
	subject := "Your reservation was cancelled"
	text := fmt.Sprintf(
		"Hi %s, your reservation for %s has been cancelled.",
		res.CustomerName, res.ReservedAt.Format(time.RFC1123),
	)
	return n.send(ctx, res.CustomerName, res.Email, subject, text)
}

func (n *MailerSendNotifier) send(ctx context.Context, toName, toEmail, subject, text string) error {
	if !n.Enabled {
		return errors.New("notifier disabled (missing MAILERSEND_API_KEY or MAILER_FROM)")
	}
	if toEmail == "" {
		return errors.New("reservation has no email on file")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := n.client.Email.NewMessage()
	msg.SetFrom(n.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)
	msg.SetText(text)

	res, err := n.client.Email.Send(ctx, msg)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("mailersend returned status %d", res.StatusCode)
	}
	return nil
}

var _ Notifier = (*MailerSendNotifier)(nil)
