package notify

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

type MailerOptions struct {
	Server    string
	Port      int
	Username  string
	Password  string
	Recipient string
}

// Mailer sends a finished segment as an e-mail attachment over SMTP (SSL).
// One attempt is made per segment; failures are reported to the Notifier and
// never propagate further.
type Mailer struct {
	opts MailerOptions
}

func NewMailer(opts MailerOptions) *Mailer {
	return &Mailer{opts: opts}
}

func (m *Mailer) Notify(ctx context.Context, n *Notification) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.opts.Username)
	msg.SetHeader("To", m.opts.Recipient)
	msg.SetHeader("Subject", fmt.Sprintf("Motion detected at %v", n.Time.Format("2006-01-02 15:04:05")))
	msg.Attach(n.Path)

	d := gomail.NewDialer(m.opts.Server, m.opts.Port, m.opts.Username, m.opts.Password)
	d.SSL = true

	// gomail has no context support; run the send aside and honor the
	// caller's deadline.
	errc := make(chan error, 1)
	go func() {
		errc <- d.DialAndSend(msg)
	}()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to send email with attachment %v: %w", n.Path, err)
		}
		log.Infof("Sent email with attachment %v", n.Path)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
