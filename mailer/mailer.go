package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Connection holds the submission endpoint and credentials for one send.
type Connection struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Encryption string // SSL or STARTTLS
}

// Message is one outgoing email.
type Message struct {
	FromEmail string
	FromName  string
	To        string
	Subject   string
	HTMLBody  string
	Headers   map[string]string
}

// Result is returned for every send attempt. Failures are data, not errors:
// callers continue batch processing regardless of outcome.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Err       string `json:"error,omitempty"`
}

// Mailer submits emails over authenticated SMTP. Every operation is bounded
// by the configured timeout; a timed-out send is a transport failure.
type Mailer struct {
	timeout time.Duration
	logger  *logrus.Logger
}

func New(timeout time.Duration, logger *logrus.Logger) *Mailer {
	return &Mailer{timeout: timeout, logger: logger}
}

// Send builds a multipart HTML message, dials the submission endpoint and
// transmits. It never panics past its boundary.
func (m *Mailer) Send(ctx context.Context, conn Connection, msg Message) Result {
	messageID := GenerateMessageID(msg.FromEmail)
	gm := buildMessage(msg, messageID)

	d := gomail.NewDialer(conn.Host, conn.Port, conn.Username, conn.Password)
	d.TLSConfig = &tls.Config{ServerName: conn.Host}
	if strings.EqualFold(conn.Encryption, "SSL") {
		d.SSL = true
	}
	// Otherwise gomail upgrades via STARTTLS when the server offers it.

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(gm)
	}()

	select {
	case err := <-done:
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"host": conn.Host,
				"to":   msg.To,
			}).Errorf("send failed: %v", err)
			return Result{Err: err.Error()}
		}
		m.logger.WithField("to", msg.To).Info("email sent")
		return Result{Success: true, MessageID: messageID}
	case <-time.After(m.timeout):
		return Result{Err: fmt.Sprintf("send to %s timed out after %s", conn.Host, m.timeout)}
	case <-ctx.Done():
		return Result{Err: ctx.Err().Error()}
	}
}

func buildMessage(msg Message, messageID string) *gomail.Message {
	gm := gomail.NewMessage()
	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}
	gm.SetHeader("From", from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetHeader("Message-Id", "<"+messageID+">")
	for k, v := range msg.Headers {
		gm.SetHeader(k, v)
	}
	gm.SetBody("text/html", msg.HTMLBody)
	return gm
}

// GenerateMessageID produces the provider identifier recorded on the sent
// event; replies reference it via their In-Reply-To header.
func GenerateMessageID(fromEmail string) string {
	domain := "localhost"
	if at := strings.LastIndex(fromEmail, "@"); at != -1 && at+1 < len(fromEmail) {
		domain = fromEmail[at+1:]
	}
	return fmt.Sprintf("%s@%s", uuid.New().String(), domain)
}
