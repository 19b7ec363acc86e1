package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"mailsprint/models"
)

const defaultIMAPPort = 993

// IMAPFetcher pulls unread messages over IMAP. Messages are fetched with
// BODY.PEEK and marked \Seen only after the whole fetch succeeded, so a
// failed pass leaves them unread for the next one.
type IMAPFetcher struct {
	timeout time.Duration
	logger  *logrus.Logger
}

func NewIMAPFetcher(timeout time.Duration, logger *logrus.Logger) *IMAPFetcher {
	return &IMAPFetcher{timeout: timeout, logger: logger}
}

// dialer bounds connection establishment with the same timeout that bounds
// every later command.
func (f *IMAPFetcher) dialer() *net.Dialer {
	return &net.Dialer{Timeout: f.timeout}
}

func (f *IMAPFetcher) Fetch(ctx context.Context, account models.SendingAccount, password string) ([]InboundMessage, error) {
	port := account.IMAPPort
	if port == 0 {
		port = defaultIMAPPort
	}
	imapAddr := fmt.Sprintf("%s:%d", account.IMAPHost, port)

	// The dial itself must be bounded too: a black-holed host would
	// otherwise stall the whole reply pass before c.Timeout applies.
	dialer := f.dialer()
	var c *client.Client
	var err error
	switch strings.ToUpper(account.IMAPEncryption) {
	case "SSL", "TLS", "":
		c, err = client.DialWithDialerTLS(dialer, imapAddr, &tls.Config{
			InsecureSkipVerify: false,
			ServerName:         account.IMAPHost,
		})
	case "STARTTLS":
		c, err = client.DialWithDialer(dialer, imapAddr)
		if err == nil {
			err = c.StartTLS(&tls.Config{
				InsecureSkipVerify: false,
				ServerName:         account.IMAPHost,
			})
		}
	default:
		c, err = client.DialWithDialer(dialer, imapAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %v", err)
	}
	defer c.Logout()
	c.Timeout = f.timeout

	username := account.IMAPUsername
	if username == "" {
		username = account.EmailAddress
	}
	if err := c.Login(username, password); err != nil {
		return nil, fmt.Errorf("failed to login to IMAP server: %v", err)
	}

	mailbox := "INBOX"
	if account.IMAPMailbox != "" {
		mailbox = account.IMAPMailbox
	}
	if _, err := c.Select(mailbox, false); err != nil {
		return nil, fmt.Errorf("failed to select mailbox: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %v", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	var inbound []InboundMessage
	fetched := new(imap.SeqSet)
	for msg := range messages {
		if ctx.Err() != nil {
			// Drain the channel so the fetch goroutine can finish.
			continue
		}
		inbound = append(inbound, parseIMAPMessage(msg))
		fetched.AddNum(msg.SeqNum)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("error during fetch: %v", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if !fetched.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.Store(fetched, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			f.logger.WithError(err).WithField("account", account.EmailAddress).Warn("Failed to mark messages seen")
		}
	}
	return inbound, nil
}

func parseIMAPMessage(msg *imap.Message) InboundMessage {
	m := InboundMessage{UID: msg.Uid}
	if msg.Envelope != nil {
		m.MessageID = msg.Envelope.MessageId
		m.InReplyTo = msg.Envelope.InReplyTo
		m.Subject = msg.Envelope.Subject
		m.From = formatAddress(msg.Envelope.From)
	}
	section := &imap.BodySectionName{}
	if literal := msg.GetBody(section); literal != nil {
		m.TextBody = extractTextBody(literal)
	}
	return m
}

// extractTextBody returns the first text/plain part, falling back to
// text/html when the message has no plain part.
func extractTextBody(literal imap.Literal) string {
	mr, err := mail.CreateReader(literal)
	if err != nil {
		return ""
	}
	var htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		if strings.Contains(contentType, "text/plain") {
			return string(b)
		}
		if strings.Contains(contentType, "text/html") {
			htmlBody = string(b)
		}
	}
	return htmlBody
}

func formatAddress(addrs []*imap.Address) string {
	var result []string
	for _, addr := range addrs {
		if addr.PersonalName != "" {
			result = append(result, fmt.Sprintf("%s <%s@%s>", addr.PersonalName, addr.MailboxName, addr.HostName))
		} else {
			result = append(result, fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName))
		}
	}
	return strings.Join(result, ", ")
}
