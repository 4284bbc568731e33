// Package mail is the outbound transactional email collaborator. The rest of
// the system only sees the Sender interface; delivery details stay here.
package mail

import (
	"fmt"
	"log"
	"net/smtp"
)

type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
		auth: auth,
	}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", s.from, to, subject, body)
	return smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg))
}

// LogSender is the dev-mode sender: it logs instead of delivering.
type LogSender struct{}

func (LogSender) Send(to, subject, _ string) error {
	log.Printf("mail: would send %q to %s", subject, to)
	return nil
}
