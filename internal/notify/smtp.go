// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/eventdesk/eventdesk/internal/auth"
)

// SMTPConfig configures the SMTP notifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends mail through an SMTP relay.
type SMTP struct {
	addr string
	from string
	auth smtp.Auth
	send sendMailFunc
	now  func() time.Time
}

// NewSMTP creates an SMTP notifier. PLAIN auth is used when a username is set.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, oops.Code("SMTP_CONFIG_INVALID").
			With("host", cfg.Host).
			With("port", cfg.Port).
			Errorf("smtp host and port are required")
	}
	if cfg.From == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp from address is required")
	}
	s := &SMTP{
		addr: net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		from: cfg.From,
		send: smtp.SendMail,
		now:  time.Now,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s, nil
}

// SendEmail implements auth.Notifier. net/smtp has no context support, so
// ctx is only checked before dialing.
func (s *SMTP) SendEmail(ctx context.Context, msg auth.Email) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("SMTP_SEND_FAILED").Wrap(err)
	}
	if msg.To == "" {
		return oops.Code("SMTP_INVALID_MESSAGE").Errorf("recipient is required")
	}
	body, err := s.compose(msg)
	if err != nil {
		return oops.Code("SMTP_INVALID_MESSAGE").With("subject", msg.Subject).Wrap(err)
	}
	if err := s.send(s.addr, s.auth, s.from, []string{msg.To}, body); err != nil {
		return oops.Code("SMTP_SEND_FAILED").
			With("addr", s.addr).
			With("subject", msg.Subject).
			Wrap(err)
	}
	return nil
}

func (s *SMTP) compose(msg auth.Email) ([]byte, error) {
	if strings.ContainsAny(msg.To+msg.Subject, "\r\n") {
		return nil, fmt.Errorf("header contains a line break")
	}

	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", s.from)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", s.now().UTC().Format(time.RFC1123Z))
	header("Message-ID", "<"+ulid.Make().String()+"@eventdesk>")
	header("MIME-Version", "1.0")

	if msg.HTML == "" {
		header("Content-Type", `text/plain; charset="utf-8"`)
		buf.WriteString("\r\n")
		buf.WriteString(msg.Text)
		return buf.Bytes(), nil
	}

	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)
	for _, p := range []struct{ ctype, body string }{
		{`text/plain; charset="utf-8"`, msg.Text},
		{`text/html; charset="utf-8"`, msg.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	header("Content-Type", `multipart/alternative; boundary="`+mw.Boundary()+`"`)
	buf.WriteString("\r\n")
	buf.Write(parts.Bytes())
	return buf.Bytes(), nil
}
