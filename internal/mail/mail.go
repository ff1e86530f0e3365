// Package mail delivers outbound account emails.
package mail

import (
	"context"
	"log/slog"
	"strings"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the logger instead of delivering them. It is
// meant for local development where no mail account is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail not delivered (log sender)",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

type endpoint struct {
	host string
	port int
}

// wellKnown maps service identifiers to their SMTP submission endpoints.
var wellKnown = map[string]endpoint{
	"gmail":     {host: "smtp.gmail.com", port: 587},
	"outlook":   {host: "smtp.office365.com", port: 587},
	"hotmail":   {host: "smtp.office365.com", port: 587},
	"office365": {host: "smtp.office365.com", port: 587},
	"yahoo":     {host: "smtp.mail.yahoo.com", port: 465},
	"icloud":    {host: "smtp.mail.me.com", port: 587},
	"zoho":      {host: "smtp.zoho.com", port: 465},
}

// ResolveService returns the SMTP host and port for a service identifier
// such as "gmail". ok is false for unknown services.
func ResolveService(service string) (host string, port int, ok bool) {
	ep, ok := wellKnown[strings.ToLower(strings.TrimSpace(service))]
	return ep.host, ep.port, ok
}
