package mail

import (
	"context"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig describes an authenticated SMTP submission account.
type SMTPConfig struct {
	Service  string
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers messages through an SMTP server with PLAIN auth.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender validates cfg, filling host and port from the service
// identifier when they are not set explicitly.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		host, port, ok := ResolveService(cfg.Service)
		if !ok {
			return nil, oops.Code("MAIL_CONFIG_INVALID").
				With("service", cfg.Service).
				Errorf("unknown mail service %q and no host configured", cfg.Service)
		}
		cfg.Host = host
		if cfg.Port == 0 {
			cfg.Port = port
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("mail sender address is required")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send dials the server, authenticates and delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return oops.Code("MAIL_CLIENT_FAILED").With("host", s.cfg.Host).Wrap(err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("host", s.cfg.Host).
			With("to", msg.To).
			Wrap(err)
	}
	return nil
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{gomail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	if s.cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}
	return opts
}

func (s *SMTPSender) build(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, oops.Code("MAIL_ADDRESS_INVALID").With("from", s.cfg.From).Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("MAIL_ADDRESS_INVALID").With("to", msg.To).Wrap(err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}
