package server

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/hongminglow/passgate/internal/config"
	"github.com/hongminglow/passgate/internal/mail"
	"github.com/hongminglow/passgate/internal/storage"
	"github.com/hongminglow/passgate/internal/storage/memory"
	"github.com/hongminglow/passgate/internal/storage/mongodb"
	"github.com/hongminglow/passgate/internal/storage/postgres"
)

// OpenStore connects the credential store selected by cfg.Driver. Postgres
// migrations are applied first when cfg.AutoMigrate is set.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (storage.UserStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.WarnContext(ctx, "using in-memory credential store; accounts are lost on restart")
		return memory.NewUserStore(), nil
	case config.DriverMongo:
		store, err := mongodb.NewUserStore(ctx, cfg.URL, cfg.Name)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := migrateUp(cfg.URL); err != nil {
				return nil, err
			}
			logger.InfoContext(ctx, "database migrations applied")
		}
		store, err := postgres.NewUserStore(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("database.driver", cfg.Driver).Errorf("unknown database driver %q", cfg.Driver)
	}
}

func migrateUp(url string) (err error) {
	m, err := postgres.NewMigrator(url)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return m.Up()
}

// NewMailer returns an SMTP sender when a mail account is configured and a
// logging sender otherwise.
func NewMailer(cfg config.MailConfig, logger *slog.Logger) (mail.Sender, error) {
	if cfg.Username == "" {
		logger.Warn("no mail account configured; reset links will be logged instead of sent")
		return mail.NewLogSender(logger), nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Service:  cfg.Service,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}
