package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/accountd/apiserver/config"
	"github.com/accountd/apiserver/internal/db"
	"github.com/accountd/apiserver/internal/mailer"
	"github.com/accountd/apiserver/internal/mq"
	"github.com/accountd/apiserver/internal/services"
	"github.com/accountd/apiserver/internal/storage"
	"github.com/accountd/apiserver/internal/store"
)

// OpenUserStore returns the configured user repository. The *sql.DB is nil
// for the memory driver.
func OpenUserStore(ctx context.Context, cfg config.DatabaseConfig) (services.UserRepository, *sql.DB, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryUserRepository(), nil, nil
	case "postgres", "":
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store.NewUserRepository(conn), conn, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// OpenBroker returns the configured notification transport.
func OpenBroker(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.Notify.Backend {
	case "memory", "":
		return mq.New(mq.NewMemoryBackend()), nil
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(client), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(client), nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
	}
}

// OpenTemplateStorage returns the bucket holding email template overrides,
// or nil when TEMPLATE_STORE is "none".
func OpenTemplateStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	switch cfg.Templates.Store {
	case "none", "":
		return nil, nil
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(client), nil
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(client), nil
	default:
		return nil, fmt.Errorf("unknown template store %q", cfg.Templates.Store)
	}
}

// NewSender returns an SMTP sender when SMTP_HOST is set and a log sender
// otherwise. The log sender includes bodies outside production.
func NewSender(cfg config.Config, logger *slog.Logger) (mailer.Sender, error) {
	if cfg.SMTP.Host == "" {
		return mailer.NewLogSender(logger, !cfg.Production()), nil
	}
	return mailer.NewSMTPSender(cfg.SMTP)
}
