package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const envProduction = "production"

type Config struct {
	Env        string `env:"ENV" envDefault:"dev"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"4000"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"json"`
	Database   DatabaseConfig
	Auth       AuthConfig
	Notify     NotifyConfig
	RabbitMQ   RabbitMQConfig
	PubSub     PubSubConfig
	Templates  TemplateConfig
	Minio      MinioConfig
	GCS        GCSConfig
	SMTP       SMTPConfig
}

type DatabaseConfig struct {
	// Driver selects the user store: "postgres" or "memory".
	Driver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"accountd"`
	Password string `env:"DB_PASSWORD" envDefault:"password"`
	DBName   string `env:"DB_NAME" envDefault:"accountd_db"`
	UseSSL   bool   `env:"DB_USE_SSL" envDefault:"false"`
}

type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
}

type NotifyConfig struct {
	// Backend selects the notification transport: "memory", "rabbitmq" or "pubsub".
	Backend     string `env:"NOTIFY_BACKEND" envDefault:"memory"`
	Channel     string `env:"NOTIFY_CHANNEL" envDefault:"accountd.email"`
	SenderEmail string `env:"SENDER_EMAIL" envDefault:"no-reply@localhost"`
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH" envDefault:"10"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

type TemplateConfig struct {
	// Store selects where email template overrides are read from: "none", "minio" or "gcs".
	// Templates are looked up as <Prefix><kind>.html.
	Store  string `env:"TEMPLATE_STORE" envDefault:"none"`
	Prefix string `env:"TEMPLATE_PREFIX" envDefault:"templates/"`
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	ProjectID       string `env:"GCS_PROJECT_ID"`
	Bucket          string `env:"GCS_BUCKET"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

type SMTPConfig struct {
	// Host empty makes the mailer log messages instead of sending them.
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	TLS      string `env:"SMTP_TLS" envDefault:"opportunistic"`
}

// LoadConfig reads configuration from the environment. In dev mode a local
// .env file is loaded first; variables already set in the environment win.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "" || os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Production reports whether the service runs with production cookie policy.
func (c Config) Production() bool {
	return c.Env == envProduction
}
