// shared/config/config.go
package config

import (
	"fmt"
	"net/url"

	"github.com/spf13/viper"
)

// CommonConfig holds infrastructure details shared by every process:
// the bot, the webhook server and the sweep command all read it.
type CommonConfig struct {
	// Database (PostgreSQL) config. DATABASE_URL wins over the parts.
	DATABASE_URL string
	DB_USER      string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSLMODE   string
	// Kafka config. Both set means invoice events go through the topic.
	KAFKA_TOPIC  string
	KAFKA_BROKER string
	KAFKA_GROUP  string
	// RabbitMQ config. A host means notifications go through the queue.
	RABBITMQ_USER     string
	RABBITMQ_PASSWORD string
	RABBITMQ_HOST     string
	RABBITMQ_PORT     string
	RABBITMQ_QUEUE    string
}

// SetCommonDefaults registers the defaults for the shared keys.
func SetCommonDefaults(v *viper.Viper) {
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.name", "kyver_invoices")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("kafka.topic", "invoice.events")
	v.SetDefault("kafka.group", "kyver-invoices-notifier")
	v.SetDefault("rabbitmq.queue", "invoice_notifications")
}

// LoadCommonConfig reads the shared keys. With an env key replacer of "." -> "_"
// and AutomaticEnv, "db.user" is also read from DB_USER, and so on.
func LoadCommonConfig(v *viper.Viper) *CommonConfig {
	return &CommonConfig{
		DATABASE_URL: v.GetString("database.url"),
		DB_USER:      v.GetString("db.user"),
		DB_PASSWORD:  v.GetString("db.password"),
		DB_HOST:      v.GetString("db.host"),
		DB_PORT:      v.GetString("db.port"),
		DB_NAME:      v.GetString("db.name"),
		DB_SSLMODE:   v.GetString("db.sslmode"),

		KAFKA_TOPIC:  v.GetString("kafka.topic"),
		KAFKA_BROKER: v.GetString("kafka.broker"),
		KAFKA_GROUP:  v.GetString("kafka.group"),

		RABBITMQ_USER:     v.GetString("rabbitmq.user"),
		RABBITMQ_PASSWORD: v.GetString("rabbitmq.password"),
		RABBITMQ_HOST:     v.GetString("rabbitmq.host"),
		RABBITMQ_PORT:     v.GetString("rabbitmq.port"),
		RABBITMQ_QUEUE:    v.GetString("rabbitmq.queue"),
	}
}

// GetDBURL formats the config into a PostgreSQL connection string
func (c *CommonConfig) GetDBURL() string {
	if c.DATABASE_URL != "" {
		return c.DATABASE_URL
	}
	sslmode := c.DB_SSLMODE
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB_USER, c.DB_PASSWORD),
		Host:     c.DB_HOST + ":" + c.DB_PORT,
		Path:     "/" + c.DB_NAME,
		RawQuery: "sslmode=" + url.QueryEscape(sslmode),
	}
	return u.String()
}

// KafkaEnabled reports whether an invoice event stream is configured.
func (c *CommonConfig) KafkaEnabled() bool {
	return c.KAFKA_BROKER != "" && c.KAFKA_TOPIC != ""
}

// RabbitMQEnabled reports whether a notification queue is configured.
func (c *CommonConfig) RabbitMQEnabled() bool {
	return c.RABBITMQ_HOST != ""
}

// GetRabbitMQURL formats the config into a RabbitMQ connection string
func (c *CommonConfig) GetRabbitMQURL() string {
	// Default to the standard port when missing.
	host := c.RABBITMQ_HOST
	if host == "" {
		host = "localhost"
	}
	port := c.RABBITMQ_PORT
	if port == "" {
		port = "5672"
	}

	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		url.QueryEscape(c.RABBITMQ_USER), url.QueryEscape(c.RABBITMQ_PASSWORD), host, port)
}
