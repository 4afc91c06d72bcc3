package events

import (
	"context"
	"fmt"
	"strings"

	"bookpoint/internal/config"
)

// Publisher delivers a serialized event to an external broker.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, body []byte) error
	Close() error
}

// NewPublisher builds the broker publisher selected in config. It returns
// nil, nil when no broker is configured.
func NewPublisher(cfg config.EventsConfig) (Publisher, error) {
	switch strings.ToLower(cfg.Broker) {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		return NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue), nil
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	default:
		return nil, fmt.Errorf("unknown events broker %q", cfg.Broker)
	}
}
