package kafka

import (
	"context"
	"encoding/json"

	"accezzpay/internal/config"
	"accezzpay/internal/models"

	"github.com/segmentio/kafka-go"
)

// Publisher is what the webhook and issuance services depend on.
// Deployments without Kafka get the no-op implementation.
type Publisher interface {
	PublishOrderPaid(order models.Order) error
	PublishOrderRefunded(order models.Order) error
	PublishTicketsIssued(order models.Order, tickets []models.Ticket) error
	Close() error
}

type Producer struct {
	writer *kafka.Writer
	topics config.TopicConfig
}

func NewProducer(brokers []string, topics config.TopicConfig) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.LeastBytes{},
	})
	return &Producer{writer: writer, topics: topics}
}

// PublishOrderPaid streams the paid-order event, keyed by order ID so
// all events for an order land on one partition.
func (p *Producer) PublishOrderPaid(order models.Order) error {
	return p.publish(p.topics.OrderPaid, order.ID, order)
}

// PublishOrderRefunded streams the refund event
func (p *Producer) PublishOrderRefunded(order models.Order) error {
	return p.publish(p.topics.OrderRefunded, order.ID, order)
}

// PublishTicketsIssued streams the issued tickets alongside the order
func (p *Producer) PublishTicketsIssued(order models.Order, tickets []models.Ticket) error {
	payload := struct {
		Order   models.Order    `json:"order"`
		Tickets []models.Ticket `json:"tickets"`
	}{Order: order, Tickets: tickets}
	return p.publish(p.topics.TicketsIssued, order.ID, payload)
}

func (p *Producer) publish(topic, key string, payload any) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// NoopPublisher satisfies Publisher when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderPaid(models.Order) error                      { return nil }
func (NoopPublisher) PublishOrderRefunded(models.Order) error                  { return nil }
func (NoopPublisher) PublishTicketsIssued(models.Order, []models.Ticket) error { return nil }
func (NoopPublisher) Close() error                                             { return nil }
