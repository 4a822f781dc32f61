package messagebroker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes to a durable topic exchange using subjects as routing keys.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger
}

func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With("component", "amqp_publisher"),
	}, nil
}

// Publish opens a confirm-mode channel per call and waits for the broker ack.
func (p *AMQPPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("amqp confirm mode: %w", err)
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, subject, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Body:         data,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish to %s: %w", subject, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("amqp confirm for %s: %w", subject, err)
	}
	if !acked {
		return fmt.Errorf("amqp publish to %s was nacked", subject)
	}
	p.logger.DebugContext(ctx, "Published", "routing_key", subject, "exchange", p.exchange)
	return nil
}

func (p *AMQPPublisher) Close() {
	if p.conn != nil && !p.conn.IsClosed() {
		p.conn.Close()
	}
}
