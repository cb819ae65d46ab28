package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/appointment"
)

const (
	ExchangeType         = "topic"
	RoutingKeyConfirmed  = "appointment.confirmed"
	connectAttempts      = 5
	connectRetryInterval = 2 * time.Second
)

// SetupConn dials the broker and declares the durable topic exchange.
func SetupConn(url, exchange string, logger zerolog.Logger) (*amqp.Connection, *amqp.Channel, error) {
	var (
		conn *amqp.Connection
		err  error
	)

	// Brokers started alongside the service may not accept connections yet.
	for i := 0; i < connectAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn().Err(err).Int("attempt", i+1).Msg("rabbitmq connect failed")
		time.Sleep(connectRetryInterval)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,     // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}

// Publisher is a NotificationSink that publishes confirmations as JSON.
type Publisher struct {
	ch       *amqp.Channel
	exchange string
}

func NewPublisher(ch *amqp.Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

func (p *Publisher) Notify(ctx context.Context, c appointment.Confirmation) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("could not marshal confirmation: %w", err)
	}

	return p.ch.PublishWithContext(ctx,
		p.exchange,          // exchange
		RoutingKeyConfirmed, // routing key
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    c.AppointmentID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Consumer reads confirmations from a durable queue bound to the exchange.
type Consumer struct {
	ch       *amqp.Channel
	exchange string
	queue    string
	logger   zerolog.Logger
}

func NewConsumer(ch *amqp.Channel, exchange, queue string, logger zerolog.Logger) *Consumer {
	return &Consumer{
		ch:       ch,
		exchange: exchange,
		queue:    queue,
		logger:   logger.With().Str("component", "confirmation_consumer").Str("queue", queue).Logger(),
	}
}

// Run consumes until ctx is done or the channel closes. Malformed messages are
// dropped; handler failures are requeued.
func (c *Consumer) Run(ctx context.Context, handler func(context.Context, appointment.Confirmation) error) error {
	q, err := c.ch.QueueDeclare(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("could not declare queue: %w", err)
	}

	if err := c.ch.QueueBind(q.Name, RoutingKeyConfirmed, c.exchange, false, nil); err != nil {
		return fmt.Errorf("could not bind queue: %w", err)
	}

	if err := c.ch.Qos(16, 0, false); err != nil {
		return fmt.Errorf("could not set qos: %w", err)
	}

	msgs, err := c.ch.Consume(
		q.Name, // queue
		"",     // consumer tag
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("could not start consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d, handler)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler func(context.Context, appointment.Confirmation) error) {
	conf, err := DecodeConfirmation(d.Body)
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", d.MessageId).Msg("dropping malformed confirmation")
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, conf); err != nil {
		c.logger.Error().Err(err).Str("appointment_id", conf.AppointmentID.String()).Msg("confirmation handler failed")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func DecodeConfirmation(body []byte) (appointment.Confirmation, error) {
	var c appointment.Confirmation
	if err := json.Unmarshal(body, &c); err != nil {
		return appointment.Confirmation{}, fmt.Errorf("could not unmarshal confirmation: %w", err)
	}
	if c.AppointmentID == uuid.Nil {
		return appointment.Confirmation{}, errors.New("confirmation missing appointment_id")
	}
	return c, nil
}
