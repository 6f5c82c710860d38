package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"
	"github.com/rs-labo46/storefront/internal/obs"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "storefront.payments"
	ExchangeType = "topic"
	QueueName    = "order-service.payment-events"
	BindingKey   = "payment.*"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// DialRabbitMQ は接続して exchange を宣言する。起動直後のために少しだけリトライする。
func DialRabbitMQ(url string) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		obs.Logger.Warn("rabbitmq connect failed", "attempt", i+1, "err", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(ExchangeName, ExchangeType, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}
	return conn, ch, nil
}

// payment.success / payment.failed
func routingKey(ev model.PaymentEvent) string {
	return "payment." + strings.ToLower(string(ev.Status))
}

type RabbitPublisher struct {
	ch amqpChannel
}

func NewRabbitPublisher(ch *amqp.Channel) *RabbitPublisher {
	return &RabbitPublisher{ch: ch}
}

func (p *RabbitPublisher) PublishPaymentEvent(ctx context.Context, ev model.PaymentEvent) error {
	body, err := encode(ev)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx,
		ExchangeName,
		routingKey(ev),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.EventID,
			Timestamp:    ev.OccurredAt,
			Type:         ev.EventType,
			Body:         body,
		},
	)
}

type RabbitConsumer struct {
	ch amqpChannel
}

func NewRabbitConsumer(ch *amqp.Channel) *RabbitConsumer {
	return &RabbitConsumer{ch: ch}
}

// Run は ctx が終わるまで処理する。失敗したメッセージは初回だけ再投入する。
func (c *RabbitConsumer) Run(ctx context.Context, h PaymentEventHandler) error {
	q, err := c.ch.QueueDeclare(QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("could not declare queue: %w", err)
	}
	if err := c.ch.QueueBind(q.Name, BindingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("could not bind queue: %w", err)
	}
	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("could not start consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, d, h)
		}
	}
}

func (c *RabbitConsumer) handle(ctx context.Context, d amqp.Delivery, h PaymentEventHandler) {
	ev, err := decode(d.Body)
	if err != nil {
		obs.Logger.WarnContext(ctx, "drop malformed payment event", "message_id", d.MessageId, "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := h(ctx, ev); err != nil {
		obs.Logger.ErrorContext(ctx, "payment event handler failed",
			"event_id", ev.EventID, "order_id", ev.OrderID, "redelivered", d.Redelivered, "err", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}
