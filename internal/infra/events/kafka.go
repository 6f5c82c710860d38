package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"
	"github.com/rs-labo46/storefront/internal/obs"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
	}}
}

// 同期で書く（失敗は呼び出し側でログに残す）
func (p *KafkaPublisher) PublishPaymentEvent(ctx context.Context, ev model.PaymentEvent) error {
	b, err := encode(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   partitionKey(ev),
		Value: b,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

const (
	defaultRetryMin = 200 * time.Millisecond
	defaultRetryMax = 10 * time.Second
)

type KafkaConsumer struct {
	r messageReader

	// 処理失敗時の再試行間隔（倍々で retryMax まで）
	retryMin time.Duration
	retryMax time.Duration
}

func NewKafkaConsumer(brokers []string, groupID, topic string) *KafkaConsumer {
	return &KafkaConsumer{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // 手動コミット
	}), retryMin: defaultRetryMin, retryMax: defaultRetryMax}
}

// Run は ctx が終わるまで読み続ける。
// 処理に失敗したメッセージは成功するまで同じものを再試行し、後続へは進まない。
// コミットはパーティション内のオフセット位置なので、先へ進むと失敗分も既読になる。
func (c *KafkaConsumer) Run(ctx context.Context, h PaymentEventHandler) error {
	defer c.r.Close()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		ev, err := decode(m.Value)
		if err != nil {
			// 壊れたメッセージは読み飛ばす
			obs.Logger.WarnContext(ctx, "skip malformed payment event",
				"partition", m.Partition, "offset", m.Offset, "err", err)
			if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
				return err
			}
			continue
		}

		if err := c.handleWithRetry(ctx, h, ev); err != nil {
			// 停止中。未コミットのまま終わるので再起動後に再配信される
			return nil
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handleWithRetry は成功するか ctx が終わるまで h を呼び続ける。
func (c *KafkaConsumer) handleWithRetry(ctx context.Context, h PaymentEventHandler, ev model.PaymentEvent) error {
	wait, limit := c.retryMin, c.retryMax
	if wait <= 0 {
		wait = defaultRetryMin
	}
	if limit < wait {
		limit = max(defaultRetryMax, wait)
	}

	for attempt := 1; ; attempt++ {
		err := h(ctx, ev)
		if err == nil {
			return nil
		}
		obs.Logger.ErrorContext(ctx, "payment event handler failed",
			"event_id", ev.EventID, "order_id", ev.OrderID, "attempt", attempt, "retry_in", wait, "err", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait = min(wait*2, limit)
	}
}
