// Package events は支払いイベントの発行と購読（Kafka / RabbitMQ）。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs-labo46/storefront/internal/domain/model"
)

// 購読側の処理。nil を返したときだけ offset / ack を進める。
type PaymentEventHandler func(ctx context.Context, ev model.PaymentEvent) error

func encode(ev model.PaymentEvent) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode payment event: %w", err)
	}
	return b, nil
}

func decode(b []byte) (model.PaymentEvent, error) {
	var ev model.PaymentEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return model.PaymentEvent{}, fmt.Errorf("decode payment event: %w", err)
	}
	return ev, nil
}

// 同じ注文のイベントは同じパーティションへ
func partitionKey(ev model.PaymentEvent) []byte {
	return []byte(strconv.FormatInt(ev.OrderID, 10))
}

// DirectPublisher はブローカーなしの構成で使う。同じプロセス内でそのまま処理する。
type DirectPublisher struct {
	Handler PaymentEventHandler // nilなら捨てる
}

func (p DirectPublisher) PublishPaymentEvent(ctx context.Context, ev model.PaymentEvent) error {
	if p.Handler == nil {
		return nil
	}
	return p.Handler(ctx, ev)
}
