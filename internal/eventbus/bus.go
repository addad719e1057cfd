// Package eventbus はプロセス内のイベント配信を提供する。
// セッション変化イベントと実行ログ追加イベントの2トピックを扱う。
// 内部実装はWatermillのGoChannel Pub/Subで、外部ブローカーを必要としない。
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/hitoshi/workflowhub/internal/model"
)

const (
	// TopicRuns は実行ログ追加イベントのトピック。
	TopicRuns = "workflowhub.runs"
	// TopicSessions はセッション変化イベントのトピック。
	TopicSessions = "workflowhub.sessions"
)

// Bus はプロセス内イベントバス。
// 発行はサービス層のみが行い、購読者は読み取り専用の観測者である。
type Bus struct {
	pubSub *gochannel.GoChannel
}

// New はGoChannelベースのBusを生成する。
func New(logger *slog.Logger) *Bus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 64,
			Persistent:          false,
		},
		watermill.NewSlogLogger(logger),
	)

	return &Bus{pubSub: pubSub}
}

// PublishRunInserted は実行ログ追加イベントを発行する。
func (b *Bus) PublishRunInserted(run *model.WorkflowRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.pubSub.Publish(TopicRuns, msg)
}

// PublishSessionEvent はセッション変化イベントを発行する。
func (b *Bus) PublishSessionEvent(event *model.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.pubSub.Publish(TopicSessions, msg)
}

// SubscribeRuns は実行ログ追加イベントの購読チャネルを返す。
// ctxのキャンセルで購読は解除され、チャネルはクローズされる。
// デコードに失敗したメッセージはログに記録して読み飛ばす。
func (b *Bus) SubscribeRuns(ctx context.Context) (<-chan *model.WorkflowRun, error) {
	messages, err := b.pubSub.Subscribe(ctx, TopicRuns)
	if err != nil {
		return nil, err
	}

	out := make(chan *model.WorkflowRun)
	go func() {
		defer close(out)
		for msg := range messages {
			run := &model.WorkflowRun{}
			if err := json.Unmarshal(msg.Payload, run); err != nil {
				slog.Error("failed to decode run event", slog.String("error", err.Error()))
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- run:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// SubscribeSessions はセッション変化イベントの購読チャネルを返す。
// ctxのキャンセルで購読は解除され、チャネルはクローズされる。
func (b *Bus) SubscribeSessions(ctx context.Context) (<-chan *model.SessionEvent, error) {
	messages, err := b.pubSub.Subscribe(ctx, TopicSessions)
	if err != nil {
		return nil, err
	}

	out := make(chan *model.SessionEvent)
	go func() {
		defer close(out)
		for msg := range messages {
			event := &model.SessionEvent{}
			if err := json.Unmarshal(msg.Payload, event); err != nil {
				slog.Error("failed to decode session event", slog.String("error", err.Error()))
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close はバスを閉じ、全購読チャネルをクローズする。
func (b *Bus) Close() error {
	return b.pubSub.Close()
}
