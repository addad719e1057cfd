package eventbus

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/workflowhub/internal/model"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	bus := New(logger)
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestBus_RunEventRoundTrip(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs, err := bus.SubscribeRuns(ctx)
	if err != nil {
		t.Fatalf("SubscribeRuns failed: %v", err)
	}

	published := &model.WorkflowRun{
		ID:            "run-1",
		UserID:        "user-1",
		WorkflowTitle: "Customer Communication",
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	if err := bus.PublishRunInserted(published); err != nil {
		t.Fatalf("PublishRunInserted failed: %v", err)
	}

	select {
	case got := <-runs:
		if got.ID != published.ID || got.WorkflowTitle != published.WorkflowTitle {
			t.Errorf("received run = %+v, want %+v", got, published)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("購読チャネルにイベントが届かなかった")
	}
}

func TestBus_SessionEventRoundTrip(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions, err := bus.SubscribeSessions(ctx)
	if err != nil {
		t.Fatalf("SubscribeSessions failed: %v", err)
	}

	event := &model.SessionEvent{
		Type:      model.SessionSignedOut,
		SessionID: "session-1",
		UserID:    "user-1",
	}
	if err := bus.PublishSessionEvent(event); err != nil {
		t.Fatalf("PublishSessionEvent failed: %v", err)
	}

	select {
	case got := <-sessions:
		if got.Type != model.SessionSignedOut || got.UserID != "user-1" {
			t.Errorf("received event = %+v, want %+v", got, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("購読チャネルにイベントが届かなかった")
	}
}

func TestBus_MultipleSubscribersReceiveSameEvent(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub1, err := bus.SubscribeRuns(ctx)
	if err != nil {
		t.Fatalf("SubscribeRuns failed: %v", err)
	}
	sub2, err := bus.SubscribeRuns(ctx)
	if err != nil {
		t.Fatalf("SubscribeRuns failed: %v", err)
	}

	if err := bus.PublishRunInserted(&model.WorkflowRun{ID: "run-1"}); err != nil {
		t.Fatalf("PublishRunInserted failed: %v", err)
	}

	for i, sub := range []<-chan *model.WorkflowRun{sub1, sub2} {
		select {
		case got := <-sub:
			if got.ID != "run-1" {
				t.Errorf("subscriber %d got %+v", i, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d にイベントが届かなかった", i)
		}
	}
}

func TestBus_ContextCancelClosesChannel(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())

	runs, err := bus.SubscribeRuns(ctx)
	if err != nil {
		t.Fatalf("SubscribeRuns failed: %v", err)
	}

	cancel()

	select {
	case _, ok := <-runs:
		if ok {
			t.Error("キャンセル後はチャネルがクローズされるべき")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にチャネルがクローズされなかった")
	}
}
