package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/workflowhub/internal/middleware"
	"github.com/hitoshi/workflowhub/internal/model"
)

const (
	// writeWait はWebSocketへの書き込みタイムアウト。
	writeWait = 10 * time.Second

	// pongWait はクライアントからのPong応答の待機時間。
	pongWait = 60 * time.Second

	// pingPeriod はPing送信間隔。pongWaitより短くする必要がある。
	pingPeriod = (pongWait * 9) / 10
)

// EventSubscriber はイベントハンドラーが必要とするイベントバスのインターフェース。
type EventSubscriber interface {
	SubscribeRuns(ctx context.Context) (<-chan *model.WorkflowRun, error)
	SubscribeSessions(ctx context.Context) (<-chan *model.SessionEvent, error)
}

// eventEnvelope はWebSocketで配信するイベントの外装。
type eventEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EventsHandler はWebSocketによるリアルタイムイベント配信のハンドラー。
// 実行ログ追加イベントは全接続に、セッション変化イベントは
// 当該ユーザーの接続にのみ配信する。
type EventsHandler struct {
	subscriber EventSubscriber
	upgrader   websocket.Upgrader
}

// NewEventsHandler はEventsHandlerを生成する。
// allowedOriginはWebSocketハンドシェイクのOrigin検証に使う。
func NewEventsHandler(subscriber EventSubscriber, allowedOrigin string) *EventsHandler {
	return &EventsHandler{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Originヘッダーなし（同一オリジン・非ブラウザ）は許可
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// Stream はWebSocket接続を確立し、イベントを配信する。
// GET /api/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeが失敗した場合はupgraderが既にエラーレスポンスを書いている
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	runs, err := h.subscriber.SubscribeRuns(ctx)
	if err != nil {
		slog.Error("failed to subscribe runs", slog.String("error", err.Error()))
		return
	}

	sessions, err := h.subscriber.SubscribeSessions(ctx)
	if err != nil {
		slog.Error("failed to subscribe sessions", slog.String("error", err.Error()))
		return
	}

	// 読み取りループ: クライアントの切断検知とPong処理のみ
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case run, ok := <-runs:
			if !ok {
				return
			}
			if err := writeEvent(conn, "run_inserted", run); err != nil {
				return
			}

		case event, ok := <-sessions:
			if !ok {
				return
			}
			// 他ユーザーのセッション変化は配信しない
			if event.UserID != userID {
				continue
			}
			if err := writeEvent(conn, "session", event); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// writeEvent はイベントをJSONフレームとして書き込む。
func writeEvent(conn *websocket.Conn, eventType string, payload any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(eventEnvelope{
		Type:    eventType,
		Payload: payload,
	})
}
