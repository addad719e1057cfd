package client

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultFeedWindow はアクティビティフィードの表示件数。
const DefaultFeedWindow = 5

// ActivityFeed はワークフロー実行ログの直近ウィンドウを保持する。
//
// マウント時に直近min(N, 既存件数)件を取得し、以降は挿入イベントを購読して
// 先頭に追加→N件に切り詰める。フィードは新しい順の固定サイズウィンドウであり、
// 無制限のログではない。購読はCloseで解除され、再マウント時の二重追加を防ぐ。
type ActivityFeed struct {
	backend Backend
	logger  *slog.Logger
	window  int

	mu   sync.Mutex
	runs []Run

	cancel context.CancelFunc
	done   chan struct{}
}

// NewActivityFeed はActivityFeedを生成する。windowが0以下の場合はデフォルトの5を使う。
func NewActivityFeed(backend Backend, logger *slog.Logger, window int) *ActivityFeed {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = DefaultFeedWindow
	}
	return &ActivityFeed{
		backend: backend,
		logger:  logger,
		window:  window,
	}
}

// Start は初期ロードと挿入イベントの購読を開始する。
// 初期ロードの失敗はエラーとして返すが、購読は継続する。
func (f *ActivityFeed) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	_, runs, err := f.backend.Events(ctx)
	if err != nil {
		f.logger.Warn("run event subscription failed", slog.String("error", err.Error()))
		runs = nil
	}

	loadErr := f.load(ctx)

	go f.listen(ctx, runs)

	return loadErr
}

// load は直近の実行レコードを取得して初期ウィンドウを構築する。
func (f *ActivityFeed) load(ctx context.Context) error {
	recent, err := f.backend.ListRecentRuns(ctx, f.window)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(recent) > f.window {
		recent = recent[:f.window]
	}
	f.runs = recent
	return nil
}

// listen は挿入イベントを消費し、ウィンドウを更新するループ。
func (f *ActivityFeed) listen(ctx context.Context, runs <-chan Run) {
	defer close(f.done)

	if runs == nil {
		<-ctx.Done()
		return
	}

	for {
		select {
		case run, ok := <-runs:
			if !ok {
				return
			}
			f.prepend(run)
		case <-ctx.Done():
			return
		}
	}
}

// prepend は新しいレコードを先頭に追加し、ウィンドウサイズに切り詰める。
// 変更は常にprepend-then-truncateであり、任意位置の挿入は行わない。
func (f *ActivityFeed) prepend(run Run) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.runs = append([]Run{run}, f.runs...)
	if len(f.runs) > f.window {
		f.runs = f.runs[:f.window]
	}
}

// Runs は現在のウィンドウのコピーを新しい順で返す。
func (f *ActivityFeed) Runs() []Run {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Run, len(f.runs))
	copy(out, f.runs)
	return out
}

// Empty はレコードが1件もないかどうかを返す。
// 空の場合、UIは空リストではなく行動喚起メッセージを表示する。
func (f *ActivityFeed) Empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs) == 0
}

// Close は購読を解除し、リスナーループの終了を待つ。
func (f *ActivityFeed) Close() {
	if f.cancel != nil {
		f.cancel()
	}
	if f.done != nil {
		<-f.done
	}
}
