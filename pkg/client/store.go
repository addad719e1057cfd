package client

import (
	"context"
	"log/slog"
	"sync"
)

// Snapshot はSessionStoreの観測可能な状態のコピー。
type Snapshot struct {
	// User は認証済みユーザー。未認証の場合はnil。
	User *User
	// Profile はユーザープロフィール。未認証または未取得の場合はnil。
	// UserがnilのときProfileは必ずnil。
	Profile *Profile
	// InitialLoading は初回のセッション＋プロフィール解決が完了するまでtrue。
	InitialLoading bool
	// Refreshing はセッション変化イベントによるプロフィール再取得中にtrue。
	// ルートガードはこのフラグでは画面を切り替えない。
	Refreshing bool
}

// Observer はSessionStoreの状態変化を受け取るコールバック。
type Observer func(Snapshot)

// SessionStore はプロセス全体の認証状態を保持する単一の書き込み者。
// 他のコンポーネントはすべて読み取り専用の観測者である。
//
// 初期化時にセッションを1回取得し、セッションが存在すればプロフィールを
// 続けて取得する。以降はバックエンド起点のセッション変化イベントを購読し、
// イベントごとにセッションとプロフィールを決定的に再導出する。
// サインイン・サインアウトを起点とした状態遷移もこの購読が唯一の真実であり、
// 操作の完了をもって認証済みとみなしてはならない。
type SessionStore struct {
	backend Backend
	logger  *slog.Logger

	mu             sync.Mutex
	user           *User
	profile        *Profile
	initialLoading bool
	refreshing     bool

	// generation はセッション変化イベントごとに増加する単調カウンター。
	// 遅延して解決したプロフィール取得の結果は、世代が古ければ破棄する。
	generation uint64

	observers map[int]Observer
	nextObsID int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionStore はSessionStoreを生成する。loggerがnilの場合はslog.Defaultを使う。
func NewSessionStore(backend Backend, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		backend:        backend,
		logger:         logger,
		initialLoading: true,
		observers:      make(map[int]Observer),
	}
}

// Start は初期セッション解決とイベント購読を開始する。
// 購読はStoreのライフタイムでちょうど1つ。Closeで解除される。
func (s *SessionStore) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	// 1. イベント購読を先に確立する（初期取得との間のイベント欠落を防ぐ）
	sessions, _, err := s.backend.Events(ctx)
	if err != nil {
		// 購読できなくても初期解決は行う。ログのみ。
		s.logger.Warn("session event subscription failed",
			slog.String("error", err.Error()),
		)
		sessions = nil
	}

	// 2. 初期セッション解決
	s.resolveInitial(ctx)

	// 3. リスナーループ
	go s.listen(ctx, sessions)

	return nil
}

// resolveInitial は現在のセッションとプロフィールを1回取得する。
// プロフィール取得の失敗は致命的ではなく、profileはnilのままになる。
func (s *SessionStore) resolveInitial(ctx context.Context) {
	session, err := s.backend.GetSession(ctx)
	if err != nil {
		s.logger.Warn("initial session fetch failed", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	if session != nil {
		s.user = &session.User
		s.profile = session.Profile
	} else {
		s.user = nil
		s.profile = nil
	}
	s.initialLoading = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// listen はセッション変化イベントを消費するループ。
func (s *SessionStore) listen(ctx context.Context, sessions <-chan SessionEvent) {
	defer close(s.done)

	if sessions == nil {
		<-ctx.Done()
		return
	}

	for {
		select {
		case event, ok := <-sessions:
			if !ok {
				return
			}
			s.applyEvent(ctx, event)
		case <-ctx.Done():
			return
		}
	}
}

// applyEvent はセッション変化イベントを状態に反映する。
// SIGNED_OUT: セッションとプロフィールを即座にクリアする。
// SIGNED_IN: セッションを再取得し、プロフィールを再導出する。
// 世代カウンターにより、遅延した取得結果が新しい状態を上書きすることはない。
func (s *SessionStore) applyEvent(ctx context.Context, event SessionEvent) {
	s.mu.Lock()
	s.generation++
	gen := s.generation

	if event.Type == EventSignedOut {
		s.user = nil
		s.profile = nil
		s.refreshing = false
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return
	}

	s.refreshing = true
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	// セッションとプロフィールをバックエンドから再導出する
	session, err := s.backend.GetSession(ctx)
	if err != nil {
		s.logger.Warn("session refresh failed", slog.String("error", err.Error()))
		session = nil
	}

	s.mu.Lock()
	// 古い世代の結果は破棄する
	if gen != s.generation {
		s.mu.Unlock()
		return
	}

	if session != nil {
		s.user = &session.User
		s.profile = session.Profile
	} else {
		s.user = nil
		s.profile = nil
	}
	s.refreshing = false
	snap = s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Snapshot は現在の状態のコピーを返す。
func (s *SessionStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshotLocked はロック保持下でSnapshotを構築する。
func (s *SessionStore) snapshotLocked() Snapshot {
	return Snapshot{
		User:           s.user,
		Profile:        s.profile,
		InitialLoading: s.initialLoading,
		Refreshing:     s.refreshing,
	}
}

// Subscribe は状態変化の観測者を登録し、解除関数を返す。
func (s *SessionStore) Subscribe(observer Observer) func() {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = observer
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// notify は全観測者に状態変化を通知する。
func (s *SessionStore) notify(snap Snapshot) {
	s.mu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, obs := range s.observers {
		observers = append(observers, obs)
	}
	s.mu.Unlock()

	for _, obs := range observers {
		obs(snap)
	}
}

// SignOut はバックエンドのサインアウトを呼び出す。
// ローカル状態は直接クリアせず、SIGNED_OUTイベントの観測によって伝搬する。
// 呼び出し側は同期的なクリアを仮定してはならない。
func (s *SessionStore) SignOut(ctx context.Context) error {
	return s.backend.SignOut(ctx)
}

// Close は購読を解除し、リスナーループの終了を待つ。
func (s *SessionStore) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
