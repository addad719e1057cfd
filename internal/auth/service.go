// Package auth はメール・パスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/workflowhub/internal/model"
	"github.com/hitoshi/workflowhub/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 6

// EventPublisher はセッション変化イベントの発行インターフェース。
// eventbus.Busの部分集合として定義する。
type EventPublisher interface {
	PublishSessionEvent(event *model.SessionEvent) error
}

// Metrics は認証サービスが記録するメトリクスのインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type Metrics interface {
	RecordSignIn(success bool)
	RecordSignUp()
}

// ServiceConfig はServiceの動作パラメータ。
type ServiceConfig struct {
	SessionMaxAge int // セッションの寿命（秒）
}

// Service はサインアップ・サインイン・セッション管理を担う。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	events      EventPublisher
	metrics     Metrics
	config      ServiceConfig
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	events EventPublisher,
	collector Metrics,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		events:      events,
		metrics:     collector,
		config:      config,
	}
}

// SignUp は新規アカウントを作成する。
// アカウントはメール確認待ち（email_confirmed = false）の状態で作成され、
// セッションは発行しない。空のプロフィールレコードを同時に作成する。
// 登録済みメールアドレスの場合はAPIErrorを返す。
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.User, error) {
	if len(password) < minPasswordLength {
		return nil, model.NewWeakPasswordError()
	}

	// 1. メールアドレスの重複チェック
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}

	// 2. パスワードのハッシュ化
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 3. ユーザーと空プロフィールを同一トランザクションで作成
	now := time.Now()
	user := &model.User{
		ID:             uuid.New().String(),
		Email:          email,
		PasswordHash:   string(hash),
		EmailConfirmed: false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	profile := &model.Profile{
		UserID:    user.ID,
		UpdatedAt: now,
	}

	if err := s.userRepo.CreateWithProfile(ctx, user, profile); err != nil {
		return nil, fmt.Errorf("failed to create user and profile: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSignUp()
	}

	slog.Info("new user signed up",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)

	return user, nil
}

// SignInWithPassword は認証情報を検証し、セッションを発行する。
// ユーザーの存在有無を区別させないため、不一致はすべて同一のAPIErrorを返す。
// セッション発行後にSIGNED_INイベントを発行する（発行失敗はログのみ）。
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.recordSignIn(false)
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordSignIn(false)
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.publishEvent(&model.SessionEvent{
		Type:      model.SessionSignedIn,
		SessionID: session.ID,
		UserID:    user.ID,
	})
	s.recordSignIn(true)

	slog.Info("user signed in", slog.String("user_id", user.ID))

	return session, user, nil
}

// SignOut はセッションを破棄し、SIGNED_OUTイベントを発行する。
// 認証状態のクリアは呼び出し側で行わず、イベントの観測に委ねる。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	event := &model.SessionEvent{
		Type:      model.SessionSignedOut,
		SessionID: sessionID,
	}
	if session != nil {
		event.UserID = session.UserID
	}
	s.publishEvent(event)

	slog.Info("user signed out", slog.String("session_id", sessionID))
	return nil
}

// GetSession はセッションIDからセッションを取得する。
// 存在しない、または期限切れの場合はnilを返す（エラーではない）。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// GetCurrentUser はセッションIDに対応するユーザーを解決する。
// セッションが存在しない・期限切れ・ユーザーが消えている場合は
// GetSessionと同様に(nil, nil)を返す。未認証は正常な状態であり、エラーではない。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// UpdatePassword はユーザーのパスワードを更新する。
// 漏洩した資格情報で張られた可能性のある他デバイスのセッションを失効させるため、
// 当該ユーザーの全セッションを削除し、変更を行った現在のセッションだけを
// 同じIDで張り直す。ユーザーに再ログインは要求しない。
func (s *Service) UpdatePassword(ctx context.Context, userID, sessionID, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return model.NewWeakPasswordError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return fmt.Errorf("failed to recreate current session: %w", err)
	}

	slog.Info("password updated", slog.String("user_id", userID))
	return nil
}

// createSession は新しいセッションを発行してDBに保存する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// publishEvent はセッション変化イベントを発行する。
// イベント発行の失敗は認証処理自体を失敗させない（ログのみ）。
func (s *Service) publishEvent(event *model.SessionEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSessionEvent(event); err != nil {
		slog.Error("failed to publish session event",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// recordSignIn はサインイン試行のメトリクスを記録する。
func (s *Service) recordSignIn(success bool) {
	if s.metrics != nil {
		s.metrics.RecordSignIn(success)
	}
}

// generateSessionID は推測不能なセッションIDを乱数から作る。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
