// Package run はワークフロートリガーの実行と実行ログ管理を提供する。
package run

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/workflowhub/internal/catalog"
	"github.com/hitoshi/workflowhub/internal/metrics"
	"github.com/hitoshi/workflowhub/internal/model"
	"github.com/hitoshi/workflowhub/internal/repository"
)

// defaultActivityLimit は直近アクティビティのデフォルト取得件数。
const defaultActivityLimit = 5

// EventPublisher は実行ログ追加イベントの発行インターフェース。
// eventbus.Busの部分集合として定義する。
type EventPublisher interface {
	PublishRunInserted(run *model.WorkflowRun) error
}

// Service はワークフロートリガーに関するビジネスロジックを提供する。
type Service struct {
	catalog        *catalog.Catalog
	runRepo        repository.WorkflowRunRepository
	dispatcher     Dispatcher
	events         EventPublisher
	metrics        metrics.MetricsCollector
	activityWindow int
}

// NewService はServiceを生成する。
// activityWindowはRecentActivityのデフォルト取得件数（ACTIVITY_WINDOW設定）。
// 0以下の場合は5件にフォールバックする。
func NewService(
	cat *catalog.Catalog,
	runRepo repository.WorkflowRunRepository,
	dispatcher Dispatcher,
	events EventPublisher,
	collector metrics.MetricsCollector,
	activityWindow int,
) *Service {
	if activityWindow <= 0 {
		activityWindow = defaultActivityLimit
	}
	return &Service{
		catalog:        cat,
		runRepo:        runRepo,
		dispatcher:     dispatcher,
		events:         events,
		metrics:        collector,
		activityWindow: activityWindow,
	}
}

// Trigger はワークフローをトリガーする。
// ディスパッチ成功時は実行ログをベストエフォートで記録する。
// ログ記録の失敗はトリガーの成否に影響させない（ログのみ）。
// ディスパッチ失敗時はレコードを作成せずエラーを返す。
func (s *Service) Trigger(ctx context.Context, userID, title string, params map[string]string) (*model.WorkflowRun, error) {
	service := s.catalog.FindByTitle(title)
	if service == nil {
		return nil, model.NewServiceNotFoundError(title)
	}

	if err := service.ValidateParams(params); err != nil {
		return nil, err
	}

	start := time.Now()
	err := s.dispatcher.Dispatch(ctx, service.WebhookURL, params)
	if s.metrics != nil {
		s.metrics.RecordTriggerLatency(time.Since(start))
	}

	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordTriggerFailure(title)
		}
		slog.Warn("workflow trigger failed",
			slog.String("user_id", userID),
			slog.String("workflow_title", title),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordTriggerSuccess(title)
	}

	// トリガー成功後の記録はベストエフォート。失敗してもユーザーに見せる
	// 結果は成功のまま維持する。
	workflowRun := &model.WorkflowRun{
		ID:            uuid.New().String(),
		UserID:        userID,
		WorkflowTitle: title,
		CreatedAt:     time.Now(),
	}

	if err := s.runRepo.Insert(ctx, workflowRun); err != nil {
		slog.Error("failed to log workflow run",
			slog.String("user_id", userID),
			slog.String("workflow_title", title),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	if s.metrics != nil {
		s.metrics.RecordRunLogged()
	}

	if s.events != nil {
		if err := s.events.PublishRunInserted(workflowRun); err != nil {
			slog.Error("failed to publish run event",
				slog.String("run_id", workflowRun.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return workflowRun, nil
}

// RecentActivity は直近の実行ログを作成日時降順で返す。
// limitが0以下の場合は設定されたアクティビティウィンドウを使用する。
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]*model.WorkflowRun, error) {
	if limit <= 0 {
		limit = s.activityWindow
	}
	runs, err := s.runRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent activity: %w", err)
	}
	return runs, nil
}
