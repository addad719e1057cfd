// Package account はユーザープロフィールの取得・更新を提供する。
package account

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/workflowhub/internal/model"
	"github.com/hitoshi/workflowhub/internal/repository"
	"github.com/microcosm-cc/bluemonday"
)

// Service はプロフィールに関するビジネスロジックを提供する。
type Service struct {
	profileRepo repository.ProfileRepository
	sanitizer   *bluemonday.Policy
}

// NewService はServiceを生成する。
func NewService(profileRepo repository.ProfileRepository) *Service {
	return &Service{
		profileRepo: profileRepo,
		// 表示名にHTMLは不要なのでStrictPolicyで全タグを除去する
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// GetProfile は指定ユーザーのプロフィールを取得する。
// 未作成の場合はnilを返す。nilは「まだ作成されていない」正常な状態であり、
// 呼び出し側はエラーと区別して扱うこと。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile はプロフィールを更新して返す。
// full_nameはHTMLタグを除去してから保存する。
// nilのフィールドは「変更しない」を意味する部分更新を行う。
func (s *Service) UpdateProfile(ctx context.Context, userID string, fullName, avatarURL *string) (*model.Profile, error) {
	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if profile == nil {
		return nil, model.NewUserNotFoundError()
	}

	if fullName != nil {
		sanitized := s.sanitizer.Sanitize(*fullName)
		profile.FullName = &sanitized
	}
	if avatarURL != nil {
		profile.AvatarURL = avatarURL
	}
	profile.UpdatedAt = time.Now()

	if err := s.profileRepo.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return profile, nil
}
