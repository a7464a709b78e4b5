// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/skillstack/internal/auth"
	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/repository"
)

const msgEmailInUse = "Email already in use"

// ProfileUpdate はプロフィール更新の入力。nil のフィールドは変更しない。
type ProfileUpdate struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// UpdateProfile は表示名とメールアドレスを更新する。
// トークンの sub はメールアドレスのため、メールアドレスを変更すると既存のトークンは使えなくなる。
func (s *Service) UpdateProfile(ctx context.Context, current *model.User, in ProfileUpdate) (*model.User, error) {
	changes := datastore.Values{}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, model.NewValidationError("Name must not be empty")
		}
		changes["name"] = name
	}

	if in.Email != nil && *in.Email != current.Email {
		if err := auth.ValidateEmail(*in.Email); err != nil {
			return nil, err
		}
		other, err := s.userRepo.FindByEmail(ctx, *in.Email)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if other != nil && other.ID != current.ID {
			return nil, model.NewConflictError(msgEmailInUse)
		}
		changes["email"] = *in.Email
	}

	if len(changes) == 0 {
		if in.Name == nil && in.Email == nil {
			return nil, model.NewValidationError("No data provided for update")
		}
		// 現在と同じメールアドレスのみが指定された場合
		return current, nil
	}

	updated, err := s.userRepo.UpdateProfile(ctx, current.ID, changes)
	if err != nil {
		if errors.Is(err, datastore.ErrConflict) {
			return nil, model.NewConflictError(msgEmailInUse)
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("プロフィールを更新しました", slog.Int64("user_id", current.ID))
	return updated, nil
}

// Withdraw はユーザーの退会処理を実行する。
// リソース、ソース、種別、プラットフォーム、ユーザーの順に同一トランザクションで削除する。
func (s *Service) Withdraw(ctx context.Context, userID int64) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します", slog.Int64("user_id", userID))

	if err := s.userRepo.DeleteAccount(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.Int64("user_id", userID))
	return nil
}
