// Package auth はパスワード認証、トークンの発行・検証を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// クライアントに返すメッセージ。アカウントの存在有無を区別しない。
const (
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidToken       = "Could not validate credentials"
	msgInvalidRefresh     = "Invalid refresh token"
	msgEmailRegistered    = "Email already registered"
)

// AttemptRecorder は認証操作の結果を記録する。metrics.Collector が実装する。
type AttemptRecorder interface {
	RecordAuthAttempt(operation, outcome string)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users    repository.UserRepository
	hasher   *PasswordHasher
	tokens   *TokenIssuer
	recorder AttemptRecorder

	// dummyHash は存在しないユーザーへのサインインでも bcrypt 比較を1回行うためのハッシュ。
	dummyHash string
}

// NewService はServiceを生成する。recorder は nil でもよい。
func NewService(users repository.UserRepository, hasher *PasswordHasher, tokens *TokenIssuer, recorder AttemptRecorder) (*Service, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate dummy password: %w", err)
	}
	dummy, err := hasher.Hash(hex.EncodeToString(b))
	if err != nil {
		return nil, err
	}

	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		recorder:  recorder,
		dummyHash: dummy,
	}, nil
}

// SignUp はユーザーを登録する。
func (s *Service) SignUp(ctx context.Context, email, password, name string) (*model.User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("Name is required")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		s.record("signup", "conflict")
		return nil, model.NewConflictError(msgEmailRegistered)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, email, hash, name)
	if err != nil {
		if errors.Is(err, datastore.ErrConflict) {
			s.record("signup", "conflict")
			return nil, model.NewConflictError(msgEmailRegistered)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.record("signup", "success")
	slog.Info("user signed up", slog.Int64("user_id", user.ID))
	return user, nil
}

// SignIn はメールアドレスとパスワードを検証し、トークンの組を発行する。
// 未登録のメールアドレスでもダミーハッシュとの比較を行い、応答時間で存在を推測させない。
func (s *Service) SignIn(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	ok := s.hasher.Verify(hash, password)
	if user == nil || !ok {
		s.record("signin", "failure")
		return nil, model.NewAuthenticationError(msgInvalidCredentials)
	}

	pair, err := s.tokens.IssuePair(user.Email)
	if err != nil {
		return nil, err
	}
	s.record("signin", "success")
	slog.Info("user signed in", slog.Int64("user_id", user.ID))
	return pair, nil
}

// Refresh はリフレッシュトークンを検証し、新しいアクセストークンとリフレッシュトークンを発行する。
// 古いリフレッシュトークンは失効させない（期限切れまで有効）。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		s.record("refresh", "failure")
		slog.Debug("refresh token rejected", slog.String("reason", err.Error()))
		return nil, model.NewAuthenticationError(msgInvalidRefresh)
	}

	user, err := s.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.record("refresh", "failure")
		return nil, model.NewAuthenticationError(msgInvalidRefresh)
	}

	pair, err := s.tokens.IssuePair(user.Email)
	if err != nil {
		return nil, err
	}
	s.record("refresh", "success")
	return pair, nil
}

// Authenticate はアクセストークンを検証し、対応するユーザーを返す。
// 署名、用途、有効期限、ユーザーの存在をこの順に確認し、いずれかに失敗すると認証エラーを返す。
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	claims, err := s.tokens.Parse(accessToken, TokenTypeAccess)
	if err != nil {
		s.record("authenticate", "failure")
		slog.Debug("access token rejected", slog.String("reason", err.Error()))
		return nil, model.NewAuthenticationError(msgInvalidToken)
	}

	user, err := s.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.record("authenticate", "failure")
		return nil, model.NewAuthenticationError(msgInvalidToken)
	}
	return user, nil
}

func (s *Service) record(operation, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordAuthAttempt(operation, outcome)
	}
}

// ValidateEmail はメールアドレスの形式を検証する。表示名付きの形式は受け付けない。
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewValidationError("Invalid email address")
	}
	return nil
}
