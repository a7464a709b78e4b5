package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType はトークンの用途を表す。
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// 既定の有効期間
const (
	DefaultAccessTokenTTL  = 5 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

var (
	// ErrInvalidToken は署名不一致・形式不正・デコード失敗を表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongTokenType は用途の異なるトークンが渡されたことを表す。
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrTokenExpired は有効期限切れを表す。
	ErrTokenExpired = errors.New("token expired")
	// ErrMissingSecret は署名鍵が未設定であることを表す。
	ErrMissingSecret = errors.New("token signing secret is not configured")
)

// Claims はトークンのクレーム。sub にメールアドレス、type に用途を持つ。
type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair はサインイン・リフレッシュ時に返すトークンの組。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// TokenIssuer はHS256で署名したトークンを発行・検証する。
// サーバー側にトークンの保存や失効リストは持たず、期限切れが唯一の無効化手段になる。
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenIssuerOption はTokenIssuerの設定を変更する。
type TokenIssuerOption func(*TokenIssuer)

// WithTTL はアクセストークンとリフレッシュトークンの有効期間を設定する。
func WithTTL(access, refresh time.Duration) TokenIssuerOption {
	return func(i *TokenIssuer) {
		if access > 0 {
			i.accessTTL = access
		}
		if refresh > 0 {
			i.refreshTTL = refresh
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。テストで有効期限を検証するために使う。
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(i *TokenIssuer) { i.now = now }
}

// NewTokenIssuer はTokenIssuerを生成する。secret が空の場合はエラーを返す。
func NewTokenIssuer(secret string, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	i := &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// IssuePair はアクセストークンとリフレッシュトークンを新たに発行する。
func (i *TokenIssuer) IssuePair(email string) (*TokenPair, error) {
	access, err := i.issue(email, TokenTypeAccess, i.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := i.issue(email, TokenTypeRefresh, i.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

func (i *TokenIssuer) issue(email string, typ TokenType, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Parse は署名検証、用途の確認、有効期限の確認をこの順で行い、クレームを返す。
func (i *TokenIssuer) Parse(tokenString string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, claims.Type, want)
	}
	if claims.ExpiresAt == nil || !i.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}
