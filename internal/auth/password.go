package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost は本番で使うbcryptのコスト。
const DefaultBcryptCost = 12

// PasswordHasher はパスワードを sha256 の16進ダイジェスト（64文字）に正規化してから
// bcrypt でハッシュ化する。bcrypt の72バイト上限に入力長が左右されないようにするため。
// 登録と検証は必ず同じパイプラインを通す。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はPasswordHasherを生成する。cost が範囲外の場合は DefaultBcryptCost を使う。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash は保存用のハッシュを返す。ソルトは毎回生成されハッシュ文字列に埋め込まれる。
func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(digest(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify はパスワードが保存済みハッシュと一致するかを定数時間比較で判定する。
// コストは保存済みハッシュに埋め込まれた値をそのまま使う。
func (h *PasswordHasher) Verify(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), digest(password))
	return err == nil
}

func digest(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(hex.EncodeToString(sum[:]))
}
