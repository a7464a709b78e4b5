package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	UpdateProfile(ctx context.Context, current *model.User, in user.ProfileUpdate) (*model.User, error)
	// Withdraw はユーザーと所有データをすべて削除する。
	Withdraw(ctx context.Context, userID int64) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

type updateUserResponse struct {
	Message string          `json:"message"`
	User    sessionResponse `json:"user"`
}

// UpdateMe は表示名とメールアドレスを更新する。
// PUT /auth/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req user.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), current, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updateUserResponse{
		Message: "User updated successfully",
		User:    sessionResponse{Name: updated.Name, Email: updated.Email},
	})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), current.ID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
