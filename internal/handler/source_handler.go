package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/source"
)

// SourceServiceInterface はソースハンドラーが必要とするサービスインターフェース。
type SourceServiceInterface interface {
	List(ctx context.Context, userID int64) ([]model.Source, error)
	// Register はURLからフィードを検出して登録する。
	Register(ctx context.Context, userID int64, in source.RegisterInput) (*model.Source, error)
	Delete(ctx context.Context, userID, id int64) error
}

// SourceHandler はフィード取り込み元のHTTPハンドラー。
type SourceHandler struct {
	service SourceServiceInterface
}

// NewSourceHandler はSourceHandlerを生成する。
func NewSourceHandler(service SourceServiceInterface) *SourceHandler {
	return &SourceHandler{service: service}
}

// List はソース一覧を返す。
// GET /api/sources
func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.service.List(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Register はソースを登録する。
// POST /api/sources
func (h *SourceHandler) Register(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var in source.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}

	created, err := h.service.Register(r.Context(), user.ID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Delete はソースを削除する。取り込み済みのリソースは残す。
// DELETE /api/sources/{id}
func (h *SourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), user.ID, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
