package handler

import (
	"context"
	"net/http"
)

// TaxonomyServiceInterface はリソース種別・プラットフォームのハンドラーが必要とするサービスインターフェース。
type TaxonomyServiceInterface[T any] interface {
	List(ctx context.Context, userID int64) ([]T, error)
	Create(ctx context.Context, userID int64, name string) (*T, error)
	Rename(ctx context.Context, userID, id int64, name string) (*T, error)
	Delete(ctx context.Context, userID, id int64) error
}

// TaxonomyHandler はユーザー定義の分類（種別・プラットフォーム）のHTTPハンドラー。
type TaxonomyHandler[T any] struct {
	service TaxonomyServiceInterface[T]
}

// NewTaxonomyHandler はTaxonomyHandlerを生成する。
func NewTaxonomyHandler[T any](service TaxonomyServiceInterface[T]) *TaxonomyHandler[T] {
	return &TaxonomyHandler[T]{service: service}
}

type taxonomyRequest struct {
	Name string `json:"name"`
}

// List は分類の一覧を返す。
func (h *TaxonomyHandler[T]) List(w http.ResponseWriter, r *http.Request) {
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

// Create は分類を作成する。
func (h *TaxonomyHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req taxonomyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), user.ID, req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Rename は分類の名前を変更する。
func (h *TaxonomyHandler[T]) Rename(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req taxonomyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.Rename(r.Context(), user.ID, id, req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete は分類を削除する。参照中のものは削除できない。
func (h *TaxonomyHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
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
