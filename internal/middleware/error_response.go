package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/skillstack/internal/model"
)

// ErrorResponseBody はミドルウェアが返すAPIエラーの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ErrorEnvelope はエラーボディを "error" キーで包む。
type ErrorEnvelope struct {
	Error ErrorResponseBody `json:"error"`
}

// DetailResponseBody はハンドラーと認証が返すエラーフォーマット。フロントエンドは detail を表示する。
type DetailResponseBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorEnvelope{Error: ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}})
}

// WriteDetailResponse は {"detail","code"} 形式でHTTPエラーレスポンスを書き込む。
func WriteDetailResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(DetailResponseBody{
		Detail: apiErr.Message,
		Code:   apiErr.Code,
	})
}

// InternalError は内部エラーをクライアントに返す際の汎用エラー。詳細はログのみに記録する。
func InternalError() *model.APIError {
	return &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Internal server error",
		Category: "system",
		Action:   "Try again later.",
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, InternalError())
}
