// Package ai は生成AI（Gemini API）を使った学習支援機能を提供する。
// 要約、自動分類、習得日予測、おすすめの4機能と、それらが共有するAPIクライアントを含む。
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// DefaultEndpoint はGemini APIのベースURL。
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel は既定の生成モデル名。
	DefaultModel = "gemini-3-pro-preview"

	maxResponseBytes = 1 << 20
)

// ErrEmptyResponse はモデルの応答にテキストが含まれない場合のエラー。
var ErrEmptyResponse = errors.New("model returned no candidates")

// Generator はプロンプトからJSON文字列を生成するインターフェース。
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// ClientConfig はClientの設定。
type ClientConfig struct {
	APIKey   string
	Model    string
	Endpoint string
}

// Client はGemini APIの generateContent を呼び出すクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	endpoint   string
}

// NewClient はClientの新しいインスタンスを生成する。APIキーが空の場合はエラーを返す。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

// GenerateJSON はJSON応答を指定してプロンプトを送信し、最初の候補のテキストを返す。
// APIキーはURLに含めずヘッダーで送る。
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	reqURL := c.endpoint + "/models/" + url.PathEscape(c.model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("生成AIの呼び出しに失敗しました",
			slog.String("model", c.model),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to call model: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(respBody, "error.message").String()
		c.logger.Error("生成AIがエラーステータスを返しました",
			slog.String("model", c.model),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", msg),
		)
		return "", fmt.Errorf("model returned status %d: %s", resp.StatusCode, msg)
	}

	text := gjson.GetBytes(respBody, "candidates.0.content.parts.0.text")
	if !text.Exists() || strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

var _ Generator = (*Client)(nil)
