package ai

import (
	"context"
	"sync"
)

// LazyClient は最初の利用時に一度だけGeneratorを構築する。
// 構築エラーも記憶し、以降の呼び出しは同じエラーを返す。
type LazyClient struct {
	once  sync.Once
	build func() (Generator, error)
	gen   Generator
	err   error
}

// NewLazyClient はLazyClientを生成する。build は高々1回しか呼ばれない。
func NewLazyClient(build func() (Generator, error)) *LazyClient {
	return &LazyClient{build: build}
}

// Get は構築済みのGeneratorを返す。
func (l *LazyClient) Get() (Generator, error) {
	l.once.Do(func() {
		l.gen, l.err = l.build()
	})
	return l.gen, l.err
}

// GenerateJSON は初回呼び出し時にクライアントを構築し、プロンプトを送信する。構築に失敗した場合はそのエラーを返し続ける。
func (l *LazyClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	gen, err := l.Get()
	if err != nil {
		return "", err
	}
	return gen.GenerateJSON(ctx, prompt)
}

var _ Generator = (*LazyClient)(nil)
