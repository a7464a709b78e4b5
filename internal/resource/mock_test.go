package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/repository"
)

// --- モック ---

type mockResourceRepo struct {
	listByUserFn      func(ctx context.Context, userID int64) ([]model.Resource, error)
	findByIDFn        func(ctx context.Context, userID, id int64) (*model.Resource, error)
	createFn          func(ctx context.Context, values datastore.Values) (*model.Resource, error)
	updateFn          func(ctx context.Context, userID, id int64, changes datastore.Values) (*model.Resource, error)
	deleteFn          func(ctx context.Context, userID, id int64) (*model.Resource, error)
	isTypeInUseFn     func(ctx context.Context, userID, typeID int64) (bool, error)
	isPlatformInUseFn func(ctx context.Context, userID, platformID int64) (bool, error)
}

func (m *mockResourceRepo) ListByUser(ctx context.Context, userID int64) ([]model.Resource, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return []model.Resource{}, nil
}

func (m *mockResourceRepo) FindByID(ctx context.Context, userID, id int64) (*model.Resource, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, userID, id)
	}
	return nil, nil
}

func (m *mockResourceRepo) Create(ctx context.Context, values datastore.Values) (*model.Resource, error) {
	if m.createFn != nil {
		return m.createFn(ctx, values)
	}
	return &model.Resource{ID: 1}, nil
}

func (m *mockResourceRepo) Update(ctx context.Context, userID, id int64, changes datastore.Values) (*model.Resource, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, changes)
	}
	return &model.Resource{ID: id, UserID: userID}, nil
}

func (m *mockResourceRepo) Delete(ctx context.Context, userID, id int64) (*model.Resource, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil, nil
}

func (m *mockResourceRepo) IsTypeInUse(ctx context.Context, userID, typeID int64) (bool, error) {
	if m.isTypeInUseFn != nil {
		return m.isTypeInUseFn(ctx, userID, typeID)
	}
	return false, nil
}

func (m *mockResourceRepo) IsPlatformInUse(ctx context.Context, userID, platformID int64) (bool, error) {
	if m.isPlatformInUseFn != nil {
		return m.isPlatformInUseFn(ctx, userID, platformID)
	}
	return false, nil
}

func (m *mockResourceRepo) InsertFromSource(context.Context, *model.Source, []model.SourceEntry) (int, error) {
	return 0, nil
}

// memoryTaxonomyRepo はユーザーごとの分類をメモリで保持する。
type memoryTaxonomyRepo[T any] struct {
	items  []T
	userOf func(*T) int64
	idOf   func(*T) int64
	nameOf func(*T) string
	build  func(id, userID int64, name string) T
}

func newMemoryTypeRepo(items ...model.ResourceType) *memoryTaxonomyRepo[model.ResourceType] {
	return &memoryTaxonomyRepo[model.ResourceType]{
		items:  items,
		userOf: func(t *model.ResourceType) int64 { return t.UserID },
		idOf:   func(t *model.ResourceType) int64 { return t.ID },
		nameOf: func(t *model.ResourceType) string { return t.Name },
		build: func(id, userID int64, name string) model.ResourceType {
			return model.ResourceType{ID: id, UserID: userID, Name: name}
		},
	}
}

func newMemoryPlatformRepo(items ...model.ResourcePlatform) *memoryTaxonomyRepo[model.ResourcePlatform] {
	return &memoryTaxonomyRepo[model.ResourcePlatform]{
		items:  items,
		userOf: func(p *model.ResourcePlatform) int64 { return p.UserID },
		idOf:   func(p *model.ResourcePlatform) int64 { return p.ID },
		nameOf: func(p *model.ResourcePlatform) string { return p.Name },
		build: func(id, userID int64, name string) model.ResourcePlatform {
			return model.ResourcePlatform{ID: id, UserID: userID, Name: name}
		},
	}
}

func (m *memoryTaxonomyRepo[T]) find(match func(*T) bool) *T {
	for i := range m.items {
		if match(&m.items[i]) {
			return &m.items[i]
		}
	}
	return nil
}

func (m *memoryTaxonomyRepo[T]) ListByUser(_ context.Context, userID int64) ([]T, error) {
	out := []T{}
	for i := range m.items {
		if m.userOf(&m.items[i]) == userID {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *memoryTaxonomyRepo[T]) FindByID(_ context.Context, userID, id int64) (*T, error) {
	return m.find(func(t *T) bool { return m.userOf(t) == userID && m.idOf(t) == id }), nil
}

func (m *memoryTaxonomyRepo[T]) FindByName(_ context.Context, userID int64, name string) (*T, error) {
	return m.find(func(t *T) bool { return m.userOf(t) == userID && m.nameOf(t) == name }), nil
}

func (m *memoryTaxonomyRepo[T]) Create(_ context.Context, userID int64, name string) (*T, error) {
	item := m.build(int64(len(m.items)+1), userID, name)
	m.items = append(m.items, item)
	return &item, nil
}

func (m *memoryTaxonomyRepo[T]) Rename(_ context.Context, userID, id int64, name string) (*T, error) {
	for i := range m.items {
		if m.userOf(&m.items[i]) == userID && m.idOf(&m.items[i]) == id {
			m.items[i] = m.build(id, userID, name)
			return &m.items[i], nil
		}
	}
	return nil, nil
}

func (m *memoryTaxonomyRepo[T]) Delete(_ context.Context, userID, id int64) (*T, error) {
	for i := range m.items {
		if m.userOf(&m.items[i]) == userID && m.idOf(&m.items[i]) == id {
			item := m.items[i]
			m.items = append(m.items[:i], m.items[i+1:]...)
			return &item, nil
		}
	}
	return nil, nil
}

var (
	_ repository.ResourceRepository                         = (*mockResourceRepo)(nil)
	_ repository.TaxonomyRepository[model.ResourceType]     = (*memoryTaxonomyRepo[model.ResourceType])(nil)
	_ repository.TaxonomyRepository[model.ResourcePlatform] = (*memoryTaxonomyRepo[model.ResourcePlatform])(nil)
)

// --- ヘルパー ---

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }

func statusPtr(s model.ProgressStatus) *model.ProgressStatus { return &s }

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != code {
		t.Errorf("code = %q, want %q (message %q)", apiErr.Code, code, apiErr.Message)
	}
}

func asAPIError(err error, target **model.APIError) bool {
	return errors.As(err, target)
}
