package mocks

import (
	"context"

	"filescdn/internal/model"
	"filescdn/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockFileRepository struct {
	mock.Mock
}

func (m *MockFileRepository) Insert(ctx context.Context, rec *model.FileRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockFileRepository) Update(ctx context.Context, id string, patch repository.FilePatch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func (m *MockFileRepository) Remove(ctx context.Context, q repository.FileQuery) (int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFileRepository) FindOne(ctx context.Context, q repository.FileQuery) (*model.FileRecord, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockFileRepository) Find(ctx context.Context, q repository.FileQuery) ([]model.FileRecord, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FileRecord), args.Error(1)
}

func (m *MockFileRepository) List(ctx context.Context, q repository.FileQuery, pq repository.PageQuery) (*repository.PageResult[model.FileRecord], error) {
	args := m.Called(ctx, q, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.FileRecord]), args.Error(1)
}
