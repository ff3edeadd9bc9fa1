package mocks

import (
	"context"
	"time"

	"filescdn/internal/auth"
	"filescdn/internal/collection"
	"filescdn/internal/events"
	"filescdn/internal/model"
	"filescdn/internal/repository"
	"filescdn/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockFileService struct {
	mock.Mock
}

func (m *MockFileService) HandleChunk(ctx context.Context, sess *auth.Session, req service.ChunkRequest) (*model.FileRecord, error) {
	args := m.Called(ctx, sess, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockFileService) Abort(ctx context.Context, sess *auth.Session, fileID string) error {
	args := m.Called(ctx, sess, fileID)
	return args.Error(0)
}

func (m *MockFileService) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockFileService) List(ctx context.Context, q service.ListQuery) (*service.FileListResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FileListResult), args.Error(1)
}

func (m *MockFileService) Remove(ctx context.Context, sess *auth.Session, q repository.FileQuery) (int64, error) {
	args := m.Called(ctx, sess, q)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFileService) Link(rec *model.FileRecord, version string) string {
	args := m.Called(rec, version)
	return args.String(0)
}

func (m *MockFileService) Sweep(ctx context.Context, idle time.Duration) int {
	args := m.Called(ctx, idle)
	return args.Int(0)
}

func (m *MockFileService) AddListener(ev events.Event, fn events.Listener) {
	m.Called(ev, fn)
}

func (m *MockFileService) Collection() *collection.Collection {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*collection.Collection)
}
