package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/raterudder/eemeter/pkg/storage"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) SaveModelResult(ctx context.Context, projectID string, res storage.StoredResult) (string, error) {
	args := m.Called(ctx, projectID, res)
	return args.String(0), args.Error(1)
}

func (m *MockDatabase) GetModelResult(ctx context.Context, projectID, id string) (storage.StoredResult, error) {
	args := m.Called(ctx, projectID, id)
	if len(args) > 0 {
		return args.Get(0).(storage.StoredResult), args.Error(1)
	}
	return storage.StoredResult{}, nil
}

func (m *MockDatabase) ListModelResults(ctx context.Context, projectID string) ([]storage.StoredResult, error) {
	args := m.Called(ctx, projectID)
	if len(args) > 0 {
		return args.Get(0).([]storage.StoredResult), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
