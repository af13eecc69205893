package usecase_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"social-publisher/domain/model"
)

type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) Get(ctx context.Context, userID string, platform model.Platform) (*model.Credential, error) {
	args := m.Called(ctx, userID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

func (m *MockCredentialStore) Upsert(ctx context.Context, cred *model.Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *MockCredentialStore) UpdateTokens(ctx context.Context, cred *model.Credential, prevRefreshToken string) error {
	args := m.Called(ctx, cred, prevRefreshToken)
	return args.Error(0)
}

func (m *MockCredentialStore) Delete(ctx context.Context, userID string, platform model.Platform) error {
	args := m.Called(ctx, userID, platform)
	return args.Error(0)
}

func (m *MockCredentialStore) ListActive(ctx context.Context, userID string) ([]*model.Credential, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Credential), args.Error(1)
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) Save(ctx context.Context, report *model.PublishReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockHistory) ListRecent(ctx context.Context, userID string, limit int64) ([]model.PublishReport, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PublishReport), args.Error(1)
}

type MockProfileResolver struct {
	mock.Mock
}

func (m *MockProfileResolver) Resolve(ctx context.Context, platform model.Platform, accessToken string) (*model.Profile, error) {
	args := m.Called(ctx, platform, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

type MockCaptionGenerator struct {
	mock.Mock
}

func (m *MockCaptionGenerator) Generate(ctx context.Context, instruction string, platforms []model.Platform) (map[model.Platform]string, error) {
	args := m.Called(ctx, instruction, platforms)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.Platform]string), args.Error(1)
}
