package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/feastly/realtime-gateway/internal/core/domain"
)

// MockTokenVerifier is a mock implementation of ports.TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func NewMockTokenVerifier() *MockTokenVerifier {
	return &MockTokenVerifier{}
}

func (m *MockTokenVerifier) VerifyCustomer(ctx context.Context, token string) (domain.CustomerIdentity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.CustomerIdentity), args.Error(1)
}

func (m *MockTokenVerifier) VerifyAdmin(ctx context.Context, token string) (domain.AdminIdentity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.AdminIdentity), args.Error(1)
}

func (m *MockTokenVerifier) VerifyDriver(ctx context.Context, token string) (domain.DriverIdentity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.DriverIdentity), args.Error(1)
}

func (m *MockTokenVerifier) VerifyDevice(ctx context.Context, token string) (domain.DeviceIdentity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.DeviceIdentity), args.Error(1)
}

func (m *MockTokenVerifier) VerifySupportUser(ctx context.Context, token string) (domain.SupportIdentity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.SupportIdentity), args.Error(1)
}
