package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/feastly/realtime-gateway/internal/core/errors"
)

func TestTokenManager_VerifyRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret")
	ctx := context.Background()

	token, err := tm.GenerateToken("driver", "D42", nil, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := tm.VerifyDriver(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "D42", id.DriverID)
}

func TestTokenManager_DeviceClaims(t *testing.T) {
	tm := NewTokenManager("test-secret")

	token, err := tm.GenerateToken("device", "DEV-7", map[string]string{
		"device_name": "Kitchen Printer",
		"device_type": "printer",
	}, time.Hour)
	require.NoError(t, err)

	id, err := tm.VerifyDevice(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "DEV-7", id.DeviceID)
	assert.Equal(t, "Kitchen Printer", id.DeviceName)
	assert.Equal(t, "printer", id.DeviceType)
}

func TestTokenManager_RejectsWrongRole(t *testing.T) {
	tm := NewTokenManager("test-secret")

	token, err := tm.GenerateToken("customer", "U1", nil, time.Hour)
	require.NoError(t, err)

	_, err = tm.VerifyAdmin(context.Background(), token)
	assert.ErrorIs(t, err, apperrors.ErrRoleMismatch)

	// The same token is a valid support-user credential.
	id, err := tm.VerifySupportUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "U1", id.ParticipantID)
}

func TestTokenManager_RejectsBadSignatureAndExpiry(t *testing.T) {
	tm := NewTokenManager("test-secret")
	other := NewTokenManager("other-secret")

	token, err := other.GenerateToken("admin", "A1", nil, time.Hour)
	require.NoError(t, err)
	_, err = tm.VerifyAdmin(context.Background(), token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	expired, err := tm.GenerateToken("admin", "A1", nil, -time.Minute)
	require.NoError(t, err)
	_, err = tm.VerifyAdmin(context.Background(), expired)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}
