package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/feastly/realtime-gateway/internal/core/domain"
	apperrors "github.com/feastly/realtime-gateway/internal/core/errors"
	"github.com/feastly/realtime-gateway/internal/core/ports"
)

// Claims defines the structured data carried in a gateway JWT. Role decides
// which identity fields are meaningful; Subject holds the principal's ID
// (userID, adminID, driverID, deviceID or participantID depending on role).
type Claims struct {
	Role string `json:"role"`

	// Device tokens
	DeviceName string `json:"device_name,omitempty"`
	DeviceType string `json:"device_type,omitempty"`

	jwt.RegisteredClaims
}

// TokenManager validates HS256-signed tokens issued by the commerce backend.
// It implements ports.TokenVerifier.
type TokenManager struct {
	secretKey []byte
}

var _ ports.TokenVerifier = (*TokenManager)(nil)

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secretKey: []byte(secret)}
}

// GenerateToken creates a signed token for the given role and subject.
// Token issuance belongs to the commerce backend; this exists for tests and
// local tooling.
func (tm *TokenManager) GenerateToken(role, subject string, extra map[string]string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Role:       role,
		DeviceName: extra["device_name"],
		DeviceType: extra["device_type"],
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// parse validates the signature and expiry and checks the role claim.
func (tm *TokenManager) parse(tokenString, wantRole string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	if claims.Role != wantRole {
		return nil, apperrors.ErrRoleMismatch
	}
	if claims.Subject == "" {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}

func (tm *TokenManager) VerifyCustomer(_ context.Context, token string) (domain.CustomerIdentity, error) {
	claims, err := tm.parse(token, string(domain.RoleCustomer))
	if err != nil {
		return domain.CustomerIdentity{}, err
	}
	// OrderID comes from the request path, not the token.
	return domain.CustomerIdentity{UserID: claims.Subject}, nil
}

func (tm *TokenManager) VerifyAdmin(_ context.Context, token string) (domain.AdminIdentity, error) {
	claims, err := tm.parse(token, string(domain.RoleAdmin))
	if err != nil {
		return domain.AdminIdentity{}, err
	}
	return domain.AdminIdentity{AdminID: claims.Subject}, nil
}

func (tm *TokenManager) VerifyDriver(_ context.Context, token string) (domain.DriverIdentity, error) {
	claims, err := tm.parse(token, string(domain.RoleDriver))
	if err != nil {
		return domain.DriverIdentity{}, err
	}
	return domain.DriverIdentity{DriverID: claims.Subject}, nil
}

func (tm *TokenManager) VerifyDevice(_ context.Context, token string) (domain.DeviceIdentity, error) {
	claims, err := tm.parse(token, string(domain.RoleDevice))
	if err != nil {
		return domain.DeviceIdentity{}, err
	}
	return domain.DeviceIdentity{
		DeviceID:   claims.Subject,
		DeviceName: claims.DeviceName,
		DeviceType: claims.DeviceType,
	}, nil
}

func (tm *TokenManager) VerifySupportUser(_ context.Context, token string) (domain.SupportIdentity, error) {
	claims, err := tm.parse(token, string(domain.RoleCustomer))
	if err != nil {
		return domain.SupportIdentity{}, err
	}
	// TicketID comes from the request path; the handler fills it in.
	return domain.SupportIdentity{
		ParticipantID:   claims.Subject,
		ParticipantType: domain.ParticipantUser,
	}, nil
}
