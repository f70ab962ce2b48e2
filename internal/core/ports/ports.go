package ports

import (
	"context"

	"github.com/feastly/realtime-gateway/internal/core/domain"
)

// TokenVerifier defines the port for per-role credential validation. Each
// method resolves a token to a typed identity or returns an authentication
// error. Verification may involve a network or database round trip, so every
// method takes a context; callers are expected to bound it with a timeout.
type TokenVerifier interface {
	VerifyCustomer(ctx context.Context, token string) (domain.CustomerIdentity, error)
	VerifyAdmin(ctx context.Context, token string) (domain.AdminIdentity, error)
	VerifyDriver(ctx context.Context, token string) (domain.DriverIdentity, error)
	VerifyDevice(ctx context.Context, token string) (domain.DeviceIdentity, error)
	// VerifySupportUser resolves the customer side of a support conversation.
	// The support route first tries VerifyAdmin and falls back to this.
	VerifySupportUser(ctx context.Context, token string) (domain.SupportIdentity, error)
}

// EventPublisher is the port business logic uses to reach live connections.
// All operations are best-effort: an offline recipient is an expected steady
// state, reported as a result value and never as an error. Payloads are
// serialized once per call; every recipient receives byte-identical frames.
type EventPublisher interface {
	// Unicast operations report whether the frame was handed to the peer's
	// socket. False means the target is not connected (or unreachable).
	UnicastCustomer(userID, orderID string, frame domain.Frame) bool
	UnicastAdmin(adminID string, frame domain.Frame) bool
	UnicastDriver(driverID string, frame domain.Frame) bool
	UnicastDevice(deviceID string, frame domain.Frame) bool

	// Broadcast operations return the number of recipients reached.
	BroadcastAdmins(frame domain.Frame) int
	BroadcastDevices(frame domain.Frame) int
	// BroadcastToOrder fans out to every customer connection tracking the
	// given order.
	BroadcastToOrder(orderID string, frame domain.Frame) int
	// BroadcastToTicket fans out to every participant of a support ticket
	// except excludeParticipantID (empty string excludes nobody).
	BroadcastToTicket(ticketID string, frame domain.Frame, excludeParticipantID string) int
}
