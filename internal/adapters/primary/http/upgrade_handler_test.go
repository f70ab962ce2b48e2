package http

import (
	"encoding/json"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	wsAdapter "github.com/feastly/realtime-gateway/internal/adapters/primary/websocket"
	"github.com/feastly/realtime-gateway/internal/config"
	"github.com/feastly/realtime-gateway/internal/core/domain"
	apperrors "github.com/feastly/realtime-gateway/internal/core/errors"
	"github.com/feastly/realtime-gateway/internal/core/mocks"
	"github.com/feastly/realtime-gateway/internal/core/ports"
)

func setupGateway(t *testing.T, verifier ports.TokenVerifier) (*wsAdapter.Hub, *httptest.Server) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{}
	cfg.App.Environment = "development"
	cfg.WebSocket.ReadBufferSize = 1024
	cfg.WebSocket.WriteBufferSize = 1024
	cfg.WebSocket.VerifyTimeout = time.Second

	hub := wsAdapter.NewHub(logger, wsAdapter.Options{WriteWait: time.Second})
	t.Cleanup(hub.Shutdown)

	handler := NewUpgradeHandler(hub, verifier, cfg, logger)

	r := chi.NewRouter()
	r.NotFound(handler.NotFound)
	handler.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialWS(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, *stdhttp.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

// expectRejection asserts the handshake was refused with the given status
// and an empty body.
func expectRejection(t *testing.T, srv *httptest.Server, path string, status int) {
	t.Helper()
	_, resp, err := dialWS(t, srv, path)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	assert.Equal(t, status, resp.StatusCode)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)
	assert.Empty(t, body)
}

func readServerFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	return raw
}

func TestUpgrade_MissingTokenIsRejected(t *testing.T) {
	verifier := mocks.NewMockTokenVerifier()
	_, srv := setupGateway(t, verifier)

	expectRejection(t, srv, "/ws/admin/orders", stdhttp.StatusUnauthorized)
	verifier.AssertNotCalled(t, "VerifyAdmin", mock.Anything, mock.Anything)
}

func TestUpgrade_InvalidTokenIsRejected(t *testing.T) {
	verifier := mocks.NewMockTokenVerifier()
	verifier.On("VerifyAdmin", mock.Anything, "bad").
		Return(domain.AdminIdentity{}, apperrors.ErrInvalidToken)
	hub, srv := setupGateway(t, verifier)

	expectRejection(t, srv, "/ws/admin/orders?token=bad", stdhttp.StatusUnauthorized)
	assert.Equal(t, 0, hub.Counts().Admins)
}

func TestUpgrade_UnmatchedPathIsRejected(t *testing.T) {
	verifier := mocks.NewMockTokenVerifier()
	_, srv := setupGateway(t, verifier)

	expectRejection(t, srv, "/ws/unknown?token=x", stdhttp.StatusNotFound)
}

func TestUpgrade_DeviceTokenPathMismatchIsForbidden(t *testing.T) {
	verifier := mocks.NewMockTokenVerifier()
	verifier.On("VerifyDevice", mock.Anything, "tok-b").
		Return(domain.DeviceIdentity{DeviceID: "B", DeviceType: "printer"}, nil)
	hub, srv := setupGateway(t, verifier)

	expectRejection(t, srv, "/ws/devices/A/stream?token=tok-b", stdhttp.StatusForbidden)
	assert.Equal(t, 0, hub.Counts().Devices)
}

func TestUpgrade_CustomerIdentityCombinesTokenAndPath(t *testing.T) {
	verifier := mocks.NewMockTokenVerifier()
	verifier.On("VerifyCustomer", mock.Anything, "tok").
		Return(domain.CustomerIdentity{UserID: "U1"}, nil)
	hub, srv := setupGateway(t, verifier)

	conn, resp, err := dialWS(t, srv, "/ws/orders/O9/track?token=tok")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw := readServerFrame(t, conn)
	assert.JSONEq(t, `{"event":"connected","data":{"userId":"U1","orderId":"O9"}}`, string(raw))
	assert.Equal(t, 1, hub.Counts().Customers)
}

func TestUpgrade_SupportTriesAdminThenUser(t *testing.T) {
	verifier := mocks.NewMockTokenVerifier()
	verifier.On("VerifyAdmin", mock.Anything, "user-tok").
		Return(domain.AdminIdentity{}, apperrors.ErrRoleMismatch)
	verifier.On("VerifySupportUser", mock.Anything, "user-tok").
		Return(domain.SupportIdentity{ParticipantID: "U1", ParticipantType: domain.ParticipantUser}, nil)
	_, srv := setupGateway(t, verifier)

	conn, resp, err := dialWS(t, srv, "/ws/support/chat/T7?token=user-tok")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw := readServerFrame(t, conn)
	assert.JSONEq(t, `{"event":"connected","data":{"ticketId":"T7","participantId":"U1","participantType":"user"}}`, string(raw))
	verifier.AssertExpectations(t)
}

func TestUpgrade_SupportAdminSkipsUserVerification(t *testing.T) {
	verifier := mocks.NewMockTokenVerifier()
	verifier.On("VerifyAdmin", mock.Anything, "admin-tok").
		Return(domain.AdminIdentity{AdminID: "A1"}, nil)
	_, srv := setupGateway(t, verifier)

	conn, resp, err := dialWS(t, srv, "/ws/support/chat/T7?token=admin-tok")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw := readServerFrame(t, conn)
	assert.JSONEq(t, `{"event":"connected","data":{"ticketId":"T7","participantId":"A1","participantType":"support"}}`, string(raw))
	verifier.AssertNotCalled(t, "VerifySupportUser", mock.Anything, mock.Anything)
}

func TestUpgrade_AdminEndToEnd(t *testing.T) {
	verifier := mocks.NewMockTokenVerifier()
	verifier.On("VerifyAdmin", mock.Anything, "admin-tok").
		Return(domain.AdminIdentity{AdminID: "A1"}, nil)
	hub, srv := setupGateway(t, verifier)

	conn, resp, err := dialWS(t, srv, "/ws/admin/orders?token=admin-tok")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw := readServerFrame(t, conn)
	assert.JSONEq(t, `{"event":"connected","data":{"adminId":"A1"}}`, string(raw))

	frame := domain.Frame{
		Event: domain.EventNewOrder,
		Data: map[string]any{
			"orderId":     "O1",
			"orderNumber": "FE-0001",
			"total":       25.5,
		},
	}
	require.Equal(t, 1, hub.BroadcastAdmins(frame))

	expected, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.Equal(t, expected, readServerFrame(t, conn))

	// Disconnect, reconnect with the same identity: still exactly one entry.
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.Counts().Admins == 0
	}, time.Second, 10*time.Millisecond)

	conn2, resp2, err := dialWS(t, srv, "/ws/admin/orders?token=admin-tok")
	require.NoError(t, err)
	defer resp2.Body.Close()
	readServerFrame(t, conn2)
	assert.Equal(t, 1, hub.Counts().Admins)
}
