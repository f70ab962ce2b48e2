package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	wsAdapter "github.com/feastly/realtime-gateway/internal/adapters/primary/websocket"
	"github.com/feastly/realtime-gateway/internal/config"
	"github.com/feastly/realtime-gateway/internal/core/domain"
	apperrors "github.com/feastly/realtime-gateway/internal/core/errors"
	"github.com/feastly/realtime-gateway/internal/core/ports"
)

// UpgradeHandler is the single entry point for all websocket upgrade
// attempts. It matches the path to a role, authenticates via the role's
// verifier, and only then completes the handshake. Rejections are a bare
// status line with no body, so nothing about the auth scheme leaks over an
// unauthenticated channel. Registry mutation happens in the hub, never here.
type UpgradeHandler struct {
	hub           *wsAdapter.Hub
	verifier      ports.TokenVerifier
	upgrader      websocket.Upgrader
	verifyTimeout time.Duration
	logger        *slog.Logger
}

// NewUpgradeHandler creates the upgrade handler.
func NewUpgradeHandler(
	hub *wsAdapter.Hub,
	verifier ports.TokenVerifier,
	cfg *config.Config,
	logger *slog.Logger,
) *UpgradeHandler {
	handler := &UpgradeHandler{
		hub:           hub,
		verifier:      verifier,
		verifyTimeout: cfg.WebSocket.VerifyTimeout,
		logger:        logger.With("component", "upgrade_handler"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// RegisterRoutes mounts the five upgrade routes.
func (h *UpgradeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/orders/{orderID}/track", h.ServeCustomer)
	r.Get("/ws/admin/orders", h.ServeAdmin)
	r.Get("/ws/driver/orders", h.ServeDriver)
	r.Get("/ws/devices/{deviceID}/stream", h.ServeDevice)
	r.Get("/ws/support/chat/{ticketID}", h.ServeSupport)
}

// token extracts the required token query parameter. An empty result has
// already been rejected with 401.
func (h *UpgradeHandler) token(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.reject(w, r, apperrors.NewUnauthorizedError(apperrors.ErrMissingToken))
		return "", false
	}
	return token, true
}

func (h *UpgradeHandler) verifyContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.verifyTimeout)
}

// reject refuses the handshake with a bare status line. No body: an
// unauthenticated client learns nothing beyond the numeric code.
func (h *UpgradeHandler) reject(w http.ResponseWriter, r *http.Request, appErr *apperrors.AppError) {
	h.logger.Warn("upgrade rejected",
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"code", appErr.Code,
		"error", appErr,
	)
	w.WriteHeader(appErr.StatusCode)
}

// NotFound rejects unmatched paths on the listener, mounted as the router's
// fallback handler.
func (h *UpgradeHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.reject(w, r, apperrors.NewNotFoundError(apperrors.ErrRouteNotFound))
}

// upgrade completes the handshake. An upgrade failure needs no response;
// gorilla has already written one.
func (h *UpgradeHandler) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection",
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		return nil, false
	}
	return conn, true
}

// ServeCustomer handles GET /ws/orders/{orderID}/track.
func (h *UpgradeHandler) ServeCustomer(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.verifyContext(r)
	defer cancel()

	id, err := h.verifier.VerifyCustomer(ctx, token)
	if err != nil {
		h.reject(w, r, apperrors.NewUnauthorizedError(err))
		return
	}
	id.OrderID = chi.URLParam(r, "orderID")

	conn, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	h.hub.RegisterCustomer(conn, id)
}

// ServeAdmin handles GET /ws/admin/orders.
func (h *UpgradeHandler) ServeAdmin(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.verifyContext(r)
	defer cancel()

	id, err := h.verifier.VerifyAdmin(ctx, token)
	if err != nil {
		h.reject(w, r, apperrors.NewUnauthorizedError(err))
		return
	}

	conn, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	h.hub.RegisterAdmin(conn, id)
}

// ServeDriver handles GET /ws/driver/orders.
func (h *UpgradeHandler) ServeDriver(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.verifyContext(r)
	defer cancel()

	id, err := h.verifier.VerifyDriver(ctx, token)
	if err != nil {
		h.reject(w, r, apperrors.NewUnauthorizedError(err))
		return
	}

	conn, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	h.hub.RegisterDriver(conn, id)
}

// ServeDevice handles GET /ws/devices/{deviceID}/stream. The device ID the
// token resolves to must equal the path segment; otherwise one device's
// token could be replayed against another device's stream.
func (h *UpgradeHandler) ServeDevice(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.verifyContext(r)
	defer cancel()

	id, err := h.verifier.VerifyDevice(ctx, token)
	if err != nil {
		h.reject(w, r, apperrors.NewUnauthorizedError(err))
		return
	}

	pathDeviceID := chi.URLParam(r, "deviceID")
	if id.DeviceID != pathDeviceID {
		// Possible credential misuse, worth more than a debug line.
		h.logger.Warn("device id mismatch",
			"path_device_id", pathDeviceID,
			"token_device_id", id.DeviceID,
			"remote_addr", r.RemoteAddr,
		)
		h.reject(w, r, apperrors.NewForbiddenError(apperrors.ErrDeviceMismatch))
		return
	}

	conn, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	h.hub.RegisterDevice(conn, id)
}

// ServeSupport handles GET /ws/support/chat/{ticketID}. Verification is
// attempted as admin first, then as user on admin failure. The order is
// load-bearing for clients holding both kinds of credentials; do not
// parallelize or reverse it.
func (h *UpgradeHandler) ServeSupport(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}
	ticketID := chi.URLParam(r, "ticketID")

	ctx, cancel := h.verifyContext(r)
	defer cancel()

	var id domain.SupportIdentity
	if admin, err := h.verifier.VerifyAdmin(ctx, token); err == nil {
		id = domain.SupportIdentity{
			TicketID:        ticketID,
			ParticipantID:   admin.AdminID,
			ParticipantType: domain.ParticipantSupport,
		}
	} else {
		user, userErr := h.verifier.VerifySupportUser(ctx, token)
		if userErr != nil {
			h.reject(w, r, apperrors.NewUnauthorizedError(userErr))
			return
		}
		id = user
		id.TicketID = ticketID
	}

	conn, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	h.hub.RegisterSupport(conn, id)
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *UpgradeHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.WebSocket.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:] // Remove the "*", keep ".example.com"
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}
