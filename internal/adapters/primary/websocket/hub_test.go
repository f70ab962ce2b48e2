package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feastly/realtime-gateway/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(opts Options) *Hub {
	if opts.WriteWait == 0 {
		opts.WriteWait = time.Second
	}
	return NewHub(testLogger(), opts)
}

// dial opens a real websocket pair: the server side is handed to register
// (which is expected to attach it to the hub), the client side is returned.
func dial(t *testing.T, register func(*websocket.Conn)) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		register(conn)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	peer, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = peer.Close() })
	return peer
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	return raw
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.InboundFrame {
	t.Helper()
	var f domain.InboundFrame
	require.NoError(t, json.Unmarshal(readRaw(t, conn), &f))
	return f
}

// expectClose reads until the peer observes a close frame and returns it.
func expectClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		return ce
	}
}

// expectSilence asserts that nothing arrives for a short window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, got %s", raw)
	assert.True(t, strings.Contains(err.Error(), "timeout"), "expected read timeout, got %v", err)
}

func TestRegister_ConnectedIsFirstFrame(t *testing.T) {
	hub := newTestHub(Options{})

	peer := dial(t, func(c *websocket.Conn) {
		hub.RegisterCustomer(c, domain.CustomerIdentity{UserID: "U1", OrderID: "O1"})
	})

	raw := readRaw(t, peer)
	assert.JSONEq(t, `{"event":"connected","data":{"userId":"U1","orderId":"O1"}}`, string(raw))
	assert.Equal(t, 1, hub.Counts().Customers)
}

func TestRegister_SupersedesExistingConnection(t *testing.T) {
	hub := newTestHub(Options{})
	id := domain.AdminIdentity{AdminID: "A1"}

	first := dial(t, func(c *websocket.Conn) { hub.RegisterAdmin(c, id) })
	assert.Equal(t, "connected", readFrame(t, first).Event)

	second := dial(t, func(c *websocket.Conn) { hub.RegisterAdmin(c, id) })
	assert.Equal(t, "connected", readFrame(t, second).Event)

	// The first socket was closed before the second was inserted.
	ce := expectClose(t, first)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
	assert.Equal(t, "superseded", ce.Text)
	assert.Equal(t, 1, hub.Counts().Admins)

	// The superseded connection's close handler has fired by now; it must
	// not have deleted its successor.
	require.Eventually(t, func() bool {
		return hub.UnicastAdmin("A1", domain.Frame{Event: domain.EventOrderUpdate})
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.EventOrderUpdate, readFrame(t, second).Event)
	assert.Equal(t, 1, hub.Counts().Admins)
}

func TestRegister_AtMostOneEntryPerIdentity(t *testing.T) {
	hub := newTestHub(Options{})
	id := domain.DriverIdentity{DriverID: "D1"}

	var last *websocket.Conn
	for i := 0; i < 3; i++ {
		last = dial(t, func(c *websocket.Conn) { hub.RegisterDriver(c, id) })
		assert.Equal(t, "connected", readFrame(t, last).Event)
	}

	require.Eventually(t, func() bool {
		return hub.Counts().Drivers == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, hub.UnicastDriver("D1", domain.Frame{Event: domain.EventOrderAssigned}))
	assert.Equal(t, domain.EventOrderAssigned, readFrame(t, last).Event)
}

func TestRegister_SupportParticipantsAccumulate(t *testing.T) {
	hub := newTestHub(Options{})

	p1 := dial(t, func(c *websocket.Conn) {
		hub.RegisterSupport(c, domain.SupportIdentity{TicketID: "T1", ParticipantID: "A1", ParticipantType: domain.ParticipantSupport})
	})
	p2 := dial(t, func(c *websocket.Conn) {
		hub.RegisterSupport(c, domain.SupportIdentity{TicketID: "T1", ParticipantID: "U1", ParticipantType: domain.ParticipantUser})
	})
	readFrame(t, p1)
	readFrame(t, p2)

	assert.Equal(t, 2, hub.Counts().Support)

	// Closing one participant removes only that record.
	require.NoError(t, p2.Close())
	require.Eventually(t, func() bool {
		return hub.Counts().Support == 1
	}, time.Second, 10*time.Millisecond)

	n := hub.BroadcastToTicket("T1", domain.Frame{Event: domain.EventChatRead}, "")
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.EventChatRead, readFrame(t, p1).Event)
}

func TestUnregister_RemovesEntryOnClientClose(t *testing.T) {
	hub := newTestHub(Options{})

	peer := dial(t, func(c *websocket.Conn) {
		hub.RegisterDevice(c, domain.DeviceIdentity{DeviceID: "DEV-1", DeviceName: "Printer", DeviceType: "printer"})
	})
	readFrame(t, peer)
	require.Equal(t, 1, hub.Counts().Devices)

	require.NoError(t, peer.Close())
	require.Eventually(t, func() bool {
		return hub.Counts().Devices == 0
	}, time.Second, 10*time.Millisecond)
}

func TestShutdown_ClosesEverythingAndClearsRegistries(t *testing.T) {
	hub := newTestHub(Options{})

	admin := dial(t, func(c *websocket.Conn) {
		hub.RegisterAdmin(c, domain.AdminIdentity{AdminID: "A1"})
	})
	driver := dial(t, func(c *websocket.Conn) {
		hub.RegisterDriver(c, domain.DriverIdentity{DriverID: "D1"})
	})
	readFrame(t, admin)
	readFrame(t, driver)

	hub.Shutdown()

	assert.Equal(t, Counts{}, hub.Counts())
	assert.Equal(t, websocket.CloseGoingAway, expectClose(t, admin).Code)
	assert.Equal(t, websocket.CloseGoingAway, expectClose(t, driver).Code)

	// Delivery after shutdown is a clean miss.
	assert.False(t, hub.UnicastAdmin("A1", domain.Frame{Event: domain.EventOrderUpdate}))
}
