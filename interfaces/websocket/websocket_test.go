package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/autosave"
	"github.com/Itzadetunji/mind-map-sub001/domain/graph"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

type gaugeRecorder struct {
	mu     sync.Mutex
	values []int
}

func (g *gaugeRecorder) SetWebSocketClients(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values = append(g.values, n)
}

func (g *gaugeRecorder) last() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.values) == 0 {
		return 0
	}
	return g.values[len(g.values)-1]
}

type fixture struct {
	hub         *Hub
	broadcaster *Broadcaster
	gauge       *gaugeRecorder
	url         string
}

func newFixture(t *testing.T, maxConns int) *fixture {
	t.Helper()
	gauge := &gaugeRecorder{}
	hub := NewHub(zap.NewNop(), gauge)
	go hub.Run()
	t.Cleanup(hub.Stop)

	authorize := func(sessionID, _ string) error {
		if sessionID != "s1" {
			return pkgerrors.NewNotFoundError("session")
		}
		return nil
	}
	cfg := DefaultServerConfig()
	cfg.MaxConnections = maxConns
	server := NewServer(hub, authorize, cfg, pkgerrors.NewErrorHandler(zap.NewNop(), false), zap.NewNop())

	r := chi.NewRouter()
	r.Get("/sessions/{sessionID}/ws", server.ServeHTTP)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &fixture{
		hub:         hub,
		broadcaster: NewBroadcaster(hub, zap.NewNop()),
		gauge:       gauge,
		url:         "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

func (f *fixture) dial(t *testing.T, sessionID string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(f.url+"/sessions/"+sessionID+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gws.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestServer_StreamsSaveEvents(t *testing.T) {
	f := newFixture(t, 4)
	conn := f.dial(t, "s1")

	hello := readMessage(t, conn)
	assert.Equal(t, EventConnectionEstablished, hello.Type)
	assert.Equal(t, "s1", hello.SessionID)
	require.Eventually(t, func() bool { return f.hub.GetConnectionCount("s1") == 1 }, time.Second, 10*time.Millisecond)

	f.broadcaster.SaveSucceeded("s1", autosave.Result{
		ProjectID: "p1",
		Persisted: true,
		Changes:   autosave.Changes{Title: true, Nodes: true},
		Diff:      graph.Diff{NodesAdded: 1},
		SavedAt:   time.Now(),
	})
	saved := readMessage(t, conn)
	assert.Equal(t, EventSaveSucceeded, saved.Type)
	var data map[string]any
	require.NoError(t, json.Unmarshal(saved.Data, &data))
	assert.Equal(t, "p1", data["project_id"])
	assert.Equal(t, []any{"title", "nodes"}, data["changed"])

	f.broadcaster.SaveFailed("s1", errors.New("store down"))
	failed := readMessage(t, conn)
	assert.Equal(t, EventSaveFailed, failed.Type)
	assert.Contains(t, string(failed.Data), "store down")
}

func TestServer_SessionClosedDisconnects(t *testing.T) {
	f := newFixture(t, 4)
	conn := f.dial(t, "s1")
	readMessage(t, conn)
	require.Eventually(t, func() bool { return f.hub.GetConnectionCount("s1") == 1 }, time.Second, 10*time.Millisecond)

	f.broadcaster.SessionClosed("s1")

	closed := readMessage(t, conn)
	assert.Equal(t, EventSessionClosed, closed.Type)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 0, f.hub.GetConnectionCount("s1"))
	assert.Eventually(t, func() bool { return f.gauge.last() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServer_RejectsUnknownSession(t *testing.T) {
	f := newFixture(t, 4)

	_, resp, err := gws.DefaultDialer.Dial(f.url+"/sessions/nope/ws", nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ConnectionLimit(t *testing.T) {
	f := newFixture(t, 1)
	conn := f.dial(t, "s1")
	readMessage(t, conn)
	require.Eventually(t, func() bool { return f.hub.GetConnectionCount("s1") == 1 }, time.Second, 10*time.Millisecond)

	_, resp, err := gws.DefaultDialer.Dial(f.url+"/sessions/s1/ws", nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHub_SendWithoutClientsIsHarmless(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	go hub.Run()
	defer hub.Stop()

	assert.NoError(t, hub.SendToSession("ghost", EventSaveSucceeded, map[string]string{}))
	assert.Equal(t, int64(0), hub.GetMetrics().MessagesSent)
}
