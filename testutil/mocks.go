package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// MockCensusServer is a fake Census push endpoint. Every connection must send one
// subscription message first; the server then writes Messages in order and keeps the
// connection open until the client goes away.
type MockCensusServer struct {
	*httptest.Server
	Messages []string

	upgrader websocket.Upgrader

	mu            sync.Mutex
	reject        int
	subscriptions []string
	connections   int
	queries       []string
}

// NewMockCensusServer starts a fake push endpoint serving messages on every connection.
func NewMockCensusServer(t *testing.T, messages ...string) *MockCensusServer {
	t.Helper()
	m := &MockCensusServer{Messages: messages}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// WebsocketURL returns the ws:// address of the streaming endpoint.
func (m *MockCensusServer) WebsocketURL() string {
	return "ws" + strings.TrimPrefix(m.URL, "http") + "/streaming"
}

// RejectWith makes every later upgrade fail with status.
func (m *MockCensusServer) RejectWith(status int) {
	m.mu.Lock()
	m.reject = status
	m.mu.Unlock()
}

// Subscriptions returns the subscription messages received so far.
func (m *MockCensusServer) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscriptions...)
}

// Connections returns how many upgrade requests were seen.
func (m *MockCensusServer) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections
}

// Queries returns the raw query string of every upgrade request.
func (m *MockCensusServer) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

func (m *MockCensusServer) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.connections++
	m.queries = append(m.queries, r.URL.RawQuery)
	reject := m.reject
	m.mu.Unlock()

	if reject != 0 {
		http.Error(w, "Provided Service ID is not registered", reject)
		return
	}
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, sub, err := conn.ReadMessage()
	if err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	m.mu.Lock()
	m.subscriptions = append(m.subscriptions, string(sub))
	m.mu.Unlock()

	for _, msg := range m.Messages {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
