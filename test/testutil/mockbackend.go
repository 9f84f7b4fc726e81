package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// MockBackend is an httptest.Server that simulates the admin REST backend:
// the streaming POST /messages endpoint and the /sessions resources.
type MockBackend struct {
	Server *httptest.Server

	mu sync.Mutex
	// Token is the bearer token the backend accepts.
	Token string
	// Reply is written chunk by chunk, each followed by a flush.
	Reply [][]byte
	// ChunkDelay is slept before each chunk.
	ChunkDelay time.Duration
	// Status overrides the /messages status code when non-zero.
	Status int
	// Hold keeps the reply open after the last chunk until the client leaves.
	Hold bool

	sessions map[string]*session

	// LastRequest is the most recent /messages body.
	LastRequest map[string]any
	// LastHeader holds the headers of the most recent /messages request.
	LastHeader http.Header
	// MessageCalls counts /messages requests.
	MessageCalls int

	// Disconnected receives once per /messages request whose client went away
	// before the reply finished.
	Disconnected chan struct{}
}

type session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewMockBackend creates and starts a mock backend that accepts token.
func NewMockBackend(token string, reply ...string) *MockBackend {
	m := &MockBackend{
		Token:        token,
		Reply:        TextChunks(reply...),
		sessions:     map[string]*session{},
		Disconnected: make(chan struct{}, 16),
	}

	r := mux.NewRouter()
	r.HandleFunc("/messages", m.handleMessages).Methods(http.MethodPost)
	r.HandleFunc("/sessions", m.handleList).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", m.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", m.handleRename).Methods(http.MethodPut)
	r.HandleFunc("/sessions/{id}", m.handleDelete).Methods(http.MethodDelete)
	r.Use(m.authMiddleware)

	m.Server = httptest.NewServer(r)
	return m
}

// TextChunks converts strings to byte chunks.
func TextChunks(parts ...string) [][]byte {
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		out = append(out, []byte(p))
	}
	return out
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.Server.CloseClientConnections()
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockBackend) URL() string {
	return m.Server.URL
}

// SetReply replaces the reply chunks.
func (m *MockBackend) SetReply(chunks ...[]byte) {
	m.mu.Lock()
	m.Reply = chunks
	m.mu.Unlock()
}

// Configure runs fn with the mock locked so tests can change several fields.
func (m *MockBackend) Configure(fn func(m *MockBackend)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// AddSession seeds a session.
func (m *MockBackend) AddSession(id, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Second)
	m.sessions[id] = &session{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
}

// Calls returns the number of /messages requests seen.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MessageCalls
}

// Header returns a copy of the headers of the last /messages request.
func (m *MockBackend) Header() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastHeader.Clone()
}

// Request returns the last /messages body.
func (m *MockBackend) Request() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastRequest
}

func (m *MockBackend) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || tok != m.Token {
			writeEnvelope(w, http.StatusUnauthorized, 401, "invalid token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *MockBackend) handleMessages(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.LastRequest = body
	m.LastHeader = r.Header.Clone()
	m.MessageCalls++
	status := m.Status
	chunks := append([][]byte(nil), m.Reply...)
	delay := m.ChunkDelay
	hold := m.Hold
	m.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, hasFlusher := w.(http.Flusher)
	if hasFlusher {
		flusher.Flush()
	}

	for _, c := range chunks {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				m.notifyDisconnect()
				return
			}
		}
		if _, err := w.Write(c); err != nil {
			m.notifyDisconnect()
			return
		}
		if hasFlusher {
			flusher.Flush()
		}
	}

	if hold {
		<-r.Context().Done()
		m.notifyDisconnect()
	}
}

func (m *MockBackend) handleList(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	items := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		items = append(items, &cp)
	}
	m.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	writeEnvelope(w, http.StatusOK, 0, "ok", map[string]any{
		"items": items,
		"total": len(items),
		"page":  atoi(r.URL.Query().Get("page")),
		"size":  atoi(r.URL.Query().Get("size")),
	})
}

func (m *MockBackend) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m.mu.Lock()
	s, ok := m.sessions[id]
	var cp session
	if ok {
		cp = *s
	}
	m.mu.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusOK, 404, "session not found", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, 0, "ok", cp)
}

func (m *MockBackend) handleRename(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeEnvelope(w, http.StatusBadRequest, 400, "bad request", nil)
		return
	}
	m.mu.Lock()
	s, ok := m.sessions[id]
	var cp session
	if ok {
		s.Title = body.Title
		s.UpdatedAt = time.Now().UTC().Truncate(time.Second)
		cp = *s
	}
	m.mu.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusNotFound, 404, "session not found", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, 0, "ok", cp)
}

func (m *MockBackend) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusNotFound, 404, "session not found", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, 0, "ok", nil)
}

func (m *MockBackend) notifyDisconnect() {
	select {
	case m.Disconnected <- struct{}{}:
	default:
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
		"data":    data,
	})
}
