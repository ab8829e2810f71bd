// Package dashboard provides the local status server behind 'pg serve'.
//
// The server exposes the knowledge base health report and record counts
// over HTTP and broadcasts record updates and sync events from the watch
// daemon to connected WebSocket clients.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/project-guardian/guardian/internal/health"
	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/querycache"
)

// MessageType defines the type of dashboard message.
type MessageType string

const (
	// MessageTypeRecordUpdate indicates a record was written or deleted.
	MessageTypeRecordUpdate MessageType = "record_update"

	// MessageTypeSyncComplete indicates a query cache sync completed.
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeUpdateComplete indicates an incremental update ran.
	MessageTypeUpdateComplete MessageType = "update_complete"

	// MessageTypeStats indicates updated record statistics.
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Stats contains record counts reported by /stats.
type Stats struct {
	Bugs         int            `json:"bugs"`
	Requirements int            `json:"requirements"`
	Decisions    int            `json:"decisions"`
	Total        int            `json:"total"`
	CacheCounts  map[string]int `json:"cache_counts,omitempty"`
}

// Config holds server configuration.
type Config struct {
	// Port to listen on (default: 8820).
	Port int

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:   8820,
		Logger: log.Default(),
	}
}

// Server manages WebSocket connections and serves knowledge base status.
type Server struct {
	addr     string
	kb       *kb.KB
	db       *querycache.DB
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server for an initialized knowledge
// base. db may be nil to serve without query cache statistics.
func NewServer(k *kb.KB, db *querycache.DB, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		kb:        k,
		db:        db,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start begins the HTTP server and WebSocket handler.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Dashboard stopped")
	return nil
}

// Notify implements the watch daemon's notifier by broadcasting daemon
// events to WebSocket clients.
func (s *Server) Notify(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("Failed to marshal %s payload: %v", event, err)
		return
	}

	msgType := MessageType("")
	switch event {
	case "record-update":
		msgType = MessageTypeRecordUpdate
	case "sync-complete":
		msgType = MessageTypeSyncComplete
	case "update-complete":
		msgType = MessageTypeUpdateComplete
	default:
		msgType = MessageType(event)
	}

	s.Broadcast(Message{Type: msgType, Data: data})
}

// Broadcast sends a message to all connected clients.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Writes happen outside the lock so a slow client cannot
			// block new connections.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	stats, _ := json.Marshal(s.stats())
	welcome := Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: stats}
	welcomeData, _ := json.Marshal(welcome)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()

	go s.readLoop(conn)
}

// readLoop keeps the connection alive and detects client disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth runs the knowledge base health checks and returns the
// full report.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := health.New(s.kb).Run()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.stats())
}

func (s *Server) stats() Stats {
	stats := Stats{
		Bugs:         s.kb.CountRecords(kb.KindBug),
		Requirements: s.kb.CountRecords(kb.KindRequirement),
		Decisions:    s.kb.CountRecords(kb.KindDecision),
	}
	stats.Total = stats.Bugs + stats.Requirements + stats.Decisions

	if s.db != nil {
		if counts, err := s.db.CountByKind(s.ctx); err == nil {
			stats.CacheCounts = make(map[string]int, len(counts))
			for kind, n := range counts {
				stats.CacheCounts[string(kind)] = n
			}
		}
	}

	return stats
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Project Guardian</title>
</head>
<body>
    <h1>Project Guardian Dashboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health report: <a href="/health">/health</a></p>
    <p>Record statistics: <a href="/stats">/stats</a></p>
</body>
</html>`, r.Host)
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
