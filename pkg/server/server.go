package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/xhad/recall/pkg/search"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the websocket frame in both directions.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	K       int    `json:"k,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Searcher is implemented by *search.Service.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]search.Hit, error)
}

type Config struct {
	Addr   string
	Logger *log.Logger
}

type Server struct {
	searcher Searcher
	config   Config
	log      *log.Logger
	http     *http.Server
}

func New(searcher Searcher, config Config) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		searcher: searcher,
		config:   config,
		log:      logger.With("component", "server"),
	}
	s.http = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("starting server", "addr", s.config.Addr)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	k, _ := strconv.Atoi(q.Get("k"))

	hits, err := s.searcher.Search(r.Context(), q.Get("q"), k)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, search.ErrEmptyQuery) {
			status = http.StatusBadRequest
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"results": hits})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// gorilla connections allow a single concurrent writer
	var writeMu sync.Mutex
	send := func(msg Message) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Warn("failed to send message", "error", err)
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("error reading message", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			send(Message{Type: "error", Content: "invalid message: " + err.Error()})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			send(s.handleMessage(r.Context(), msg))
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, msg Message) Message {
	if msg.Type != "query" {
		return Message{Type: "error", Content: "unknown message type: " + msg.Type}
	}
	hits, err := s.searcher.Search(ctx, msg.Content, msg.K)
	if err != nil {
		return Message{Type: "error", Content: err.Error()}
	}
	return Message{Type: "results", Data: hits}
}
