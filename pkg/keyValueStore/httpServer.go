package keyValueStore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Server is a volatile in-memory store speaking the HttpStore protocol. It is meant for local
// development when no Redis or etcd is around.
type Server struct {
	lock   sync.RWMutex
	data   map[string]string
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{data: make(map[string]string), logger: logger}
}

// Handler returns the http handler serving /health and /kv/{key}.
func (t *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/kv/", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/kv/")
		if key == "" {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodGet:
			t.handleGet(w, key)
		case http.MethodPut, http.MethodPost:
			t.handlePut(w, r, key)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
	return mux
}

// ListenAndServe serves on address until ctx is cancelled, then shuts down gracefully.
func (t *Server) ListenAndServe(ctx context.Context, address string) error {
	server := http.Server{
		Addr:    address,
		Handler: t.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("Server starting", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	t.logger.Info("Gracefully shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (t *Server) handleGet(w http.ResponseWriter, key string) {
	t.lock.RLock()
	value, ok := t.data[key]
	t.lock.RUnlock()

	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, value); err != nil {
		t.logger.Error("Error writing data", "key", key, "error", err)
	}
}

func (t *Server) handlePut(w http.ResponseWriter, r *http.Request, key string) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			t.logger.Error("error closing the request body", "error", err)
		}
	}(r.Body)

	t.lock.Lock()
	t.data[key] = string(b)
	t.lock.Unlock()

	w.WriteHeader(http.StatusNoContent)
}
