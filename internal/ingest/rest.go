package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type RESTServer struct {
	parser *Parser
	sink   *Sink
	logger *slog.Logger
}

func NewRESTServer(parser *Parser, sink *Sink, logger *slog.Logger) *RESTServer {
	return &RESTServer{parser: parser, sink: sink, logger: logger}
}

func (s *RESTServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/frames", s.handleFrames).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	return r
}

// StartREST serves POST /frames on addr until ctx is done.
func StartREST(ctx context.Context, addr string, parser *Parser, sink *Sink, logger *slog.Logger) *http.Server {
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", addr)
	}
	server := NewRESTServer(parser, sink, logger)
	httpServer := &http.Server{Addr: addr, Handler: server.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if logger != nil {
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *RESTServer) handleFrames(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 16<<20))
	if err != nil {
		http.Error(w, "body too large or unreadable", http.StatusBadRequest)
		return
	}
	frames, err := s.parser.ParseBytes(body)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rest ingest parse error", "err", err)
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	accepted, dropped := 0, 0
	for _, f := range frames {
		f.Source = "rest"
		if s.sink.Send(r.Context(), f) {
			accepted++
		} else {
			dropped++
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if accepted == 0 && dropped > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusAccepted)
	}
	_ = json.NewEncoder(w).Encode(map[string]int{
		"accepted": accepted,
		"dropped":  dropped,
	})
}
