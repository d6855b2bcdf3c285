package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"sightline/internal/alerts"
	"sightline/internal/config"
	"sightline/internal/ingest"
	"sightline/internal/metrics"
	"sightline/internal/model"
	"sightline/internal/power"
)

type EngineControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
	Power() *power.Manager
	Describe(ctx context.Context, raw []model.RawDetection, width, height int) (model.Description, []model.Detection)
}

type HistoryReader interface {
	History(ctx context.Context, limit int) ([]model.HistoryEntry, error)
}

type SpeechStats interface {
	Pending() int
	Spoken() int64
	Dropped() int64
}

type Server struct {
	cfg     *config.Manager
	metrics *metrics.Store
	alerts  *alerts.Store
	engine  EngineControl
	history HistoryReader
	speech  SpeechStats
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string             `json:"status"`
	Time       string             `json:"time"`
	Version    string             `json:"version"`
	ConfigPath string             `json:"config_path"`
	Camera     cameraStatus       `json:"camera"`
	Ingest     ingestStatus       `json:"ingest"`
	LLM        llmStatus          `json:"llm"`
	Speech     speechStatus       `json:"speech"`
	Power      power.Status       `json:"power"`
	Storage    bool               `json:"storage"`
	Events     bool               `json:"events"`
	Archive    bool               `json:"archive"`
	Totals     model.SessionStats `json:"totals"`
}

type cameraStatus struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	FPS    float64 `json:"fps_processing"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	FileTail  bool `json:"file_tail"`
	TCPStream bool `json:"tcp_stream"`
	Kafka     bool `json:"kafka"`
}

type llmStatus struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Language string `json:"language"`
}

type speechStatus struct {
	Engine  string `json:"engine"`
	Pending int    `json:"pending"`
	Spoken  int64  `json:"spoken"`
	Dropped int64  `json:"dropped"`
}

// NewServer builds the status surface. history and speech may be nil.
func NewServer(cfg *config.Manager, metricsStore *metrics.Store, alertsStore *alerts.Store, engine EngineControl, history HistoryReader, speech SpeechStats, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:     cfg,
		metrics: metricsStore,
		alerts:  alertsStore,
		engine:  engine,
		history: history,
		speech:  speech,
		logger:  logger,
		version: version,
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/metrics/{camera}", s.handleCameraMetrics).Methods(http.MethodGet)
	r.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/power", s.handlePowerGet).Methods(http.MethodGet)
	r.HandleFunc("/power", s.handlePowerSet).Methods(http.MethodPost)
	r.HandleFunc("/describe", s.handleDescribe).Methods(http.MethodPost)
	r.HandleFunc("/admin/clear", s.handleClear).Methods(http.MethodPost)
	r.HandleFunc("/admin/restart", s.handleRestart).Methods(http.MethodPost)
	return cors.AllowAll().Handler(r)
}

func Start(ctx context.Context, server *Server, addr string, logger *slog.Logger) *http.Server {
	if logger != nil {
		logger.Info("api enabled", "addr", addr)
	}
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
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Camera:     cameraStatus{ID: cfg.Camera.ID, Source: cfg.Camera.Source, FPS: cfg.Camera.FPSProcessing},
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
		LLM:     llmStatus{Provider: cfg.LLM.Provider, Model: cfg.LLM.Model, Language: cfg.Description.Language},
		Speech:  speechStatus{Engine: cfg.Speech.Engine},
		Storage: cfg.Storage.Enabled,
		Events:  cfg.Events.Enabled,
		Archive: cfg.Archive.Enabled,
	}
	if s.engine != nil {
		resp.Power = s.engine.Power().Status()
	}
	if s.speech != nil {
		resp.Speech.Pending = s.speech.Pending()
		resp.Speech.Spoken = s.speech.Spoken()
		resp.Speech.Dropped = s.speech.Dropped()
	}
	if s.metrics != nil {
		resp.Totals = s.metrics.Totals()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	all := s.metrics.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": all,
		"count":   len(all),
	})
}

func (s *Server) handleCameraMetrics(w http.ResponseWriter, r *http.Request) {
	camera := mux.Vars(r)["camera"]
	stats, updated, ok := s.metrics.Get(camera)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown camera")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"camera_id":  camera,
		"updated_at": updated.Format(time.RFC3339Nano),
		"metrics":    stats,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	var list []model.Alert
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		list = s.alerts.Since(ts)
		if limit > 0 && len(list) > limit {
			list = list[len(list)-limit:]
		}
	} else {
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "storage disabled")
		return
	}
	entries, err := s.history.History(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("history query failed", "err", err)
		}
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

func (s *Server) handlePowerGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Power().Status())
}

type powerRequest struct {
	Level    *int  `json:"level"`
	Charging *bool `json:"charging"`
	Adaptive *bool `json:"adaptive"`
}

func (s *Server) handlePowerSet(w http.ResponseWriter, r *http.Request) {
	var req powerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pm := s.engine.Power()
	status := pm.Status()
	if req.Level != nil {
		if *req.Level < 0 || *req.Level > 100 {
			writeError(w, http.StatusBadRequest, "level must be between 0 and 100")
			return
		}
		status.Level = *req.Level
	}
	if req.Charging != nil {
		status.Charging = *req.Charging
	}
	pm.SetBattery(status.Level, status.Charging)
	if req.Adaptive != nil {
		pm.SetAdaptive(*req.Adaptive)
	}
	next := pm.Status()
	if s.logger != nil {
		s.logger.Info("power state updated", "level", next.Level, "charging", next.Charging, "mode", next.Profile.Mode, "adaptive", next.Adaptive)
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "body too large or unreadable")
		return
	}
	parser := ingest.NewParser(s.cfg.Get().Ingest.Parser)
	frames, err := parser.ParseBytes(body)
	if err != nil || len(frames) != 1 {
		writeError(w, http.StatusBadRequest, "expected one frame with detections")
		return
	}
	frame := frames[0]
	if !frame.Detected() {
		writeError(w, http.StatusBadRequest, "detections are required")
		return
	}
	desc, relevant := s.engine.Describe(r.Context(), frame.Detections, frame.Width, frame.Height)
	if frame.CameraID != "" {
		desc.CameraID = frame.CameraID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"description": desc,
		"objects":     relevant,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	_ = decodeBody(w, r, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.metrics.Clear()
		s.alerts.Clear()
	case "alerts":
		s.alerts.Clear()
	case "metrics":
		s.metrics.Clear()
	default:
		writeError(w, http.StatusBadRequest, "target must be all, alerts or metrics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "cleared": target})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if s.engine != nil {
		s.engine.Reset()
		s.engine.UpdateConfig(s.cfg.Get())
	}
	s.metrics.Clear()
	s.alerts.Clear()
	if s.logger != nil {
		s.logger.Info("engine restarted from api")
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// decodeBody tolerates an empty body.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
