package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/CK6170/Dishrunrilla-go/internal/telemetry"
	"github.com/CK6170/Dishrunrilla-go/models"
	"github.com/CK6170/Dishrunrilla-go/modern"
	serialpkg "github.com/CK6170/Dishrunrilla-go/serial"
)

type Server struct {
	mux *http.ServeMux

	store *RecordStore
	dev   *DeviceSession
	pub   telemetry.Publisher

	connect func(*models.PARAMETERS) (*modern.Session, error)
	webRoot string

	// WebSocket hubs
	wsCal   *WSHub
	wsTrack *WSHub
}

type Option func(*Server)

// WithPublisher forwards search results and models to p.
func WithPublisher(p telemetry.Publisher) Option {
	return func(s *Server) { s.pub = p }
}

// WithConnector replaces the serial connector, e.g. with a simulator.
func WithConnector(fn func(*models.PARAMETERS) (*modern.Session, error)) Option {
	return func(s *Server) { s.connect = fn }
}

func WithWebRoot(dir string) Option {
	return func(s *Server) { s.webRoot = dir }
}

func New(opts ...Option) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		store:   NewRecordStore(),
		dev:     newDeviceSession(),
		pub:     telemetry.Nop{},
		connect: modern.Connect,
		webRoot: "./web",
		wsCal:   NewWSHub(),
		wsTrack: NewWSHub(),
	}
	for _, o := range opts {
		o(s)
	}

	// API
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/upload/config", s.handleUploadConfig)
	s.mux.HandleFunc("/api/upload/model", s.handleUploadModel)
	s.mux.HandleFunc("/api/connect", s.handleConnect)
	s.mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("/api/download", s.handleDownload)

	s.mux.HandleFunc("/api/calibration/plan", s.handleCalPlan)
	s.mux.HandleFunc("/api/calibration/startStep", s.handleCalStartStep)
	s.mux.HandleFunc("/api/calibration/observation", s.handleCalObservation)
	s.mux.HandleFunc("/api/calibration/observations", s.handleCalObservations)
	s.mux.HandleFunc("/api/calibration/reset", s.handleCalReset)
	s.mux.HandleFunc("/api/calibration/solve", s.handleCalSolve)
	s.mux.HandleFunc("/api/calibration/stop", s.handleStopOp)

	s.mux.HandleFunc("/api/correct", s.handleCorrect)
	s.mux.HandleFunc("/api/track/start", s.handleTrackStart)
	s.mux.HandleFunc("/api/track/stop", s.handleStopOp)

	// WS
	s.mux.HandleFunc("/ws/calibration", s.handleWSCal)
	s.mux.HandleFunc("/ws/track", s.handleWSTrack)

	// Static frontend
	s.mux.Handle("/", http.FileServer(http.Dir(s.webRoot)))

	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// Close cancels the running operation and releases the station.
func (s *Server) Close() error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.dev.cancelLocked()
	return s.dev.disconnectLocked()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, 200, HealthResponse{OK: true, Timestamp: time.Now()})
}

func (s *Server) handleUploadConfig(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, kindConfig)
}

func (s *Server) handleUploadModel(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, kindModel)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, kind recordKind) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	f, hdr, err := fileFromMultipart(r, "file")
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, 4<<20))
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	rec := &Record{Kind: kind, Raw: raw}
	switch kind {
	case kindConfig:
		ext := strings.ToLower(filepath.Ext(hdr.Filename))
		rec.P, err = modern.DecodeParameters(raw, ext == ".yaml" || ext == ".yml")
	case kindModel:
		var pf modern.PointingFile
		if err = json.Unmarshal(raw, &pf); err == nil {
			rec.Model = &pf
		}
	}
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	s.store.Put(rec)
	s.writeJSON(w, 200, UploadResponse{ConfigID: rec.ID, Kind: string(kind)})
}

func fileFromMultipart(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return nil, nil, err
	}
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, nil, err
	}
	return f, hdr, nil
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ConnectRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	rec, ok := s.store.Get(req.ConfigID)
	if !ok || rec.Kind != kindConfig {
		s.writeJSON(w, 404, APIError{Error: "configId not found (upload parameters first)"})
		return
	}

	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	s.dev.cancelLocked()
	_ = s.dev.disconnectLocked()

	// Ensure port
	if strings.TrimSpace(rec.P.POSITIONER.PORT) == "" {
		port := serialpkg.AutoDetectPort(rec.P)
		if port == "" {
			s.writeJSON(w, 400, APIError{Error: "could not auto-detect positioner port"})
			return
		}
		rec.P.POSITIONER.PORT = port
	}

	sess, err := s.connect(rec.P)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	// Probe
	version, err := modern.ProbeVersion(sess)
	if err != nil {
		_ = sess.Close()
		s.writeJSON(w, 400, APIError{Error: "positioner version probe failed: " + err.Error()})
		return
	}

	s.dev.configID = rec.ID
	s.dev.params = rec.P
	s.dev.sess = sess
	log.Printf("connected to positioner %s on %s", version, rec.P.POSITIONER.PORT)

	s.writeJSON(w, 200, ConnectResponse{
		Connected: true,
		Port:      rec.P.POSITIONER.PORT,
		Version:   version,
		Targets:   len(rec.P.TARGETS),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.dev.cancelLocked()
	_ = s.dev.disconnectLocked()
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleStopOp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.dev.cancelLocked()
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeJSON(w, 400, APIError{Error: "missing id"})
		return
	}
	rec, ok := s.store.Get(id)
	if !ok {
		s.writeJSON(w, 404, APIError{Error: "not found"})
		return
	}
	name := "parameters.json"
	if rec.Kind == kindModel {
		name = "pointing.json"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(name)))
	w.WriteHeader(200)
	_, _ = w.Write(rec.Raw)
}
