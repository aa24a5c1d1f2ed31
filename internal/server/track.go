package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
	"github.com/CK6170/Dishrunrilla-go/modern"
)

// modelFor resolves a stored model by id, or the most recently solved one.
func (s *Server) modelFor(id string) (string, *models.PointingModel, bool) {
	if id == "" {
		s.dev.calMu.Lock()
		id = s.dev.lastModelID
		s.dev.calMu.Unlock()
	}
	rec, ok := s.store.Get(id)
	if !ok || rec.Kind != kindModel || rec.Model == nil {
		return id, nil, false
	}
	return id, &rec.Model.MODEL, true
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req CorrectRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	id, model, ok := s.modelFor(req.ModelID)
	if !ok {
		s.writeJSON(w, 404, APIError{Error: "model not found (solve or upload a model first)"})
		return
	}
	out := make([]models.Direction, 0, len(req.Directions))
	for _, d := range req.Directions {
		out = append(out, model.Correct(d))
	}
	s.writeJSON(w, 200, CorrectResponse{ModelID: id, Corrected: out})
}

func (s *Server) handleTrackStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req TrackStartRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if len(req.Directions) == 0 {
		s.writeJSON(w, 400, APIError{Error: "no directions"})
		return
	}
	_, model, ok := s.modelFor(req.ModelID)
	if !ok {
		s.writeJSON(w, 404, APIError{Error: "model not found (solve or upload a model first)"})
		return
	}
	ctx, sess, op, ok := s.dev.beginOp("track")
	if !ok {
		s.writeJSON(w, 400, APIError{Error: "not connected"})
		return
	}
	opts := modern.TrackOptionsFrom(sess.Params)
	opts.Interval = time.Duration(req.IntervalMs) * time.Millisecond
	m := *model

	go func() {
		defer op.finish()
		if err := op.wait(ctx); err != nil {
			s.wsTrack.Broadcast(WSMessage{Type: "stopped"})
			return
		}
		err := modern.TrackCorrected(ctx, sess.Positioner, m, req.Directions, opts, func(p modern.TrackProgress) {
			s.wsTrack.Broadcast(WSMessage{
				Type: "progress",
				Data: map[string]interface{}{
					"stage":     string(p.Stage),
					"index":     p.Index,
					"commanded": p.Commanded,
					"corrected": p.Corrected,
					"message":   p.Message,
				},
			})
		})
		switch {
		case errors.Is(err, context.Canceled):
			s.wsTrack.Broadcast(WSMessage{Type: "stopped"})
		case err != nil:
			s.wsTrack.Broadcast(WSMessage{Type: "error", Data: map[string]string{"error": err.Error()}})
		default:
			s.wsTrack.Broadcast(WSMessage{Type: "done", Data: map[string]bool{"ok": true}})
		}
	}()

	s.writeJSON(w, 200, map[string]bool{"ok": true})
}
