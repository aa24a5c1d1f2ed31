package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/CK6170/Dishrunrilla-go/models"
	"github.com/CK6170/Dishrunrilla-go/modern"
)

func (s *Server) handleCalPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	_, p := s.dev.connected()
	if p == nil {
		s.writeJSON(w, 400, APIError{Error: "not connected"})
		return
	}
	steps, err := modern.BuildCalibrationPlan(p)
	if err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	out := make([]CalStepDTO, 0, len(steps))
	for i, st := range steps {
		dto := CalStepDTO{
			StepIndex: i,
			Kind:      string(st.Kind),
			Label:     st.Label,
			Prompt:    st.Prompt,
		}
		if st.Target != nil {
			dto.Target = st.Target.NAME
			dto.Az = st.Target.AZ
			dto.El = st.Target.EL
		}
		out = append(out, dto)
	}
	s.writeJSON(w, 200, CalPlanResponse{Steps: out})
}

func (s *Server) handleCalStartStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req CalStartStepRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	_, p := s.dev.connected()
	if p == nil {
		s.writeJSON(w, 400, APIError{Error: "not connected"})
		return
	}
	steps, err := modern.BuildCalibrationPlan(p)
	if err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	if req.StepIndex < 0 || req.StepIndex >= len(steps) {
		s.writeJSON(w, 400, APIError{Error: "invalid stepIndex"})
		return
	}
	step := steps[req.StepIndex]

	if step.Kind == modern.CalStepSolve {
		resp, status, err := s.solve()
		if err != nil {
			s.wsCal.Broadcast(WSMessage{Type: "error", Data: map[string]string{"error": err.Error()}})
			s.writeJSON(w, status, APIError{Error: err.Error()})
			return
		}
		s.wsCal.Broadcast(WSMessage{Type: "done", Data: resp})
		s.writeJSON(w, 200, resp)
		return
	}

	ctx, sess, op, ok := s.dev.beginOp("calibration")
	if !ok {
		s.writeJSON(w, 400, APIError{Error: "not connected"})
		return
	}

	go func() {
		defer op.finish()
		if err := op.wait(ctx); err != nil {
			s.wsCal.Broadcast(WSMessage{Type: "stopped", Data: map[string]interface{}{"stepIndex": req.StepIndex}})
			return
		}
		obs, res, err := modern.ScanTarget(ctx, sess, step, func(smp models.Sample) {
			s.wsCal.Broadcast(WSMessage{
				Type: "sample",
				Data: sampleDTO{
					StepIndex: req.StepIndex,
					Index:     smp.Index,
					Offset:    smp.Offset,
					Strength:  finitePtr(smp.Strength),
					Valid:     smp.Valid,
				},
			})
		})
		switch {
		case errors.Is(err, context.Canceled):
			s.wsCal.Broadcast(WSMessage{Type: "stopped", Data: map[string]interface{}{
				"stepIndex": req.StepIndex,
				"result":    toSearchDTO(res),
			}})
			return
		case err != nil:
			s.wsCal.Broadcast(WSMessage{Type: "error", Data: map[string]string{"error": err.Error()}})
			return
		}

		s.dev.calMu.Lock()
		err = s.dev.cal.Record(obs)
		count := s.dev.cal.Len()
		s.dev.calMu.Unlock()
		if err != nil {
			s.wsCal.Broadcast(WSMessage{Type: "error", Data: map[string]string{"error": err.Error()}})
			return
		}
		if err := s.pub.PublishSearch(obs, res); err != nil {
			log.Printf("telemetry: %v", err)
		}

		s.wsCal.Broadcast(WSMessage{
			Type: "stepDone",
			Data: map[string]interface{}{
				"stepIndex":    req.StepIndex,
				"label":        step.Label,
				"observation":  obs,
				"result":       toSearchDTO(res),
				"observations": count,
			},
		})
	}()

	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleCalObservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ObservationRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	obs := models.CalibrationObservation{Target: req.Target, Platonic: req.Platonic, Peak: req.Peak}
	s.dev.calMu.Lock()
	err := s.dev.cal.Record(obs)
	count := s.dev.cal.Len()
	s.dev.calMu.Unlock()
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, map[string]int{"observations": count})
}

func (s *Server) handleCalObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.dev.calMu.Lock()
	set := s.dev.cal.Snapshot()
	s.dev.calMu.Unlock()
	s.writeJSON(w, 200, ObservationsResponse{Observations: set})
}

func (s *Server) handleCalReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	s.dev.calMu.Lock()
	s.dev.cal.Reset()
	s.dev.calMu.Unlock()
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleCalSolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	resp, status, err := s.solve()
	if err != nil {
		s.writeJSON(w, status, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, resp)
}

// solve fits the accumulated observations and stores the model.
func (s *Server) solve() (*SolveResponse, int, error) {
	s.dev.calMu.Lock()
	set := s.dev.cal.Snapshot()
	s.dev.calMu.Unlock()

	model, err := modern.SolvePointingModel(set)
	if err != nil {
		status := 500
		if errors.Is(err, models.ErrInsufficientData) || errors.Is(err, models.ErrInvalidObservation) {
			status = 400
		}
		return nil, status, err
	}
	report, err := modern.VerifyModel(model, set)
	if err != nil {
		return nil, 500, err
	}
	pf := &modern.PointingFile{MODEL: model, OBSERVATIONS: set}
	raw, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return nil, 500, err
	}
	rec := s.store.Put(&Record{Kind: kindModel, Raw: raw, Model: pf})

	s.dev.calMu.Lock()
	s.dev.lastModelID = rec.ID
	s.dev.calMu.Unlock()

	if err := s.pub.PublishModel(model); err != nil {
		log.Printf("telemetry: %v", err)
	}
	if model.Degenerate() {
		log.Printf("pointing model is rank deficient (rank %d of %d)", model.Rank, models.NumParams)
	}
	return &SolveResponse{
		ModelID:    rec.ID,
		Model:      model,
		Degenerate: model.Degenerate(),
		Residuals:  report.Residuals,
	}, 200, nil
}
