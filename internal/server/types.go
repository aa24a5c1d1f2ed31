package server

import (
	"math"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
	"github.com/CK6170/Dishrunrilla-go/modern"
)

type APIError struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	OK        bool      `json:"ok"`
	Timestamp time.Time `json:"timestamp"`
}

type UploadResponse struct {
	ConfigID string `json:"configId"`
	Kind     string `json:"kind"`
}

type ConnectRequest struct {
	ConfigID string `json:"configId"`
}

type ConnectResponse struct {
	Connected bool   `json:"connected"`
	Port      string `json:"port"`
	Version   string `json:"version"`
	Targets   int    `json:"targets"`
}

type CalStepDTO struct {
	StepIndex int     `json:"stepIndex"`
	Kind      string  `json:"kind"`
	Label     string  `json:"label"`
	Prompt    string  `json:"prompt"`
	Target    string  `json:"target,omitempty"`
	Az        float64 `json:"az,omitempty"`
	El        float64 `json:"el,omitempty"`
}

type CalPlanResponse struct {
	Steps []CalStepDTO `json:"steps"`
}

type CalStartStepRequest struct {
	StepIndex int `json:"stepIndex"`
}

type ObservationRequest struct {
	Target   string           `json:"target"`
	Platonic models.Direction `json:"platonic"`
	Peak     models.Direction `json:"peak"`
}

type ObservationsResponse struct {
	Observations models.CalibrationSet `json:"observations"`
}

type SolveResponse struct {
	ModelID    string                       `json:"modelId"`
	Model      models.PointingModel         `json:"model"`
	Degenerate bool                         `json:"degenerate"`
	Residuals  []modern.ObservationResidual `json:"residuals"`
}

type CorrectRequest struct {
	ModelID    string             `json:"modelId"`
	Directions []models.Direction `json:"directions"`
}

type CorrectResponse struct {
	ModelID   string             `json:"modelId"`
	Corrected []models.Direction `json:"corrected"`
}

type TrackStartRequest struct {
	ModelID    string             `json:"modelId"`
	Directions []models.Direction `json:"directions"`
	IntervalMs int                `json:"intervalMs"`
}

// sampleDTO carries a scan sample; Strength is null for invalid readings.
type sampleDTO struct {
	StepIndex int                  `json:"stepIndex"`
	Index     int                  `json:"index"`
	Offset    models.AngularOffset `json:"offset"`
	Strength  *float64             `json:"strength"`
	Valid     bool                 `json:"valid"`
}

type searchDTO struct {
	BestOffset   models.AngularOffset `json:"bestOffset"`
	BestStrength *float64             `json:"bestStrength"`
	BestIndex    int                  `json:"bestIndex"`
	Samples      int                  `json:"samples"`
	Invalid      int                  `json:"invalid"`
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func toSearchDTO(r models.SearchResult) searchDTO {
	return searchDTO{
		BestOffset:   r.BestOffset,
		BestStrength: finitePtr(r.BestStrength),
		BestIndex:    r.BestIndex,
		Samples:      r.Samples,
		Invalid:      r.Invalid,
	}
}
