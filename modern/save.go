package modern

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
)

// PointingFile is the on-disk form of a fitted model.
type PointingFile struct {
	MODEL        models.PointingModel  `json:"MODEL"`
	OBSERVATIONS models.CalibrationSet `json:"OBSERVATIONS"`
	SITE         *models.Fix           `json:"SITE,omitempty"`
	CREATED      string                `json:"CREATED"`
}

// SaveModelJSON writes model together with the observations it was fitted
// from. It does not print; callers surface errors themselves.
func SaveModelJSON(path string, model models.PointingModel, set models.CalibrationSet, fix *models.Fix) error {
	payload := PointingFile{
		MODEL:        model,
		OBSERVATIONS: set,
		SITE:         fix,
		CREATED:      time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func LoadModelJSON(path string) (*PointingFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f PointingFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse pointing model: %w", err)
	}
	return &f, nil
}
