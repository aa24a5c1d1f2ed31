package modern

import (
	"context"
	"fmt"
	"math"

	"github.com/CK6170/Dishrunrilla-go/models"
)

type ObservationResidual struct {
	Target    string           `json:"target,omitempty"`
	Predicted models.Direction `json:"predicted"`
	Peak      models.Direction `json:"peak"`
	Residual  models.Direction `json:"residual"` // Peak - Predicted
}

type VerifyReport struct {
	Residuals []ObservationResidual `json:"residuals"`
	RMS       float64               `json:"rms"` // over both axes, same normalisation as the solver
	MaxAbs    float64               `json:"maxAbs"`
}

// VerifyModel reports how well model predicts each observed peak.
func VerifyModel(model models.PointingModel, set models.CalibrationSet) (VerifyReport, error) {
	if len(set) == 0 {
		return VerifyReport{}, models.ErrInsufficientData
	}
	rep := VerifyReport{Residuals: make([]ObservationResidual, 0, len(set))}
	sum := 0.0
	for _, obs := range set {
		pred := model.Correct(obs.Platonic)
		r := obs.Peak.Sub(pred)
		rep.Residuals = append(rep.Residuals, ObservationResidual{
			Target:    obs.Target,
			Predicted: pred,
			Peak:      obs.Peak,
			Residual:  r,
		})
		sum += r.Az*r.Az + r.El*r.El
		rep.MaxAbs = math.Max(rep.MaxAbs, math.Max(math.Abs(r.Az), math.Abs(r.El)))
	}
	rep.RMS = math.Sqrt(sum / float64(2*len(set)))
	return rep, nil
}

// VerifySample is a live reading taken at a model-corrected direction.
type VerifySample struct {
	Target    string
	Corrected models.Direction
	Strength  float64
}

// MeasureCorrected points at the corrected direction of target and reads the
// signal there.
func MeasureCorrected(ctx context.Context, sess *Session, model models.PointingModel, target *models.TARGET) (VerifySample, error) {
	if sess == nil || sess.Params == nil || sess.Positioner == nil || sess.Receiver == nil {
		return VerifySample{}, fmt.Errorf("not connected")
	}
	if target == nil {
		return VerifySample{}, fmt.Errorf("target nil")
	}
	corrected := model.Correct(target.Direction())
	opts := OracleOptionsFrom(sess.Params)
	strength, err := NewSignalOracle(ctx, sess, corrected, opts).Read(models.AngularOffset{})
	if err != nil {
		return VerifySample{}, err
	}
	return VerifySample{Target: target.NAME, Corrected: corrected, Strength: strength}, nil
}
