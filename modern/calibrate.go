package modern

import (
	"context"
	"fmt"

	"github.com/CK6170/Dishrunrilla-go/models"
)

type CalStepKind string

const (
	CalStepScan  CalStepKind = "scan"
	CalStepSolve CalStepKind = "solve"
)

type CalStep struct {
	Kind   CalStepKind
	Index  int    // for scan steps: 0..len(TARGETS)-1
	Label  string // e.g. [0001] or [SOLVE]
	Prompt string
	Target *models.TARGET
}

// BuildCalibrationPlan returns one scan step per reference target followed
// by the final solve step.
func BuildCalibrationPlan(p *models.PARAMETERS) ([]CalStep, error) {
	if p == nil {
		return nil, fmt.Errorf("parameters nil")
	}
	if len(p.TARGETS) == 0 {
		return nil, fmt.Errorf("no targets configured")
	}
	steps := make([]CalStep, 0, len(p.TARGETS)+1)
	for i, t := range p.TARGETS {
		steps = append(steps, CalStep{
			Kind:  CalStepScan,
			Index: i,
			Label: fmt.Sprintf("[%04d]", i+1),
			Prompt: fmt.Sprintf(
				"Make sure %s is up at AZ %.2f EL %.2f, then press Enter to scan (s to skip).",
				t.NAME, t.AZ, t.EL,
			),
			Target: t,
		})
	}
	steps = append(steps, CalStep{
		Kind:   CalStepSolve,
		Index:  len(p.TARGETS),
		Label:  "[SOLVE]",
		Prompt: "Press Enter to fit the pointing model.",
	})
	return steps, nil
}

// ScanTarget spirals around the platonic direction of step's target and
// returns the resulting observation. The oracle runs on a context detached
// from ctx so the centre point can still be measured after cancellation.
func ScanTarget(ctx context.Context, sess *Session, step CalStep, onSample func(models.Sample)) (models.CalibrationObservation, models.SearchResult, error) {
	if sess == nil || sess.Params == nil || sess.Positioner == nil || sess.Receiver == nil {
		return models.CalibrationObservation{}, models.SearchResult{}, fmt.Errorf("not connected")
	}
	if step.Kind != CalStepScan || step.Target == nil {
		return models.CalibrationObservation{}, models.SearchResult{}, fmt.Errorf("step %s is not a scan step", step.Label)
	}
	if sess.Params.SCAN == nil {
		return models.CalibrationObservation{}, models.SearchResult{}, fmt.Errorf("missing SCAN section")
	}
	path, err := GenerateSpiral(sess.Params.SCAN.Config())
	if err != nil {
		return models.CalibrationObservation{}, models.SearchResult{}, err
	}
	platonic := step.Target.Direction()
	oracle := NewSignalOracle(context.WithoutCancel(ctx), sess, platonic, OracleOptionsFrom(sess.Params))
	res, err := PeakSearch(ctx, path, oracle, onSample)
	obs := models.CalibrationObservation{
		Target:   step.Target.NAME,
		Platonic: platonic,
		Peak:     platonic.Add(res.BestOffset),
	}
	return obs, res, err
}
