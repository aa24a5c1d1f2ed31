package models

import "math"

// NumParams is the number of fitted pointing model parameters.
const NumParams = 7

// MinObservations is the smallest calibration set the solver accepts.
const MinObservations = 2

// PointingModel is a 7-parameter mechanical correction (all terms in degrees):
//
//	corrected_az = az + AZ0 + AN·sin(az) + AC·cos(az) + COLL·tan(el)
//	corrected_el = el + EL0 + GRAV·cos(el) + ELLIN·sin(el)
//
// RMSResidual, Rank and Observations are fit diagnostics set by the solver.
type PointingModel struct {
	AZ0   float64 `json:"AZ0"`    // azimuth zero offset
	AN    float64 `json:"AN"`     // N-S axis tilt
	AC    float64 `json:"AC"`     // E-W axis tilt
	COLL  float64 `json:"COLL"`   // collimation / non-orthogonality
	EL0   float64 `json:"EL0"`    // elevation zero offset
	GRAV  float64 `json:"GRAV"`   // gravity sag
	ELLIN float64 `json:"EL_LIN"` // elevation linearity

	RMSResidual  float64 `json:"RMS_RESIDUAL"`
	Rank         int     `json:"RANK"`
	Observations int     `json:"OBSERVATIONS"`
}

// Params returns the fitted parameters in solver order.
func (m PointingModel) Params() [NumParams]float64 {
	return [NumParams]float64{m.AZ0, m.AN, m.AC, m.COLL, m.EL0, m.GRAV, m.ELLIN}
}

// Degenerate reports a rank-deficient fit; its parameters are a minimum-norm
// solution and should not be trusted individually.
func (m PointingModel) Degenerate() bool { return m.Rank < NumParams }

// Apply corrects a commanded direction. tan(el) diverges near ±90° elevation.
func (m PointingModel) Apply(azCmd, elCmd float64) (float64, float64) {
	az := AzimuthTerms(azCmd, elCmd)
	el := ElevationTerms(elCmd)
	correctedAz := azCmd + m.AZ0*az[0] + m.AN*az[1] + m.AC*az[2] + m.COLL*az[3]
	correctedEl := elCmd + m.EL0*el[0] + m.GRAV*el[1] + m.ELLIN*el[2]
	return correctedAz, correctedEl
}

// Correct is Apply for a Direction.
func (m PointingModel) Correct(d Direction) Direction {
	az, el := m.Apply(d.Az, d.El)
	return Direction{Az: az, El: el}
}

// AzimuthTerms are the regressors of AZ0, AN, AC and COLL.
func AzimuthTerms(azDeg, elDeg float64) [4]float64 {
	az := azDeg * math.Pi / 180.0
	el := elDeg * math.Pi / 180.0
	return [4]float64{1, math.Sin(az), math.Cos(az), math.Tan(el)}
}

// ElevationTerms are the regressors of EL0, GRAV and EL_LIN.
func ElevationTerms(elDeg float64) [3]float64 {
	el := elDeg * math.Pi / 180.0
	return [3]float64{1, math.Cos(el), math.Sin(el)}
}
