package models

import "math"

// Direction is a topocentric azimuth/elevation pair in degrees.
type Direction struct {
	Az float64 `json:"az"`
	El float64 `json:"el"`
}

// Add offsets d by o.
func (d Direction) Add(o AngularOffset) Direction {
	return Direction{Az: d.Az + o.Az, El: d.El + o.El}
}

// Sub returns the component-wise difference d−o.
func (d Direction) Sub(o Direction) Direction {
	return Direction{Az: d.Az - o.Az, El: d.El - o.El}
}

// IsFinite reports whether both components are neither NaN nor ±Inf.
func (d Direction) IsFinite() bool {
	return !math.IsNaN(d.Az) && !math.IsInf(d.Az, 0) && !math.IsNaN(d.El) && !math.IsInf(d.El, 0)
}

// CalibrationObservation pairs the theoretical direction of one reference
// target with the empirically found peak direction.
type CalibrationObservation struct {
	Target   string    `json:"target,omitempty"`
	Platonic Direction `json:"platonic"`
	Peak     Direction `json:"peak"`
}

// Residual is Peak - Platonic.
func (o CalibrationObservation) Residual() Direction {
	return o.Peak.Sub(o.Platonic)
}

// CalibrationSet keeps observations in the order they were recorded.
type CalibrationSet []CalibrationObservation
