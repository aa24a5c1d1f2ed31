package models

import (
	"fmt"
	"math"
	"time"
)

// MaxScanSteps caps the number of ring points a single search may visit.
const MaxScanSteps = 100000

// ScanConfig fully determines a spiral search path. Radii and ArcStep share
// the angular unit of the pipeline (degrees).
type ScanConfig struct {
	StartRadius float64
	MinRadius   float64
	ArcStep     float64
	// DwellTime is advisory: it is consumed by the signal oracle, not by the path generator.
	DwellTime time.Duration
}

// Validate reports ErrInvalidConfiguration for parameters that cannot produce a path.
func (c ScanConfig) Validate() error {
	for _, v := range []float64{c.StartRadius, c.MinRadius, c.ArcStep} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value in %+v", ErrInvalidConfiguration, c)
		}
	}
	if c.MinRadius < 0 {
		return fmt.Errorf("%w: min radius %g < 0", ErrInvalidConfiguration, c.MinRadius)
	}
	if c.StartRadius <= c.MinRadius {
		return fmt.Errorf("%w: start radius %g must exceed min radius %g", ErrInvalidConfiguration, c.StartRadius, c.MinRadius)
	}
	if c.ArcStep <= 0 {
		return fmt.Errorf("%w: arc step %g must be > 0", ErrInvalidConfiguration, c.ArcStep)
	}
	if c.DwellTime < 0 {
		return fmt.Errorf("%w: dwell time %s < 0", ErrInvalidConfiguration, c.DwellTime)
	}
	if steps := (c.StartRadius - c.MinRadius) / c.ArcStep; steps > MaxScanSteps {
		return fmt.Errorf("%w: %g steps from %g to %g exceeds %d", ErrInvalidConfiguration, steps, c.StartRadius, c.MinRadius, MaxScanSteps)
	}
	if c.StartRadius-c.ArcStep == c.StartRadius {
		return fmt.Errorf("%w: arc step %g vanishes at radius %g", ErrInvalidConfiguration, c.ArcStep, c.StartRadius)
	}
	return nil
}

// AngularOffset is a deviation from a commanded direction, not an absolute direction.
type AngularOffset struct {
	Az float64 `json:"az"`
	El float64 `json:"el"`
}

// Radius is the angular distance of the offset from the centre.
func (o AngularOffset) Radius() float64 { return math.Hypot(o.Az, o.El) }

// IsCenter reports whether the offset is exactly (0,0).
func (o AngularOffset) IsCenter() bool { return o.Az == 0 && o.El == 0 }

// ScanPath is ordered outermost first and always ends at the (0,0) centre.
type ScanPath []AngularOffset

// Center returns the final sentinel point of the path.
func (p ScanPath) Center() AngularOffset {
	if len(p) == 0 {
		return AngularOffset{}
	}
	return p[len(p)-1]
}

// Sample is one oracle reading taken during a search.
type Sample struct {
	Index    int           `json:"index"`
	Offset   AngularOffset `json:"offset"`
	Strength float64       `json:"strength"`
	Valid    bool          `json:"valid"`
}

// SearchResult is the best point seen by one executed search.
type SearchResult struct {
	BestOffset   AngularOffset `json:"bestOffset"`
	BestStrength float64       `json:"bestStrength"`
	BestIndex    int           `json:"bestIndex"`
	Samples      int           `json:"samples"`
	Invalid      int           `json:"invalid"`
}
