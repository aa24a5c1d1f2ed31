package modern

import (
	"fmt"

	"github.com/CK6170/Dishrunrilla-go/models"
)

// Aggregator collects calibration observations in insertion order. It does no
// deduplication; unit and frame consistency is the caller's contract. It is
// not safe for concurrent use.
type Aggregator struct {
	obs models.CalibrationSet
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator { return &Aggregator{} }

// Record appends obs. Only non-finite directions are rejected.
func (a *Aggregator) Record(obs models.CalibrationObservation) error {
	if !obs.Platonic.IsFinite() || !obs.Peak.IsFinite() {
		return fmt.Errorf("%w: %+v", models.ErrInvalidObservation, obs)
	}
	a.obs = append(a.obs, obs)
	return nil
}

// Snapshot returns a copy of the observations recorded so far.
func (a *Aggregator) Snapshot() models.CalibrationSet {
	out := make(models.CalibrationSet, len(a.obs))
	copy(out, a.obs)
	return out
}

// Len is the number of observations recorded.
func (a *Aggregator) Len() int { return len(a.obs) }

// Reset discards every recorded observation.
func (a *Aggregator) Reset() { a.obs = nil }
