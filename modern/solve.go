package modern

import (
	"fmt"
	"math"

	"github.com/CK6170/Dishrunrilla-go/matrix"
	"github.com/CK6170/Dishrunrilla-go/models"
)

// BuildDesignMatrix forms the (2N×7) least-squares system for set. Row 2i is
// the azimuth equation and row 2i+1 the elevation equation of observation i,
// both using the platonic direction's trig terms; b holds the residuals.
func BuildDesignMatrix(set models.CalibrationSet) (*matrix.Matrix, *matrix.Vector) {
	a := matrix.NewMatrix(2*len(set), models.NumParams)
	b := matrix.NewVector(2 * len(set))
	for i, obs := range set {
		az := models.AzimuthTerms(obs.Platonic.Az, obs.Platonic.El)
		el := models.ElevationTerms(obs.Platonic.El)
		a.SetRow(2*i, []float64{az[0], az[1], az[2], az[3], 0, 0, 0})
		a.SetRow(2*i+1, []float64{0, 0, 0, 0, el[0], el[1], el[2]})

		r := obs.Residual()
		b.Values[2*i] = r.Az
		b.Values[2*i+1] = r.El
	}
	return a, b
}

// SolvePointingModel fits the 7-parameter model to set in the least-squares
// sense. A full-rank system is solved with Householder QR; a rank-deficient
// one (including every set with fewer than 4 observations) gets the
// minimum-norm solution from the SVD pseudo-inverse. Degeneracy is reported
// through Rank and RMSResidual rather than as an error.
func SolvePointingModel(set models.CalibrationSet) (models.PointingModel, error) {
	if len(set) < models.MinObservations {
		return models.PointingModel{}, fmt.Errorf("%w: have %d observations, need at least %d",
			models.ErrInsufficientData, len(set), models.MinObservations)
	}
	for i, obs := range set {
		if !obs.Platonic.IsFinite() || !obs.Peak.IsFinite() {
			return models.PointingModel{}, fmt.Errorf("observation %d: %w", i, models.ErrInvalidObservation)
		}
	}

	a, b := BuildDesignMatrix(set)
	rank, err := a.Rank(matrix.DefaultRcond)
	if err != nil {
		return models.PointingModel{}, err
	}

	var x *matrix.Vector
	if rank == models.NumParams && a.Rows >= a.Cols {
		x, err = a.SolveQR(b)
		if err != nil {
			return models.PointingModel{}, err
		}
	} else {
		pinv := a.InverseSVD()
		if pinv == nil {
			return models.PointingModel{}, fmt.Errorf("pointing solve: SVD failed")
		}
		x, err = pinv.MulVector(b)
		if err != nil {
			return models.PointingModel{}, err
		}
	}

	ax, err := a.MulVector(x)
	if err != nil {
		return models.PointingModel{}, err
	}
	residual, err := ax.Sub(b)
	if err != nil {
		return models.PointingModel{}, err
	}
	v := x.Values
	return models.PointingModel{
		AZ0:          v[0],
		AN:           v[1],
		AC:           v[2],
		COLL:         v[3],
		EL0:          v[4],
		GRAV:         v[5],
		ELLIN:        v[6],
		RMSResidual:  math.Sqrt(residual.SquaredNorm() / float64(b.Length)),
		Rank:         rank,
		Observations: len(set),
	}, nil
}
