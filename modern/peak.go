package modern

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/CK6170/Dishrunrilla-go/models"
)

// Oracle returns the signal strength after pointing at offset and settling.
// It blocks for the move-and-dwell; bounding that latency is the oracle's job.
// An unusable reading is reported with an error (typically
// models.ErrInvalidReading) or a NaN/Inf value.
type Oracle interface {
	Read(offset models.AngularOffset) (float64, error)
}

// OracleFunc adapts a plain function to Oracle.
type OracleFunc func(offset models.AngularOffset) (float64, error)

func (f OracleFunc) Read(offset models.AngularOffset) (float64, error) { return f(offset) }

// ExecuteSearch walks the whole path and returns the strongest valid sample.
func ExecuteSearch(path models.ScanPath, oracle Oracle) (models.SearchResult, error) {
	return PeakSearch(context.Background(), path, oracle, nil)
}

// PeakSearch visits every point of path in order, sampling oracle at each.
// The best point is tracked with a strict greater-than, so the first of tied
// maxima wins. Invalid readings are counted and skipped; they never abort the
// scan.
//
// If ctx is cancelled mid-scan the remaining points are abandoned, but the
// centre point (the last element of path) is still evaluated before
// returning the partial result together with ctx.Err().
//
// ErrNoValidReadings is returned when no sample was usable.
func PeakSearch(ctx context.Context, path models.ScanPath, oracle Oracle, onSample func(models.Sample)) (models.SearchResult, error) {
	if len(path) == 0 {
		return models.SearchResult{}, fmt.Errorf("%w: empty scan path", models.ErrInvalidConfiguration)
	}
	if oracle == nil {
		return models.SearchResult{}, errors.New("peak search: nil oracle")
	}

	res := models.SearchResult{BestIndex: -1, BestStrength: math.Inf(-1)}
	visit := func(i int) {
		offset := path[i]
		strength, err := oracle.Read(offset)
		valid := err == nil && !math.IsNaN(strength) && !math.IsInf(strength, 0)
		res.Samples++
		if !valid {
			res.Invalid++
		} else if res.BestIndex < 0 || strength > res.BestStrength {
			res.BestIndex = i
			res.BestOffset = offset
			res.BestStrength = strength
		}
		if onSample != nil {
			onSample(models.Sample{Index: i, Offset: offset, Strength: strength, Valid: valid})
		}
	}

	last := len(path) - 1
	var ctxErr error
	for i := 0; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			visit(last)
			break
		}
		visit(i)
	}

	if res.BestIndex < 0 {
		res.BestStrength = math.NaN()
		if ctxErr != nil {
			return res, errors.Join(models.ErrNoValidReadings, ctxErr)
		}
		return res, models.ErrNoValidReadings
	}
	return res, ctxErr
}
