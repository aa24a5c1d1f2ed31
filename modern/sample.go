package modern

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
)

type SamplePhase string

const (
	SamplePhaseIgnoring  SamplePhase = "ignoring"
	SamplePhaseAveraging SamplePhase = "averaging"
	SamplePhaseFinished  SamplePhase = "finished"
)

// sampleInterval paces consecutive receiver queries.
var sampleInterval = 5 * time.Millisecond

type SampleUpdate struct {
	Phase        SamplePhase
	IgnoreDone   int
	IgnoreTarget int
	AvgDone      int
	AvgTarget    int
	Current      float64
	Final        float64
}

// SampleSignal discards ignoreTarget readings, then averages avgTarget
// readings, skipping invalid ones. It fails with models.ErrInvalidReading
// when none of the averaged readings was usable.
func SampleSignal(ctx context.Context, rx Receiver, ignoreTarget, avgTarget int, onUpdate func(SampleUpdate)) (float64, error) {
	if rx == nil {
		return 0, fmt.Errorf("receiver not connected")
	}
	if avgTarget <= 0 {
		return 0, fmt.Errorf("avgTarget must be > 0")
	}
	if ignoreTarget < 0 {
		ignoreTarget = 0
	}

	wait := func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sampleInterval):
			return nil
		}
	}

	for done := 1; done <= ignoreTarget; done++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		cur, _ := rx.ReadSignal()
		if onUpdate != nil {
			onUpdate(SampleUpdate{Phase: SamplePhaseIgnoring, IgnoreDone: done, IgnoreTarget: ignoreTarget, AvgTarget: avgTarget, Current: cur})
		}
		if err := wait(); err != nil {
			return 0, err
		}
	}

	sum := 0.0
	count := 0
	for done := 1; done <= avgTarget; done++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		cur, err := rx.ReadSignal()
		if err == nil && !math.IsNaN(cur) && !math.IsInf(cur, 0) {
			sum += cur
			count++
		}
		if onUpdate != nil {
			onUpdate(SampleUpdate{Phase: SamplePhaseAveraging, IgnoreDone: ignoreTarget, IgnoreTarget: ignoreTarget, AvgDone: done, AvgTarget: avgTarget, Current: cur})
		}
		if done < avgTarget {
			if err := wait(); err != nil {
				return 0, err
			}
		}
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: no valid reading in %d samples", models.ErrInvalidReading, avgTarget)
	}
	final := sum / float64(count)
	if onUpdate != nil {
		onUpdate(SampleUpdate{Phase: SamplePhaseFinished, IgnoreDone: ignoreTarget, IgnoreTarget: ignoreTarget, AvgDone: avgTarget, AvgTarget: avgTarget, Final: final})
	}
	return final, nil
}

// OracleOptions control one move-dwell-sample cycle.
type OracleOptions struct {
	Dwell       time.Duration
	Ignore      int
	Avg         int
	Tolerance   float64
	MoveTimeout time.Duration
}

func OracleOptionsFrom(p *models.PARAMETERS) OracleOptions {
	opts := OracleOptions{
		Ignore:      p.IGNORE,
		Avg:         p.AVG,
		Tolerance:   p.SETTLE_TOLERANCE,
		MoveTimeout: time.Duration(p.MOVE_TIMEOUT_MS) * time.Millisecond,
	}
	if p.SCAN != nil {
		opts.Dwell = p.SCAN.Config().DwellTime
	}
	return opts
}

// NewSignalOracle returns the oracle for scanning around center: each Read
// slews to center+offset, waits for arrival, dwells, then samples the
// receiver. Move failures and dropouts are reported as
// models.ErrInvalidReading so the scan carries on.
func NewSignalOracle(ctx context.Context, sess *Session, center models.Direction, opts OracleOptions) Oracle {
	return OracleFunc(func(offset models.AngularOffset) (float64, error) {
		target := center.Add(offset)
		if err := sess.Positioner.Goto(target); err != nil {
			return 0, fmt.Errorf("%w: goto %+v: %v", models.ErrInvalidReading, target, err)
		}
		if _, err := sess.Positioner.WaitArrived(ctx, target, opts.Tolerance, opts.MoveTimeout); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return 0, err
			}
			return 0, fmt.Errorf("%w: %v", models.ErrInvalidReading, err)
		}
		if opts.Dwell > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(opts.Dwell):
			}
		}
		return SampleSignal(ctx, sess.Receiver, opts.Ignore, opts.Avg, nil)
	})
}
