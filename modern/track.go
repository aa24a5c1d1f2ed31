package modern

import (
	"context"
	"fmt"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
)

type TrackStage string

const (
	TrackStageMoving  TrackStage = "moving"
	TrackStageArrived TrackStage = "arrived"
	TrackStageFailed  TrackStage = "failed"
	TrackStageDone    TrackStage = "done"
)

type TrackProgress struct {
	Stage     TrackStage
	Index     int // 0-based, -1 for done
	Commanded models.Direction
	Corrected models.Direction
	Message   string
}

type TrackOptions struct {
	Tolerance   float64
	MoveTimeout time.Duration
	Interval    time.Duration // minimum spacing between successive points
}

func TrackOptionsFrom(p *models.PARAMETERS) TrackOptions {
	return TrackOptions{
		Tolerance:   p.SETTLE_TOLERANCE,
		MoveTimeout: time.Duration(p.MOVE_TIMEOUT_MS) * time.Millisecond,
	}
}

// TrackCorrected steps the positioner through commanded directions, applying
// model to each one before moving. A point that fails to settle is reported
// and skipped. Cancellation stops the positioner.
func TrackCorrected(ctx context.Context, pos Positioner, model models.PointingModel, directions []models.Direction, opts TrackOptions, onProgress func(TrackProgress)) error {
	if pos == nil {
		return fmt.Errorf("positioner not connected")
	}
	emit := func(pr TrackProgress) {
		if onProgress != nil {
			onProgress(pr)
		}
	}
	failed := 0
	for i, cmd := range directions {
		start := time.Now()
		if err := ctx.Err(); err != nil {
			_ = pos.Stop()
			return err
		}
		corrected := model.Correct(cmd)
		emit(TrackProgress{Stage: TrackStageMoving, Index: i, Commanded: cmd, Corrected: corrected})
		if err := pos.Goto(corrected); err != nil {
			failed++
			emit(TrackProgress{Stage: TrackStageFailed, Index: i, Commanded: cmd, Corrected: corrected, Message: err.Error()})
			continue
		}
		if _, err := pos.WaitArrived(ctx, corrected, opts.Tolerance, opts.MoveTimeout); err != nil {
			if ctx.Err() != nil {
				_ = pos.Stop()
				return ctx.Err()
			}
			failed++
			emit(TrackProgress{Stage: TrackStageFailed, Index: i, Commanded: cmd, Corrected: corrected, Message: err.Error()})
			continue
		}
		emit(TrackProgress{Stage: TrackStageArrived, Index: i, Commanded: cmd, Corrected: corrected})
		if rest := opts.Interval - time.Since(start); rest > 0 && i < len(directions)-1 {
			select {
			case <-ctx.Done():
				_ = pos.Stop()
				return ctx.Err()
			case <-time.After(rest):
			}
		}
	}
	emit(TrackProgress{Stage: TrackStageDone, Index: -1, Message: fmt.Sprintf("%d points, %d failed", len(directions), failed)})
	return nil
}
