package modern

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
)

type fakePositioner struct {
	mu       sync.Mutex
	at       models.Direction
	gotos    []models.Direction
	failGoto func(models.Direction) bool
	stopped  int
	closed   bool
}

func (f *fakePositioner) Goto(d models.Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGoto != nil && f.failGoto(d) {
		return errors.New("positioner refused")
	}
	f.gotos = append(f.gotos, d)
	f.at = d
	return nil
}

func (f *fakePositioner) Position() (models.Direction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.at, nil
}

func (f *fakePositioner) WaitArrived(ctx context.Context, target models.Direction, tolerance float64, timeout time.Duration) (models.Direction, error) {
	if err := ctx.Err(); err != nil {
		return models.Direction{}, err
	}
	return f.Position()
}

func (f *fakePositioner) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakePositioner) Version() (string, error) { return "FAKE 1.0", nil }

func (f *fakePositioner) Close() error {
	f.closed = true
	return nil
}

func (f *fakePositioner) visited() []models.Direction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Direction, len(f.gotos))
	copy(out, f.gotos)
	return out
}

// fakeReceiver reports a signal that falls off with distance from peak.
type fakeReceiver struct {
	pos    *fakePositioner
	peak   models.Direction
	noLock bool
	reads  int
	closed bool
}

func (f *fakeReceiver) ReadSignal() (float64, error) {
	f.reads++
	if f.noLock {
		return 0, models.ErrInvalidReading
	}
	at, _ := f.pos.Position()
	return -math.Hypot(at.Az-f.peak.Az, at.El-f.peak.El), nil
}

func (f *fakeReceiver) Close() error {
	f.closed = true
	return nil
}

// seqReceiver replays fixed readings.
type seqReceiver struct {
	values []float64
	errs   []error
	i      int
}

func (s *seqReceiver) ReadSignal() (float64, error) {
	i := s.i
	s.i++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.values) {
		return s.values[i], err
	}
	return 0, models.ErrInvalidReading
}

func (s *seqReceiver) Close() error { return nil }

func testParams() *models.PARAMETERS {
	return &models.PARAMETERS{
		POSITIONER: &models.SERIAL{PORT: "/dev/null", BAUDRATE: 9600},
		RECEIVER:   &models.SERIAL{PORT: "/dev/null", BAUDRATE: 9600, COMMAND: "RSSI?"},
		SCAN:       &models.SCAN{START_RADIUS: 1.0, MIN_RADIUS: 0.05, ARC_STEP: 0.1},
		TARGETS: []*models.TARGET{
			{NAME: "sat-a", AZ: 100, EL: 30},
			{NAME: "sat-b", AZ: 220, EL: 45},
		},
		AVG:              2,
		IGNORE:           1,
		SETTLE_TOLERANCE: 0.05,
		MOVE_TIMEOUT_MS:  1000,
	}
}
