package modern

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/CK6170/Dishrunrilla-go/models"
)

func TestSampleSignalIgnoresThenAverages(t *testing.T) {
	rx := &seqReceiver{
		values: []float64{99, -40, 0, -42},
		errs:   []error{nil, nil, models.ErrInvalidReading, nil},
	}
	var phases []SamplePhase
	got, err := SampleSignal(context.Background(), rx, 1, 3, func(u SampleUpdate) { phases = append(phases, u.Phase) })
	if err != nil {
		t.Fatal(err)
	}
	if got != -41 {
		t.Fatalf("got %g want -41", got)
	}
	want := []SamplePhase{SamplePhaseIgnoring, SamplePhaseAveraging, SamplePhaseAveraging, SamplePhaseAveraging, SamplePhaseFinished}
	if len(phases) != len(want) {
		t.Fatalf("phases=%v", phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phase %d=%s want %s", i, phases[i], want[i])
		}
	}
}

func TestSampleSignalNoValidReading(t *testing.T) {
	rx := &seqReceiver{values: []float64{math.NaN(), math.Inf(-1)}}
	if _, err := SampleSignal(context.Background(), rx, 0, 2, nil); !errors.Is(err, models.ErrInvalidReading) {
		t.Fatalf("err=%v want ErrInvalidReading", err)
	}
}

func TestSampleSignalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := SampleSignal(ctx, &seqReceiver{values: []float64{1}}, 0, 1, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestSignalOracleMovesThenSamples(t *testing.T) {
	pos := &fakePositioner{}
	center := models.Direction{Az: 100, El: 30}
	offset := models.AngularOffset{Az: 0.2}
	rx := &fakeReceiver{pos: pos, peak: center.Add(offset)}
	sess := &Session{Params: testParams(), Positioner: pos, Receiver: rx}

	oracle := NewSignalOracle(context.Background(), sess, center, OracleOptions{Avg: 2, Ignore: 1, Tolerance: 0.05})
	v, err := oracle.Read(offset)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v) > 1e-9 {
		t.Fatalf("strength at peak=%g want 0", v)
	}
	if got := pos.visited(); len(got) != 1 || got[0] != center.Add(offset) {
		t.Fatalf("gotos=%v", got)
	}
	if rx.reads != 3 {
		t.Fatalf("reads=%d want 3 (1 ignored + 2 averaged)", rx.reads)
	}
}

func TestSignalOracleMoveFailureIsInvalidReading(t *testing.T) {
	pos := &fakePositioner{failGoto: func(models.Direction) bool { return true }}
	sess := &Session{Params: testParams(), Positioner: pos, Receiver: &fakeReceiver{pos: pos}}
	_, err := NewSignalOracle(context.Background(), sess, models.Direction{}, OracleOptions{Avg: 1}).Read(models.AngularOffset{})
	if !errors.Is(err, models.ErrInvalidReading) {
		t.Fatalf("err=%v want ErrInvalidReading", err)
	}
}
