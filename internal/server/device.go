package server

import (
	"context"
	"sync"

	"github.com/CK6170/Dishrunrilla-go/models"
	"github.com/CK6170/Dishrunrilla-go/modern"
)

// DeviceSession is the station attached to the server plus the calibration
// state being accumulated for it.
type DeviceSession struct {
	mu sync.Mutex

	configID string
	params   *models.PARAMETERS
	sess     *modern.Session

	// Latest operation; earlier ones are cancelled and chained behind it
	op *operation

	calMu       sync.Mutex
	cal         *modern.Aggregator
	lastModelID string
}

func newDeviceSession() *DeviceSession {
	return &DeviceSession{cal: modern.NewAggregator()}
}

// operation is one long-running job driving the dish. Only one operation
// moves the positioner at a time: a new one starts after its predecessor
// has closed done.
type operation struct {
	kind   string
	cancel context.CancelFunc
	done   chan struct{}
	prev   *operation
}

// wait blocks until the previous operation has released the dish and
// returns ctx.Err() if this one was cancelled meanwhile.
func (o *operation) wait(ctx context.Context) error {
	if o.prev != nil {
		<-o.prev.done
		o.prev = nil
	}
	return ctx.Err()
}

func (o *operation) finish() { close(o.done) }

func (d *DeviceSession) cancelLocked() {
	if d.op != nil {
		d.op.cancel()
	}
}

func (d *DeviceSession) disconnectLocked() error {
	var err error
	if d.sess != nil {
		err = d.sess.Close()
	}
	d.sess = nil
	d.params = nil
	d.configID = ""
	return err
}

// beginOp cancels any running operation and registers a new one of kind.
// The caller runs the work in a goroutine that calls op.wait first and
// op.finish when done. It returns ok=false when no station is connected.
func (d *DeviceSession) beginOp(kind string) (ctx context.Context, sess *modern.Session, op *operation, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess == nil || d.params == nil {
		return nil, nil, nil, false
	}
	d.cancelLocked()
	ctx, cancel := context.WithCancel(context.Background())
	op = &operation{kind: kind, cancel: cancel, done: make(chan struct{}), prev: d.op}
	d.op = op
	return ctx, d.sess, op, true
}

func (d *DeviceSession) connected() (*modern.Session, *models.PARAMETERS) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess, d.params
}
