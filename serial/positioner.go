package serial

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
	goserial "github.com/tarm/serial"
)

const (
	defaultReplyMs = 300
	pollInterval   = 100 * time.Millisecond
)

// Positioner drives an az/el rotator controller speaking Easycomm II.
type Positioner struct {
	mu     sync.Mutex
	Port   io.ReadWriteCloser
	Config *models.SERIAL
}

func openPort(ser *models.SERIAL) (*goserial.Port, error) {
	if ser == nil || ser.PORT == "" {
		return nil, fmt.Errorf("missing serial PORT")
	}
	config := &goserial.Config{
		Name:        ser.PORT,
		Baud:        ser.BAUDRATE,
		Parity:      goserial.ParityNone,
		Size:        8,
		StopBits:    goserial.Stop1,
		ReadTimeout: time.Millisecond * 300,
	}
	return goserial.OpenPort(config)
}

func OpenPositioner(ser *models.SERIAL) (*Positioner, error) {
	port, err := openPort(ser)
	if err != nil {
		return nil, fmt.Errorf("positioner: %w", err)
	}
	return NewPositioner(port, ser), nil
}

func NewPositioner(port io.ReadWriteCloser, ser *models.SERIAL) *Positioner {
	return &Positioner{Port: port, Config: ser}
}

func (p *Positioner) Close() error { return p.Port.Close() }

// Goto commands an absolute direction. Azimuth is wrapped into [0, 360).
func (p *Positioner) Goto(d models.Direction) error {
	if !d.IsFinite() {
		return fmt.Errorf("positioner: non-finite target %+v", d)
	}
	cmd := GetCommand(fmt.Sprintf("AZ%.2f EL%.2f", WrapAzimuth(d.Az), d.El))
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.Port.Write(cmd)
	return err
}

// Position queries the current encoder direction.
func (p *Positioner) Position() (models.Direction, error) {
	p.mu.Lock()
	resp, err := sendCommand(p.Port, GetCommand("AZ EL"), defaultReplyMs)
	p.mu.Unlock()
	if err != nil {
		return models.Direction{}, fmt.Errorf("positioner position: %w", err)
	}
	return parsePosition(resp)
}

func (p *Positioner) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.Port.Write(GetCommand("SA SE"))
	return err
}

func (p *Positioner) Version() (string, error) {
	p.mu.Lock()
	resp, err := sendCommand(p.Port, GetCommand("VE"), defaultReplyMs)
	p.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("positioner version: %w", err)
	}
	if !strings.HasPrefix(resp, "VE") {
		return "", fmt.Errorf("no version: %q", resp)
	}
	return strings.TrimSpace(strings.TrimPrefix(resp, "VE")), nil
}

// WaitArrived polls Position until it is within tolerance of target on both
// axes, the timeout expires, or ctx is cancelled.
func (p *Positioner) WaitArrived(ctx context.Context, target models.Direction, tolerance float64, timeout time.Duration) (models.Direction, error) {
	deadline := time.Now().Add(timeout)
	for {
		pos, err := p.Position()
		if err == nil && AngleDiff(pos.Az, target.Az) <= tolerance && math.Abs(pos.El-target.El) <= tolerance {
			return pos, nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return pos, err
			}
			return pos, fmt.Errorf("positioner: not at %+v after %s (at %+v)", target, timeout, pos)
		}
		select {
		case <-ctx.Done():
			return pos, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// parsePosition reads "AZ123.40 EL45.60" (extra fields ignored).
func parsePosition(resp string) (models.Direction, error) {
	var d models.Direction
	var haveAz, haveEl bool
	for _, f := range strings.Fields(resp) {
		switch {
		case strings.HasPrefix(f, "AZ"):
			v, err := strconv.ParseFloat(f[2:], 64)
			if err != nil {
				return d, fmt.Errorf("invalid azimuth %q: %w", f, err)
			}
			d.Az, haveAz = v, true
		case strings.HasPrefix(f, "EL"):
			v, err := strconv.ParseFloat(f[2:], 64)
			if err != nil {
				return d, fmt.Errorf("invalid elevation %q: %w", f, err)
			}
			d.El, haveEl = v, true
		}
	}
	if !haveAz || !haveEl {
		return d, fmt.Errorf("invalid position reply %q", resp)
	}
	return d, nil
}

func WrapAzimuth(az float64) float64 {
	az = math.Mod(az, 360)
	if az < 0 {
		az += 360
	}
	return az
}

// AngleDiff is the absolute azimuth difference on the circle, in [0, 180].
func AngleDiff(a, b float64) float64 {
	d := math.Abs(WrapAzimuth(a) - WrapAzimuth(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
