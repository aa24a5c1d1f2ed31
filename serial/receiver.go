package serial

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/CK6170/Dishrunrilla-go/models"
)

const defaultSignalCommand = "RSSI?"

var numberRe = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`)

// Receiver reads signal strength from a beacon receiver / SDR bridge.
type Receiver struct {
	mu     sync.Mutex
	Port   io.ReadWriteCloser
	Config *models.SERIAL
}

func OpenReceiver(ser *models.SERIAL) (*Receiver, error) {
	port, err := openPort(ser)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	return NewReceiver(port, ser), nil
}

func NewReceiver(port io.ReadWriteCloser, ser *models.SERIAL) *Receiver {
	return &Receiver{Port: port, Config: ser}
}

func (r *Receiver) Close() error { return r.Port.Close() }

// ReadSignal returns one strength reading in dB. A no-lock reply, timeout or
// unparsable reply is reported as models.ErrInvalidReading.
func (r *Receiver) ReadSignal() (float64, error) {
	cmd := defaultSignalCommand
	if r.Config != nil && strings.TrimSpace(r.Config.COMMAND) != "" {
		cmd = r.Config.COMMAND
	}
	r.mu.Lock()
	resp, err := sendCommand(r.Port, GetCommand(cmd), defaultReplyMs)
	r.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrInvalidReading, err)
	}
	return parseSignal(resp)
}

func parseSignal(resp string) (float64, error) {
	if strings.Contains(strings.ToUpper(resp), "NOLOCK") {
		return 0, fmt.Errorf("%w: no lock", models.ErrInvalidReading)
	}
	m := numberRe.FindString(resp)
	if m == "" {
		return 0, fmt.Errorf("%w: unparsable reply %q", models.ErrInvalidReading, resp)
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrInvalidReading, err)
	}
	return v, nil
}
