package modern

import (
	"context"
	"fmt"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
	serialpkg "github.com/CK6170/Dishrunrilla-go/serial"
)

// Positioner is the motion side of the station.
type Positioner interface {
	Goto(d models.Direction) error
	Position() (models.Direction, error)
	WaitArrived(ctx context.Context, target models.Direction, tolerance float64, timeout time.Duration) (models.Direction, error)
	Stop() error
	Version() (string, error)
	Close() error
}

// Receiver is the signal side of the station.
type Receiver interface {
	ReadSignal() (float64, error)
	Close() error
}

type Session struct {
	Params     *models.PARAMETERS
	Positioner Positioner
	Receiver   Receiver
}

func Connect(p *models.PARAMETERS) (*Session, error) {
	if p == nil || p.POSITIONER == nil {
		return nil, fmt.Errorf("missing POSITIONER section")
	}
	if p.RECEIVER == nil {
		return nil, fmt.Errorf("missing RECEIVER section")
	}
	pos, err := serialpkg.OpenPositioner(p.POSITIONER)
	if err != nil {
		return nil, err
	}
	rx, err := serialpkg.OpenReceiver(p.RECEIVER)
	if err != nil {
		_ = pos.Close()
		return nil, err
	}
	return &Session{Params: p, Positioner: pos, Receiver: rx}, nil
}

func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.Positioner != nil {
		_ = s.Positioner.Stop()
		err = s.Positioner.Close()
	}
	if s.Receiver != nil {
		if rerr := s.Receiver.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

func ProbeVersion(s *Session) (string, error) {
	if s == nil || s.Positioner == nil {
		return "", fmt.Errorf("not connected")
	}
	return s.Positioner.Version()
}
