// Package site reads the station position from an NMEA GPS receiver.
package site

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

var ErrNoFix = errors.New("site: no valid GPS fix")

// OpenGPS opens the GPS serial line.
func OpenGPS(cfg *models.SERIAL) (io.ReadWriteCloser, error) {
	if cfg == nil || strings.TrimSpace(cfg.PORT) == "" {
		return nil, fmt.Errorf("missing GPS.PORT")
	}
	baud := cfg.BAUDRATE
	if baud <= 0 {
		baud = 9600
	}
	return serial.Open(serial.OpenOptions{
		PortName:        cfg.PORT,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
}

// ReadFix consumes NMEA sentences from r until a valid RMC or GGA fix
// arrives. Unparsable lines are skipped. It returns ErrNoFix if r ends first.
func ReadFix(ctx context.Context, r io.Reader) (models.Fix, error) {
	type result struct {
		fix models.Fix
		err error
	}
	done := make(chan result, 1)
	go func() {
		fix, err := scanFix(ctx, r)
		done <- result{fix, err}
	}()
	select {
	case <-ctx.Done():
		return models.Fix{}, ctx.Err()
	case res := <-done:
		return res.fix, res.err
	}
}

func scanFix(ctx context.Context, r io.Reader) (models.Fix, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return models.Fix{}, ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		switch sentence.DataType() {
		case nmea.TypeRMC:
			m := sentence.(nmea.RMC)
			if m.Validity != nmea.ValidRMC {
				continue
			}
			return models.Fix{Latitude: m.Latitude, Longitude: m.Longitude, Time: m.Time.String()}, nil
		case nmea.TypeGGA:
			m := sentence.(nmea.GGA)
			if m.FixQuality == nmea.Invalid {
				continue
			}
			return models.Fix{Latitude: m.Latitude, Longitude: m.Longitude, AltitudeM: m.Altitude, Time: m.Time.String()}, nil
		}
	}
	if err := sc.Err(); err != nil {
		return models.Fix{}, err
	}
	return models.Fix{}, ErrNoFix
}

// Locate opens the GPS described by cfg and waits up to timeout for a fix.
func Locate(ctx context.Context, cfg *models.SERIAL, timeout time.Duration) (*models.Fix, error) {
	port, err := OpenGPS(cfg)
	if err != nil {
		return nil, err
	}
	defer port.Close()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	fix, err := ReadFix(ctx, port)
	if err != nil {
		return nil, err
	}
	return &fix, nil
}
