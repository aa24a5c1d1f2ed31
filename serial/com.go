package serial

import (
	"errors"
	"io"
	"strings"
	"time"
)

var ErrTimeout = errors.New("serial: no response before timeout")

// GetCommand terminates a command line the way the station controllers expect.
func GetCommand(body string) []byte {
	body = strings.TrimRight(body, "\r\n")
	return []byte(body + "\n")
}

// sendCommand writes cmd and reads one reply line.
func sendCommand(rw io.ReadWriter, cmd []byte, timeoutMs int) (string, error) {
	if _, err := rw.Write(cmd); err != nil {
		return "", err
	}
	return ReadUntil(rw, timeoutMs)
}

// ReadUntil reads until a line terminator or until timeoutMs elapses. Ports
// opened with a read timeout return (0, nil) or io.EOF when idle; both are
// treated as "nothing yet".
func ReadUntil(r io.Reader, timeoutMs int) (string, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	var sb strings.Builder
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
			s := strings.TrimLeft(sb.String(), "\r\n")
			if i := strings.IndexAny(s, "\r\n"); i >= 0 {
				return strings.TrimSpace(s[:i]), nil
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return strings.TrimSpace(sb.String()), err
		}
		if time.Now().After(deadline) {
			if sb.Len() > 0 {
				return strings.TrimSpace(sb.String()), nil
			}
			return "", ErrTimeout
		}
		if n == 0 {
			time.Sleep(2 * time.Millisecond)
		}
	}
}
