package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
)

// fakePort answers each written line through reply and records what was sent.
type fakePort struct {
	written []string
	reply   func(cmd string) string
	out     bytes.Buffer
	closed  bool
}

func (f *fakePort) Write(p []byte) (int, error) {
	cmd := strings.TrimRight(string(p), "\r\n")
	f.written = append(f.written, cmd)
	if f.reply != nil {
		f.out.WriteString(f.reply(cmd))
	}
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.out.Len() == 0 {
		return 0, io.EOF
	}
	return f.out.Read(p)
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    models.Direction
		wantErr bool
	}{
		{name: "plain", in: "AZ123.40 EL45.60", want: models.Direction{Az: 123.4, El: 45.6}},
		{name: "extra fields", in: "AZ10.0 EL-1.5 UP0 DN0", want: models.Direction{Az: 10, El: -1.5}},
		{name: "missing el", in: "AZ10.0", wantErr: true},
		{name: "garbage", in: "AZx EL1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePosition(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePosition(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parsePosition(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		invalid bool
	}{
		{in: "RSSI=-87.5", want: -87.5},
		{in: "12", want: 12},
		{in: "SNR 1.5e1 dB", want: 15},
		{in: "NOLOCK", invalid: true},
		{in: "busy", invalid: true},
	}
	for _, tt := range tests {
		got, err := parseSignal(tt.in)
		if tt.invalid {
			if !errors.Is(err, models.ErrInvalidReading) {
				t.Errorf("parseSignal(%q) error = %v, want ErrInvalidReading", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("parseSignal(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestPositionerGotoWrapsAzimuth(t *testing.T) {
	fp := &fakePort{}
	p := NewPositioner(fp, &models.SERIAL{PORT: "fake"})
	if err := p.Goto(models.Direction{Az: -0.25, El: 30}); err != nil {
		t.Fatalf("Goto: %v", err)
	}
	if len(fp.written) != 1 || fp.written[0] != "AZ359.75 EL30.00" {
		t.Fatalf("written = %q", fp.written)
	}
}

func TestPositionerVersionAndPosition(t *testing.T) {
	fp := &fakePort{reply: func(cmd string) string {
		switch cmd {
		case "VE":
			return "VE1.2\n"
		case "AZ EL":
			return "AZ180.00 EL20.00\n"
		}
		return ""
	}}
	p := NewPositioner(fp, &models.SERIAL{PORT: "fake"})
	v, err := p.Version()
	if err != nil || v != "1.2" {
		t.Fatalf("Version() = %q, %v", v, err)
	}
	pos, err := p.Position()
	if err != nil || pos != (models.Direction{Az: 180, El: 20}) {
		t.Fatalf("Position() = %+v, %v", pos, err)
	}
	if err := p.Close(); err != nil || !fp.closed {
		t.Fatalf("Close() = %v, closed=%v", err, fp.closed)
	}
}

func TestWaitArrived(t *testing.T) {
	calls := 0
	fp := &fakePort{reply: func(cmd string) string {
		calls++
		if calls < 3 {
			return "AZ0.00 EL0.00\n"
		}
		return "AZ359.99 EL10.01\n"
	}}
	p := NewPositioner(fp, &models.SERIAL{PORT: "fake"})
	pos, err := p.WaitArrived(context.Background(), models.Direction{Az: 0, El: 10}, 0.05, 2*time.Second)
	if err != nil {
		t.Fatalf("WaitArrived: %v", err)
	}
	if pos.El != 10.01 {
		t.Fatalf("WaitArrived pos = %+v", pos)
	}
}

func TestWaitArrivedCancelled(t *testing.T) {
	fp := &fakePort{reply: func(string) string { return "AZ0.00 EL0.00\n" }}
	p := NewPositioner(fp, &models.SERIAL{PORT: "fake"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.WaitArrived(ctx, models.Direction{Az: 90, El: 10}, 0.05, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitArrived error = %v, want context.Canceled", err)
	}
}

func TestReceiverReadSignal(t *testing.T) {
	fp := &fakePort{reply: func(cmd string) string {
		if cmd == "LVL" {
			return "LVL -71.25\r\n"
		}
		return "\n"
	}}
	r := NewReceiver(fp, &models.SERIAL{PORT: "fake", COMMAND: "LVL"})
	v, err := r.ReadSignal()
	if err != nil || v != -71.25 {
		t.Fatalf("ReadSignal() = %v, %v", v, err)
	}
}

func TestReadUntilTimeout(t *testing.T) {
	_, err := ReadUntil(&fakePort{}, 10)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("ReadUntil error = %v, want ErrTimeout", err)
	}
}

func TestAngleDiff(t *testing.T) {
	tests := []struct{ a, b, want float64 }{
		{a: 359, b: 1, want: 2},
		{a: 10, b: 30, want: 20},
		{a: -90, b: 270, want: 0},
	}
	for _, tt := range tests {
		if got := AngleDiff(tt.a, tt.b); got != tt.want {
			t.Errorf("AngleDiff(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
