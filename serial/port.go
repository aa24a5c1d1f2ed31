package serial

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/CK6170/Dishrunrilla-go/models"
)

// AutoDetectPort scans common serial ports for a positioner answering VE.
func AutoDetectPort(parameters *models.PARAMETERS) string {
	baud := 9600
	if parameters != nil && parameters.POSITIONER != nil && parameters.POSITIONER.BAUDRATE > 0 {
		baud = parameters.POSITIONER.BAUDRATE
	}
	for _, portName := range candidatePorts() {
		if TestPort(portName, baud) {
			return portName
		}
	}
	return ""
}

func candidatePorts() []string {
	if runtime.GOOS == "windows" {
		out := make([]string, 0, 64)
		for i := 1; i <= 64; i++ {
			out = append(out, fmt.Sprintf("COM%d", i))
		}
		return out
	}
	candidates := make([]string, 0, 32)
	for _, pat := range []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*", "/dev/cu.*"} {
		matches, _ := filepath.Glob(pat)
		for _, m := range matches {
			if _, err := os.Stat(m); err == nil {
				candidates = append(candidates, m)
			}
		}
	}
	return candidates
}

// TestPort opens name and issues a version query.
func TestPort(name string, baud int) bool {
	sp, err := openPort(&models.SERIAL{PORT: name, BAUDRATE: baud})
	if err != nil {
		return false
	}
	defer func() { _ = sp.Close() }()

	resp, err := sendCommand(sp, GetCommand("VE"), 200)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(resp), "VE")
}
