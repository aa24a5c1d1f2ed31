package modern

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CK6170/Dishrunrilla-go/models"
	serialpkg "github.com/CK6170/Dishrunrilla-go/serial"
	"gopkg.in/yaml.v3"
)

const (
	defaultSettleTolerance = 0.05
	defaultMoveTimeoutMs   = 30000
)

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadParameters reads a JSON or YAML (by extension) station parameters file.
func LoadParameters(path string) (*models.PARAMETERS, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeParameters(b, isYAML(path))
}

// DecodeParameters parses and validates raw parameters.
func DecodeParameters(raw []byte, asYAML bool) (*models.PARAMETERS, error) {
	var p models.PARAMETERS
	if asYAML {
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse parameters yaml: %w", err)
		}
	} else if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse parameters json: %w", err)
	}
	if p.POSITIONER == nil {
		return nil, fmt.Errorf("missing POSITIONER section")
	}
	if p.SCAN == nil {
		return nil, fmt.Errorf("missing SCAN section")
	}
	if err := p.SCAN.Config().Validate(); err != nil {
		return nil, err
	}
	if len(p.TARGETS) == 0 {
		return nil, fmt.Errorf("no TARGETS defined")
	}
	for i, t := range p.TARGETS {
		if t == nil || !t.Direction().IsFinite() {
			return nil, fmt.Errorf("TARGETS[%d] is invalid", i)
		}
		if strings.TrimSpace(t.NAME) == "" {
			t.NAME = fmt.Sprintf("target-%d", i+1)
		}
	}
	applyDefaults(&p)
	return &p, nil
}

func applyDefaults(p *models.PARAMETERS) {
	if p.AVG <= 0 {
		p.AVG = 1
	}
	if p.IGNORE < 0 {
		p.IGNORE = 0
	}
	if p.SETTLE_TOLERANCE <= 0 {
		p.SETTLE_TOLERANCE = defaultSettleTolerance
	}
	if p.MOVE_TIMEOUT_MS <= 0 {
		p.MOVE_TIMEOUT_MS = defaultMoveTimeoutMs
	}
}

func PersistParameters(path string, p *models.PARAMETERS) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(p)
	} else {
		data, err = json.MarshalIndent(p, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EnsureSerialPort auto-detects the positioner port if missing and optionally
// persists it back into the original parameters file.
func EnsureSerialPort(configPath string, p *models.PARAMETERS, persist bool) (changed bool, err error) {
	if p == nil || p.POSITIONER == nil {
		return false, fmt.Errorf("missing POSITIONER section")
	}
	if strings.TrimSpace(p.POSITIONER.PORT) != "" {
		return false, nil
	}
	port := serialpkg.AutoDetectPort(p)
	if port == "" {
		return false, fmt.Errorf("could not auto-detect positioner port")
	}
	p.POSITIONER.PORT = port
	if persist {
		if err := PersistParameters(configPath, p); err != nil {
			return true, err
		}
	}
	return true, nil
}

// CalibratedPath derives the default pointing model path from the parameters path.
func CalibratedPath(configPath string) string {
	lower := strings.ToLower(configPath)
	if strings.HasSuffix(lower, "_pointing.json") {
		return configPath
	}
	if ext := filepath.Ext(configPath); ext != "" {
		return strings.TrimSuffix(configPath, ext) + "_pointing.json"
	}
	return configPath + "_pointing.json"
}
