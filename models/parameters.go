package models

import "time"

// SERIAL describes one serial line (positioner or receiver).
type SERIAL struct {
	PORT     string `json:"PORT" yaml:"PORT"`
	BAUDRATE int    `json:"BAUDRATE" yaml:"BAUDRATE"`
	// COMMAND is the query sent to the receiver for one signal reading.
	COMMAND string `json:"COMMAND,omitempty" yaml:"COMMAND,omitempty"`
}

// SCAN holds the spiral parameters in degrees.
type SCAN struct {
	START_RADIUS float64 `json:"START_RADIUS" yaml:"START_RADIUS"`
	MIN_RADIUS   float64 `json:"MIN_RADIUS" yaml:"MIN_RADIUS"`
	ARC_STEP     float64 `json:"ARC_STEP" yaml:"ARC_STEP"`
	DWELL_MS     int     `json:"DWELL_MS" yaml:"DWELL_MS"`
}

func (s *SCAN) Config() ScanConfig {
	if s == nil {
		return ScanConfig{}
	}
	return ScanConfig{
		StartRadius: s.START_RADIUS,
		MinRadius:   s.MIN_RADIUS,
		ArcStep:     s.ARC_STEP,
		DwellTime:   time.Duration(s.DWELL_MS) * time.Millisecond,
	}
}

// TARGET is a reference target with its platonic look angle.
type TARGET struct {
	NAME string  `json:"NAME" yaml:"NAME"`
	AZ   float64 `json:"AZ" yaml:"AZ"`
	EL   float64 `json:"EL" yaml:"EL"`
}

func (t *TARGET) Direction() Direction { return Direction{Az: t.AZ, El: t.EL} }

type MQTT struct {
	BROKER    string `json:"BROKER" yaml:"BROKER"`
	CLIENT_ID string `json:"CLIENT_ID,omitempty" yaml:"CLIENT_ID,omitempty"`
	TOPIC     string `json:"TOPIC,omitempty" yaml:"TOPIC,omitempty"`
}

// PARAMETERS is the station parameters file.
type PARAMETERS struct {
	POSITIONER *SERIAL   `json:"POSITIONER" yaml:"POSITIONER"`
	RECEIVER   *SERIAL   `json:"RECEIVER" yaml:"RECEIVER"`
	SCAN       *SCAN     `json:"SCAN" yaml:"SCAN"`
	TARGETS    []*TARGET `json:"TARGETS" yaml:"TARGETS"`
	AVG        int       `json:"AVG" yaml:"AVG"`
	IGNORE     int       `json:"IGNORE" yaml:"IGNORE"`

	// SETTLE_TOLERANCE is the arrival tolerance in degrees.
	SETTLE_TOLERANCE float64 `json:"SETTLE_TOLERANCE,omitempty" yaml:"SETTLE_TOLERANCE,omitempty"`
	MOVE_TIMEOUT_MS  int     `json:"MOVE_TIMEOUT_MS,omitempty" yaml:"MOVE_TIMEOUT_MS,omitempty"`

	MQTT  *MQTT   `json:"MQTT,omitempty" yaml:"MQTT,omitempty"`
	GPS   *SERIAL `json:"GPS,omitempty" yaml:"GPS,omitempty"`
	DEBUG bool    `json:"DEBUG" yaml:"DEBUG"`
}
