package models

import "errors"

var (
	// ErrInvalidConfiguration is returned for non-physical scan parameters.
	ErrInvalidConfiguration = errors.New("invalid scan configuration")
	// ErrInsufficientData is returned when fewer than MinObservations are offered to the solver.
	ErrInsufficientData = errors.New("insufficient calibration data")
	// ErrInvalidReading marks a single unusable signal sample (no lock, dropout).
	ErrInvalidReading = errors.New("invalid signal reading")
	// ErrInvalidObservation is returned when an observation carries non-finite directions.
	ErrInvalidObservation = errors.New("invalid calibration observation")
	// ErrNoValidReadings is returned when every sample along a scan path was invalid.
	ErrNoValidReadings = errors.New("no valid readings along scan path")
)
