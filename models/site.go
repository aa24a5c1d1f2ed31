package models

// Fix is a station position from GPS.
type Fix struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	AltitudeM float64 `json:"alt_m"`
	Time      string  `json:"time"`
}
