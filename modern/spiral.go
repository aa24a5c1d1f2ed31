package modern

import (
	"fmt"
	"math"

	"github.com/CK6170/Dishrunrilla-go/models"
)

// GenerateSpiral builds an inward constant-arc-length spiral over the offset
// plane. The radius shrinks linearly by ArcStep per point and the angle
// advances by ArcStep/radius, so consecutive points are about ArcStep apart.
// Every emitted radius is strictly greater than MinRadius, and the path always
// ends with the (0,0) centre. Invalid configurations return
// models.ErrInvalidConfiguration and no path.
func GenerateSpiral(cfg models.ScanConfig) (models.ScanPath, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Validate bounds the step count by MaxScanSteps, so the conversion is safe.
	n := int(math.Ceil((cfg.StartRadius-cfg.MinRadius)/cfg.ArcStep)) + 1
	path := make(models.ScanPath, 0, n+1)

	radius := cfg.StartRadius
	theta := 0.0
	for radius > cfg.MinRadius {
		path = append(path, models.AngularOffset{
			Az: radius * math.Cos(theta),
			El: radius * math.Sin(theta),
		})
		// s = r·Δθ, ignoring the radial component of the step
		theta += cfg.ArcStep / radius
		next := radius - cfg.ArcStep
		if next >= radius || len(path) > n {
			return nil, fmt.Errorf("%w: radius stalls at %g with arc step %g", models.ErrInvalidConfiguration, radius, cfg.ArcStep)
		}
		radius = next
		if radius < cfg.MinRadius {
			radius = cfg.MinRadius
		}
	}
	path = append(path, models.AngularOffset{})
	return path, nil
}
