// Package footprint builds surface-draped coverage polygons for satellites.
package footprint

import (
	"fmt"
	"math"

	"github.com/star/constellation/internal/coverage"
	"github.com/star/constellation/internal/geo"
	"github.com/star/constellation/internal/propagation"
)

// DefaultSegments is the ring resolution used when fewer than three
// segments are requested.
const DefaultSegments = 32

const (
	fillAlpha    = 0.4
	outlineAlpha = 0.8
)

// Build returns a closed ring of segments+1 points at radiusKm around
// center. The first and last points coincide.
func Build(center geo.GroundPoint, radiusKm float64, segments int) []geo.GroundPoint {
	if segments < 3 {
		segments = DefaultSegments
	}
	ring := make([]geo.GroundPoint, segments+1)
	for i := 0; i <= segments; i++ {
		bearing := 2 * math.Pi * float64(i) / float64(segments)
		ring[i] = geo.Destination(center, radiusKm, bearing)
	}
	return ring
}

// Polygon is one satellite's coverage zone, drawn at zero height.
type Polygon struct {
	EntityID    string            `json:"id"`
	SatelliteID int               `json:"satellite_id"`
	Plane       int               `json:"plane"`
	Center      geo.GroundPoint   `json:"center"`
	RadiusKm    float64           `json:"radius_km"`
	Ring        []geo.GroundPoint `json:"ring"`
	Fill        Color             `json:"fill"`
	Outline     Color             `json:"outline"`
}

// ForPosition builds the coverage zone of pos with the evaluator's
// visibility radius and the colour of its plane.
func ForPosition(pos propagation.SatellitePosition, minElevationDeg float64, numPlanes int) Polygon {
	radius := coverage.VisibilityRadiusKm(pos.HeightKm, minElevationDeg)
	base := PlaneColor(pos.Plane, numPlanes)
	return Polygon{
		EntityID:    EntityID(pos.SatelliteID),
		SatelliteID: pos.SatelliteID,
		Plane:       pos.Plane,
		Center:      pos.Ground(),
		RadiusKm:    radius,
		Ring:        Build(pos.Ground(), radius, DefaultSegments),
		Fill:        base.WithAlpha(fillAlpha),
		Outline:     base.WithAlpha(outlineAlpha),
	}
}

// EntityID names the coverage entity of a satellite in a rendering sink.
func EntityID(satelliteID int) string {
	return fmt.Sprintf("coverage-%d", satelliteID)
}
