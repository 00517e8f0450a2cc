package propagation

import (
	"fmt"
	"sync"
	"time"

	"github.com/akhenakh/sgp4"

	"github.com/star/constellation/internal/geo"
	"github.com/star/constellation/internal/tle"
	"github.com/star/constellation/internal/transform"
)

// Akhenakh propagates with github.com/akhenakh/sgp4. Unlike go-satellite it
// verifies checksums on parse and reports decay and model-limit errors.
type Akhenakh struct {
	parsed sync.Map // line1+line2 -> *sgp4.TLE
}

// NewAkhenakh creates an empty akhenakh backend.
func NewAkhenakh() *Akhenakh {
	return &Akhenakh{}
}

// Propagate implements Propagator.
func (a *Akhenakh) Propagate(entry tle.TLEEntry, t time.Time) (SatellitePosition, error) {
	el, err := a.parse(entry)
	if err != nil {
		return SatellitePosition{}, err
	}

	eci, err := el.FindPositionAtTime(t.UTC())
	if err != nil {
		return SatellitePosition{}, fmt.Errorf("%w: satellite %d: %v", ErrPropagationFailure, entry.SatelliteID, err)
	}

	// FindPosition stamps the state with a minute-truncated time, which would
	// skew the sidereal angle.
	eci.DateTime = t.UTC()

	teme := transform.State{
		Pos: transform.Vec3{X: eci.Position.X, Y: eci.Position.Y, Z: eci.Position.Z},
		Vel: transform.Vec3{X: eci.Velocity.X, Y: eci.Velocity.Y, Z: eci.Velocity.Z},
	}
	pos, err := fromTEME(entry, teme, t.UTC())
	if err != nil {
		return SatellitePosition{}, err
	}

	lat, lng, alt := eci.ToGeodetic()
	pos.LatDeg, pos.LngDeg, pos.HeightKm = lat, geo.NormalizeLng(lng), alt
	return pos, nil
}

func (a *Akhenakh) parse(entry tle.TLEEntry) (*sgp4.TLE, error) {
	key := entry.Line1 + entry.Line2
	if v, ok := a.parsed.Load(key); ok {
		return v.(*sgp4.TLE), nil
	}

	el, err := sgp4.ParseTLE(entry.Line1 + "\n" + entry.Line2)
	if err != nil {
		return nil, fmt.Errorf("%w: satellite %d: %v", ErrPropagationFailure, entry.SatelliteID, err)
	}
	a.parsed.Store(key, el)
	return el, nil
}

// Backend names accepted by NewPropagator.
const (
	BackendGoSatellite = "go-satellite"
	BackendAkhenakh    = "akhenakh"
)

// NewPropagator returns the named backend.
func NewPropagator(backend string) (Propagator, error) {
	switch backend {
	case "", BackendGoSatellite:
		return NewGoSatellite(), nil
	case BackendAkhenakh:
		return NewAkhenakh(), nil
	default:
		return nil, fmt.Errorf("unknown propagator backend %q", backend)
	}
}
