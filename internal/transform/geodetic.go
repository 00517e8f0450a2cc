package transform

import (
	"math"

	"github.com/star/constellation/internal/geo"
)

// WGS-84 ellipsoid, kilometres.
const (
	wgs84A  = 6378.137
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

const (
	deg = math.Pi / 180
	rad = 180 / math.Pi
)

// Geodetic is a WGS-84 position.
type Geodetic struct {
	LatDeg   float64
	LngDeg   float64
	HeightKm float64
}

// Ground drops the height.
func (g Geodetic) Ground() geo.GroundPoint {
	return geo.GroundPoint{LatDeg: g.LatDeg, LngDeg: g.LngDeg}
}

// ECEFToGeodetic converts an Earth-fixed position in km with Bowring's
// iteration. Longitude is normalised to [-180, 180).
func ECEFToGeodetic(p Vec3) Geodetic {
	lng := math.Atan2(p.Y, p.X)
	r := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, r*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		s := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*s*s)
		lat = math.Atan2(p.Z+wgs84E2*n*s, r)
	}

	s, c := math.Sin(lat), math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*s*s)

	var h float64
	if math.Abs(c) > 1e-10 {
		h = r/c - n
	} else {
		h = math.Abs(p.Z)/math.Abs(s) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg:   lat * rad,
		LngDeg:   geo.NormalizeLng(lng * rad),
		HeightKm: h,
	}
}

// Observer is a ground site with its Earth-fixed position precomputed for
// repeated look-angle evaluation.
type Observer struct {
	LatRad, LngRad float64
	ECEF           Vec3
}

// NewObserver places an observer at heightKm above the ellipsoid.
func NewObserver(p geo.GroundPoint, heightKm float64) Observer {
	lat, lng := p.LatDeg*deg, p.LngDeg*deg
	s, c := math.Sin(lat), math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*s*s)

	return Observer{
		LatRad: lat,
		LngRad: lng,
		ECEF: Vec3{
			X: (n + heightKm) * c * math.Cos(lng),
			Y: (n + heightKm) * c * math.Sin(lng),
			Z: (n*(1-wgs84E2) + heightKm) * s,
		},
	}
}

// LookAngles is the topocentric direction from an observer to a target.
type LookAngles struct {
	AzimuthDeg   float64 `json:"azimuth_deg"`
	ElevationDeg float64 `json:"elevation_deg"`
	RangeKm      float64 `json:"range_km"`
}

// Look computes azimuth (clockwise from north), elevation and range to an
// Earth-fixed target via the south-east-zenith rotation.
func (o Observer) Look(target Vec3) LookAngles {
	d := Vec3{X: target.X - o.ECEF.X, Y: target.Y - o.ECEF.Y, Z: target.Z - o.ECEF.Z}

	sLat, cLat := math.Sin(o.LatRad), math.Cos(o.LatRad)
	sLng, cLng := math.Sin(o.LngRad), math.Cos(o.LngRad)

	south := sLat*cLng*d.X + sLat*sLng*d.Y - cLat*d.Z
	east := -sLng*d.X + cLng*d.Y
	up := cLat*cLng*d.X + cLat*sLng*d.Y + sLat*d.Z

	rng := d.Norm()
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * rad,
		ElevationDeg: math.Asin(up/rng) * rad,
		RangeKm:      rng,
	}
}
