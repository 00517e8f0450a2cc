// Package params is the intake boundary for constellation parameters: it
// decodes requests, broadcasts scalar altitudes and rejects anything the
// synthesizer would refuse.
package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/star/constellation/internal/constellation"
)

// Altitudes is a per-plane altitude list that also accepts a single number
// on the wire, meaning "the same altitude for every plane".
type Altitudes struct {
	Values []float64
	Scalar bool
}

// UnmarshalJSON accepts a number or an array of numbers.
func (a *Altitudes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var vs []float64
		if err := json.Unmarshal(data, &vs); err != nil {
			return fmt.Errorf("altitudesPerPlane: all values must be numbers: %w", err)
		}
		*a = Altitudes{Values: vs}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("altitudesPerPlane must be a number or an array of numbers: %w", err)
	}
	*a = Altitudes{Values: []float64{v}, Scalar: true}
	return nil
}

// MarshalJSON writes the form the value was read from.
func (a Altitudes) MarshalJSON() ([]byte, error) {
	if a.Scalar && len(a.Values) == 1 {
		return json.Marshal(a.Values[0])
	}
	if a.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a.Values)
}

// Request is the raw intake payload. Pointers distinguish missing fields
// from zero.
type Request struct {
	NumSatellites     *int       `json:"numSatellites"`
	NumPlanes         *int       `json:"numPlanes"`
	AltitudesPerPlane *Altitudes `json:"altitudesPerPlane"`
}

// Params is an accepted, fully expanded parameter set.
type Params struct {
	NumSatellites     int       `json:"numSatellites"`
	NumPlanes         int       `json:"numPlanes"`
	AltitudesPerPlane []float64 `json:"altitudesPerPlane"`
}

// Decode reads a Request from r. Malformed JSON or wrongly typed fields are
// reported as invalid parameters.
func Decode(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, fmt.Errorf("%w: invalid request body, expected JSON object: %v", constellation.ErrInvalidParameter, err)
	}
	return req, nil
}

// Normalize checks required fields, broadcasts a scalar altitude to every
// plane and validates the result. A rejected request yields no Params.
func Normalize(req Request) (Params, error) {
	if req.NumSatellites == nil {
		return Params{}, required("numSatellites", "a number")
	}
	if req.NumPlanes == nil {
		return Params{}, required("numPlanes", "a number")
	}
	if req.AltitudesPerPlane == nil {
		return Params{}, required("altitudesPerPlane", "a number or array of numbers")
	}

	p := Params{NumSatellites: *req.NumSatellites, NumPlanes: *req.NumPlanes}
	alts := req.AltitudesPerPlane
	if alts.Scalar && len(alts.Values) == 1 && p.NumPlanes > 0 && p.NumPlanes <= constellation.MaxPlanes {
		p.AltitudesPerPlane = make([]float64, p.NumPlanes)
		for i := range p.AltitudesPerPlane {
			p.AltitudesPerPlane[i] = alts.Values[0]
		}
	} else {
		p.AltitudesPerPlane = append([]float64(nil), alts.Values...)
	}

	if err := constellation.Validate(p.NumSatellites, p.NumPlanes, p.AltitudesPerPlane); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Synthesize generates the element sets p describes.
func (p Params) Synthesize(epoch time.Time) ([]constellation.ElementSet, error) {
	return constellation.Synthesize(p.NumSatellites, p.NumPlanes, p.AltitudesPerPlane, epoch)
}

func required(field, kind string) error {
	return &constellation.ParamError{Field: field, Value: "missing", Bound: "present and " + kind}
}
