package pathstore

import (
	"encoding/json"
	"fmt"

	"mmsim/internal/brownian"
)

// SchemaVersion is the version written by Encode
const SchemaVersion = 1

// Record is the stored representation of a path: the ordered samples plus
// the parameters that generated them
type Record struct {
	Version int             `json:"version"`
	Params  brownian.Params `json:"params"`
	Samples []float64       `json:"samples"`
}

// Encode serializes a path using the current schema version
func Encode(p *brownian.Path) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil path", ErrCorruptPath)
	}
	if p.Params.N != len(p.Samples) {
		return nil, fmt.Errorf("%w: params.n=%d but %d samples", ErrCorruptPath, p.Params.N, len(p.Samples))
	}
	data, err := json.Marshal(Record{
		Version: SchemaVersion,
		Params:  p.Params,
		Samples: p.Samples,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal path: %w", err)
	}
	return data, nil
}

// Decode parses a stored record, rejecting unknown versions
func Decode(data []byte) (*brownian.Path, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal path: %w", err)
	}
	if rec.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, rec.Version)
	}
	if rec.Params.N != len(rec.Samples) {
		return nil, fmt.Errorf("%w: params.n=%d but %d samples", ErrCorruptPath, rec.Params.N, len(rec.Samples))
	}
	return &brownian.Path{Params: rec.Params, Samples: rec.Samples}, nil
}
