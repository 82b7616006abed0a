package artifact

import (
	"bytes"
	"encoding/json"
	"math"
)

var null = []byte("null")

// MarshalJSON encodes an absent metric as null.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid || math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return null, nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON decodes null as an absent metric.
func (m *Metric) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), null) {
		*m = Metric{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Present(v)
	return nil
}
