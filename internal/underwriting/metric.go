package underwriting

import (
	"encoding/json"
	"fmt"
	"math"
)

// Metric is a numeric result that may be unavailable (non-convergent IRR,
// non-positive equity). Unavailable metrics encode as JSON null.
type Metric struct {
	Value     float64
	Available bool
}

// NotAvailable is the sentinel for a metric that could not be computed.
var NotAvailable = Metric{}

// Of wraps v, treating NaN and infinities as unavailable.
func Of(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}
	return Metric{Value: v, Available: true}
}

// Percent renders the metric as a percentage with one decimal, or "n/a".
func (m Metric) Percent() string {
	if !m.Available {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", m.Value*100)
}

// Multiple renders the metric as an equity multiple, or "n/a".
func (m Metric) Multiple() string {
	if !m.Available {
		return "n/a"
	}
	return fmt.Sprintf("%.2fx", m.Value)
}

func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Available {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

func (m *Metric) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = NotAvailable
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*m = Of(v)
	return nil
}
