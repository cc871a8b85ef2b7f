package data

import (
	"fmt"
	"strconv"
	"time"
)

type ReportedAt time.Time

const reportedAtFormat = "2006-01-02T15:04:05"

func (r *ReportedAt) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("invalid time format: %s", b)
	}
	b = b[1 : len(b)-1]
	t, err := time.Parse(reportedAtFormat, string(b))
	if err != nil {
		return err
	}
	*r = ReportedAt(t)
	return nil
}
func (r ReportedAt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(r).UTC().Format(reportedAtFormat) + `"`), nil
}

// Temperature is an outdoor reading in degrees Celsius.
type Temperature struct {
	ReportedAt ReportedAt `json:"reported_at"`
	Celsius    float64    `json:"temperature"`
}

// Label formats the reading the way the overlay shows it, e.g. "20.5 °C".
func (t *Temperature) Label() string {
	if t == nil {
		return ""
	}
	return strconv.FormatFloat(t.Celsius, 'f', -1, 64) + " °C"
}
