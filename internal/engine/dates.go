package engine

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// parseInvoiceDate accepts the two textual date formats that appear on
// extracted invoices, dot-separated (05.03.2024) and dash-separated
// (05-03-2024) day-month-year, plus plain ISO dates.
func parseInvoiceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{"2.1.2006", "2-1-2006", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized invoice date: %q", s)
}

// daysApart returns the absolute distance between two dates in days.
func daysApart(a, b time.Time) float64 {
	return math.Abs(a.Sub(b).Hours()) / 24
}
