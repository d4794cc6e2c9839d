package ingest

import (
	"fmt"
	"time"

	"github.com/adlake/ingest-core/internal/schema"
)

// dateString renders a row's date-field value the way the warehouse probe
// and range delete compare it.
func dateString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", t)
	}
}

// firstDate reads the batch's reporting date from its first row. Point-mode
// sources report exactly one period per batch, so one row is enough.
func firstDate(rows []schema.Row, field string) string {
	if len(rows) == 0 {
		return ""
	}
	return dateString(rows[0][field])
}

// dateSpan scans every row for the minimum and maximum date-field value.
// Rows without the field are ignored; ok reports whether any date was seen.
func dateSpan(rows []schema.Row, field string) (min, max string, ok bool) {
	for _, row := range rows {
		d := dateString(row[field])
		if d == "" {
			continue
		}
		if !ok {
			min, max, ok = d, d, true
			continue
		}
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max, ok
}
