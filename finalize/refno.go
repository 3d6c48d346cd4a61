package finalize

import (
	"fmt"
	"time"
)

// FormatReferenceNumber builds the human-facing award reference, e.g.
// AWD-20260823-00007. The sequence restarts each UTC day.
func FormatReferenceNumber(day time.Time, seq int) string {
	return fmt.Sprintf("AWD-%s-%05d", day.UTC().Format("20060102"), seq)
}
