package establishments

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// addServerTiming appends a Server-Timing header, e.g.
// {"resolve", 12.3ms} -> "resolve;dur=12.3". Must run before WriteHeader.
func addServerTiming(w http.ResponseWriter, metrics ...serverTiming) {
	if len(metrics) == 0 {
		return
	}
	parts := make([]string, len(metrics))
	for i, m := range metrics {
		parts[i] = fmt.Sprintf("%s;dur=%.1f", m.name, float64(m.d.Microseconds())/1000)
	}
	w.Header().Add("Server-Timing", strings.Join(parts, ", "))
}

type serverTiming struct {
	name string
	d    time.Duration
}
