package timefmt

import "time"

// ISO8601 is the ISO-8601 layout used to render HostState's LastSeen
// in log output.
const ISO8601 = "2006-01-02T15:04:05.000Z"

// Format renders t in the ISO8601 layout. A zero t (controlcenter's
// disconnected-host sentinel) formats as Go's zero time,
// "0001-01-01T00:00:00.000Z", not empty.
func Format(t time.Time) string {
	return t.UTC().Format(ISO8601)
}
