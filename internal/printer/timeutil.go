package printer

import (
	"fmt"
	"time"
)

// The CLI always renders times in UTC so output is comparable across
// machines, every string carries the zone marker to make that explicit.

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago (UTC)", unit)
	}
	return fmt.Sprintf("%d %ss ago (UTC)", n, unit)
}

// TimeAgo renders how long ago t was, using the largest unit that fits:
// "30 seconds ago (UTC)", "1 hour ago (UTC)", "7 days ago (UTC)".
func TimeAgo(t time.Time) string {
	diff := time.Now().UTC().Sub(t.UTC())

	switch {
	case diff < 0:
		// Clock skew between the daemon and the client.
		return "in the future (UTC)"
	case diff < time.Minute:
		return plural(int(diff.Seconds()), "second")
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}

// FormatTimestamp renders an absolute timestamp as "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
