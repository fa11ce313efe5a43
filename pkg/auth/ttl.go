package auth

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is used whenever a TTL string does not parse
const DefaultTTL = time.Hour

var ttlPattern = regexp.MustCompile(`^(\d+)([smhdSMHD])$`)

var ttlUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseTTL reads durations like "30s", "15m", "1h" or "7d".
// Anything else, including overflow, yields DefaultTTL.
func ParseTTL(v string) time.Duration {
	m := ttlPattern.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return DefaultTTL
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return DefaultTTL
	}

	unit := ttlUnits[strings.ToLower(m[2])]
	if n > int64(1<<63-1)/int64(unit) {
		return DefaultTTL
	}

	return time.Duration(n) * unit
}
