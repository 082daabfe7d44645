package mapping

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/syncbridge/internal/types"
)

// datetimeLayouts are tried in order by ParseDatetime.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.RFC822Z,
	time.RFC822,
	time.ANSIC,
	time.UnixDate,
	"Jan 2, 2006 15:04:05",
	"January 2, 2006 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006 15:04:05",
	"2 January 2006",
	"02/01/2006 15:04:05",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// ParseTimestamp accepts a non-negative integer or an all-digit string.
func ParseTimestamp(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return nonNegative(int64(n), v)
	case int32:
		return nonNegative(int64(n), v)
	case int64:
		return nonNegative(n, v)
	case uint:
		return nonNegative(int64(n), v)
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: timestamp %v out of range", ErrFieldFormat, v)
		}
		return int64(n), nil
	case float64:
		if n < 0 || n != math.Trunc(n) || n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v is not a non-negative integer timestamp", ErrFieldFormat, v)
		}
		return int64(n), nil
	case json.Number:
		return parseDigits(n.String())
	case string:
		return parseDigits(n)
	}
	return 0, fmt.Errorf("%w: %v (%T) is not a timestamp", ErrFieldFormat, v, v)
}

func nonNegative(n int64, orig any) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: negative timestamp %v", ErrFieldFormat, orig)
	}
	return n, nil
}

func parseDigits(s string) (int64, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("%w: %q is not an all-digit timestamp", ErrFieldFormat, s)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrFieldFormat, s, err)
	}
	return n, nil
}

// ParseDatetime parses a datetime string in any of the common layouts.
// Values without a zone are read as UTC.
func ParseDatetime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty datetime", ErrFieldFormat)
	}
	if strings.HasPrefix(s, "@") {
		return parseDigits(s[1:])
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("%w: unparseable datetime %q", ErrFieldFormat, s)
}

// FormatDatetime renders a Unix timestamp as RFC 3339 in UTC.
func FormatDatetime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// ParseChanged normalizes a remote changed value according to format.
func ParseChanged(v any, format string) (int64, error) {
	switch format {
	case types.ChangedFormatTimestamp, "":
		return ParseTimestamp(v)
	case types.ChangedFormatString:
		s, ok := v.(string)
		if !ok {
			return 0, fmt.Errorf("%w: %v (%T) is not a datetime string", ErrFieldFormat, v, v)
		}
		return ParseDatetime(s)
	}
	return 0, fmt.Errorf("%w: unsupported changed format %q", ErrFieldFormat, format)
}
