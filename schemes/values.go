package schemes

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"time"
)

// layouts we try when a time key is given as a string
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// unwraps driver valuers like null.String to their underlying value
func driverValue(v any) any {
	if valuer, ok := v.(driver.Valuer); ok {
		if dv, err := valuer.Value(); err == nil {
			return dv
		}
	}
	return v
}

func toTime(v any) (time.Time, bool) {
	switch typed := driverValue(v).(type) {
	case time.Time:
		return typed, true
	case *time.Time:
		if typed != nil {
			return *typed, true
		}
	case string:
		return parseTime(typed)
	case []byte:
		return parseTime(string(typed))
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toInt(v any) (int64, bool) {
	switch typed := driverValue(v).(type) {
	case int:
		return int64(typed), true
	case int8:
		return int64(typed), true
	case int16:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	case uint:
		if uint64(typed) <= math.MaxInt64 {
			return int64(typed), true
		}
	case uint8:
		return int64(typed), true
	case uint16:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	case uint64:
		if typed <= math.MaxInt64 {
			return int64(typed), true
		}
	case float64:
		if typed == float64(int64(typed)) {
			return int64(typed), true
		}
	case string:
		if i, err := strconv.ParseInt(typed, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func toString(v any) (string, bool) {
	switch typed := driverValue(v).(type) {
	case string:
		return typed, true
	case []byte:
		return string(typed), true
	case bool:
		return strconv.FormatBool(typed), true
	case fmt.Stringer:
		return typed.String(), true
	case uint64:
		return strconv.FormatUint(typed, 10), true
	}

	if i, ok := toInt(v); ok {
		return strconv.FormatInt(i, 10), true
	}
	return "", false
}
