package model

import (
	"fmt"
	"strings"
	"time"
)

// LocalTime 在 JSON 中输出为 "YYYY-MM-DD HH:MM:SS"，即 FITS 头中不带时区的 UTC 约定。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).UTC().Format(timeFormat))
	return []byte(formatted), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *LocalTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := time.ParseInLocation(timeFormat, s, time.UTC)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}

// Time 返回 UTC 时间。
func (t LocalTime) Time() time.Time { return time.Time(t).UTC() }

// NullableTime 把可选时间转换为 JSON 输出用的 LocalTime。
func NullableTime(t *time.Time) *LocalTime {
	if t == nil {
		return nil
	}
	lt := LocalTime(*t)
	return &lt
}
