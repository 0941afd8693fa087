package utils

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CustomTime accepts the two timestamp formats webhook relays emit:
// "2006-01-02T15:04:05" and RFC3339 with offset.
type CustomTime time.Time

func (ct *CustomTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), "\"")
	if s == "null" || s == "" {
		return nil
	}

	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}

	*ct = CustomTime(t)
	return nil
}

func (ct CustomTime) MarshalJSON() ([]byte, error) {
	t := time.Time(ct)
	if t.IsZero() {
		return []byte("null"), nil
	}

	data := make([]byte, 0, 21) // 19 characters for time format and 2 for quotes
	return fmt.Appendf(data, "\"%s\"", t.Format("2006-01-02T15:04:05")), nil
}

func (ct CustomTime) Time() time.Time {
	return time.Time(ct)
}

func (ct CustomTime) String() string {
	return ct.Time().Format("2006-01-02T15:04:05")
}

type NullTime struct {
	sql.NullTime
}

func (nt *NullTime) Scan(value interface{}) error {
	return nt.NullTime.Scan(value)
}

func (nt NullTime) Value() (driver.Value, error) {
	return nt.NullTime.Value()
}

func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nt.Time.UTC().Format(time.RFC3339))
}

func (nt *NullTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		nt.Valid = false
		return nil
	}

	var timestampStr string
	if err := json.Unmarshal(data, &timestampStr); err != nil {
		return err
	}

	if timestampStr == "" {
		nt.Valid = false
		return nil
	}

	t, err := time.Parse(time.RFC3339, timestampStr)
	if err != nil {
		return fmt.Errorf("unable to parse timestamp string: %s", timestampStr)
	}

	nt.Time = t
	nt.Valid = true
	return nil
}

func NewNullTime(t time.Time) NullTime {
	return NullTime{
		NullTime: sql.NullTime{
			Time:  t,
			Valid: true,
		},
	}
}
