// Package sqldb holds the pieces shared by the SQLite and PostgreSQL ledger
// stores: placeholder rebinding, value encoding and embedded migrations.
package sqldb

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Dialect selects the SQL flavour a query is rendered for.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Rebind rewrites ? placeholders into $n for PostgreSQL. Queries are written
// once with ? and never contain a literal question mark.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Placeholders renders n comma-separated ? markers for an IN list.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Time encodes a timestamp: TIMESTAMPTZ on PostgreSQL, unix millis on SQLite.
func (d Dialect) Time(t time.Time) any {
	if d == Postgres {
		return t.UTC()
	}
	return t.UTC().UnixMilli()
}

// NullTime encodes an optional timestamp.
func (d Dialect) NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.Time(*t)
}

// Strings encodes a string list: TEXT[] on PostgreSQL, a JSON array on SQLite.
func (d Dialect) Strings(values []string) any {
	if values == nil {
		values = []string{}
	}
	if d == Postgres {
		return pq.Array(values)
	}
	raw, _ := json.Marshal(values)
	return string(raw)
}

// ForUpdate is the row-lock suffix. SQLite transactions start with BEGIN
// IMMEDIATE and already hold the database write lock.
func (d Dialect) ForUpdate() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// TimeValue scans either encoding produced by Dialect.Time.
type TimeValue struct {
	Time  time.Time
	Valid bool
}

func (v *TimeValue) Scan(src any) error {
	switch value := src.(type) {
	case nil:
		v.Time, v.Valid = time.Time{}, false
	case time.Time:
		v.Time, v.Valid = value.UTC(), true
	case int64:
		v.Time, v.Valid = time.UnixMilli(value).UTC(), true
	case []byte:
		return v.scanText(string(value))
	case string:
		return v.scanText(value)
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func (v *TimeValue) scanText(s string) error {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		v.Time, v.Valid = time.UnixMilli(ms).UTC(), true
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	v.Time, v.Valid = t.UTC(), true
	return nil
}

// Ptr returns nil for NULL.
func (v TimeValue) Ptr() *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// StringList scans a TEXT[] literal or a JSON array.
type StringList []string

func (l *StringList) Scan(src any) error {
	var text string
	switch value := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		text = string(value)
	case string:
		text = value
	default:
		return fmt.Errorf("unsupported list value %T", src)
	}
	if strings.HasPrefix(strings.TrimSpace(text), "[") {
		var out []string
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return fmt.Errorf("decode list: %w", err)
		}
		*l = out
		return nil
	}
	var arr pq.StringArray
	if err := arr.Scan(text); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}

// Value renders the list as JSON; callers that target PostgreSQL use
// Dialect.Strings instead.
func (l StringList) Value() (driver.Value, error) {
	raw, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
