// Package sqldialect captures the few differences between the SQL engines the
// ledger runs on: driver names, bind parameters and timestamp encoding.
package sqldialect

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect names a supported SQL engine.
type Dialect string

const (
	// SQLite is the embedded engine (modernc.org/sqlite). Timestamps are
	// stored as unix milliseconds.
	SQLite Dialect = "sqlite"
	// Postgres is the production ledger engine (github.com/lib/pq).
	// Timestamps are stored as TIMESTAMPTZ.
	Postgres Dialect = "postgres"
)

// Parse validates a configured dialect name.
func Parse(value string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(value))) {
	case SQLite, "sqlite3", "":
		return SQLite, nil
	case Postgres, "postgresql", "pg":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", value)
	}
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax. Queries
// must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TimeValue encodes t as a bind argument.
func (d Dialect) TimeValue(t time.Time) any {
	if d == Postgres {
		return t.UTC()
	}
	return t.UTC().UnixMilli()
}

// ScanTime decodes a timestamp column regardless of its storage class.
type ScanTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (s *ScanTime) Scan(value any) error {
	s.Valid = true
	switch v := value.(type) {
	case nil:
		s.Time, s.Valid = time.Time{}, false
	case int64:
		s.Time = time.UnixMilli(v).UTC()
	case time.Time:
		s.Time = v.UTC()
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", value)
	}
	return nil
}

func (s *ScanTime) parse(value string) error {
	if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
		s.Time = time.UnixMilli(millis).UTC()
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999"} {
		if ts, err := time.Parse(layout, value); err == nil {
			s.Time = ts.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", value)
}
