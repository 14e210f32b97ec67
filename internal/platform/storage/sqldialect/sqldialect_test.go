package sqldialect

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := map[string]Dialect{
		"":           SQLite,
		"sqlite":     SQLite,
		"SQLite3":    SQLite,
		"postgres":   Postgres,
		"postgresql": Postgres,
	}
	for input, want := range tests {
		got, err := Parse(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q = %q, want %q", input, got, want)
		}
	}
	if _, err := Parse("mysql"); err == nil {
		t.Fatal("expected unsupported dialect error")
	}
}

func TestRebind(t *testing.T) {
	query := "SELECT * FROM audit_logs WHERE payment_transaction_id = ? AND timestamp >= ? LIMIT ?"
	if got := SQLite.Rebind(query); got != query {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
	want := "SELECT * FROM audit_logs WHERE payment_transaction_id = $1 AND timestamp >= $2 LIMIT $3"
	if got := Postgres.Rebind(query); got != want {
		t.Fatalf("postgres rebind = %q, want %q", got, want)
	}
}

func TestTimeValue(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := SQLite.TimeValue(ts); got != ts.UnixMilli() {
		t.Fatalf("sqlite time value = %v", got)
	}
	if got, ok := Postgres.TimeValue(ts).(time.Time); !ok || !got.Equal(ts) {
		t.Fatalf("postgres time value = %v", got)
	}
}

func TestScanTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	inputs := []any{want.UnixMilli(), want, []byte("2024-01-01T12:00:00Z"), "1704110400000"}
	for _, input := range inputs {
		var s ScanTime
		if err := s.Scan(input); err != nil {
			t.Fatalf("scan %T: %v", input, err)
		}
		if !s.Valid || !s.Time.Equal(want) {
			t.Fatalf("scan %T = %v (valid=%t), want %v", input, s.Time, s.Valid, want)
		}
	}
	var null ScanTime
	if err := null.Scan(nil); err != nil || null.Valid {
		t.Fatalf("scan nil = %v valid=%t", err, null.Valid)
	}
	if err := (&ScanTime{}).Scan(3.5); err == nil {
		t.Fatal("expected unsupported type error")
	}
}
