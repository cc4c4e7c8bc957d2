package clock

import (
	"testing"
	"time"
)

func TestSystemNowIsUTC(t *testing.T) {
	now := System{}.Now()
	if now.Location() != time.UTC {
		t.Fatalf("expected UTC, got %s", now.Location())
	}
	if now.Nanosecond()%1000 != 0 {
		t.Fatalf("expected microsecond precision, got %d ns", now.Nanosecond())
	}
}

func TestManualClock(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)

	c := NewManual(start)
	if c.Now().Location() != time.UTC {
		t.Fatal("expected manual clock to normalize to UTC")
	}
	if !c.Now().Equal(start) {
		t.Fatalf("expected %s, got %s", start, c.Now())
	}

	c.Advance(Days(30))
	if want := start.Add(720 * time.Hour); !c.Now().Equal(want) {
		t.Fatalf("expected %s after advance, got %s", want, c.Now())
	}

	c.Set(start)
	if !c.Now().Equal(start) {
		t.Fatalf("expected reset to %s, got %s", start, c.Now())
	}
}
