package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratewatch/internal/alerts"
)

type memoryPersister struct {
	last  []Entry
	calls int
	err   error
}

func (m *memoryPersister) SaveHistory(ctx context.Context, entries []Entry) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.last = entries
	return nil
}

func entryFor(alertID string, rate string) Entry {
	e := Entry{
		AlertID:   alertID,
		Base:      "EUR",
		Target:    "USD",
		Threshold: decimal.RequireFromString("1.05"),
		Mode:      alerts.ModeAbove,
	}
	if rate != "" {
		e.Rate = decimal.NewNullDecimal(decimal.RequireFromString(rate))
	}
	return e
}

func TestAppendKeepsMostRecentFirstAndCaps(t *testing.T) {
	p := &memoryPersister{}
	log, err := NewLog(nil, 0, p, zerolog.Nop())
	if err != nil {
		t.Fatalf("new log: %v", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := -1
	log.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	var firstID string
	for i := 0; i < DefaultLimit+1; i++ {
		stored, err := log.Append(context.Background(), entryFor("a1", "1.00"))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if i == 0 {
			firstID = stored.ID
		}
	}

	entries := log.Entries()
	if len(entries) != DefaultLimit {
		t.Fatalf("expected %d entries, got %d", DefaultLimit, len(entries))
	}
	if !entries[0].Timestamp.Equal(base.Add(DefaultLimit * time.Minute)) {
		t.Fatalf("newest entry should be first, got %s", entries[0].Timestamp)
	}
	for _, e := range entries {
		if e.ID == firstID {
			t.Fatal("oldest entry should have been dropped")
		}
	}
	if len(p.last) != DefaultLimit || p.calls != DefaultLimit+1 {
		t.Fatalf("unexpected persistence: %d entries over %d calls", len(p.last), p.calls)
	}
}

func TestAppendAssignsIdentity(t *testing.T) {
	log, err := NewLog(nil, 5, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	a, _ := log.Append(context.Background(), entryFor("a1", ""))
	b, _ := log.Append(context.Background(), entryFor("a2", "1.1"))

	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids should be unique, got %q and %q", a.ID, b.ID)
	}
	if a.Timestamp.IsZero() {
		t.Fatal("timestamp should be assigned")
	}
	if !a.Failed() || b.Failed() {
		t.Fatal("null rate marks a failed check")
	}
	if got := log.ForAlert("a2"); len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("unexpected per-alert entries %#v", got)
	}
	if got := log.Recent(1); len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("unexpected recent entries %#v", got)
	}
}

func TestAppendOverridesCallerTimestamp(t *testing.T) {
	log, err := NewLog(nil, 5, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return now }

	e := entryFor("a1", "1.1")
	e.ID = "caller-id"
	e.Timestamp = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	stored, err := log.Append(context.Background(), e)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if stored.ID == "caller-id" || !stored.Timestamp.Equal(now) {
		t.Fatalf("append must assign its own id and timestamp, got %q at %s", stored.ID, stored.Timestamp)
	}
}

type sharedPersister struct {
	entries []Entry
}

func (s *sharedPersister) SaveHistory(ctx context.Context, entries []Entry) error {
	s.entries = append([]Entry(nil), entries...)
	return nil
}

func (s *sharedPersister) LoadHistory(ctx context.Context) ([]Entry, error) {
	return append([]Entry(nil), s.entries...), nil
}

func TestAppendKeepsEntriesWrittenByAnotherLog(t *testing.T) {
	shared := &sharedPersister{}
	first, err := NewLog(nil, 3, shared, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewLog(nil, 3, shared, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	a, _ := first.Append(ctx, entryFor("a1", "1.1"))
	b, _ := second.Append(ctx, entryFor("a2", "1.2"))
	c, _ := first.Append(ctx, entryFor("a1", "1.3"))

	got := shared.entries
	if len(got) != 3 || got[0].ID != c.ID || got[1].ID != b.ID || got[2].ID != a.ID {
		t.Fatalf("every writer's entries should survive, newest first: %#v", got)
	}
	if len(first.Entries()) != 3 {
		t.Fatalf("local view should follow the stored log, got %d", len(first.Entries()))
	}

	second.Append(ctx, entryFor("a2", "1.4"))
	if len(shared.entries) != 3 || shared.entries[2].ID != b.ID {
		t.Fatalf("merged log should still be capped, got %#v", shared.entries)
	}
}

func TestAppendPersistFailureStillRecords(t *testing.T) {
	p := &memoryPersister{err: errors.New("unavailable")}
	log, err := NewLog(nil, 10, p, zerolog.Nop())
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	if _, err := log.Append(context.Background(), entryFor("a1", "1")); err == nil {
		t.Fatal("persist failure should be reported")
	}
	if len(log.Entries()) != 1 {
		t.Fatal("entry should stay in memory")
	}
}

func TestNewLogTruncatesSeed(t *testing.T) {
	seed := make([]Entry, 8)
	log, err := NewLog(seed, 3, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	if len(log.Entries()) != 3 || log.Limit() != 3 {
		t.Fatalf("seed should be capped at the limit")
	}
}
