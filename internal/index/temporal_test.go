package index

import (
	"testing"
	"time"
)

func mustTime(s string) time.Time {
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return tm
}

func TestTemporalIndexQueryAtTime(t *testing.T) {
	idx := NewTemporalIndex("")
	from := mustTime("2020-01-01T00:00:00Z")
	until := mustTime("2020-06-01T00:00:00Z")
	idx.Insert("fact:1", &from, &until)
	idx.Insert("fact:2", nil, nil)

	ids := idx.QueryAtTime(mustTime("2020-03-01T00:00:00Z"))
	if len(ids) != 2 {
		t.Fatalf("expected both facts valid mid-window, got %v", ids)
	}

	ids = idx.QueryAtTime(mustTime("2021-01-01T00:00:00Z"))
	found := map[string]bool{}
	for _, id := range ids {
		found[id] = true
	}
	if found["fact:1"] {
		t.Fatal("fact:1 should have expired by 2021")
	}
	if !found["fact:2"] {
		t.Fatal("open-ended fact:2 should still be valid")
	}
}

func TestTemporalIndexQueryRangeAndRemove(t *testing.T) {
	idx := NewTemporalIndex("")
	f1 := mustTime("2020-01-01T00:00:00Z")
	u1 := mustTime("2020-02-01T00:00:00Z")
	idx.Insert("fact:1", &f1, &u1)

	f2 := mustTime("2022-01-01T00:00:00Z")
	u2 := mustTime("2022-02-01T00:00:00Z")
	idx.Insert("fact:2", &f2, &u2)

	ids := idx.QueryRange(mustTime("2019-12-01T00:00:00Z"), mustTime("2020-03-01T00:00:00Z"))
	if len(ids) != 1 || ids[0] != "fact:1" {
		t.Fatalf("expected only fact:1 in range, got %v", ids)
	}

	idx.Remove("fact:1")
	ids = idx.QueryRange(mustTime("2019-01-01T00:00:00Z"), mustTime("2023-01-01T00:00:00Z"))
	if len(ids) != 1 || ids[0] != "fact:2" {
		t.Fatalf("expected only fact:2 to remain, got %v", ids)
	}
}

func TestTemporalIndexQueryTimeline(t *testing.T) {
	idx := NewTemporalIndex("")
	f1 := mustTime("2020-01-01T00:00:00Z")
	u1 := mustTime("2020-02-01T00:00:00Z")
	idx.Insert("fact:1", &f1, &u1)

	events := idx.QueryTimeline()
	if len(events) != 2 {
		t.Fatalf("expected start+end events, got %d", len(events))
	}
	if events[0].Kind != "started" || events[1].Kind != "ended" {
		t.Fatalf("expected chronological started-then-ended order, got %+v", events)
	}
}
