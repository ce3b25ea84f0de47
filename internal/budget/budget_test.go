package budget

import (
	"testing"
	"time"
)

func TestCanAffordWithinLimit(t *testing.T) {
	m := New(Config{HourlyTokenLimit: 1000, DailyTokenLimit: 5000})
	if !m.CanAfford(500, "extract") {
		t.Fatal("expected 500 tokens to fit within a 1000 hourly limit")
	}
}

func TestCanAffordDeniedOverHourlyLimit(t *testing.T) {
	m := New(Config{HourlyTokenLimit: 1000, DailyTokenLimit: 5000})
	m.RecordUsage(800, 0, "claude-3-5-haiku-20241022")
	if m.CanAfford(300, "extract") {
		t.Fatal("expected 800+300 > 1000 hourly limit to be denied")
	}
}

func TestCanAffordDeniedOverDailyLimit(t *testing.T) {
	m := New(Config{HourlyTokenLimit: 100000, DailyTokenLimit: 1000})
	m.RecordUsage(900, 0, "claude-3-5-haiku-20241022")
	if m.CanAfford(200, "extract") {
		t.Fatal("expected 900+200 > 1000 daily limit to be denied")
	}
}

func TestZeroLimitMeansUnlimited(t *testing.T) {
	m := New(Config{})
	if !m.CanAfford(1_000_000, "extract") {
		t.Fatal("expected a zero-value limit to never deny")
	}
}

func TestSlidingWindowExpiresOldUsage(t *testing.T) {
	m := New(Config{HourlyTokenLimit: 1000, DailyTokenLimit: 5000})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	m.RecordUsage(900, 0, "claude-3-5-haiku-20241022")

	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	if !m.CanAfford(900, "extract") {
		t.Fatal("expected hourly usage to have expired after 2 hours")
	}
}

func TestAllowMatchesBudgetGateShape(t *testing.T) {
	m := New(Config{HourlyTokenLimit: 100, DailyTokenLimit: 100})
	if !m.Allow("extract", 50) {
		t.Fatal("expected Allow(operation, tokens) to accept a fitting estimate")
	}
	if m.Allow("extract", 500) {
		t.Fatal("expected Allow to deny an estimate exceeding both limits")
	}
}

func TestStatsReturnsRecordedUsage(t *testing.T) {
	m := New(Config{HourlyTokenLimit: 1000, DailyTokenLimit: 1000})
	m.RecordUsageFor(10, 20, "claude-3-5-haiku-20241022", "extract")
	stats := m.Stats()
	if len(stats) != 1 || stats[0].Tokens != 30 || stats[0].Operation != "extract" {
		t.Fatalf("expected one usage record of 30 tokens tagged extract, got %+v", stats)
	}
}
