package engine

import (
	"regexp"
	"time"
)

// dateTokenPattern matches a bare year or an ISO date, the two surface forms the
// extractor's source sentences use for temporal facts (SPEC_FULL.md §3's
// worked example: "worked at Acme from 2018 to 2020").
const dateTokenPattern = `\d{4}(?:-\d{2}-\d{2})?`

var (
	fromUntilRe = regexp.MustCompile(`(?i)from\s+(` + dateTokenPattern + `)\s+to\s+(` + dateTokenPattern + `)`)
	sinceRe     = regexp.MustCompile(`(?i)\bsince\s+(` + dateTokenPattern + `)`)
	untilRe     = regexp.MustCompile(`(?i)\buntil\s+(` + dateTokenPattern + `)`)
	inYearRe    = regexp.MustCompile(`(?i)\bin\s+(\d{4})\b`)
)

// parseDateRange recovers a best-effort [from, until) validity window from a
// relation's source sentence. Relations themselves carry no valid_from/
// valid_until fields (extract.Relation is surface-form only), so the engine
// facade fills that gap at write time by scanning the sentence text the
// extractor already recovered — grounded on SPEC_FULL.md §3's requirement
// that TemporalFact carry a T1 fact-time window whenever the source text
// states one. A sentence with no recognizable date phrase yields an
// open-ended (nil, nil) range, which AddEdge treats as ±∞.
func parseDateRange(sentence string) dateRange {
	if m := fromUntilRe.FindStringSubmatch(sentence); m != nil {
		from, okFrom := parseDateToken(m[1])
		until, okUntil := parseDateToken(m[2])
		var r dateRange
		if okFrom {
			r.from = &from
		}
		if okUntil {
			r.until = &until
		}
		return r
	}
	var r dateRange
	if m := sinceRe.FindStringSubmatch(sentence); m != nil {
		if t, ok := parseDateToken(m[1]); ok {
			r.from = &t
		}
	}
	if m := untilRe.FindStringSubmatch(sentence); m != nil {
		if t, ok := parseDateToken(m[1]); ok {
			r.until = &t
		}
	}
	if r.from != nil || r.until != nil {
		return r
	}
	if m := inYearRe.FindStringSubmatch(sentence); m != nil {
		if start, ok := parseDateToken(m[1]); ok {
			end := start.AddDate(1, 0, 0).Add(-time.Nanosecond)
			r.from = &start
			r.until = &end
		}
	}
	return r
}

// parseDateToken parses either a bare year ("2018") or an ISO date
// ("2018-06-01").
func parseDateToken(s string) (time.Time, bool) {
	if len(s) == 4 {
		t, err := time.Parse("2006", s)
		return t, err == nil
	}
	t, err := time.Parse("2006-01-02", s)
	return t, err == nil
}
