// Package recall implements the TTL-bounded persistent memory of error
// signatures and outcomes (C1). The primary backing store is a local
// embedded SQLite file; a pure in-memory map serves as the degraded-mode
// fallback.
package recall

import (
	"context"
	"sort"
	"time"
)

// Store is the contract every C1 backend (durable or degraded) implements.
// Implementations must keep every signature's occurrence/intervention/
// success counters internally consistent on every mutation and must
// return from Lookup within a low single-digit-millisecond budget at
// tens of thousands of resident records.
type Store interface {
	// Record upserts a signature: creates a new record on first sight or
	// refreshes last-seen/occurrence-count/expiry on repeat.
	Record(ctx context.Context, sig Signature, fields Fields) error

	// Lookup returns the record for sig, or ok=false if absent or expired.
	Lookup(ctx context.Context, sig Signature) (rec Record, ok bool, err error)

	// Similar returns records whose normalized remainder overlaps tokens
	// at or above threshold, for use when no exact match exists.
	Similar(ctx context.Context, tokens []string, threshold float64) ([]Record, error)

	// MarkIntervention records that an intervention was emitted for sig.
	MarkIntervention(ctx context.Context, sig Signature, text string, now time.Time) error

	// MarkOutcome records whether the signature recurred within the
	// follow-up window after its most recent intervention.
	MarkOutcome(ctx context.Context, sig Signature, success bool) error

	// PurgeExpired removes records past their ExpiresAt and returns the
	// count removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)

	// Degraded reports whether the store is currently operating in
	// degraded (in-memory, non-durable) mode.
	Degraded() bool

	// Close releases any held resources (file handles, connections).
	Close() error
}

// errNotFound is returned by MarkIntervention (both backends) and by the
// in-memory MarkOutcome when sig has no record. Store.Lookup never returns
// it; an absent record there is reported as ok=false.
var errNotFound = &notFoundError{}

type notFoundError struct{}

func (e *notFoundError) Error() string { return "recall: signature not found" }

// scoredRecord pairs a candidate Record from Similar with its overlap
// score against the query tokens, so the best match can be returned first.
type scoredRecord struct {
	rec   Record
	score float64
}

// bestFirst sorts matches by descending score (ties broken by signature for
// determinism) and returns just the records.
func bestFirst(matches []scoredRecord) []Record {
	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].rec.Signature.String() < matches[j].rec.Signature.String()
	})
	out := make([]Record, len(matches))
	for i, m := range matches {
		out[i] = m.rec
	}
	return out
}
