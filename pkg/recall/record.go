package recall

import "time"

// Record is the persistent memory of a single error signature: how often
// it has recurred, what CAKE has already said about it, and whether those
// interventions worked.
//
// Invariant (I4): SuccessCount <= InterventionCount <= OccurrenceCount must
// hold after every mutation; Store implementations enforce this internally
// rather than trusting callers.
type Record struct {
	Signature          Signature
	Kind               string
	Remainder          string // normalized message remainder, used by Similar
	FirstSeen          time.Time
	LastSeen           time.Time
	OccurrenceCount    int
	InterventionCount  int
	SuccessCount       int
	LastInterventionAt time.Time
	LastIntervention   string
	ExpiresAt          time.Time
}

// DefaultTTL is the baseline record lifetime (§3 data model), overridable
// at startup via SetBaselineTTL from the active database.ttl_hours config.
var DefaultTTL = 24 * time.Hour

// ExtendedTTL applies once a signature has recurred at least
// ExtendedTTLThreshold times: it extends retention to 3x the baseline so
// a frequently recurring signature isn't forgotten mid-incident. It
// tracks DefaultTTL proportionally so a config override still widens
// both tiers together.
var ExtendedTTL = 72 * time.Hour

const ExtendedTTLThreshold = 5

// SetBaselineTTL overrides the default and extended record lifetimes from
// the configured database.ttl_hours, keeping the extended tier at 3x the
// baseline. Call once during startup, before the store begins serving
// traffic; it is not safe for concurrent use with Record/Lookup.
func SetBaselineTTL(baseline time.Duration) {
	DefaultTTL = baseline
	ExtendedTTL = baseline * 3
}

// ttlFor returns the TTL a record should use given its occurrence count.
func ttlFor(occurrenceCount int) time.Duration {
	if occurrenceCount >= ExtendedTTLThreshold {
		return ExtendedTTL
	}
	return DefaultTTL
}

// Fields carries the subset of Event-derived data needed to create or
// refresh a Record on Store.Record.
type Fields struct {
	Kind      string
	Remainder string // normalized message remainder, persisted for Similar
	Now       time.Time
}
