package repository

// Timeframe represents a candle resolution bucket, e.g. "1m" or "1d".
type Timeframe string

// TimeframeSet is the closed set of timeframes that have a backing table.
type TimeframeSet map[Timeframe]string

// NewTimeframeSet builds a set from a timeframe -> table mapping.
func NewTimeframeSet(tables map[string]string) TimeframeSet {
	set := make(TimeframeSet, len(tables))
	for tf, table := range tables {
		set[Timeframe(tf)] = table
	}
	return set
}

// IsValid returns true if tf has a backing table.
func (s TimeframeSet) IsValid(tf Timeframe) bool {
	_, ok := s[tf]
	return ok
}

// Table returns the table backing tf.
func (s TimeframeSet) Table(tf Timeframe) (string, bool) {
	t, ok := s[tf]
	return t, ok
}

// NormalizeTimeframe converts a raw string to a timeframe, falling back to def when empty.
// Unknown values are returned unchanged so callers can reject them.
func NormalizeTimeframe(s string, def Timeframe) Timeframe {
	if s == "" {
		return def
	}
	return Timeframe(s)
}
