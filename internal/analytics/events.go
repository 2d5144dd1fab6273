// Package analytics records what users search for. The query service tracks
// a SearchEvent per request through a Collector that batches them onto
// Kafka; the Aggregator consumes the topic and serves running totals.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventError      EventType = "error"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Tokens    []string  `json:"tokens"`
	Total     int       `json:"total"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// TypeFor classifies a finished search.
func TypeFor(returned int, err error) EventType {
	switch {
	case err != nil:
		return EventError
	case returned == 0:
		return EventZeroResult
	default:
		return EventSearch
	}
}
