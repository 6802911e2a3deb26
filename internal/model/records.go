// Package model defines domain types for remote usage snapshots and local token logs.
package model

import "time"

// LogRecord is one validated assistant usage entry from a Claude Code JSONL file.
type LogRecord struct {
	MessageID           string
	RequestID           string
	Model               string
	Timestamp           time.Time
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
	File                string
}

// DedupKey returns the composite identity of the record, or "" when either
// half is missing and the record cannot be deduplicated.
func (r LogRecord) DedupKey() string {
	if r.MessageID == "" || r.RequestID == "" {
		return ""
	}
	return r.MessageID + ":" + r.RequestID
}

// Tokens is the sum of all token categories of the record.
func (r LogRecord) Tokens() int64 {
	return r.InputTokens + r.OutputTokens + r.CacheCreationTokens + r.CacheReadTokens
}

// ModelTokens tracks per-model token usage within an aggregate.
type ModelTokens struct {
	Records             int   `json:"records"`
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
}

// Total returns the sum of all token categories.
func (m ModelTokens) Total() int64 {
	return m.InputTokens + m.OutputTokens + m.CacheCreationTokens + m.CacheReadTokens
}

// AggregateUsage is the deduplicated token total over a time window.
// It is recomputed from scratch on every aggregation.
type AggregateUsage struct {
	TotalTokens         int64 `json:"total_tokens"`
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
	RecordCount         int   `json:"record_count"`

	ByModel map[string]ModelTokens `json:"by_model,omitempty"`

	DataDir     string    `json:"data_dir,omitempty"`
	Found       bool      `json:"found"` // false when no log directory exists
	Files       int       `json:"files"`
	ParseErrors int       `json:"parse_errors"`
	Duplicates  int       `json:"duplicates"`
	Since       time.Time `json:"since"`
}

// Add folds one record into the aggregate.
func (a *AggregateUsage) Add(r LogRecord) {
	a.InputTokens += r.InputTokens
	a.OutputTokens += r.OutputTokens
	a.CacheCreationTokens += r.CacheCreationTokens
	a.CacheReadTokens += r.CacheReadTokens
	a.TotalTokens += r.Tokens()
	a.RecordCount++

	if a.ByModel == nil {
		a.ByModel = make(map[string]ModelTokens)
	}
	mt := a.ByModel[r.Model]
	mt.Records++
	mt.InputTokens += r.InputTokens
	mt.OutputTokens += r.OutputTokens
	mt.CacheCreationTokens += r.CacheCreationTokens
	mt.CacheReadTokens += r.CacheReadTokens
	a.ByModel[r.Model] = mt
}
