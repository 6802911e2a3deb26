package model

import (
	"encoding/json"
	"time"
)

// Snapshot sources.
const (
	SourceAPI  = "api"
	SourceHTML = "html"
)

// Window is one rate-limit window. A nil field means the remote payload did not
// carry it at all; it is never coerced to zero.
type Window struct {
	Utilization *float64   `json:"utilization"` // percent, 0-100
	ResetsAt    *time.Time `json:"resets_at"`
}

// Present reports whether the window carried any data.
func (w Window) Present() bool {
	return w.Utilization != nil || w.ResetsAt != nil
}

// MonthlyCredits is the overage spend limit, in major currency units.
type MonthlyCredits struct {
	Used         float64 `json:"used"`
	Limit        float64 `json:"limit"`
	Currency     string  `json:"currency"`
	Percent      float64 `json:"percent"`
	OutOfCredits bool    `json:"out_of_credits"`
	Enabled      bool    `json:"enabled"`
}

// UsageSnapshot is one normalized result of a successful fetch. Treat it as
// immutable; the next fetch produces a new value.
type UsageSnapshot struct {
	Source           string            `json:"source"`
	FiveHour         Window            `json:"five_hour"`
	SevenDay         Window            `json:"seven_day"`
	SevenDayPerModel map[string]Window `json:"seven_day_per_model,omitempty"`
	ExtraUsage       *Window           `json:"extra_usage,omitempty"`
	MonthlyCredits   *MonthlyCredits   `json:"monthly_credits"`
	CreditBalance    *float64          `json:"credit_balance,omitempty"`

	// UsagePercent and ResetTime are the headline figures. The HTML fallback
	// only ever fills these two.
	UsagePercent *float64 `json:"usage_percent"`
	ResetTime    string   `json:"reset_time"`

	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version,omitempty"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
}
