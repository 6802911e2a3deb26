package model

import "time"

// Category classifies a captured remote endpoint.
type Category string

const (
	CategoryUsage        Category = "usage"
	CategoryCredits      Category = "credits"
	CategoryOverageLimit Category = "overageLimit"
)

// CapturedEndpoint is an internal data URL observed in live browser traffic.
type CapturedEndpoint struct {
	Category   Category
	URL        string
	Headers    map[string]string
	CapturedAt time.Time
}
