package source

// RawEntry is the subset of a Claude Code JSONL line the aggregator reads.
type RawEntry struct {
	Type              string      `json:"type"`
	Timestamp         string      `json:"timestamp,omitempty"`
	SessionID         string      `json:"sessionId,omitempty"`
	RequestID         string      `json:"requestId,omitempty"`
	IsAPIErrorMessage bool        `json:"isApiErrorMessage,omitempty"`
	Message           *RawMessage `json:"message,omitempty"`
}

// RawMessage represents the assistant's message envelope.
type RawMessage struct {
	ID    string    `json:"id"`
	Model string    `json:"model"`
	Usage *RawUsage `json:"usage,omitempty"`
}

// RawUsage holds token counts from the API response. The required counters
// are pointers so that a missing field can be told apart from zero.
type RawUsage struct {
	InputTokens              *int64 `json:"input_tokens"`
	OutputTokens             *int64 `json:"output_tokens"`
	CacheCreationInputTokens int64  `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64  `json:"cache_read_input_tokens"`
}

// DiscoveredFile represents a JSONL file found during directory scanning.
type DiscoveredFile struct {
	Path       string
	Project    string // decoded display name (e.g., "gitlore")
	ProjectDir string // raw directory name
	IsSubagent bool
}
