// Package source discovers and parses Claude Code JSONL session logs.
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/ccquota/internal/model"
)

// SyntheticModel marks placeholder entries Claude Code writes without a real API call.
const SyntheticModel = "<synthetic>"

// ParseResult holds the output of parsing a single JSONL file.
type ParseResult struct {
	Records     []model.LogRecord
	Lines       int
	ParseErrors int
	Err         error
}

// ParseFile reads a JSONL file and returns its valid usage records in file
// order. A malformed line is logged and skipped; it never aborts the file.
func ParseFile(path string, logger *zap.Logger) ParseResult {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path) //nolint:gosec // path comes from the directory walk
	if err != nil {
		return ParseResult{Err: err}
	}
	defer func() { _ = f.Close() }()

	var res ParseResult

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 8*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		res.Lines++

		var entry RawEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			res.ParseErrors++
			logger.Debug("skipping malformed log line",
				zap.String("file", path),
				zap.Int("line", lineNo),
				zap.Error(err))
			continue
		}
		if !IsValidRecord(entry) {
			continue
		}
		res.Records = append(res.Records, toRecord(entry, path))
	}

	if err := scanner.Err(); err != nil {
		res.Err = err
	}
	return res
}

// IsValidRecord reports whether an entry carries real, countable usage.
// Entries without numeric input/output counters, synthetic placeholders and
// API error messages are rejected.
func IsValidRecord(e RawEntry) bool {
	if e.IsAPIErrorMessage {
		return false
	}
	if e.Message == nil || e.Message.Usage == nil {
		return false
	}
	if e.Message.Model == SyntheticModel {
		return false
	}
	u := e.Message.Usage
	return u.InputTokens != nil && u.OutputTokens != nil
}

func toRecord(e RawEntry, path string) model.LogRecord {
	u := e.Message.Usage
	ts, _ := time.Parse(time.RFC3339Nano, e.Timestamp)
	return model.LogRecord{
		MessageID:           e.Message.ID,
		RequestID:           e.RequestID,
		Model:               e.Message.Model,
		Timestamp:           ts,
		InputTokens:         *u.InputTokens,
		OutputTokens:        *u.OutputTokens,
		CacheCreationTokens: u.CacheCreationInputTokens,
		CacheReadTokens:     u.CacheReadInputTokens,
		File:                path,
	}
}
