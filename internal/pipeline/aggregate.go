package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/ccquota/internal/model"
	"github.com/theirongolddev/ccquota/internal/source"
)

// Aggregator sums token usage across every session log under the first
// existing candidate directory. It keeps no state between calls.
type Aggregator struct {
	Candidates       []string
	IncludeSubagents bool
	Workers          int
	Logger           *zap.Logger
	Progress         ProgressFunc
}

// NewAggregator returns an aggregator over the default candidate directories
// plus any extra directories from configuration.
func NewAggregator(logger *zap.Logger, extraDirs ...string) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		Candidates:       source.DataDirCandidates(extraDirs...),
		IncludeSubagents: true,
		Logger:           logger,
	}
}

// Aggregate rescans every log file and returns the deduplicated totals for
// records at or after since. A zero since disables the time filter. A missing
// data directory yields an empty aggregate and a nil error.
func (a *Aggregator) Aggregate(since time.Time) (model.AggregateUsage, error) {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	agg := model.AggregateUsage{Since: since, ByModel: make(map[string]model.ModelTokens)}

	dir, ok := source.FindDataDirectory(a.Candidates)
	if !ok {
		logger.Debug("no log directory found", zap.Strings("candidates", a.Candidates))
		return agg, nil
	}
	agg.DataDir = dir
	agg.Found = true

	files, err := source.DiscoverLogFiles(dir)
	if err != nil {
		return agg, err
	}
	if !a.IncludeSubagents {
		kept := files[:0]
		for _, f := range files {
			if !f.IsSubagent {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	agg.Files = len(files)

	lr := Load(files, a.Workers, logger, a.Progress)
	agg.ParseErrors = lr.ParseErrors

	seen := make(map[string]struct{})
	for _, pr := range lr.Results {
		for _, rec := range pr.Records {
			if !since.IsZero() && (rec.Timestamp.IsZero() || rec.Timestamp.Before(since)) {
				continue
			}
			if key := rec.DedupKey(); key != "" {
				if _, dup := seen[key]; dup {
					agg.Duplicates++
					continue
				}
				seen[key] = struct{}{}
			}
			agg.Add(rec)
		}
	}

	logger.Debug("aggregated local usage",
		zap.String("dir", dir),
		zap.Int("files", agg.Files),
		zap.Int("records", agg.RecordCount),
		zap.Int("duplicates", agg.Duplicates),
		zap.Int64("total_tokens", agg.TotalTokens))

	return agg, nil
}
