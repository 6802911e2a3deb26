// Package pipeline loads session logs and reduces them to deduplicated token totals.
package pipeline

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/theirongolddev/ccquota/internal/source"
)

// LoadResult holds the parsed output of every discovered file, in path order.
type LoadResult struct {
	Files       []source.DiscoveredFile
	Results     []source.ParseResult
	FileErrors  int
	ParseErrors int
}

// ProgressFunc is called during loading to report progress.
// current is the number of files processed so far, total is the total count.
type ProgressFunc func(current, total int)

// Load parses files with a bounded worker pool. Results are indexed like the
// (sorted) input so that downstream dedup sees a stable order.
func Load(files []source.DiscoveredFile, workers int, logger *zap.Logger, progressFn ProgressFunc) *LoadResult {
	if logger == nil {
		logger = zap.NewNop()
	}

	sorted := make([]source.DiscoveredFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	result := &LoadResult{
		Files:   sorted,
		Results: make([]source.ParseResult, len(sorted)),
	}
	if len(sorted) == 0 {
		return result
	}

	numWorkers := workers
	if numWorkers < 1 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(sorted) {
		numWorkers = len(sorted)
	}

	work := make(chan int, len(sorted))
	var wg sync.WaitGroup
	var processed atomic.Int64

	for i := range sorted {
		work <- i
	}
	close(work)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				result.Results[idx] = source.ParseFile(sorted[idx].Path, logger)
				n := processed.Add(1)
				if progressFn != nil {
					progressFn(int(n), len(sorted))
				}
			}
		}()
	}

	wg.Wait()

	for i, pr := range result.Results {
		if pr.Err != nil {
			result.FileErrors++
			logger.Warn("reading log file", zap.String("file", sorted[i].Path), zap.Error(pr.Err))
		}
		result.ParseErrors += pr.ParseErrors
	}

	return result
}
