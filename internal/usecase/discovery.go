package usecase

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"switchboard/internal/domain"
)

// toolStats is the per-tool slice of the performance ledger.
type toolStats struct {
	SuccessCount     int64                   `json:"success_count"`
	TotalExecutions  int64                   `json:"total_executions"`
	AvgExecutionTime float64                 `json:"avg_execution_time"` // seconds
	IntentPatterns   map[string]*intentStats `json:"intent_patterns"`
}

type intentStats struct {
	Count        int64 `json:"count"`
	SuccessCount int64 `json:"success_count"`
}

type performanceLedger struct {
	Tools       map[string]*toolStats `json:"tools"`
	LastUpdated time.Time             `json:"last_updated"`
}

type patternLedger struct {
	Patterns    []domain.ToolPattern `json:"patterns"`
	LastUpdated time.Time            `json:"last_updated"`
}

// ToolAnalytics summarizes one tool's learned history.
type ToolAnalytics struct {
	SuccessRate      float64 `json:"success_rate"`
	AvgExecutionTime float64 `json:"avg_execution_time"`
	TotalExecutions  int64   `json:"total_executions"`
	IntentCoverage   int     `json:"intent_coverage"`
}

// Discovery accumulates tool execution history and learns which tools
// serve which intents. Its suggestions are advisory; nothing here
// installs chains or blocks execution. The two ledgers are written
// through on every change and reloaded on startup; an unreadable
// ledger starts fresh rather than failing, since history is an
// optimization, not a source of truth.
type Discovery struct {
	mu              sync.Mutex
	performancePath string // empty disables persistence
	patternsPath    string
	perf            *performanceLedger
	patterns        *patternLedger
	logger          *slog.Logger
	now             func() time.Time
}

// NewDiscovery creates a discovery store over the two ledger files.
// Empty paths keep the ledgers purely in memory.
func NewDiscovery(performancePath, patternsPath string, logger *slog.Logger) *Discovery {
	d := &Discovery{
		performancePath: performancePath,
		patternsPath:    patternsPath,
		perf:            &performanceLedger{Tools: map[string]*toolStats{}},
		patterns:        &patternLedger{},
		logger:          logger,
		now:             time.Now,
	}

	for _, path := range []string{performancePath, patternsPath} {
		if path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				logger.Warn("discovery: create dir failed", "path", path, "error", err)
			}
		}
	}

	var perf performanceLedger
	if d.loadLedger(performancePath, &perf) {
		d.perf = &perf
	}
	if d.perf.Tools == nil {
		d.perf.Tools = map[string]*toolStats{}
	}
	var patterns patternLedger
	if d.loadLedger(patternsPath, &patterns) {
		d.patterns = &patterns
	}
	return d
}

// RecordExecution folds one execution outcome into the performance
// ledger and, on success only, tries to learn a new pattern. A pattern
// matching an existing (tool, intent, entity-key set) is skipped
// silently.
func (d *Discovery) RecordExecution(toolName string, tc domain.ToolContext, success bool, executionTime float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats, ok := d.perf.Tools[toolName]
	if !ok {
		stats = &toolStats{IntentPatterns: map[string]*intentStats{}}
		d.perf.Tools[toolName] = stats
	}

	stats.TotalExecutions++
	if success {
		stats.SuccessCount++
	}
	stats.AvgExecutionTime = (stats.AvgExecutionTime*float64(stats.TotalExecutions-1) + executionTime) /
		float64(stats.TotalExecutions)

	intent := intentOf(tc)
	is, ok := stats.IntentPatterns[intent]
	if !ok {
		is = &intentStats{}
		stats.IntentPatterns[intent] = is
	}
	is.Count++
	if success {
		is.SuccessCount++
	}

	d.perf.LastUpdated = d.now()
	d.saveLedger(d.performancePath, d.perf)

	if success {
		d.learnPattern(toolName, tc)
	}
}

// learnPattern appends a pattern unless an equivalent one exists.
// Caller holds the mutex.
func (d *Discovery) learnPattern(toolName string, tc domain.ToolContext) {
	intent := intentOf(tc)
	keys := tc.EntityKeys()

	for _, p := range d.patterns.Patterns {
		if p.MatchesKeySet(toolName, intent, keys) {
			return
		}
	}

	pattern := domain.ToolPattern{
		ToolName:        toolName,
		Intent:          intent,
		EntitiesPresent: keys,
		LearnedAt:       d.now(),
	}
	d.patterns.Patterns = append(d.patterns.Patterns, pattern)
	d.patterns.LastUpdated = d.now()
	d.saveLedger(d.patternsPath, d.patterns)
	d.logger.Info("learned tool pattern", "tool", toolName, "intent", intent, "entities", keys)
}

// SuggestChain returns up to three tools ranked by historical success
// rate for the intent. Ties rank alphabetically so suggestions are
// stable across runs.
func (d *Discovery) SuggestChain(intent string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	type ranked struct {
		name string
		rate float64
	}
	var relevant []ranked
	for name, stats := range d.perf.Tools {
		is, ok := stats.IntentPatterns[intent]
		if !ok || is.Count == 0 {
			continue
		}
		relevant = append(relevant, ranked{name: name, rate: float64(is.SuccessCount) / float64(is.Count)})
	}

	sort.Slice(relevant, func(i, j int) bool {
		if relevant[i].rate != relevant[j].rate {
			return relevant[i].rate > relevant[j].rate
		}
		return relevant[i].name < relevant[j].name
	})

	n := len(relevant)
	if n > 3 {
		n = 3
	}
	chain := make([]string, 0, n)
	for _, r := range relevant[:n] {
		chain = append(chain, r.name)
	}
	return chain
}

// Patterns returns a copy of the learned patterns.
func (d *Discovery) Patterns() []domain.ToolPattern {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]domain.ToolPattern, len(d.patterns.Patterns))
	copy(out, d.patterns.Patterns)
	for i := range out {
		out[i].EntitiesPresent = append([]string(nil), out[i].EntitiesPresent...)
	}
	return out
}

// Analytics summarizes the ledger per tool.
func (d *Discovery) Analytics() map[string]ToolAnalytics {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]ToolAnalytics, len(d.perf.Tools))
	for name, stats := range d.perf.Tools {
		total := stats.TotalExecutions
		if total == 0 {
			total = 1
		}
		out[name] = ToolAnalytics{
			SuccessRate:      float64(stats.SuccessCount) / float64(total),
			AvgExecutionTime: stats.AvgExecutionTime,
			TotalExecutions:  stats.TotalExecutions,
			IntentCoverage:   len(stats.IntentPatterns),
		}
	}
	return out
}

func intentOf(tc domain.ToolContext) string {
	if tc.Intent == "" {
		return "unknown"
	}
	return tc.Intent
}

// loadLedger reports whether v was fully populated from path.
func (d *Discovery) loadLedger(path string, v any) bool {
	if path == "" {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warn("discovery: ledger unreadable, starting fresh", "path", path, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		d.logger.Warn("discovery: ledger corrupt, starting fresh", "path", path, "error", err)
		return false
	}
	return true
}

func (d *Discovery) saveLedger(path string, v any) {
	if path == "" {
		return
	}
	if err := writeJSON(path, v); err != nil {
		d.logger.Error("discovery: ledger save failed", "path", path, "error", err)
	}
}
