package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"switchboard/internal/domain"
)

// searchStopWords are filler terms stripped from queries before they become
// search terms.
var searchStopWords = map[string]bool{
	"find": true, "me": true, "about": true,
	"information": true, "search": true, "for": true,
}

// SearchTool handles search and information-lookup intents. It scores its
// confidence from the intent label, information-seeking phrasing in the
// query, and any search results carried forward on a chain.
type SearchTool struct {
	logger *slog.Logger
}

// NewSearchTool creates the search tool.
func NewSearchTool(logger *slog.Logger) *SearchTool {
	return &SearchTool{logger: logger}
}

func (t *SearchTool) Info() domain.ToolInfo {
	return domain.ToolInfo{
		Name:           "search",
		Version:        "1.0.0",
		Description:    "Handles search and information-related queries",
		RequiredParams: []string{"entities"},
	}
}

// CanHandle grades the context in tiers: an exact search intent scores
// highest, information-adjacent wording lower, and a browsing-flavored
// intent lower still. Prior search results in the chain context nudge the
// score up.
func (t *SearchTool) CanHandle(_ context.Context, tc domain.ToolContext) (float64, error) {
	intent := strings.ToLower(tc.Intent)

	confidence := 0.0
	switch {
	case intent == "search":
		confidence = 1.0
	case containsAny(intent, "find", "information"):
		confidence = 0.95
	case containsAny(intent, "look", "query", "about", "learn", "tell me"):
		confidence = 0.8
	}

	if query := metadataQuery(tc); query != "" {
		if containsAny(query, "what is", "how to", "tell me about", "information about") {
			if confidence < 0.9 {
				confidence = 0.9
			}
		}
	}

	if tc.ChainContext != nil {
		if _, ok := tc.ChainContext["search_results"]; ok {
			confidence *= 1.1
		}
	}

	return clamp01(confidence), nil
}

// Run extracts search terms from the query, strips stop words, folds in any
// terms a previous chain step produced, and returns a simulated result set.
// When the terms look like a reservation request it suggests the booking
// tool as a follow-up.
func (t *SearchTool) Run(_ context.Context, params map[string]any, tc domain.ToolContext) (map[string]any, error) {
	query := metadataQuery(tc)
	terms := make([]string, 0, 8)
	for _, term := range strings.Fields(query) {
		if !searchStopWords[strings.ToLower(term)] {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("no search terms available")
	}

	if tc.ChainContext != nil {
		if prev, ok := tc.ChainContext["search_results"].([]any); ok {
			for _, p := range prev {
				if s, ok := p.(string); ok && !contains(terms, s) {
					terms = append(terms, s)
				}
			}
		}
	}

	t.logger.Debug("search executed", "intent", tc.Intent, "terms", terms, "entities", params["entities"])

	asAny := make([]any, len(terms))
	for i, term := range terms {
		asAny[i] = term
	}
	result := map[string]any{
		"action": "search",
		"parameters": map[string]any{
			"terms": asAny,
			"query": query,
		},
		"status":         "completed",
		"search_results": asAny,
	}

	for _, term := range terms {
		if lt := strings.ToLower(term); lt == "book" || lt == "reserve" || lt == "schedule" {
			result["next_tools"] = []string{"booking"}
			break
		}
	}
	return result, nil
}

// metadataQuery pulls the free-text query out of the context metadata.
func metadataQuery(tc domain.ToolContext) string {
	if tc.Metadata == nil {
		return ""
	}
	q, _ := tc.Metadata["query"].(string)
	return strings.ToLower(q)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
