package retrieval

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/replydesk/internal/knowledge"
)

// Source labels where a snippet came from.
type Source string

const (
	SourceExpertQA Source = "Expert Q&A"
	SourceManual   Source = "Manual"
	SourceListing  Source = "Listing"
	SourcePolicy   Source = "Policy"
	SourceHistory  Source = "History"
)

// Fixed relevance per source. Expert answers outrank everything else.
const (
	ScoreExpertQA = 0.99
	ScoreManual   = 0.95
	ScoreListing  = 0.88
	ScorePolicy   = 0.5
)

const (
	minTokenRunes = 4
	manualPreview = 300
	previewSuffix = "..."
)

// Result is one ranked knowledge snippet. Results are never persisted.
type Result struct {
	Source         Source  `json:"source"`
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Retrieve scans the product's expert Q&A, manual, troubleshooting notes and
// policy for snippets relevant to query, ordered by descending relevance.
// The policy is always present, so the result is never empty.
func Retrieve(query string, product knowledge.Product) []Result {
	q := strings.ToLower(query)
	var results []Result

	for _, qa := range product.ExpertKnowledge {
		if anyTokenIn(strings.ToLower(qa.Question), q) || anyKeywordIn(qa.Keywords, q) {
			results = append(results, Result{
				Source:         SourceExpertQA,
				Content:        fmt.Sprintf("[Expert Answer by %s]: %s", qa.Author, qa.Answer),
				RelevanceScore: ScoreExpertQA,
			})
		}
	}

	if anyTokenIn(strings.ToLower(product.ManualContent), q) {
		results = append(results, Result{
			Source:         SourceManual,
			Content:        truncate(product.ManualContent, manualPreview) + previewSuffix,
			RelevanceScore: ScoreManual,
		})
	}

	if anyTokenIn(strings.ToLower(product.Troubleshooting), q) {
		results = append(results, Result{
			Source:         SourceListing,
			Content:        product.Troubleshooting,
			RelevanceScore: ScoreListing,
		})
	}

	results = append(results, Result{
		Source:         SourcePolicy,
		Content:        product.Policy,
		RelevanceScore: ScorePolicy,
	})

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	return results
}

// anyTokenIn reports whether a whitespace token of text longer than three
// runes occurs inside query. Both arguments must already be lower-cased.
func anyTokenIn(text, query string) bool {
	if query == "" {
		return false
	}
	for _, tok := range strings.Fields(text) {
		if utf8.RuneCountInString(tok) >= minTokenRunes && strings.Contains(query, tok) {
			return true
		}
	}
	return false
}

func anyKeywordIn(keywords []string, query string) bool {
	for _, k := range keywords {
		k = strings.ToLower(k)
		if k != "" && strings.Contains(query, k) {
			return true
		}
	}
	return false
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Count tallies results per source.
func Count(results []Result) map[Source]int {
	out := make(map[Source]int, len(results))
	for _, r := range results {
		out[r.Source]++
	}
	return out
}
