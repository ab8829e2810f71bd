// Package semantic re-ranks keyword search results with a language
// model. It is an optional layer: without an API key callers get the
// keyword ordering back untouched.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/search"
)

// apiKeyEnv gates semantic search. The SDK reads the same variable.
const apiKeyEnv = "ANTHROPIC_API_KEY"

// defaultModel keeps re-ranking cheap; it only orders short summaries.
const defaultModel = anthropic.ModelClaude3_5HaikuLatest

// candidateMultiple controls how many keyword candidates are fetched
// per requested result before re-ranking.
const candidateMultiple = 3

// Available reports whether semantic re-ranking can run.
func Available() bool {
	return os.Getenv(apiKeyEnv) != ""
}

// Reranker orders search matches by semantic relevance.
type Reranker struct {
	client anthropic.Client
	model  anthropic.Model
}

// New returns a reranker, or an error when no API key is configured.
func New() (*Reranker, error) {
	if !Available() {
		return nil, fmt.Errorf("semantic search unavailable: %s is not set", apiKeyEnv)
	}
	return &Reranker{client: anthropic.NewClient(), model: defaultModel}, nil
}

// UseModel overrides the default re-ranking model. Empty leaves the
// default in place.
func (r *Reranker) UseModel(model string) {
	if model != "" {
		r.model = anthropic.Model(model)
	}
}

// Search runs a keyword search widened to extra candidates, asks the
// model to order them by relevance to query, and returns the top
// matches. Any model failure falls back to the keyword ordering.
func (r *Reranker) Search(ctx context.Context, s *search.Searcher, kind kb.Kind, query string, opts search.Options) ([]search.Match, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = search.DefaultTopK
	}

	wide := opts
	wide.TopK = topK * candidateMultiple
	candidates, err := s.Search(kind, query, wide)
	if err != nil {
		return nil, err
	}
	if len(candidates) <= 1 {
		return candidates, nil
	}

	ranked, err := r.Rerank(ctx, query, candidates)
	if err != nil {
		// Keyword order is still a valid answer.
		fmt.Fprintf(os.Stderr, "Warning: semantic re-rank failed, using keyword order: %v\n", err)
		ranked = candidates
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// Rerank asks the model to order matches by relevance to query.
func (r *Reranker) Rerank(ctx context.Context, query string, matches []search.Match) ([]search.Match, error) {
	prompt := buildPrompt(query, matches)

	msg, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}

	ids, err := parseRanking(reply.String())
	if err != nil {
		return nil, err
	}
	return applyRanking(matches, ids), nil
}

func buildPrompt(query string, matches []search.Match) string {
	var b strings.Builder
	b.WriteString("Rank the following records by relevance to the query.\n")
	b.WriteString("Reply with only a JSON array of record IDs, most relevant first.\n\n")
	fmt.Fprintf(&b, "Query: %s\n\nRecords:\n", query)
	for _, m := range matches {
		rec := m.Record
		fmt.Fprintf(&b, "- %s: %s", rec.RecordID(), rec.RecordTitle())
		if tags := rec.RecordTags(); len(tags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(tags, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseRanking extracts the JSON id array from the model reply,
// tolerating surrounding prose.
func parseRanking(reply string) ([]string, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no ranking array in model reply")
	}

	var ids []string
	if err := json.Unmarshal([]byte(reply[start:end+1]), &ids); err != nil {
		return nil, fmt.Errorf("failed to parse ranking: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty ranking")
	}
	return ids, nil
}

// applyRanking reorders matches by the id list. Records the model
// omitted keep their keyword order after the ranked ones; unknown ids
// are ignored.
func applyRanking(matches []search.Match, ids []string) []search.Match {
	byID := make(map[string]search.Match, len(matches))
	for _, m := range matches {
		byID[m.Record.RecordID()] = m
	}

	ranked := make([]search.Match, 0, len(matches))
	used := make(map[string]bool, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok && !used[id] {
			ranked = append(ranked, m)
			used[id] = true
		}
	}
	for _, m := range matches {
		if !used[m.Record.RecordID()] {
			ranked = append(ranked, m)
		}
	}
	return ranked
}
