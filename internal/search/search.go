// Package search ranks knowledge base records against free-text
// queries using token overlap with frequency weighting, plus tag
// lookups backed by the bug index.
package search

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/lockfile"
)

// DefaultTopK is the result cap when the caller does not set one.
const DefaultTopK = 3

// Match pairs a record with its similarity score.
type Match struct {
	Record kb.Record
	Score  float64
}

// Searcher queries one knowledge base.
type Searcher struct {
	kb *kb.KB
}

// New returns a searcher over k.
func New(k *kb.KB) *Searcher {
	return &Searcher{kb: k}
}

// Options tunes one search.
type Options struct {
	// TopK caps the result count. Zero means DefaultTopK.
	TopK int
	// Since drops records recorded before the given time when non-zero.
	Since time.Time
}

func (o Options) topK() int {
	if o.TopK <= 0 {
		return DefaultTopK
	}
	return o.TopK
}

// Search scores every record of the given kind against query and
// returns the best matches, highest score first. Records with no token
// overlap are excluded.
func (s *Searcher) Search(kind kb.Kind, query string, opts Options) ([]Match, error) {
	records, err := s.kb.ReadRecords(kind)
	if err != nil {
		return nil, err
	}
	return rank(records, query, opts), nil
}

// SearchAll scores records of every kind.
func (s *Searcher) SearchAll(query string, opts Options) ([]Match, error) {
	records, err := s.kb.ReadAllRecords()
	if err != nil {
		return nil, err
	}
	return rank(records, query, opts), nil
}

func rank(records []kb.Record, query string, opts Options) []Match {
	var matches []Match
	for _, rec := range records {
		if !opts.Since.IsZero() && rec.RecordedTime().Before(opts.Since) {
			continue
		}
		score := Similarity(query, rec)
		if score > 0 {
			matches = append(matches, Match{Record: rec, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > opts.topK() {
		matches = matches[:opts.topK()]
	}
	return matches
}

// SearchByTags returns records carrying any of the given tags. Bug
// lookups go through the tag index when it is present and fall back to
// a full scan otherwise.
func (s *Searcher) SearchByTags(kind kb.Kind, tags []string) ([]kb.Record, error) {
	if kind == kb.KindBug {
		if results, ok := s.searchBugIndex(tags); ok {
			return results, nil
		}
	}

	records, err := s.kb.ReadRecords(kind)
	if err != nil {
		return nil, err
	}
	var results []kb.Record
	for _, rec := range records {
		if anyTagMatch(rec.RecordTags(), tags) {
			results = append(results, rec)
		}
	}
	return results, nil
}

// searchBugIndex resolves tags via the bug index. ok is false when the
// index is missing or unusable, signalling the caller to scan instead.
func (s *Searcher) searchBugIndex(tags []string) ([]kb.Record, bool) {
	idx, err := s.kb.ReadBugIndex(lockfile.Options{})
	if err != nil || len(idx.Tags) == 0 {
		return nil, false
	}

	seen := make(map[string]bool)
	var ids []string
	for _, tag := range tags {
		for _, id := range idx.Tags[tag] {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)

	var results []kb.Record
	for _, id := range ids {
		bug, err := s.kb.ReadBug(id)
		if err != nil {
			// Stale index entry; the record is gone.
			continue
		}
		results = append(results, bug)
	}
	return results, true
}

func anyTagMatch(recordTags, queryTags []string) bool {
	for _, rt := range recordTags {
		for _, qt := range queryTags {
			if rt == qt {
				return true
			}
		}
	}
	return false
}

// Similarity scores query against one record. The score sums, over
// tokens common to query and record, the token's query frequency
// divided by an inverse record-frequency term. Whole-phrase hits in the
// record text double the score; phrase hits in the title multiply it
// by 1.5 on top.
func Similarity(query string, rec kb.Record) float64 {
	recordText := strings.ToLower(rec.SearchText())
	queryLower := strings.ToLower(query)

	queryTokens := Tokenize(queryLower)
	recordTokens := Tokenize(recordText)
	if len(queryTokens) == 0 || len(recordTokens) == 0 {
		return 0
	}

	queryFreq := countTokens(queryTokens)
	recordFreq := countTokens(recordTokens)

	score := 0.0
	for token, qn := range queryFreq {
		rn, ok := recordFreq[token]
		if !ok {
			continue
		}
		weight := float64(qn) / float64(len(queryTokens))
		idf := 1.0 / (1.0 + float64(rn))
		score += weight * idf
	}
	if score == 0 {
		return 0
	}

	if strings.Contains(recordText, queryLower) {
		score *= 2.0
	}
	if strings.Contains(strings.ToLower(rec.RecordTitle()), queryLower) {
		score *= 1.5
	}
	return score
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"as": true, "is": true, "was": true, "are": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "should": true, "could": true, "may": true,
	"might": true, "must": true, "can": true,
}

// Tokenize lowers text, strips punctuation, and drops stop words and
// tokens shorter than three characters.
func Tokenize(text string) []string {
	text = nonWord.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(text)

	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if stopWords[tok] || len(tok) <= 2 {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func countTokens(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	return counts
}
