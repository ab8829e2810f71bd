// Package health scores knowledge base freshness, completeness,
// record quality, size, and recent activity, and turns the findings
// into maintenance recommendations.
package health

import (
	"fmt"
	"strings"
	"time"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/memcache"
)

// Report is the outcome of one full health check.
type Report struct {
	OverallScore    int            `json:"overall_score"`
	Status          string         `json:"status"`
	Scores          map[string]int `json:"scores"`
	Issues          []string       `json:"issues"`
	Recommendations []string       `json:"recommendations"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Checker runs health checks over one knowledge base.
type Checker struct {
	kb    *kb.KB
	cache *memcache.Cache
	now   func() time.Time
}

// New returns a checker for k.
func New(k *kb.KB) *Checker {
	return &Checker{kb: k, cache: memcache.NewCache(10), now: time.Now}
}

type checkFunc func() (int, []string)

// Run executes every check and aggregates the scores.
func (c *Checker) Run() *Report {
	checks := []struct {
		name string
		fn   checkFunc
	}{
		{"freshness", c.checkFreshness},
		{"completeness", c.checkCompleteness},
		{"bug_quality", c.checkBugQuality},
		{"size", c.checkSize},
		{"usage", c.checkUsage},
	}

	report := &Report{
		Scores:    make(map[string]int, len(checks)),
		Timestamp: c.now(),
	}

	total := 0
	for _, check := range checks {
		score, issues := check.fn()
		report.Scores[check.name] = score
		report.Issues = append(report.Issues, issues...)
		total += score
	}
	report.OverallScore = total / len(checks)
	report.Status = statusFor(report.OverallScore)
	report.Recommendations = recommend(report.Issues)
	return report
}

func statusFor(score int) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 75:
		return "good"
	case score >= 60:
		return "fair"
	default:
		return "needs attention"
	}
}

// checkFreshness penalizes stale profile timestamps: beyond 7, 30, and
// 90 days the score drops by 5, 20, and 40 points.
func (c *Checker) checkFreshness() (int, []string) {
	score := 100
	var issues []string

	var profile struct {
		LastUpdated string `json:"last_updated"`
	}
	if err := c.cache.Load(c.kb.CoreFile("profile.json"), memcache.CategoryCore, &profile); err != nil || profile.LastUpdated == "" {
		return score - 30, []string{"no last_updated timestamp found"}
	}

	updated, err := parseTimestamp(profile.LastUpdated)
	if err != nil {
		return score - 20, []string{"invalid last_updated timestamp format"}
	}

	days := int(c.now().Sub(updated).Hours() / 24)
	switch {
	case days > 90:
		score -= 40
		issues = append(issues, fmt.Sprintf("knowledge base is %d days old (very stale)", days))
	case days > 30:
		score -= 20
		issues = append(issues, fmt.Sprintf("knowledge base is %d days old (stale)", days))
	case days > 7:
		score -= 5
		issues = append(issues, fmt.Sprintf("knowledge base is %d days old (slightly stale)", days))
	default:
		issues = append(issues, fmt.Sprintf("knowledge base is %d days old (fresh)", days))
	}
	return score, issues
}

func (c *Checker) checkCompleteness() (int, []string) {
	score := 100
	var issues []string
	st := c.kb.CheckStatus()

	var missingCore []string
	for _, name := range []string{"profile.json", "tech-stack.json", "conventions.json"} {
		if !st.CoreFiles[name] {
			missingCore = append(missingCore, name)
		}
	}
	if len(missingCore) > 0 {
		score -= 30
		issues = append(issues, "missing core files: "+strings.Join(missingCore, ", "))
	}

	var missingIndexed []string
	for _, name := range []string{"architecture.json", "modules.json", "tools.json", "structure.json"} {
		if !st.IndexedFiles[name] {
			missingIndexed = append(missingIndexed, name)
		}
	}
	if len(missingIndexed) > 0 {
		score -= 10
		issues = append(issues, "missing indexed files: "+strings.Join(missingIndexed, ", "))
	}

	var missingHistory []string
	for _, kind := range kb.Kinds() {
		if !st.HistoryDirs[kind.DirName()] {
			missingHistory = append(missingHistory, kind.DirName())
		}
	}
	if len(missingHistory) > 0 {
		score -= 10
		issues = append(issues, "missing history directories: "+strings.Join(missingHistory, ", "))
	}

	if len(missingCore) == 0 && len(missingIndexed) == 0 && len(missingHistory) == 0 {
		issues = append(issues, "all required files and directories exist")
	}
	return score, issues
}

// checkBugQuality penalizes bugs missing solutions, root causes, and
// tags, proportionally to how many are incomplete.
func (c *Checker) checkBugQuality() (int, []string) {
	score := 100.0
	var issues []string

	bugs, err := c.kb.ReadBugs()
	if err != nil || len(bugs) == 0 {
		return int(score), []string{"no bugs recorded yet"}
	}

	total := float64(len(bugs))
	var noSolution, noRootCause, noTags int
	for _, b := range bugs {
		if b.Solution == "" {
			noSolution++
		}
		if b.RootCause == "" {
			noRootCause++
		}
		if len(b.Tags) == 0 {
			noTags++
		}
	}

	if noSolution > 0 {
		score -= min(30, float64(noSolution)/total*50)
		issues = append(issues, fmt.Sprintf("%d/%d bugs missing solution", noSolution, len(bugs)))
	}
	if noRootCause > 0 {
		score -= min(20, float64(noRootCause)/total*40)
		issues = append(issues, fmt.Sprintf("%d/%d bugs missing root cause", noRootCause, len(bugs)))
	}
	if noTags > 0 {
		score -= min(10, float64(noTags)/total*20)
		issues = append(issues, fmt.Sprintf("%d/%d bugs missing tags", noTags, len(bugs)))
	}
	if score == 100 {
		issues = append(issues, fmt.Sprintf("all %d bugs have complete information", len(bugs)))
	}
	return int(score), issues
}

func (c *Checker) checkSize() (int, []string) {
	score := 100
	var issues []string

	bugs := c.kb.CountRecords(kb.KindBug)
	reqs := c.kb.CountRecords(kb.KindRequirement)
	decs := c.kb.CountRecords(kb.KindDecision)
	total := bugs + reqs + decs

	issues = append(issues, fmt.Sprintf("total records: %d (%d bugs, %d requirements, %d decisions)", total, bugs, reqs, decs))

	switch {
	case total > 1000:
		score -= 40
		issues = append(issues, "knowledge base is very large (>1000 records), compression recommended")
	case total > 500:
		score -= 20
		issues = append(issues, "knowledge base is large (>500 records), consider compression")
	case total == 0:
		score -= 10
		issues = append(issues, "no records yet, start using the knowledge base")
	}
	return score, issues
}

// checkUsage looks at bug recording activity over the last 30 days.
func (c *Checker) checkUsage() (int, []string) {
	score := 100
	var issues []string

	bugs, err := c.kb.ReadBugs()
	if err != nil {
		return score, []string{"no usage data available"}
	}

	cutoff := c.now().AddDate(0, 0, -30)
	recent := 0
	for _, b := range bugs {
		if b.RecordedAt.After(cutoff) {
			recent++
		}
	}

	switch {
	case recent == 0:
		score -= 20
		issues = append(issues, "no bugs recorded in the last 30 days (inactive)")
	case recent < 3:
		issues = append(issues, fmt.Sprintf("%d bugs recorded in the last 30 days (low activity)", recent))
	default:
		issues = append(issues, fmt.Sprintf("%d bugs recorded in the last 30 days (active)", recent))
	}
	return score, issues
}

// recommend maps issue phrases to maintenance actions.
func recommend(issues []string) []string {
	text := strings.Join(issues, " ")
	var recs []string

	if strings.Contains(text, "stale") {
		recs = append(recs, "run 'pg scan --incremental' to refresh the knowledge base")
	}
	if strings.Contains(text, "missing core") || strings.Contains(text, "missing indexed") || strings.Contains(text, "missing history") {
		recs = append(recs, "run 'pg scan' to regenerate missing files")
	}
	if strings.Contains(text, "missing solution") {
		recs = append(recs, "review and update bug records with solutions")
	}
	if strings.Contains(text, "missing root cause") {
		recs = append(recs, "analyze bugs and document root causes")
	}
	if strings.Contains(text, "compression") {
		recs = append(recs, "consider archiving old records with 'pg export'")
	}
	if strings.Contains(text, "inactive") || strings.Contains(text, "no records yet") {
		recs = append(recs, "start recording bugs and requirements as you work")
	}
	if len(recs) == 0 {
		recs = append(recs, "knowledge base is in good health")
	}
	return recs
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
