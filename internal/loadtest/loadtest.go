// Package loadtest exercises the knowledge base under concurrent
// access: many readers hammering the query cache while writers append
// records through the file lock. It backs the 'pg loadtest' command and
// exists to validate that flock serialization holds up and that cache
// queries stay fast as the record count grows.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/lockfile"
	"github.com/project-guardian/guardian/internal/querycache"
)

// Fixture is a knowledge base populated with generated records and a
// synced query cache.
type Fixture struct {
	KB      *kb.KB
	DB      *querycache.DB
	BugIDs  []string
	Records int
}

// LatencyStats aggregates query latencies from one run.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
}

var seedTags = []string{"auth", "search", "cache", "config", "watcher"}

// Seed populates k with numRecords generated bugs and brings the query
// cache in line with them. Tags cycle through a fixed set so tag
// queries always have work to do.
func Seed(k *kb.KB, numRecords int) (*Fixture, error) {
	base := time.Now().Add(-30 * 24 * time.Hour)

	f := &Fixture{KB: k, Records: numRecords}
	for i := 0; i < numRecords; i++ {
		bug := &kb.Bug{
			ID:          kb.NewIDAt(kb.KindBug, base.Add(time.Duration(i)*time.Minute)),
			Title:       fmt.Sprintf("Generated bug %d", i),
			Description: fmt.Sprintf("Synthetic record %d for concurrency testing", i),
			Tags:        []string{seedTags[i%len(seedTags)]},
			RecordedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		bug.SetDefaults()
		if err := k.WriteRecord(bug); err != nil {
			return nil, fmt.Errorf("seeding record %d: %w", i, err)
		}
		f.BugIDs = append(f.BugIDs, bug.ID)
	}

	db, err := querycache.Open(k.CachePath())
	if err != nil {
		return nil, err
	}
	if _, err := db.Sync(context.Background(), k); err != nil {
		_ = db.Close()
		return nil, err
	}
	f.DB = db
	return f, nil
}

// Close releases the fixture's cache handle.
func (f *Fixture) Close() error {
	if f.DB != nil {
		return f.DB.Close()
	}
	return nil
}

// RunConcurrentQueries simulates numClients clients each issuing
// queriesPerClient tag lookups against the cache, and reports latency
// percentiles across all of them.
func (f *Fixture) RunConcurrentQueries(ctx context.Context, numClients, queriesPerClient int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	results := make(chan []time.Duration, numClients)
	errs := make(chan error, numClients)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()
			durations := make([]time.Duration, 0, queriesPerClient)
			for j := 0; j < queriesPerClient; j++ {
				tag := seedTags[(client+j)%len(seedTags)]
				start := time.Now()
				_, err := f.DB.ByTag(ctx, tag)
				durations = append(durations, time.Since(start))
				if err != nil {
					errs <- fmt.Errorf("client %d query %d: %w", client, j, err)
					return
				}
			}
			results <- durations
		}(i)
	}

	wg.Wait()
	close(results)
	close(errs)

	errorCount := 0
	for range errs {
		errorCount++
	}

	var all []time.Duration
	for durations := range results {
		all = append(all, durations...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no queries completed")
	}

	stats := computeLatencyStats(all)
	stats.Errors = errorCount
	return stats, nil
}

// VerifyLockSerialization runs numWriters goroutines that each apply
// updatesPerWriter increments to a shared counter file through the file
// lock. Every update must land: a final count short of
// numWriters*updatesPerWriter means lost writes.
func (f *Fixture) VerifyLockSerialization(numWriters, updatesPerWriter int, opts lockfile.Options) error {
	type counter struct {
		Count int `json:"count"`
	}
	path := f.KB.CoreFile("loadtest-counter.json")

	var wg sync.WaitGroup
	errs := make(chan error, numWriters)
	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for j := 0; j < updatesPerWriter; j++ {
				err := lockfile.Update(path, counter{}, func(c counter) (counter, error) {
					c.Count++
					return c, nil
				}, opts)
				if err != nil {
					errs <- fmt.Errorf("writer %d update %d: %w", writer, j, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		return err
	}

	var final counter
	if err := lockfile.Read(path, &final, opts); err != nil {
		return fmt.Errorf("reading final counter: %w", err)
	}
	want := numWriters * updatesPerWriter
	if final.Count != want {
		return fmt.Errorf("lost writes: counter is %d, want %d", final.Count, want)
	}
	return nil
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(sorted)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(sorted),
	}
}

// Print writes the stats in a fixed-width report.
func (s *LatencyStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Query latency over %d queries (%d errors):\n", s.TotalQueries, s.Errors)
	fmt.Fprintf(w, "  min   %v\n", s.Min)
	fmt.Fprintf(w, "  p50   %v\n", s.P50)
	fmt.Fprintf(w, "  mean  %v\n", s.Mean)
	fmt.Fprintf(w, "  p95   %v\n", s.P95)
	fmt.Fprintf(w, "  p99   %v\n", s.P99)
	fmt.Fprintf(w, "  max   %v\n", s.Max)
}
