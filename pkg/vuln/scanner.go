package vuln

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/osv-scanner/pkg/models"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/integrations/osv"
)

// DefaultConcurrency bounds parallel fallback queries and detail fetches.
const DefaultConcurrency = 10

// ErrScanFailed is returned when no requirement could be looked up.
var ErrScanFailed = errors.New("vulnerability scan failed")

// Scanner looks up vulnerabilities for pinned requirements.
type Scanner interface {
	// Scan returns records keyed by "name@version". Packages without
	// vulnerabilities are absent from the map.
	Scan(ctx context.Context, requirements string) (map[string][]Record, error)
}

// OSVScanner implements [Scanner] on top of the OSV.dev API.
type OSVScanner struct {
	client      *osv.Client
	logger      *log.Logger
	concurrency int
}

// Option configures an OSVScanner.
type Option func(*OSVScanner)

// WithLogger sets the scanner's logger.
func WithLogger(l *log.Logger) Option {
	return func(s *OSVScanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConcurrency bounds parallel requests. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(s *OSVScanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewOSVScanner creates a scanner using client.
func NewOSVScanner(client *osv.Client, opts ...Option) *OSVScanner {
	s := &OSVScanner{client: client, logger: log.Default(), concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scan holds the state of one Scan call.
type scan struct {
	reqs []Requirement
	ids  [][]string
	ok   []bool

	mu      sync.Mutex
	details map[string]*models.Vulnerability
}

func (st *scan) remember(id string, v models.Vulnerability) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.details[id]; !ok {
		st.details[id] = &v
	}
}

// Scan parses requirements, queries OSV in batches and hydrates results.
// Failed lookups are logged and skipped; an error is returned only when the
// context ends or every lookup failed.
func (s *OSVScanner) Scan(ctx context.Context, requirements string) (map[string][]Record, error) {
	reqs, malformed := ParseRequirements(requirements)
	for _, line := range malformed {
		s.logger.Warn("skipping malformed requirement", "line", line)
	}
	results := make(map[string][]Record)
	if len(reqs) == 0 {
		return results, nil
	}

	st := &scan{
		reqs:    reqs,
		ids:     make([][]string, len(reqs)),
		ok:      make([]bool, len(reqs)),
		details: make(map[string]*models.Vulnerability),
	}

	misses := s.fromCache(ctx, st)
	for start := 0; start < len(misses); start += osv.MaxBatchSize {
		batch := misses[start:min(start+osv.MaxBatchSize, len(misses))]
		if err := s.queryBatch(ctx, st, batch); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("osv batch failed, querying individually", "size", len(batch), "error", err)
			if err := s.queryEach(ctx, st, batch); err != nil {
				return nil, err
			}
		}
	}

	looked := 0
	for _, ok := range st.ok {
		if ok {
			looked++
		}
	}
	if looked == 0 {
		return nil, fmt.Errorf("%w: no package could be queried", ErrScanFailed)
	}

	if err := s.hydrate(ctx, st); err != nil {
		return nil, err
	}

	for i, r := range reqs {
		for _, id := range st.ids[i] {
			v, ok := st.details[id]
			if !ok || !v.Withdrawn.IsZero() {
				continue
			}
			results[r.Key()] = append(results[r.Key()], FromOSV(v, r.Name, r.Version))
		}
		if rs := results[r.Key()]; len(rs) > 1 {
			slices.SortFunc(rs, func(a, b Record) int { return strings.Compare(a.ID, b.ID) })
		}
	}
	s.logger.Info("vulnerability scan complete",
		"packages", len(reqs), "affected", len(results), "vulnerabilities", Count(results))
	return results, nil
}

// fromCache loads cached ID lists and returns the indices still to query.
func (s *OSVScanner) fromCache(ctx context.Context, st *scan) []int {
	var misses []int
	for i, r := range st.reqs {
		ok, err := cache.GetJSON(ctx, s.client.Cache(), s.client.Keyer().VulnKey(r.Name, r.Version), &st.ids[i])
		if err != nil {
			s.logger.Debug("vulnerability cache read failed", "package", r.Key(), "error", err)
		}
		if ok {
			st.ok[i] = true
			continue
		}
		misses = append(misses, i)
	}
	return misses
}

func (s *OSVScanner) store(ctx context.Context, st *scan, i int, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	st.ids[i], st.ok[i] = ids, true
	r := st.reqs[i]
	if err := cache.SetJSON(ctx, s.client.Cache(), s.client.Keyer().VulnKey(r.Name, r.Version), ids, cache.TTLVuln); err != nil {
		s.logger.Debug("vulnerability cache write failed", "package", r.Key(), "error", err)
	}
}

func (s *OSVScanner) queryBatch(ctx context.Context, st *scan, batch []int) error {
	queries := make([]osv.Query, len(batch))
	for j, i := range batch {
		queries[j] = osv.Query{Name: st.reqs[i].Name, Version: st.reqs[i].Version}
	}
	ids, err := s.client.QueryBatch(ctx, queries)
	if err != nil {
		return err
	}
	for j, i := range batch {
		s.store(ctx, st, i, ids[j])
	}
	return nil
}

// queryEach is the per-package fallback for a failed batch. Only context
// cancellation is returned; other failures leave the package unscanned.
// Each goroutine writes only its own index of st.ids and st.ok.
func (s *OSVScanner) queryEach(ctx context.Context, st *scan, batch []int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, i := range batch {
		g.Go(func() error {
			r := st.reqs[i]
			vulns, err := s.client.Query(gctx, osv.Query{Name: r.Name, Version: r.Version})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("osv query failed", "package", r.Key(), "error", err)
				return nil
			}
			ids := make([]string, 0, len(vulns))
			for _, v := range vulns {
				if v.ID == "" {
					continue
				}
				ids = append(ids, v.ID)
				st.remember(v.ID, v)
			}
			s.store(gctx, st, i, ids)
			return nil
		})
	}
	return g.Wait()
}

// hydrate fetches full records for every ID not already known.
func (s *OSVScanner) hydrate(ctx context.Context, st *scan) error {
	seen := make(map[string]bool)
	var missing []string
	for _, ids := range st.ids {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if _, ok := st.details[id]; !ok {
				missing = append(missing, id)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range missing {
		g.Go(func() error {
			v, err := s.client.Vuln(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("skipping vulnerability without details", "id", id, "error", err)
				return nil
			}
			if v.ID == "" {
				s.logger.Warn("skipping malformed vulnerability", "id", id)
				return nil
			}
			st.remember(id, *v)
			return nil
		})
	}
	return g.Wait()
}
