package python

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackaudit/pkg/deps"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/integrations"
	"github.com/matzehuels/stackaudit/pkg/integrations/pypi"
)

const workers = 20

// PyPIBackend resolves trees natively against the PyPI JSON API.
//
// Every requirement is pinned to the highest final release satisfying its
// PEP 440 specifier. The first requirement seen for a project decides its
// version; requirements guarded by an extra marker are skipped.
type PyPIBackend struct {
	client   *pypi.Client
	maxDepth int
	maxNodes int
	refresh  bool
	logger   *log.Logger
}

// Option configures a PyPIBackend.
type Option func(*PyPIBackend)

// WithMaxDepth limits how deep the crawl follows dependencies.
func WithMaxDepth(n int) Option { return func(b *PyPIBackend) { b.maxDepth = n } }

// WithMaxNodes limits how many projects one tree may contain.
func WithMaxNodes(n int) Option { return func(b *PyPIBackend) { b.maxNodes = n } }

// WithRefresh bypasses cached registry responses.
func WithRefresh(refresh bool) Option { return func(b *PyPIBackend) { b.refresh = refresh } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *PyPIBackend) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewPyPIBackend creates a backend reading from the given PyPI client.
func NewPyPIBackend(c *pypi.Client, opts ...Option) *PyPIBackend {
	b := &PyPIBackend{client: c, logger: log.Default()}
	for _, opt := range opts {
		opt(b)
	}
	if b.maxDepth <= 0 {
		b.maxDepth = deps.DefaultMaxDepth
	}
	if b.maxNodes <= 0 {
		b.maxNodes = deps.DefaultMaxNodes
	}
	return b
}

// Name implements deps.Backend.
func (b *PyPIBackend) Name() string { return "pypi" }

// Resolve implements deps.Backend.
func (b *PyPIBackend) Resolve(ctx context.Context, spec deps.Spec) (*graph.RawNode, error) {
	c := &crawler{
		ctx:     ctx,
		b:       b,
		nodes:   make(map[string]*resolved),
		visited: make(map[string]bool),
		jobs:    make(chan job, workers*2),
		results: make(chan result, workers*2),
		done:    make(chan struct{}),
	}
	return c.run(spec)
}

// fetch pins one requirement and returns the release's dependencies.
func (b *PyPIBackend) fetch(ctx context.Context, j job) (string, []pypi.Requirement, error) {
	var rel *pypi.Release
	if j.pin != "" {
		r, err := b.client.FetchRelease(ctx, j.name, j.pin, b.refresh)
		if err != nil {
			return "", nil, err
		}
		if r.Version != j.pin {
			return "", nil, fmt.Errorf("%w: %s==%s", integrations.ErrNotFound, j.name, j.pin)
		}
		rel = r
	} else {
		p, err := b.client.FetchProject(ctx, j.name, b.refresh)
		if err != nil {
			return "", nil, err
		}
		version, err := SelectVersion(p.Versions, j.specifier)
		if err != nil {
			if j.specifier != "" || p.Latest.Version == "" {
				return "", nil, fmt.Errorf("%s: %w", j.name, err)
			}
			version = p.Latest.Version
		}
		rel = &p.Latest
		if version != p.Latest.Version {
			if rel, err = b.client.FetchRelease(ctx, j.name, version, b.refresh); err != nil {
				return "", nil, err
			}
		}
	}

	var reqs []pypi.Requirement
	for _, rd := range rel.RequiresDist {
		req, ok := pypi.ParseRequirement(rd)
		if !ok || req.Extra() {
			continue
		}
		reqs = append(reqs, req)
	}
	return rel.Version, reqs, nil
}

type crawler struct {
	ctx context.Context
	b   *PyPIBackend

	// nodes is only touched by the collecting goroutine.
	nodes map[string]*resolved

	jobs    chan job
	results chan result
	done    chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	visited   map[string]bool
	pending   int64
	nodeCount int32
}

type resolved struct {
	version string
	deps    []string
}

type job struct {
	name      string
	specifier string
	pin       string
	depth     int
}

type result struct {
	job
	version string
	reqs    []pypi.Requirement
	err     error
}

func (c *crawler) run(spec deps.Spec) (*graph.RawNode, error) {
	for range workers {
		c.wg.Add(1)
		go c.worker()
	}

	c.enqueue(job{name: spec.Name, pin: spec.Version})
	err := c.collect(spec.Name)
	close(c.done)
	c.wg.Wait()
	if err != nil {
		return nil, err
	}

	tree, _ := c.tree(spec.Name, make(map[string]int), make(map[string]graph.RawNode))
	return &tree, nil
}

func (c *crawler) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case j := <-c.jobs:
			version, reqs, err := c.b.fetch(c.ctx, j)
			select {
			case c.results <- result{job: j, version: version, reqs: reqs, err: err}:
			case <-c.done:
				return
			}
		}
	}
}

func (c *crawler) enqueue(j job) bool {
	c.mu.Lock()
	if c.visited[j.name] {
		c.mu.Unlock()
		return false
	}
	c.visited[j.name] = true
	c.mu.Unlock()

	atomic.AddInt64(&c.pending, 1)

	go func() {
		select {
		case c.jobs <- j:
		case <-c.done:
		}
	}()
	return true
}

func (c *crawler) collect(root string) error {
	for {
		select {
		case r := <-c.results:
			if err := c.handle(r, root); err != nil {
				return err
			}
			if atomic.AddInt64(&c.pending, -1) == 0 {
				return nil
			}
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

func (c *crawler) handle(r result, root string) error {
	if r.err != nil {
		if r.name == root {
			return r.err
		}
		c.b.logger.Debug("dependency fetch failed", "package", r.name, "specifier", r.specifier, "error", r.err)
		return nil
	}

	n := &resolved{version: r.version}
	seen := make(map[string]bool, len(r.reqs))
	for _, req := range r.reqs {
		if req.Name == r.name || seen[req.Name] {
			continue
		}
		seen[req.Name] = true
		n.deps = append(n.deps, req.Name)
	}
	c.nodes[r.name] = n
	count := atomic.AddInt32(&c.nodeCount, 1)

	c.enqueueDeps(r, int(count))
	return nil
}

func (c *crawler) enqueueDeps(r result, count int) {
	if r.depth >= c.b.maxDepth || len(r.reqs) == 0 {
		return
	}
	next := r.depth + 1
	for _, req := range r.reqs {
		if count >= c.b.maxNodes {
			c.b.logger.Debug("node limit reached", "limit", c.b.maxNodes, "package", r.name)
			return
		}
		c.enqueue(job{name: req.Name, specifier: req.Specifier, depth: next})
	}
}

// tree assembles the nested tree from the crawl. A dependency already on
// the current path becomes a leaf, so the back-edge survives into the
// graph. low is the shallowest path depth such a leaf points to; subtrees
// that point above themselves depend on the path and are not memoized.
func (c *crawler) tree(name string, path map[string]int, memo map[string]graph.RawNode) (graph.RawNode, int) {
	if t, ok := memo[name]; ok {
		return t, math.MaxInt
	}
	n := c.nodes[name]
	out := graph.RawNode{Name: name, Version: n.version}
	depth := len(path)
	low := math.MaxInt

	path[name] = depth
	for _, dep := range n.deps {
		d, ok := c.nodes[dep]
		if !ok {
			continue
		}
		if at, onPath := path[dep]; onPath {
			out.Dependencies = append(out.Dependencies, graph.RawNode{Name: dep, Version: d.version})
			low = min(low, at)
			continue
		}
		child, childLow := c.tree(dep, path, memo)
		out.Dependencies = append(out.Dependencies, child)
		low = min(low, childLow)
	}
	delete(path, name)

	if low >= depth {
		memo[name] = out
	}
	return out, low
}
