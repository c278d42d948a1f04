package osv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/osv-scanner/pkg/models"

	"github.com/matzehuels/stackaudit/pkg/cache"
	apperrors "github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/integrations"
)

const (
	// DefaultBaseURL is the public OSV.dev API root.
	DefaultBaseURL = "https://api.osv.dev"

	// MaxBatchSize is the largest number of queries OSV accepts per
	// querybatch call.
	MaxBatchSize = 100

	// maxPages bounds pagination so a misbehaving server cannot loop us.
	maxPages = 100
)

// Query identifies one PyPI package version to look up.
type Query struct {
	Name    string
	Version string
}

func (q Query) String() string { return q.Name + "==" + q.Version }

// Client talks to the OSV.dev v1 API.
//
// Batch and single queries are retried but not cached (the scanner caches
// per-package results). Vulnerability details are cached under
// [cache.Keyer.VulnDetailKey].
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates an OSV client. An empty baseURL uses [DefaultBaseURL].
func NewClient(c cache.Cache, cacheTTL time.Duration, baseURL string, opts ...integrations.Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Client:  integrations.NewClient(c, "osv", cacheTTL, nil, opts...),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// QueryBatch returns the vulnerability IDs affecting each query, indexed
// like queries. Pages are followed per query until OSV stops returning a
// next_page_token.
func (c *Client) QueryBatch(ctx context.Context, queries []Query) ([][]string, error) {
	if len(queries) > MaxBatchSize {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "osv batch of %d exceeds %d queries", len(queries), MaxBatchSize)
	}
	ids := make([][]string, len(queries))
	if len(queries) == 0 {
		return ids, nil
	}

	// pending maps position in the outgoing batch to the query index.
	pending := make([]int, len(queries))
	tokens := make([]string, len(queries))
	for i := range queries {
		pending[i] = i
	}

	for page := 0; len(pending) > 0; page++ {
		if page == maxPages {
			return nil, fmt.Errorf("%w: osv pagination did not terminate", integrations.ErrNetwork)
		}
		req := batchRequest{Queries: make([]wireQuery, len(pending))}
		for j, idx := range pending {
			req.Queries[j] = newWireQuery(queries[idx], tokens[idx])
		}

		var resp batchResponse
		err := c.Retry(ctx, "osv querybatch", func(ctx context.Context) error {
			resp = batchResponse{}
			return c.PostJSON(ctx, c.baseURL+"/v1/querybatch", req, &resp)
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Results) != len(pending) {
			return nil, fmt.Errorf("%w: osv returned %d results for %d queries", integrations.ErrNetwork, len(resp.Results), len(pending))
		}

		var next []int
		for j, res := range resp.Results {
			idx := pending[j]
			for _, v := range res.Vulns {
				ids[idx] = append(ids[idx], v.ID)
			}
			if res.NextPageToken != "" {
				tokens[idx] = res.NextPageToken
				next = append(next, idx)
			}
		}
		pending = next
	}
	return ids, nil
}

// Query runs a single /v1/query lookup, following pagination, and returns
// the full vulnerability entries.
func (c *Client) Query(ctx context.Context, q Query) ([]models.Vulnerability, error) {
	var (
		out   []models.Vulnerability
		token string
	)
	for page := 0; ; page++ {
		if page == maxPages {
			return nil, fmt.Errorf("%w: osv pagination did not terminate", integrations.ErrNetwork)
		}
		var resp queryResponse
		err := c.Retry(ctx, "osv query "+q.String(), func(ctx context.Context) error {
			resp = queryResponse{}
			return c.PostJSON(ctx, c.baseURL+"/v1/query", newWireQuery(q, token), &resp)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Vulns...)
		if resp.NextPageToken == "" {
			return out, nil
		}
		token = resp.NextPageToken
	}
}

// Vuln fetches the full record for one vulnerability ID.
func (c *Client) Vuln(ctx context.Context, id string) (*models.Vulnerability, error) {
	if id == "" || strings.ContainsAny(id, "/?#") {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid vulnerability id %q", id)
	}
	var v models.Vulnerability
	err := c.CachedAt(ctx, c.Keyer().VulnDetailKey(id), cache.TTLVuln, false, &v, func(ctx context.Context) error {
		return c.Get(ctx, c.baseURL+"/v1/vulns/"+integrations.PathEscape(id), &v)
	})
	if err != nil {
		return nil, fmt.Errorf("osv vuln %s: %w", id, err)
	}
	return &v, nil
}

type wirePackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type wireQuery struct {
	Package   wirePackage `json:"package"`
	Version   string      `json:"version"`
	PageToken string      `json:"page_token,omitempty"`
}

func newWireQuery(q Query, token string) wireQuery {
	return wireQuery{
		Package:   wirePackage{Name: q.Name, Ecosystem: string(models.EcosystemPyPI)},
		Version:   q.Version,
		PageToken: token,
	}
}

type batchRequest struct {
	Queries []wireQuery `json:"queries"`
}

type batchResponse struct {
	Results []batchResult `json:"results"`
}

type batchResult struct {
	Vulns         []minimalVuln `json:"vulns"`
	NextPageToken string        `json:"next_page_token"`
}

type minimalVuln struct {
	ID string `json:"id"`
}

type queryResponse struct {
	Vulns         []models.Vulnerability `json:"vulns"`
	NextPageToken string                 `json:"next_page_token"`
}
