package integrations

import (
	"net/http"
	"time"

	"github.com/matzehuels/stackaudit/pkg/observability"
)

// Transport reports every round trip to the registered HTTP hooks.
// SDK clients (GitHub, GitLab) use it so their traffic shows up in the
// same metrics as requests made through [Client].
type Transport struct {
	Base http.RoundTripper
}

// NewTransport wraps base; nil uses [http.DefaultTransport].
func NewTransport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path

	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		return nil, err
	}
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))
	return resp, nil
}
