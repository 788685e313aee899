// Package dremio is a minimal HTTP client for the Dremio REST endpoints this
// provisioner uses: first-user bootstrap, login, catalog writes, and SQL job
// submission/polling.
package dremio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Authorization values follow Dremio's own scheme tag: the token is glued to
// the "_dremio" prefix. Before login the fixed "null" token is sent.
const (
	authScheme      = "_dremio"
	unauthenticated = authScheme + "null"
)

// Client issues requests against a Dremio coordinator.
//
// Note: This is intentionally minimal to support the provisioning sequence +
// mock-server tests. No TLS toggles, no token renewal.
type Client struct {
	baseURL *url.URL
	auth    string
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Logger

	jobPollInterval time.Duration
	jobPollAttempts int
}

// Options tunes the client. Zero values get sensible defaults.
type Options struct {
	Timeout time.Duration
	// RateLimitRPS is a global request rate limit. Set to <=0 to disable.
	RateLimitRPS float64
	// JobPollInterval is the sleep between job-state polls. Defaults to 10s.
	JobPollInterval time.Duration
	// JobPollAttempts bounds job-state polling. Defaults to 30.
	JobPollAttempts int
	Logger          *log.Logger
}

// NewClient constructs a client for the Dremio base URL (for example,
// "http://dremio-client.fybrik-blueprints.svc.cluster.local:9047").
// Accepts either a full URL or a hostname and defaults to https.
func NewClient(server string, opts Options) (*Client, error) {
	raw := strings.TrimSpace(server)
	if raw == "" {
		return nil, fmt.Errorf("dremio server URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse dremio server URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("dremio server URL must include a host (got %q)", server)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.JobPollInterval <= 0 {
		opts.JobPollInterval = 10 * time.Second
	}
	if opts.JobPollAttempts <= 0 {
		opts.JobPollAttempts = 30
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "", log.LstdFlags)
	}

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	return &Client{
		baseURL:         u,
		auth:            unauthenticated,
		http:            &http.Client{Timeout: opts.Timeout},
		limiter:         limiter,
		logger:          opts.Logger,
		jobPollInterval: opts.JobPollInterval,
		jobPollAttempts: opts.JobPollAttempts,
	}, nil
}

// do issues one JSON request. out may be nil; an empty response body leaves
// out untouched (a POST may be a no-op acknowledgement).
func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	u, err := c.resolve(endpoint)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return newHTTPError(op, resp, b)
	}
	if out != nil && len(b) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("%s: parse response: %w", op, err)
		}
	}
	return nil
}

// resolve builds the request URL. The endpoint may carry pre-escaped
// segments (the promote-folder catalog id encodes "/" as %2F), so it is
// parsed as a URL reference rather than treated as a raw path.
func (c *Client) resolve(endpoint string) (*url.URL, error) {
	rel, err := url.Parse(strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("resolve endpoint %q: %w", endpoint, err)
	}
	base := *c.baseURL
	base.Path = base.Path + "/"
	return base.ResolveReference(rel), nil
}
