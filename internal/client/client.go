// Package client talks to the boxboard HTTP API.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/okian/boxboard/internal/domain/freshness"
	"github.com/okian/boxboard/internal/domain/progress"
	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/pkg/logger"
)

const defaultTimeout = 30 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client wraps http.Client with the API's routes.
type Client struct {
	base        *url.URL
	client      *http.Client
	concurrency int
	logger      logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithConcurrency bounds parallel requests made by Warm.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates a client for the API served at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	c := &Client{
		base:        u,
		client:      &http.Client{Timeout: defaultTimeout},
		concurrency: 4,
		logger:      logger.Get().Named("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Document is a served snapshot with the entity tag from its ETag header.
type Document struct {
	ETag     string
	Snapshot *snapshot.Snapshot
}

// Leaderboard fetches one snapshot. When etag matches the current version the
// server answers 304 and notModified is true.
func (c *Client) Leaderboard(ctx context.Context, seasonID int, statKey, etag string) (doc Document, notModified bool, err error) {
	req, err := c.request(ctx, http.MethodGet, c.path(seasonID, statKey), nil)
	if err != nil {
		return Document{}, false, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", `"`+etag+`"`)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Document{}, false, fmt.Errorf("get leaderboard: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotModified {
		return Document{ETag: etag}, true, nil
	}
	return documentOf(resp)
}

func documentOf(resp *http.Response) (Document, bool, error) {
	doc := Document{ETag: strings.Trim(resp.Header.Get("ETag"), `"`)}
	if err := decode(resp, &doc.Snapshot); err != nil {
		return Document{}, false, err
	}
	return doc, false, nil
}

// Version summarizes one stored snapshot.
type Version struct {
	ID               string                 `json:"id"`
	ETag             string                 `json:"etag"`
	BuiltAt          time.Time              `json:"built_at"`
	SchemaVersion    int                    `json:"schema_version"`
	FormatterVersion int                    `json:"formatter_version"`
	Rows             int                    `json:"rows"`
	Manifest         snapshot.BuildManifest `json:"manifest"`
}

// History lists the stored versions of a key, newest first.
func (c *Client) History(ctx context.Context, seasonID int, statKey string) ([]Version, error) {
	var out []Version
	err := c.do(ctx, http.MethodGet, c.path(seasonID, statKey, "history"), nil, &out)
	return out, err
}

// RollbackResult reports a rollback.
type RollbackResult struct {
	Deleted  int     `json:"deleted"`
	Restored Version `json:"restored"`
}

// Rollback restores the version with etag as the latest.
func (c *Client) Rollback(ctx context.Context, seasonID int, statKey, etag string) (RollbackResult, error) {
	var out RollbackResult
	q := url.Values{"etag": {etag}}
	err := c.do(ctx, http.MethodPost, c.path(seasonID, statKey, "rollback"), q, &out)
	return out, err
}

// Refresh forces a rebuild of one key.
func (c *Client) Refresh(ctx context.Context, seasonID int, statKey string) (Document, error) {
	req, err := c.request(ctx, http.MethodPost, c.path(seasonID, statKey, "refresh"), nil)
	if err != nil {
		return Document{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("refresh leaderboard: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	doc, _, err := documentOf(resp)
	return doc, err
}

// Rebuild force-rebuilds statKeys of a season, or all known keys when none
// are given, and waits for the result.
func (c *Client) Rebuild(ctx context.Context, seasonID int, statKeys ...string) (freshness.BatchResult, error) {
	var out freshness.BatchResult
	q := url.Values{}
	for _, k := range statKeys {
		q.Add("stat_key", k)
	}
	err := c.do(ctx, http.MethodPost, c.path(seasonID, "rebuild"), q, &out)
	return out, err
}

// RebuildAsync queues a rebuild of statKeys, or all configured keys, and
// returns without waiting. Progress reports how far it got.
func (c *Client) RebuildAsync(ctx context.Context, seasonID int, statKeys ...string) error {
	q := url.Values{"async": {"true"}}
	for _, k := range statKeys {
		q.Add("stat_key", k)
	}
	return c.do(ctx, http.MethodPost, c.path(seasonID, "rebuild"), q, nil)
}

// Progress reads the state of the season's latest queued rebuild.
func (c *Client) Progress(ctx context.Context, seasonID int) (progress.Progress, error) {
	var out progress.Progress
	err := c.do(ctx, http.MethodGet, c.path(seasonID, "rebuild", "progress"), nil, &out)
	return out, err
}

// Warm rebuilds every season concurrently. Each season's outcome is reported
// independently; err is only set when ctx ends early.
func (c *Client) Warm(ctx context.Context, seasons []int, statKeys ...string) (map[int]freshness.BatchResult, map[int]error, error) {
	results := make([]freshness.BatchResult, len(seasons))
	errs := make([]error, len(seasons))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, season := range seasons {
		g.Go(func() error {
			res, err := c.Rebuild(gctx, season, statKeys...)
			results[i], errs[i] = res, err
			if err != nil {
				c.logger.Warn(gctx, "warm failed", logger.Int("season_id", season), logger.Error(err))
				return nil
			}
			c.logger.Info(gctx, "season warmed",
				logger.Int("season_id", season),
				logger.Int("built", len(res.Built)),
				logger.Int("failed", len(res.Failed)))
			return nil
		})
	}
	_ = g.Wait()

	byOK := make(map[int]freshness.BatchResult, len(seasons))
	byErr := make(map[int]error)
	for i, season := range seasons {
		if errs[i] != nil {
			byErr[season] = errs[i]
			continue
		}
		byOK[season] = results[i]
	}
	return byOK, byErr, ctx.Err()
}

func (c *Client) path(seasonID int, parts ...string) string {
	elems := append([]string{"leaderboards", strconv.Itoa(seasonID)}, parts...)
	for i, e := range elems {
		elems[i] = url.PathEscape(e)
	}
	return "/" + strings.Join(elems, "/")
}

func (c *Client) request(ctx context.Context, method, path string, q url.Values) (*http.Request, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	req, err := c.request(ctx, method, path, q)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return decode(resp, out)
}

// decode reads a JSON body into out, or an APIError for non-2xx responses.
func decode(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
