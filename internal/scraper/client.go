// Package scraper provides the HTTP client for the scraper service API.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	infraerrors "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/http"
	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/normalize"
)

const (
	// DefaultBaseURL is the default base URL for the scraper service API.
	DefaultBaseURL = "http://localhost:8060/api/v1"
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 10 * time.Second
	// DefaultTenantHeader carries the tenant id when one is configured.
	DefaultTenantHeader = "X-Tenant-ID"
	// ServiceTokenExpiration is the lifetime of minted service JWTs.
	ServiceTokenExpiration = time.Hour

	serviceSubject  = "fleet-monitor"
	maxResponseBody = 8 << 20
)

// Client is an HTTP client for the scraper service API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	jwtSecret    string
	token        string
	tenantID     string
	tenantHeader string
	logger       infralogger.Logger
	onSkipped    func(entity string, n int)
	now          func() time.Time
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API client.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the timeout for API requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithJWTSecret sets the secret used to mint HS256 service tokens.
func WithJWTSecret(secret string) Option {
	return func(c *Client) {
		c.jwtSecret = secret
	}
}

// WithToken sets a static bearer token. It takes precedence over WithJWTSecret.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTenant sets the tenant id and, when header is non-empty, the header carrying it.
func WithTenant(tenantID, header string) Option {
	return func(c *Client) {
		c.tenantID = tenantID
		if header != "" {
			c.tenantHeader = header
		}
	}
}

// WithLogger sets the logger used to report skipped records.
func WithLogger(log infralogger.Logger) Option {
	return func(c *Client) {
		c.logger = infralogger.OrNop(log)
	}
}

// WithOnSkipped registers a callback receiving the number of malformed
// records dropped from each list response.
func WithOnSkipped(fn func(entity string, n int)) Option {
	return func(c *Client) {
		c.onSkipped = fn
	}
}

// NewClient creates a new scraper service API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL: DefaultBaseURL,
		httpClient: infrahttp.NewClient(&infrahttp.ClientConfig{
			Timeout: DefaultTimeout,
		}),
		tenantHeader: DefaultTenantHeader,
		logger:       infralogger.NewNop(),
		now:          func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListSources retrieves all configured sources.
func (c *Client) ListSources(ctx context.Context) ([]domain.Source, error) {
	body, err := c.get(ctx, "list sources", c.endpoint("sources"))
	if err != nil {
		return nil, err
	}

	sources, skipped, err := normalize.Sources(body)
	c.reportSkipped("source", skipped)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// ListJobs retrieves the active jobs listing.
func (c *Client) ListJobs(ctx context.Context) ([]domain.Job, error) {
	body, err := c.get(ctx, "list jobs", c.endpoint("jobs"))
	if err != nil {
		return nil, err
	}

	jobs, skipped, err := normalize.Jobs(body, c.now())
	c.reportSkipped("job", skipped)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ExecuteSource asks the backend to run a source and returns the new job id.
func (c *Client) ExecuteSource(ctx context.Context, name string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("sources", name, "execute"), nil)
	if err != nil {
		return "", err
	}

	body, err := c.doRequest(req, "execute source")
	if err != nil {
		return "", err
	}

	jobID, err := normalize.ExecuteResult(body)
	if err != nil {
		return "", fmt.Errorf("execute source: %w", err)
	}
	return jobID, nil
}

// UpdateSourceActive sets a source's is_active flag. The returned Source is
// nil when the backend acknowledged without a body.
func (c *Client) UpdateSourceActive(ctx context.Context, name string, active bool) (*domain.Source, error) {
	source, body, err := c.patchSource(ctx, "update source", name, map[string]any{"is_active": active})
	if source != nil && !normalize.ReportsActive(body) {
		// The ack echoed the record without the flag; the request was accepted.
		source.IsActive = active
	}
	return source, err
}

// UpdateSourceSchedule sets a source's cron schedule.
func (c *Client) UpdateSourceSchedule(ctx context.Context, name, schedule string) (*domain.Source, error) {
	source, _, err := c.patchSource(ctx, "update schedule", name, map[string]any{"schedule": schedule})
	return source, err
}

// CancelJob cancels a job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.endpoint("jobs", jobID), nil)
	if err != nil {
		return err
	}

	_, err = c.doRequest(req, "cancel job")
	return err
}

// ListHistory retrieves one page of finished runs.
func (c *Client) ListHistory(ctx context.Context, query domain.HistoryQuery) (domain.HistoryPage, error) {
	query = query.Normalize()

	params := url.Values{}
	params.Set("page", strconv.Itoa(query.Page))
	params.Set("page_size", strconv.Itoa(query.PageSize))
	if query.TargetName != "" {
		params.Set("target_name", query.TargetName)
	}
	if query.Status != "" {
		params.Set("status", string(query.Status))
	}
	if !query.From.IsZero() {
		params.Set("from_date", query.From.UTC().Format(time.RFC3339))
	}
	if !query.To.IsZero() {
		params.Set("to_date", query.To.UTC().Format(time.RFC3339))
	}

	body, err := c.get(ctx, "list history", c.endpoint("history")+"?"+params.Encode())
	if err != nil {
		return domain.HistoryPage{}, err
	}

	page, skipped, err := normalize.HistoryPage(body, query, c.now())
	c.reportSkipped("history record", skipped)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("list history: %w", err)
	}
	return page, nil
}

// PushHeaders returns the auth and tenant headers for the push channel handshake.
func (c *Client) PushHeaders() (http.Header, error) {
	h := http.Header{}
	if err := c.authorize(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (c *Client) patchSource(ctx context.Context, op, name string, payload map[string]any) (*domain.Source, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: marshal body: %w", op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPatch, c.endpoint("sources", name), data)
	if err != nil {
		return nil, nil, err
	}

	body, err := c.doRequest(req, op)
	if err != nil {
		return nil, nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, body, nil
	}

	source, err := normalize.Source(body)
	if err != nil {
		// An ack whose body is not a source record still counts as success.
		c.logger.Debug("Update acknowledged without source record",
			infralogger.Source(name),
			infralogger.Error(err),
		)
		return nil, body, nil
	}
	return &source, body, nil
}

func (c *Client) get(ctx context.Context, op, target string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return c.doRequest(req, op)
}

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func (c *Client) newRequest(ctx context.Context, method, target string, body []byte) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// generateServiceToken generates a JWT token for service-to-service authentication.
func (c *Client) generateServiceToken() (string, error) {
	if c.jwtSecret == "" {
		return "", errors.New("JWT secret not configured")
	}

	now := time.Now()
	claims := &jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ServiceTokenExpiration)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Subject:   serviceSubject,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.jwtSecret))
}

func (c *Client) authorize(h http.Header) error {
	switch {
	case c.token != "":
		h.Set("Authorization", "Bearer "+c.token)
	case c.jwtSecret != "":
		token, err := c.generateServiceToken()
		if err != nil {
			return fmt.Errorf("failed to generate service token: %w", err)
		}
		h.Set("Authorization", "Bearer "+token)
	}
	if c.tenantID != "" {
		h.Set(c.tenantHeader, c.tenantID)
	}
	return nil
}

// doRequest executes an HTTP request and returns the response body.
func (c *Client) doRequest(req *http.Request, op string) ([]byte, error) {
	if err := c.authorize(req.Header); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL from config
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
		var parsed *infraerrors.HTTPError
		if errors.As(httpErr, &parsed) && !parsed.Parsed {
			return nil, &TransportError{Op: op, Err: httpErr}
		}
		return nil, fmt.Errorf("%s: %w", op, httpErr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return body, nil
}

func (c *Client) reportSkipped(entity string, skipped []error) {
	for _, err := range skipped {
		c.logger.Warn("Skipping malformed "+entity+" record", infralogger.Error(err))
	}
	if c.onSkipped != nil && len(skipped) > 0 {
		c.onSkipped(entity, len(skipped))
	}
}
