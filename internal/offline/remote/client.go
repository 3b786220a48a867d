package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/daycast/syncengine/internal/offline/schema"
)

// Config holds HTTP client configuration.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api/v1
	BaseURL string

	// ClientID is sent in the X-Client-ID header
	ClientID string

	// Timeout bounds each request (default: 30s)
	Timeout time.Duration

	// RateLimit caps outbound requests per second (0 = unlimited)
	RateLimit float64

	// Tokens supplies the bearer token (optional)
	Tokens TokenSource

	// HTTPClient overrides the transport (optional)
	HTTPClient *http.Client

	// Logger for request activity (default: prefixed default logger)
	Logger *log.Logger
}

// Client implements API over HTTP.
type Client struct {
	baseURL  *url.URL
	clientID string
	http     *http.Client
	limiter  *rate.Limiter
	tokens   TokenSource
	logger   *log.Logger
}

// apiError is the server's error body.
type apiError struct {
	Error  string  `json:"error"`
	Code   string  `json:"code"`
	Detail *string `json:"detail"`
}

// NewClient creates an HTTP API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidRequest)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: bad base URL %q", ErrInvalidRequest, cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("remote")
	}

	return &Client{
		baseURL:  base,
		clientID: cfg.ClientID,
		http:     httpClient,
		limiter:  limiter,
		tokens:   cfg.Tokens,
		logger:   logger,
	}, nil
}

// HealthURL returns the liveness endpoint: /health at the server root,
// outside the versioned API prefix.
func (c *Client) HealthURL() string {
	root := *c.baseURL
	if i := strings.Index(root.Path, "/api/"); i >= 0 {
		root.Path = root.Path[:i]
	} else if strings.HasSuffix(root.Path, "/api") {
		root.Path = strings.TrimSuffix(root.Path, "/api")
	}
	root.Path = path.Join("/", root.Path, "health")
	root.RawQuery = ""
	return root.String()
}

// Health implements HealthChecker. Only a 200 counts as healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HealthURL(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ServerError{Status: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return nil
}

func (c *Client) endpoint(p string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + p
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs a JSON request. body and out may be nil.
func (c *Client) do(ctx context.Context, method, p string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to encode body: %v", ErrInvalidRequest, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p, query), reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(ctx, req, out)
}

func (c *Client) send(ctx context.Context, req *http.Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	if c.clientID != "" {
		req.Header.Set("X-Client-ID", c.clientID)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			c.logger.Warn("failed to read auth token", "err", err)
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", req.Method, "path", req.URL.Path, "err", err)
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(ctx, err)
	}
	c.logger.Debug("request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("response shape mismatch", "path", req.URL.Path, "err", err)
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// transportError wraps a failure to get a response. A cancelled caller
// context is returned as is: it says nothing about the server.
func (c *Client) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	return &NetworkError{Cause: err}
}

func statusError(status int, body []byte) error {
	msg := fmt.Sprintf("HTTP %d", status)
	var code string
	var apiErr apiError
	if len(body) > 0 && json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
		code = apiErr.Code
	}

	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
	}
	return &ServerError{Status: status, Code: code, Message: msg}
}

// FetchItems implements API.
func (c *Client) FetchItems(ctx context.Context, date string) ([]schema.Item, error) {
	var items []schema.Item
	if err := c.do(ctx, http.MethodGet, "/inputs", url.Values{"date": {date}}, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateItem implements API.
func (c *Client) CreateItem(ctx context.Context, req schema.CreateItemRequest) (*schema.Item, error) {
	var item schema.Item
	if err := c.do(ctx, http.MethodPost, "/inputs", nil, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem implements API.
func (c *Client) UpdateItem(ctx context.Context, id, content string) (*schema.Item, error) {
	var item schema.Item
	body := schema.UpdatePayload{Content: content}
	if err := c.do(ctx, http.MethodPut, "/inputs/"+url.PathEscape(id), nil, body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItemFields implements API. A cleared importance is sent as null.
func (c *Client) UpdateItemFields(ctx context.Context, id string, fields schema.ItemFields) (*schema.Item, error) {
	body := map[string]any{}
	switch {
	case fields.ClearImportance:
		body["importance"] = nil
	case fields.Importance != nil:
		body["importance"] = *fields.Importance
	}
	if fields.IncludeInGeneration != nil {
		body["include_in_generation"] = *fields.IncludeInGeneration
	}

	var item schema.Item
	if err := c.do(ctx, http.MethodPatch, "/inputs/"+url.PathEscape(id), nil, body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem implements API.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/inputs/"+url.PathEscape(id), nil, nil, nil)
}

// ClearDay implements API.
func (c *Client) ClearDay(ctx context.Context, date string) error {
	return c.do(ctx, http.MethodDelete, "/inputs", url.Values{"date": {date}}, nil, nil)
}

// UploadImage implements API with a multipart form carrying file and date.
func (c *Client) UploadImage(ctx context.Context, data []byte, date, filename string) (*schema.Item, error) {
	if filename == "" {
		filename = "photo.jpg"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := mw.WriteField("date", date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/inputs/upload", nil), &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var item schema.Item
	if err := c.send(ctx, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Generate implements API.
func (c *Client) Generate(ctx context.Context, req schema.GenerateRequest) (*schema.Generation, error) {
	var gen schema.Generation
	if err := c.do(ctx, http.MethodPost, "/generate", nil, req, &gen); err != nil {
		return nil, err
	}
	return &gen, nil
}

// Regenerate implements API.
func (c *Client) Regenerate(ctx context.Context, generationID string, channels []string) (*schema.Generation, error) {
	body := struct {
		Channels []string `json:"channels,omitempty"`
	}{Channels: channels}

	var gen schema.Generation
	if err := c.do(ctx, http.MethodPost, "/generate/"+url.PathEscape(generationID)+"/regenerate", nil, body, &gen); err != nil {
		return nil, err
	}
	return &gen, nil
}

// FetchDays implements API.
func (c *Client) FetchDays(ctx context.Context, search string) (*schema.DayList, error) {
	var query url.Values
	if search != "" {
		query = url.Values{"search": {search}}
	}
	var list schema.DayList
	if err := c.do(ctx, http.MethodGet, "/days", query, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// FetchDay implements API.
func (c *Client) FetchDay(ctx context.Context, date string) (*schema.DayResponse, error) {
	var day schema.DayResponse
	if err := c.do(ctx, http.MethodGet, "/days/"+url.PathEscape(date), nil, nil, &day); err != nil {
		return nil, err
	}
	return &day, nil
}

// DeleteDay implements API.
func (c *Client) DeleteDay(ctx context.Context, date string) error {
	return c.do(ctx, http.MethodDelete, "/days/"+url.PathEscape(date), nil, nil, nil)
}

// PublishPost implements API.
func (c *Client) PublishPost(ctx context.Context, resultID string) (*schema.PublishedPost, error) {
	body := struct {
		GenerationResultID string `json:"generation_result_id"`
	}{GenerationResultID: resultID}

	var post schema.PublishedPost
	if err := c.do(ctx, http.MethodPost, "/publish", nil, body, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UnpublishPost implements API.
func (c *Client) UnpublishPost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/publish/"+url.PathEscape(postID), nil, nil, nil)
}

type statusResponse struct {
	Statuses map[string]*string `json:"statuses"`
}

// PublishStatus implements API. A nil value means the result is not published.
func (c *Client) PublishStatus(ctx context.Context, resultIDs []string) (map[string]*string, error) {
	var resp statusResponse
	query := url.Values{"result_ids": {strings.Join(resultIDs, ",")}}
	if err := c.do(ctx, http.MethodGet, "/publish/status", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Statuses, nil
}

// PublishInputItem implements API.
func (c *Client) PublishInputItem(ctx context.Context, itemID string) (*schema.PublishedPost, error) {
	body := struct {
		InputItemID string `json:"input_item_id"`
	}{InputItemID: itemID}

	var post schema.PublishedPost
	if err := c.do(ctx, http.MethodPost, "/publish/input", nil, body, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// InputPublishStatus implements API.
func (c *Client) InputPublishStatus(ctx context.Context, itemIDs []string) (map[string]*string, error) {
	var resp statusResponse
	query := url.Values{"input_ids": {strings.Join(itemIDs, ",")}}
	if err := c.do(ctx, http.MethodGet, "/publish/input-status", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Statuses, nil
}

// FetchPublicPosts implements API.
func (c *Client) FetchPublicPosts(ctx context.Context, q schema.PostQuery) (*schema.PostList, error) {
	query := url.Values{}
	if q.Cursor != "" {
		query.Set("cursor", q.Cursor)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Channel != "" {
		query.Set("channel", q.Channel)
	}

	var list schema.PostList
	if err := c.do(ctx, http.MethodGet, "/public/posts", query, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// FetchPublicPost implements API.
func (c *Client) FetchPublicPost(ctx context.Context, slug string) (*schema.PublishedPost, error) {
	var post schema.PublishedPost
	if err := c.do(ctx, http.MethodGet, "/public/posts/"+url.PathEscape(slug), nil, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// FetchChannelSettings implements API.
func (c *Client) FetchChannelSettings(ctx context.Context) ([]schema.ChannelSetting, error) {
	var settings []schema.ChannelSetting
	if err := c.do(ctx, http.MethodGet, "/settings/channels", nil, nil, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveChannelSettings implements API.
func (c *Client) SaveChannelSettings(ctx context.Context, settings []schema.ChannelSetting) error {
	body := schema.ChannelSettingsPayload{Channels: settings}
	return c.do(ctx, http.MethodPost, "/settings/channels", nil, body, nil)
}

// FetchGenerationSettings implements API.
func (c *Client) FetchGenerationSettings(ctx context.Context) (*schema.GenerationSettings, error) {
	var settings schema.GenerationSettings
	if err := c.do(ctx, http.MethodGet, "/settings/generation", nil, nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveGenerationSettings implements API.
func (c *Client) SaveGenerationSettings(ctx context.Context, settings schema.GenerationSettings) (*schema.GenerationSettings, error) {
	var saved schema.GenerationSettings
	if err := c.do(ctx, http.MethodPut, "/settings/generation", nil, settings, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// ExportDay implements API.
func (c *Client) ExportDay(ctx context.Context, date string) (*schema.Export, error) {
	var export schema.Export
	if err := c.do(ctx, http.MethodGet, "/export/"+url.PathEscape(date), nil, nil, &export); err != nil {
		return nil, err
	}
	return &export, nil
}

var _ API = (*Client)(nil)
var _ HealthChecker = (*Client)(nil)
