package sovd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// API defines the gateway surface the store depends on. Implemented by
// *Client and by test fakes.
type API interface {
	Health(ctx context.Context) error
	ListAreas(ctx context.Context) ([]EntitySummary, error)
	ListComponents(ctx context.Context, areaID string) ([]EntitySummary, error)
	EntityDetail(ctx context.Context, entityType EntityType, id string) (*EntityDetail, error)
	ListData(ctx context.Context, componentID string) ([]Topic, error)
	GetData(ctx context.Context, componentID, topic string) (*Topic, error)
	PublishData(ctx context.Context, componentID, topic string, value any) error
	ListConfigurations(ctx context.Context, componentID string) ([]Parameter, error)
	SetConfiguration(ctx context.Context, componentID, name string, value any) error
	ResetConfiguration(ctx context.Context, componentID, name string) error
	ResetAllConfigurations(ctx context.Context, componentID string) (PartialResult, error)
	ListOperations(ctx context.Context, componentID string) ([]Operation, error)
	InvokeOperation(ctx context.Context, componentID, name string, args map[string]any) (*InvokeResult, error)
	OperationStatus(ctx context.Context, componentID, name, goalID string) (*GoalStatus, error)
	AllOperationStatus(ctx context.Context, componentID, name string) ([]GoalStatus, error)
	OperationResult(ctx context.Context, componentID, name, goalID string) (*GoalResult, error)
	CancelOperation(ctx context.Context, componentID, name, goalID string) error
	ListFaults(ctx context.Context, entityType EntityType, id string) ([]Fault, error)
	ClearFault(ctx context.Context, entityType EntityType, id, code string) error
	DownloadBulkData(ctx context.Context, entityType EntityType, id, category, dataID string) (*BulkData, error)
	RefreshGateway(ctx context.Context) (*RefreshResult, error)
}

// Ensure Client implements API at compile time.
var _ API = (*Client)(nil)

// ErrTimeout marks a request aborted by its own deadline, as opposed to a
// failure reported by the gateway. Callers match it with errors.Is.
var ErrTimeout = errors.New("request timed out")

// APIError carries a gateway-reported failure. Message holds the error,
// message or details field extracted from the response body when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Retryable reports whether the failure is likely transient.
func (e *APIError) Retryable() bool { return e.StatusCode >= 500 }

const (
	defaultBasePath  = "/api/v1"
	defaultUserAgent = "sovdtui/0.1"

	healthTimeout = 3 * time.Second
	readTimeout   = 10 * time.Second
	longTimeout   = 30 * time.Second

	maxErrorBody = 1 << 20
)

// Client talks to the SOVD gateway's REST API. It performs no caching and
// no retries; every failure is surfaced to the caller.
type Client struct {
	baseURL   *url.URL
	basePath  string
	http      *http.Client
	userAgent string
	logger    *slog.Logger

	// Overridable in tests.
	healthTimeout time.Duration
	readTimeout   time.Duration
	longTimeout   time.Duration
}

// NewClient builds a Client for the given server URL and API base path.
// A bare host:port is accepted; slash decorations on either input are
// normalized away.
func NewClient(serverURL, basePath string, logger *slog.Logger) (*Client, error) {
	base, err := normalizeServerURL(serverURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:       base,
		basePath:      normalizeBasePath(basePath),
		http:          &http.Client{},
		userAgent:     defaultUserAgent,
		logger:        logger,
		healthTimeout: healthTimeout,
		readTimeout:   readTimeout,
		longTimeout:   longTimeout,
	}, nil
}

// ServerURL returns the normalized server URL the client talks to.
func (c *Client) ServerURL() string { return c.baseURL.String() }

// Health probes GET /health with the short connectivity timeout.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil, c.healthTimeout)
}

// ListAreas retrieves the root areas of the entity tree.
func (c *Client) ListAreas(ctx context.Context) ([]EntitySummary, error) {
	var payload AreaListResponse
	if err := c.do(ctx, http.MethodGet, "/areas", nil, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	return payload.Areas, nil
}

// ListComponents retrieves the components, apps and functions of an area.
func (c *Client) ListComponents(ctx context.Context, areaID string) ([]EntitySummary, error) {
	var payload ComponentListResponse
	path := "/areas/" + url.PathEscape(areaID) + "/components"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	return payload.Components, nil
}

// EntityDetail retrieves the full payload for one entity.
func (c *Client) EntityDetail(ctx context.Context, entityType EntityType, id string) (*EntityDetail, error) {
	var payload EntityDetail
	path := "/" + string(entityType) + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ListData retrieves the published topics of a component.
func (c *Client) ListData(ctx context.Context, componentID string) ([]Topic, error) {
	var payload TopicListResponse
	path := "/components/" + url.PathEscape(componentID) + "/data"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	return payload.Topics, nil
}

// GetData retrieves one topic's latest value.
func (c *Client) GetData(ctx context.Context, componentID, topic string) (*Topic, error) {
	var payload Topic
	path := "/components/" + url.PathEscape(componentID) + "/data/" + url.PathEscape(topic)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	return &payload, nil
}

// PublishData writes a value to a topic.
func (c *Client) PublishData(ctx context.Context, componentID, topic string, value any) error {
	path := "/components/" + url.PathEscape(componentID) + "/data/" + url.PathEscape(topic)
	body := map[string]any{"value": value}
	return c.do(ctx, http.MethodPut, path, nil, body, nil, c.readTimeout)
}

// ListConfigurations retrieves the parameters of a component.
func (c *Client) ListConfigurations(ctx context.Context, componentID string) ([]Parameter, error) {
	var payload ParameterListResponse
	path := "/components/" + url.PathEscape(componentID) + "/configurations"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	return payload.Parameters, nil
}

// SetConfiguration writes one parameter value.
func (c *Client) SetConfiguration(ctx context.Context, componentID, name string, value any) error {
	path := "/components/" + url.PathEscape(componentID) + "/configurations/" + url.PathEscape(name)
	body := map[string]any{"value": value}
	return c.do(ctx, http.MethodPut, path, nil, body, nil, c.readTimeout)
}

// ResetConfiguration restores one parameter to its default.
func (c *Client) ResetConfiguration(ctx context.Context, componentID, name string) error {
	path := "/components/" + url.PathEscape(componentID) + "/configurations/" + url.PathEscape(name)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil, c.readTimeout)
}

// resetAllResponse mirrors DELETE /components/{id}/configurations. The
// gateway answers 207 when only part of the parameters could be reset.
type resetAllResponse struct {
	Succeeded int            `json:"succeeded"`
	Failures  []ResetFailure `json:"failures,omitempty"`
}

// ResetAllConfigurations restores every parameter of a component. A partial
// outcome (HTTP 207) is reported through the result, not as an error.
func (c *Client) ResetAllConfigurations(ctx context.Context, componentID string) (PartialResult, error) {
	path := "/components/" + url.PathEscape(componentID) + "/configurations"
	var payload resetAllResponse
	err := c.do(ctx, http.MethodDelete, path, nil, nil, &payload, c.readTimeout)
	if err != nil {
		return PartialResult{}, err
	}
	return PartialResult{Succeeded: payload.Succeeded, Failures: payload.Failures}, nil
}

// ListOperations retrieves the callable operations of a component.
func (c *Client) ListOperations(ctx context.Context, componentID string) ([]Operation, error) {
	var payload OperationListResponse
	path := "/components/" + url.PathEscape(componentID) + "/operations"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	return payload.Operations, nil
}

// InvokeOperation calls a service or starts an action. Actions answer with
// a goal ID for status polling; invocation uses the long timeout.
func (c *Client) InvokeOperation(ctx context.Context, componentID, name string, args map[string]any) (*InvokeResult, error) {
	path := "/components/" + url.PathEscape(componentID) + "/operations/" + url.PathEscape(name)
	body := map[string]any{"arguments": args}
	var payload InvokeResult
	if err := c.do(ctx, http.MethodPost, path, nil, body, &payload, c.longTimeout); err != nil {
		return nil, err
	}
	return &payload, nil
}

// OperationStatus retrieves the status of one action goal.
func (c *Client) OperationStatus(ctx context.Context, componentID, name, goalID string) (*GoalStatus, error) {
	path := "/components/" + url.PathEscape(componentID) + "/operations/" + url.PathEscape(name) + "/status"
	query := url.Values{"goal_id": {goalID}}
	var payload GoalStatusResponse
	if err := c.do(ctx, http.MethodGet, path, query, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	if len(payload.Goals) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("goal %s not found", goalID)}
	}
	return &payload.Goals[0], nil
}

// AllOperationStatus retrieves the status of every goal of an action.
func (c *Client) AllOperationStatus(ctx context.Context, componentID, name string) ([]GoalStatus, error) {
	path := "/components/" + url.PathEscape(componentID) + "/operations/" + url.PathEscape(name) + "/status"
	query := url.Values{"all": {"true"}}
	var payload GoalStatusResponse
	if err := c.do(ctx, http.MethodGet, path, query, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	return payload.Goals, nil
}

// OperationResult retrieves the terminal result of an action goal.
func (c *Client) OperationResult(ctx context.Context, componentID, name, goalID string) (*GoalResult, error) {
	path := "/components/" + url.PathEscape(componentID) + "/operations/" + url.PathEscape(name) + "/result"
	query := url.Values{"goal_id": {goalID}}
	var payload GoalResult
	if err := c.do(ctx, http.MethodGet, path, query, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	return &payload, nil
}

// CancelOperation cancels a running action goal.
func (c *Client) CancelOperation(ctx context.Context, componentID, name, goalID string) error {
	path := "/components/" + url.PathEscape(componentID) + "/operations/" + url.PathEscape(name)
	query := url.Values{"goal_id": {goalID}}
	return c.do(ctx, http.MethodDelete, path, query, nil, nil, c.readTimeout)
}

// ListFaults retrieves the faults of an entity.
func (c *Client) ListFaults(ctx context.Context, entityType EntityType, id string) ([]Fault, error) {
	var payload FaultListResponse
	path := "/" + string(entityType) + "/" + url.PathEscape(id) + "/faults"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	return payload.Faults, nil
}

// ClearFault deletes one fault entry by code.
func (c *Client) ClearFault(ctx context.Context, entityType EntityType, id, code string) error {
	path := "/" + string(entityType) + "/" + url.PathEscape(id) + "/faults/" + url.PathEscape(code)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil, c.readTimeout)
}

// DownloadBulkData retrieves a binary artifact such as a recorded session
// bundle. The suggested filename comes from Content-Disposition when set.
func (c *Client) DownloadBulkData(ctx context.Context, entityType EntityType, id, category, dataID string) (*BulkData, error) {
	path := "/" + string(entityType) + "/" + url.PathEscape(id) +
		"/bulk-data/" + url.PathEscape(category) + "/" + url.PathEscape(dataID)

	ctx, cancel := context.WithTimeout(ctx, c.longTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.requestError(http.MethodGet, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, c.apiError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read bulk data: %w", err)
	}
	bulk := &BulkData{
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			bulk.Filename = params["filename"]
		}
	}
	return bulk, nil
}

// RefreshGateway asks the gateway to rebuild its entity cache.
func (c *Client) RefreshGateway(ctx context.Context) (*RefreshResult, error) {
	var payload RefreshResult
	if err := c.do(ctx, http.MethodPost, "/refresh", nil, nil, &payload, c.longTimeout); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	// Segments arrive escaped from the call sites; JoinPath preserves that
	// escaping, where assigning to Path would escape the % signs again.
	reqURL := *c.baseURL.JoinPath(c.basePath + path)
	if query != nil {
		reqURL.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return c.requestError(method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("gateway request",
		"method", method, "path", path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode >= 400 {
		return c.apiError(resp)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// requestError normalizes transport failures. A deadline abort becomes the
// ErrTimeout sentinel so callers can tell timeouts from gateway failures.
func (c *Client) requestError(method, path string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
	}
	return fmt.Errorf("execute request: %w", err)
}

// apiError extracts a human-readable message from an error response body,
// preferring the error, message and details fields in that order.
func (c *Client) apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	var fields struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(body, &fields); err == nil {
		switch {
		case fields.Error != "":
			apiErr.Message = fields.Error
		case fields.Message != "":
			apiErr.Message = fields.Message
		case fields.Details != "":
			apiErr.Message = fields.Details
		}
	}
	return apiErr
}

// normalizeServerURL accepts a bare host:port or a full URL and produces a
// canonical base URL with no path, query, fragment or trailing slash.
func normalizeServerURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("server url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q has no host", raw)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// normalizeBasePath strips slash decorations so "api/v1", "/api/v1" and
// "/api/v1/" all address the same endpoints. Empty input keeps the default.
func normalizeBasePath(raw string) string {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return defaultBasePath
	}
	return "/" + trimmed
}
