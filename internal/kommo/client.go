package kommo

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
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetryAfter = 60 * time.Second
	defaultRateLimit  = 6 // requests per second, the documented per-tenant cap is 7
	listPageLimit     = 250
)

// Client is a typed client for one tenant of the Kommo REST API (v4).
// It is stateless beyond the subdomain and token source; callers build a
// fresh client per sync run.
type Client struct {
	subdomain  string
	baseURL    string
	tokens     oauth2.TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	logger     zerolog.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRateLimit sets the request throttle in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithLogger attaches a logger for request warnings (rate-limit sleeps,
// breaker trips).
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a client for the given tenant subdomain. The token
// source supplies the bearer token on every request; long-lived tokens are
// wrapped with oauth2.StaticTokenSource by the caller.
func NewClient(subdomain string, tokens oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		subdomain:  subdomain,
		baseURL:    fmt.Sprintf("https://%s.kommo.com/api/v4", subdomain),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), 1),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    subdomain,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	c.wait = sleepContext
	return c
}

// Subdomain returns the tenant subdomain this client talks to.
func (c *Client) Subdomain() string {
	return c.subdomain
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// do performs one API call with throttling and rate-limit retry. It returns
// the response body and status for any 2xx response; 429 responses sleep for
// the server-indicated duration and retry, each attempt independent.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, int, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}

		token, err := c.tokens.Token()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to obtain token: %w", err)
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.httpClient.Do(req)
		})
		if err != nil {
			return nil, 0, &TransportError{Status: 0, Body: err.Error()}
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, resp.StatusCode, &TransportError{Status: resp.StatusCode, Body: err.Error()}
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			delay := retryAfter(resp.Header.Get("Retry-After"))
			c.logger.Warn().
				Str("subdomain", c.subdomain).
				Str("path", path).
				Dur("retry_after", delay).
				Msg("rate limited, backing off")
			if err := c.wait(ctx, delay); err != nil {
				return nil, resp.StatusCode, err
			}
			continue
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, resp.StatusCode, &AuthError{Status: resp.StatusCode, Body: string(respBody)}
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, resp.StatusCode, nil
		default:
			return respBody, resp.StatusCode, &TransportError{Status: resp.StatusCode, Body: string(respBody)}
		}
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// getJSON decodes a 2xx response into out. A 204 or empty body leaves out
// at its zero value; the API answers empty collections that way.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, status, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Err: err, Body: string(body)}
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out interface{}) error {
	body, status, err := c.do(ctx, method, path, nil, in)
	if err != nil {
		return err
	}
	if out == nil || status == http.StatusNoContent || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Err: err, Body: string(body)}
	}
	return nil
}

// deleteEntity issues a DELETE. Empty or undecodable bodies on 2xx are
// success, and 404 counts as success too: the entity is already gone.
func (c *Client) deleteEntity(ctx context.Context, path string) error {
	_, _, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && te.Status == http.StatusNotFound {
			return nil
		}
		return err
	}
	return nil
}

type pipelinesEnvelope struct {
	Embedded struct {
		Pipelines []Pipeline `json:"pipelines"`
	} `json:"_embedded"`
}

type statusesEnvelope struct {
	Embedded struct {
		Statuses []Status `json:"statuses"`
	} `json:"_embedded"`
}

type fieldsEnvelope struct {
	Embedded struct {
		CustomFields []CustomField `json:"custom_fields"`
	} `json:"_embedded"`
}

type rolesEnvelope struct {
	Embedded struct {
		Roles []Role `json:"roles"`
	} `json:"_embedded"`
}

// ListPipelines returns all lead pipelines of the tenant.
func (c *Client) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	var env pipelinesEnvelope
	if err := c.getJSON(ctx, "/leads/pipelines", nil, &env); err != nil {
		return nil, err
	}
	return env.Embedded.Pipelines, nil
}

// ListStatuses returns the stages of one pipeline, required_fields included.
func (c *Client) ListStatuses(ctx context.Context, pipelineID int64) ([]Status, error) {
	var env statusesEnvelope
	path := fmt.Sprintf("/leads/pipelines/%d/statuses", pipelineID)
	query := url.Values{}
	query.Set("with", "required_fields")
	if err := c.getJSON(ctx, path, query, &env); err != nil {
		return nil, err
	}
	return env.Embedded.Statuses, nil
}

// CreatePipeline creates one pipeline, statuses included. The API takes a
// single-element array and mirrors the created object back under
// _embedded.pipelines[0] with its statuses in request order.
func (c *Client) CreatePipeline(ctx context.Context, p Pipeline) (*Pipeline, error) {
	var env pipelinesEnvelope
	if err := c.sendJSON(ctx, http.MethodPost, "/leads/pipelines", []Pipeline{p}, &env); err != nil {
		return nil, err
	}
	if len(env.Embedded.Pipelines) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("create pipeline response missing _embedded.pipelines")}
	}
	return &env.Embedded.Pipelines[0], nil
}

// UpdatePipeline patches one pipeline.
func (c *Client) UpdatePipeline(ctx context.Context, id int64, p Pipeline) (*Pipeline, error) {
	var out Pipeline
	path := fmt.Sprintf("/leads/pipelines/%d", id)
	if err := c.sendJSON(ctx, http.MethodPatch, path, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePipeline removes one pipeline.
func (c *Client) DeletePipeline(ctx context.Context, id int64) error {
	return c.deleteEntity(ctx, fmt.Sprintf("/leads/pipelines/%d", id))
}

// CreateStatus creates one stage in a pipeline.
func (c *Client) CreateStatus(ctx context.Context, pipelineID int64, s Status) (*Status, error) {
	var env statusesEnvelope
	path := fmt.Sprintf("/leads/pipelines/%d/statuses", pipelineID)
	if err := c.sendJSON(ctx, http.MethodPost, path, []Status{s}, &env); err != nil {
		return nil, err
	}
	if len(env.Embedded.Statuses) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("create status response missing _embedded.statuses")}
	}
	return &env.Embedded.Statuses[0], nil
}

// UpdateStatus patches one stage.
func (c *Client) UpdateStatus(ctx context.Context, pipelineID, statusID int64, s Status) (*Status, error) {
	var out Status
	path := fmt.Sprintf("/leads/pipelines/%d/statuses/%d", pipelineID, statusID)
	if err := c.sendJSON(ctx, http.MethodPatch, path, s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteStatus removes one stage.
func (c *Client) DeleteStatus(ctx context.Context, pipelineID, statusID int64) error {
	return c.deleteEntity(ctx, fmt.Sprintf("/leads/pipelines/%d/statuses/%d", pipelineID, statusID))
}

// ListFieldGroups returns the custom field groups of one entity kind.
// Accounts on different plan generations answer with three different
// envelope shapes; all three are accepted.
func (c *Client) ListFieldGroups(ctx context.Context, entity EntityType) ([]FieldGroup, error) {
	body, status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/%s/custom_fields/groups", entity), nil, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return nil, nil
	}
	return decodeFieldGroups(body)
}

func decodeFieldGroups(body []byte) ([]FieldGroup, error) {
	var embedded struct {
		Embedded struct {
			Groups []FieldGroup `json:"custom_field_groups"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &embedded); err == nil && len(embedded.Embedded.Groups) > 0 {
		return embedded.Embedded.Groups, nil
	}
	var flat struct {
		Groups []FieldGroup `json:"custom_field_groups"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && len(flat.Groups) > 0 {
		return flat.Groups, nil
	}
	var bare []FieldGroup
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}
	return nil, &DecodeError{Err: fmt.Errorf("unrecognized field group response shape"), Body: string(body)}
}

// CreateFieldGroup creates one field group for the entity kind.
func (c *Client) CreateFieldGroup(ctx context.Context, entity EntityType, g FieldGroup) (*FieldGroup, error) {
	var env struct {
		Embedded struct {
			Groups []FieldGroup `json:"custom_field_groups"`
		} `json:"_embedded"`
	}
	path := fmt.Sprintf("/%s/custom_fields/groups", entity)
	if err := c.sendJSON(ctx, http.MethodPost, path, []FieldGroup{g}, &env); err != nil {
		return nil, err
	}
	if len(env.Embedded.Groups) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("create field group response missing _embedded.custom_field_groups")}
	}
	return &env.Embedded.Groups[0], nil
}

// UpdateFieldGroup patches one field group.
func (c *Client) UpdateFieldGroup(ctx context.Context, entity EntityType, id string, g FieldGroup) (*FieldGroup, error) {
	var out FieldGroup
	path := fmt.Sprintf("/%s/custom_fields/groups/%s", entity, id)
	if err := c.sendJSON(ctx, http.MethodPatch, path, g, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFieldGroup removes one field group.
func (c *Client) DeleteFieldGroup(ctx context.Context, entity EntityType, id string) error {
	return c.deleteEntity(ctx, fmt.Sprintf("/%s/custom_fields/groups/%s", entity, id))
}

// ListCustomFields returns all custom fields of one entity kind with
// required_statuses and enums embedded, following pagination.
func (c *Client) ListCustomFields(ctx context.Context, entity EntityType) ([]CustomField, error) {
	var fields []CustomField
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("with", "required_statuses,enums")
		query.Set("limit", strconv.Itoa(listPageLimit))
		query.Set("page", strconv.Itoa(page))

		var env fieldsEnvelope
		if err := c.getJSON(ctx, fmt.Sprintf("/%s/custom_fields", entity), query, &env); err != nil {
			return nil, err
		}
		fields = append(fields, env.Embedded.CustomFields...)
		if len(env.Embedded.CustomFields) < listPageLimit {
			return fields, nil
		}
	}
}

// CreateCustomField creates one custom field for the entity kind.
func (c *Client) CreateCustomField(ctx context.Context, entity EntityType, f CustomField) (*CustomField, error) {
	var env fieldsEnvelope
	path := fmt.Sprintf("/%s/custom_fields", entity)
	if err := c.sendJSON(ctx, http.MethodPost, path, []CustomField{f}, &env); err != nil {
		return nil, err
	}
	if len(env.Embedded.CustomFields) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("create custom field response missing _embedded.custom_fields")}
	}
	return &env.Embedded.CustomFields[0], nil
}

// UpdateCustomField patches one custom field.
func (c *Client) UpdateCustomField(ctx context.Context, entity EntityType, id int64, f CustomField) (*CustomField, error) {
	var out CustomField
	path := fmt.Sprintf("/%s/custom_fields/%d", entity, id)
	if err := c.sendJSON(ctx, http.MethodPatch, path, f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCustomField removes one custom field.
func (c *Client) DeleteCustomField(ctx context.Context, entity EntityType, id int64) error {
	return c.deleteEntity(ctx, fmt.Sprintf("/%s/custom_fields/%d", entity, id))
}

// ListRoles returns the tenant's access roles.
func (c *Client) ListRoles(ctx context.Context) ([]Role, error) {
	var env rolesEnvelope
	if err := c.getJSON(ctx, "/roles", nil, &env); err != nil {
		return nil, err
	}
	return env.Embedded.Roles, nil
}

// CreateRole creates one role.
func (c *Client) CreateRole(ctx context.Context, r Role) (*Role, error) {
	var env rolesEnvelope
	if err := c.sendJSON(ctx, http.MethodPost, "/roles", []Role{r}, &env); err != nil {
		return nil, err
	}
	if len(env.Embedded.Roles) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("create role response missing _embedded.roles")}
	}
	return &env.Embedded.Roles[0], nil
}

// UpdateRole patches one role.
func (c *Client) UpdateRole(ctx context.Context, id int64, r Role) (*Role, error) {
	var out Role
	if err := c.sendJSON(ctx, http.MethodPatch, fmt.Sprintf("/roles/%d", id), r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRole removes one role.
func (c *Client) DeleteRole(ctx context.Context, id int64) error {
	return c.deleteEntity(ctx, fmt.Sprintf("/roles/%d", id))
}

// Ping verifies that the token is valid and the tenant is reachable.
func (c *Client) Ping(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.getJSON(ctx, "/account", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
