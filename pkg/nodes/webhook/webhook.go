// Package webhook implements the EXECUTE_WEBHOOK node.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/dukex/journey/pkg/template"
	"github.com/oliveagle/jsonpath"
)

const maxResponseBytes = 1 << 20

// Definitions loads stored webhook definitions.
type Definitions interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.WebhookDefinition, error)
}

// Attributes writes mapped response fields onto the contact.
type Attributes interface {
	MergeAttributes(ctx context.Context, tenantID, id string, attributes map[string]any) error
}

// Options bounds webhook execution.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Executor calls an HTTP endpoint with contact data substituted in.
type Executor struct {
	definitions Definitions
	attributes  Attributes
	client      *http.Client
	options     Options
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(logger *slog.Logger, definitions Definitions, attributes Attributes, client *http.Client, options Options) *Executor {
	if client == nil {
		client = &http.Client{}
	}

	if options.Timeout <= 0 {
		options.Timeout = 10 * time.Second
	}

	return &Executor{
		definitions: definitions,
		attributes:  attributes,
		client:      client,
		options:     options,
		logger:      logger,
		sleep:       sleepContext,
	}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeExecuteWebhook
}

func (e *Executor) Name() string {
	return "Execute Webhook"
}

func (e *Executor) Description() string {
	return "Calls an HTTP endpoint with retries, maps response fields onto the contact and checks a business error field"
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"webhook_id": map[string]any{
				"type":        "string",
				"description": "Stored webhook definition to call. Inline fields override it",
			},
			"url": map[string]any{
				"type":        "string",
				"description": "Endpoint URL. Supports {{variable}} and {{contact.field}} substitution",
				"examples":    []string{"https://crm.example.com/leads/{{contact.id}}"},
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				"default": "POST",
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":     "string",
				"examples": []string{`{"phone": "{{phone}}", "name": "{{contact.fullName}}"}`},
			},
			"timeout_seconds": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"maximum": 120,
			},
			"max_retries": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"maximum": 10,
			},
			"response_mapping": map[string]any{
				"type":                 "object",
				"description":          "Contact attribute name to JSONPath in the response body",
				"additionalProperties": map[string]any{"type": "string"},
				"examples":             []map[string]string{{"crm_id": "$.data.id"}},
			},
			"error_field": map[string]any{
				"type":        "string",
				"description": "JSONPath whose truthy value marks the call as a business failure",
				"examples":    []string{"$.error"},
			},
		},
		"anyOf": []map[string]any{
			{"required": []string{"url"}},
			{"required": []string{"webhook_id"}},
		},
	}
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode >= 500
}

type request struct {
	method  string
	url     string
	headers map[string]string
	body    string
}

type response struct {
	statusCode int
	body       []byte
	json       any
}

func (e *Executor) Execute(ctx context.Context, in *protocol.ExecutionInput) (protocol.Result, error) {
	cfg, err := protocol.ConfigAs[*models.WebhookConfig](in.Node)
	if err != nil {
		return protocol.Result{}, err
	}

	req, err := e.resolve(ctx, in, cfg)
	if err != nil {
		return protocol.Result{}, err
	}

	timeout := e.options.Timeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	retries := e.options.MaxRetries
	if cfg.MaxRetries != nil {
		retries = *cfg.MaxRetries
	}

	var (
		resp    *response
		lastErr error
		attempt int
	)

	for attempt = 1; attempt <= retries+1; attempt++ {
		if attempt > 1 {
			err := e.sleep(ctx, time.Duration(attempt-1)*e.options.Backoff)
			if err != nil {
				lastErr = err

				break
			}
		}

		resp, lastErr = e.perform(ctx, req, timeout)
		if lastErr == nil {
			break
		}

		e.logger.WarnContext(ctx, "webhook attempt failed",
			"node_id", in.Node.ID,
			"attempt", attempt,
			"error", lastErr,
		)

		httpErr := &HTTPError{}
		if errors.As(lastErr, &httpErr) && !httpErr.retryable() {
			break
		}
	}

	if lastErr != nil {
		result := protocol.Failure("webhook_failed", lastErr)
		result.Data = map[string]any{"attempts": min(attempt, retries+1), "url": req.url}

		return result, nil
	}

	data := map[string]any{
		"status_code": resp.statusCode,
		"attempts":    attempt,
		"url":         req.url,
	}

	if resp.json != nil {
		data["response"] = resp.json
	} else if len(resp.body) > 0 {
		data["response"] = string(resp.body)
	}

	if cfg.ErrorField != "" {
		value, found := Lookup(resp.json, cfg.ErrorField)
		if found && Truthy(value) {
			result := protocol.Failure("webhook_error_field", fmt.Errorf("%s: %v", cfg.ErrorField, value))
			result.Data = data

			return result, nil
		}
	}

	mapped := e.mapResponse(resp.json, cfg.ResponseMapping)
	if len(mapped) > 0 {
		err := e.attributes.MergeAttributes(ctx, in.TenantID(), in.Contact.ID, mapped)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to store mapped webhook fields",
				"node_id", in.Node.ID,
				"contact_id", in.Contact.ID,
				"error", err,
			)
		} else {
			if in.Contact.Attributes == nil {
				in.Contact.Attributes = make(map[string]any, len(mapped))
			}

			for k, v := range mapped {
				in.Contact.Attributes[k] = v
			}

			data["mapped"] = mapped
		}
	}

	return protocol.Result{Outcome: models.OutcomeSucceeded, Data: data}, nil
}

func (e *Executor) resolve(ctx context.Context, in *protocol.ExecutionInput, cfg *models.WebhookConfig) (request, error) {
	req := request{
		method:  cfg.Method,
		url:     cfg.URL,
		headers: cfg.Headers,
		body:    cfg.Body,
	}

	if cfg.WebhookID != "" {
		def, err := e.definitions.GetByID(ctx, in.TenantID(), cfg.WebhookID)
		if err != nil {
			if errors.Is(err, persistence.ErrWebhookNotFound) {
				return request{}, protocol.NewConfigError(in.Node.ID, "webhook definition not found", err)
			}

			return request{}, protocol.NewConfigError(in.Node.ID, "failed to load webhook definition", err)
		}

		if req.url == "" {
			req.url = def.URL
		}

		if req.method == "" {
			req.method = def.Method
		}

		if req.body == "" {
			req.body = def.Body
		}

		if len(def.Headers) > 0 {
			headers := make(map[string]string, len(def.Headers)+len(req.headers))
			for k, v := range def.Headers {
				headers[k] = v
			}

			for k, v := range req.headers {
				headers[k] = v
			}

			req.headers = headers
		}
	}

	if req.url == "" {
		return request{}, protocol.NewConfigError(in.Node.ID, "webhook has no url", nil)
	}

	if req.method == "" {
		req.method = http.MethodPost
	}

	vars := template.Variables(in.Contact, map[string]any{
		"journeyId":        in.Journey.ID,
		"journeyContactId": in.JourneyContact.ID,
		"nodeId":           in.Node.ID,
		"tenantId":         in.TenantID(),
	})

	req.method = strings.ToUpper(req.method)
	req.url = template.Render(req.url, vars)
	req.headers = template.RenderMap(req.headers, vars)
	req.body = template.Render(req.body, vars)

	return req, nil
}

func (e *Executor) perform(ctx context.Context, req request, timeout time.Duration) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.body != "" && req.method != http.MethodGet {
		body = strings.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to close webhook response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	out := &response{statusCode: resp.StatusCode, body: raw}

	var parsed any
	if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil {
		out.json = parsed
	}

	return out, nil
}

func (e *Executor) mapResponse(body any, mapping map[string]string) map[string]any {
	if body == nil || len(mapping) == 0 {
		return nil
	}

	mapped := make(map[string]any, len(mapping))

	for attribute, path := range mapping {
		value, found := Lookup(body, path)
		if found {
			mapped[attribute] = value
		}
	}

	return mapped
}

// Lookup evaluates a JSONPath against a decoded JSON document. The leading
// "$." is optional.
func Lookup(doc any, path string) (any, bool) {
	if doc == nil || path == "" {
		return nil, false
	}

	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}

	value, err := jsonpath.JsonPathLookup(doc, path)
	if err != nil {
		return nil, false
	}

	return value, true
}

// Truthy reports whether a JSON value signals an error.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(strings.ToLower(t))

		return s != "" && s != "false" && s != "0"
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
