// Package gateway implements the engine's outbound collaborators against a
// single HTTP gateway: compliance checks, SMS, calls, text-to-speech, audio
// storage and template rendering.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/protocol"
)

var ErrNoBaseURL = errors.New("gateway base URL is required")

const maxErrorBody = 4 << 10

// StatusError is returned when the gateway answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}

	return fmt.Sprintf("gateway %s: status %d", e.Op, e.StatusCode)
}

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Client struct {
	base   *url.URL
	token  string
	client *http.Client
	logger *slog.Logger
}

var (
	_ protocol.ComplianceGate   = (*Client)(nil)
	_ protocol.Messenger        = (*Client)(nil)
	_ protocol.Telephony        = (*Client)(nil)
	_ protocol.AudioRenderer    = (*Client)(nil)
	_ protocol.AudioStore       = (*Client)(nil)
	_ protocol.TemplateRenderer = (*Client)(nil)
)

func New(logger *slog.Logger, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, ErrNoBaseURL
	}

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URL: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		base:   base,
		token:  opts.Token,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("module", "gateway"),
	}, nil
}

type complianceRequest struct {
	TenantID  string              `json:"tenant_id"`
	ContactID string              `json:"contact_id"`
	Phone     string              `json:"phone"`
	Action    protocol.ActionType `json:"action"`
	Data      map[string]any      `json:"data,omitempty"`
}

func (c *Client) CheckCompliance(
	ctx context.Context,
	tenantID string,
	contact *models.Contact,
	action protocol.ActionType,
	data map[string]any,
) (*protocol.ComplianceDecision, error) {
	req := complianceRequest{
		TenantID:  tenantID,
		ContactID: contact.ID,
		Phone:     contact.Phone,
		Action:    action,
		Data:      data,
	}

	var decision protocol.ComplianceDecision

	err := c.do(ctx, "compliance", http.MethodPost, "/compliance/check", req, &decision)
	if err != nil {
		return nil, err
	}

	return &decision, nil
}

type smsRequest struct {
	TenantID string `json:"tenant_id"`
	To       string `json:"to"`
	Body     string `json:"body"`
	From     string `json:"from,omitempty"`
}

func (c *Client) SendSMS(ctx context.Context, tenantID, to, body, fromHint string) (*protocol.SendResult, error) {
	var result protocol.SendResult

	err := c.do(ctx, "send_sms", http.MethodPost, "/messages/sms", smsRequest{
		TenantID: tenantID,
		To:       to,
		Body:     body,
		From:     fromHint,
	}, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) PlaceCall(ctx context.Context, req protocol.CallRequest) (*protocol.CallResult, error) {
	var result protocol.CallResult

	err := c.do(ctx, "place_call", http.MethodPost, "/calls", req, &result)
	if err != nil {
		return nil, err
	}

	if result.CorrelationID == "" {
		return nil, fmt.Errorf("gateway place_call: response has no correlation id")
	}

	return &result, nil
}

type ttsRequest struct {
	Text  string             `json:"text"`
	Voice models.VoiceConfig `json:"voice"`
}

func (c *Client) RenderAudio(ctx context.Context, text string, voice models.VoiceConfig) (*protocol.RenderedAudio, error) {
	var audio protocol.RenderedAudio

	err := c.do(ctx, "render_audio", http.MethodPost, "/tts", ttsRequest{Text: text, Voice: voice}, &audio)
	if err != nil {
		return nil, err
	}

	return &audio, nil
}

type audioRef struct {
	URL string `json:"url"`
}

// Get returns the stored reference for key. A 404 means the key is not stored.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	var ref audioRef

	err := c.do(ctx, "get_audio", http.MethodGet, "/audio/"+url.PathEscape(key), nil, &ref)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return "", false, nil
		}

		return "", false, err
	}

	return ref.URL, true, nil
}

func (c *Client) Put(ctx context.Context, key string, data []byte) (string, error) {
	var ref audioRef

	err := c.send(ctx, "put_audio", http.MethodPut, "/audio/"+url.PathEscape(key), "application/octet-stream", bytes.NewReader(data), &ref)
	if err != nil {
		return "", err
	}

	return ref.URL, nil
}

type renderRequest struct {
	TenantID   string                `json:"tenant_id"`
	TemplateID string                `json:"template_id"`
	Kind       protocol.TemplateKind `json:"kind"`
	Variables  map[string]any        `json:"variables,omitempty"`
}

type renderResponse struct {
	Text string `json:"text"`
}

func (c *Client) Render(ctx context.Context, tenantID string, ref protocol.TemplateRef, variables map[string]any) (string, error) {
	var rendered renderResponse

	err := c.do(ctx, "render_template", http.MethodPost, "/templates/render", renderRequest{
		TenantID:   tenantID,
		TemplateID: ref.ID,
		Kind:       ref.Kind,
		Variables:  variables,
	}, &rendered)
	if err != nil {
		return "", err
	}

	return rendered.Text, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader

	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gateway %s: failed to encode request: %w", op, err)
		}

		body = bytes.NewReader(encoded)
	}

	return c.send(ctx, op, method, path, "application/json", body, out)
}

func (c *Client) send(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("gateway %s: failed to build request: %w", op, err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", op, err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			c.logger.WarnContext(ctx, "failed to close response body", "op", op, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("gateway %s: failed to decode response: %w", op, err)
	}

	return nil
}
