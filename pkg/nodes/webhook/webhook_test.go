package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence/file"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *file.Persistence
	executor *Executor
	sleeps   []time.Duration
	contact  *models.Contact
}

func newFixture(t *testing.T, options Options) *fixture {
	t.Helper()

	f := &fixture{store: file.NewPersistence(t.TempDir())}
	f.executor = New(slog.Default(), f.store.Webhooks(), f.store.Contacts(), nil, options)
	f.executor.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)

		return nil
	}

	f.contact = &models.Contact{ID: "c1", TenantID: "t1", FirstName: "Ada", LastName: "Lovelace", Phone: "+15551234567"}
	require.NoError(t, f.store.Contacts().Save(t.Context(), f.contact))

	return f
}

func (f *fixture) input(cfg *models.WebhookConfig) *protocol.ExecutionInput {
	return &protocol.ExecutionInput{
		Now:            time.Now(),
		Journey:        &models.Journey{ID: "j1", TenantID: "t1"},
		Node:           &models.JourneyNode{ID: "hook", Type: models.NodeTypeExecuteWebhook, Config: cfg},
		JourneyContact: &models.JourneyContact{ID: "jc1", TenantID: "t1", ContactID: "c1"},
		Contact:        f.contact,
	}
}

func TestExecutor_SubstitutesAndMapsResponse(t *testing.T) {
	var (
		gotPath   string
		gotHeader string
		gotBody   map[string]any
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Contact")

		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"id": "crm-42", "score": 9}}`))
	}))
	defer server.Close()

	f := newFixture(t, Options{MaxRetries: 2, Backoff: time.Second})

	result, err := f.executor.Execute(t.Context(), f.input(&models.WebhookConfig{
		URL:             server.URL + "/leads/{{contact.id}}",
		Headers:         map[string]string{"X-Contact": "{{firstName}}"},
		Body:            `{"phone": "{{phone}}", "name": "{{contact.fullName}}", "missing": "{{nope}}"}`,
		ResponseMapping: map[string]string{"crm_id": "$.data.id", "score": "data.score", "absent": "$.data.none"},
	}))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSucceeded, result.Outcome)
	assert.Equal(t, "/leads/c1", gotPath)
	assert.Equal(t, "Ada", gotHeader)
	assert.Equal(t, map[string]any{"phone": "+15551234567", "name": "Ada Lovelace", "missing": ""}, gotBody)
	assert.Empty(t, f.sleeps)

	saved, err := f.store.Contacts().GetByID(t.Context(), "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "crm-42", saved.Attributes["crm_id"])
	assert.InDelta(t, 9, saved.Attributes["score"], 0)
	assert.NotContains(t, saved.Attributes, "absent")
	assert.Equal(t, "crm-42", f.contact.Attributes["crm_id"])
}

func TestExecutor_RetriesServerErrorsWithLinearBackoff(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte(`ok`))
	}))
	defer server.Close()

	f := newFixture(t, Options{MaxRetries: 3, Backoff: 2 * time.Second})

	result, err := f.executor.Execute(t.Context(), f.input(&models.WebhookConfig{URL: server.URL}))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSucceeded, result.Outcome)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.sleeps)
	assert.Equal(t, 3, result.Data["attempts"])
}

func TestExecutor_ExhaustedRetriesFail(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newFixture(t, Options{MaxRetries: 2, Backoff: time.Second})

	result, err := f.executor.Execute(t.Context(), f.input(&models.WebhookConfig{URL: server.URL}))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.Equal(t, "webhook_failed", result.Reason)
	assert.Contains(t, result.Error, "HTTP 500")
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecutor_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	zero := 0
	f := newFixture(t, Options{MaxRetries: 5, Backoff: time.Second})

	result, err := f.executor.Execute(t.Context(), f.input(&models.WebhookConfig{URL: server.URL}))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.Equal(t, int32(1), calls.Load())

	result, err = f.executor.Execute(t.Context(), f.input(&models.WebhookConfig{URL: server.URL, MaxRetries: &zero}))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecutor_ErrorFieldMarksBusinessFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": "duplicate lead"}`))
	}))
	defer server.Close()

	f := newFixture(t, Options{})

	result, err := f.executor.Execute(t.Context(), f.input(&models.WebhookConfig{URL: server.URL, ErrorField: "$.error"}))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.Equal(t, "webhook_error_field", result.Reason)
	assert.Contains(t, result.Error, "duplicate lead")
}

func TestExecutor_StoredDefinition(t *testing.T) {
	var method, auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	f := newFixture(t, Options{})
	require.NoError(t, f.store.Webhooks().Save(t.Context(), &models.WebhookDefinition{
		ID:       "wh-1",
		TenantID: "t1",
		URL:      server.URL,
		Method:   "put",
		Headers:  map[string]string{"Authorization": "Bearer secret"},
	}))

	result, err := f.executor.Execute(t.Context(), f.input(&models.WebhookConfig{WebhookID: "wh-1"}))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSucceeded, result.Outcome)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "Bearer secret", auth)
}

func TestExecutor_MissingDefinitionIsFatal(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.executor.Execute(t.Context(), f.input(&models.WebhookConfig{WebhookID: "missing"}))
	require.Error(t, err)
	assert.True(t, protocol.IsConfigError(err))
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"false", false},
		{"0", false},
		{"boom", true},
		{float64(0), false},
		{float64(3), true},
		{[]any{}, false},
		{map[string]any{"code": 1.0}, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Truthy(tt.value), "%v", tt.value)
	}
}
