package engine_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/audio"
	"github.com/dukex/journey/pkg/engine"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/numberpool"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/persistence/file"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/dukex/journey/pkg/registry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantID = "tenant-1"

var start = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMessenger) SendSMS(_ context.Context, _, to, body, _ string) (*protocol.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, to+": "+body)

	return &protocol.SendResult{ID: fmt.Sprintf("msg-%d", len(m.sent))}, nil
}

type recordingTelephony struct {
	mu    sync.Mutex
	calls []protocol.CallRequest
}

func (t *recordingTelephony) PlaceCall(_ context.Context, req protocol.CallRequest) (*protocol.CallResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, req)

	return &protocol.CallResult{CorrelationID: fmt.Sprintf("call-%d", len(t.calls))}, nil
}

type staticAudio struct{}

func (staticAudio) Resolve(context.Context, string, *models.MakeCallConfig, *models.Contact) (audio.Source, error) {
	return audio.Source{Ref: "https://cdn.example.com/intro.mp3", Kind: "url"}, nil
}

type fixture struct {
	store     *file.Persistence
	clock     *fakeClock
	engine    *engine.Engine
	config    engine.Config
	messenger *recordingMessenger
	telephony *recordingTelephony
	journey   *models.Journey
	contact   *models.Contact
	created   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	clock := &fakeClock{now: start}
	messenger := &recordingMessenger{}
	telephony := &recordingTelephony{}

	reg := registry.NewDefault(slog.Default(), registry.Dependencies{
		Persistence: store,
		Messenger:   messenger,
		Telephony:   telephony,
		Audio:       staticAudio{},
		NumberPool:  numberpool.New(numberpool.NewMemoryCounter(), clock.Now),
	})

	config := engine.Config{
		Persistence: store,
		Executor:    reg,
		Clock:       clock.Now,
		Options:     engine.DefaultOptions(),
	}
	eng := engine.New(slog.Default(), config)

	f := &fixture{
		store:     store,
		clock:     clock,
		engine:    eng,
		config:    config,
		messenger: messenger,
		telephony: telephony,
		created:   start.Add(-time.Hour),
		journey: &models.Journey{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Name:      "Lead follow-up",
			Status:    models.JourneyStatusActive,
			CreatedAt: start,
			UpdatedAt: start,
		},
	}

	require.NoError(t, store.Journeys().Save(t.Context(), f.journey))

	f.contact = f.addContact(t, "+15551110000")

	return f
}

func (f *fixture) addContact(t *testing.T, phone string) *models.Contact {
	t.Helper()

	contact := &models.Contact{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		FirstName:  "Ada",
		Phone:      phone,
		LeadStatus: "NEW",
	}

	require.NoError(t, f.store.Contacts().Save(t.Context(), contact))

	return contact
}

// node stores a node; creation order follows call order.
func (f *fixture) node(t *testing.T, nodeType models.NodeType, config models.NodeConfig, conns models.Connections) *models.JourneyNode {
	t.Helper()

	f.created = f.created.Add(time.Second)

	n := &models.JourneyNode{
		ID:          uuid.NewString(),
		JourneyID:   f.journey.ID,
		Type:        nodeType,
		Name:        string(nodeType),
		Config:      config,
		Connections: conns,
		CreatedAt:   f.created,
		UpdatedAt:   f.created,
	}

	require.NoError(t, f.store.Nodes().Save(t.Context(), n))
	f.engine.InvalidateJourney(f.journey.ID)

	return n
}

func (f *fixture) saveJourney(t *testing.T) {
	t.Helper()

	require.NoError(t, f.store.Journeys().Save(t.Context(), f.journey))
}

func (f *fixture) enroll(t *testing.T, contact *models.Contact) *models.JourneyContact {
	t.Helper()

	jc, err := f.engine.EnrollContact(t.Context(), tenantID, f.journey.ID, contact.ID, "test", nil)
	require.NoError(t, err)

	return jc
}

func (f *fixture) membership(t *testing.T, jcID string) *models.JourneyContact {
	t.Helper()

	jc, err := f.store.JourneyContacts().GetByID(t.Context(), jcID)
	require.NoError(t, err)

	return jc
}

// executions groups a journey contact's executions by node id.
func (f *fixture) executions(t *testing.T, jcID string) map[string][]*models.JourneyNodeExecution {
	t.Helper()

	all, err := f.store.Executions().ListByJourneyContact(t.Context(), jcID)
	require.NoError(t, err)

	byNode := make(map[string][]*models.JourneyNodeExecution)
	for _, e := range all {
		byNode[e.NodeID] = append(byNode[e.NodeID], e)
	}

	return byNode
}

func (f *fixture) only(t *testing.T, jcID, nodeID string) *models.JourneyNodeExecution {
	t.Helper()

	execs := f.executions(t, jcID)[nodeID]
	require.Len(t, execs, 1, "executions of node %s", nodeID)

	return execs[0]
}

func sms(content string) *models.SendSMSConfig {
	return &models.SendSMSConfig{ContentMode: models.ContentModeContent, Content: content}
}

func oneDay() *models.TimeDelayConfig {
	return &models.TimeDelayConfig{DelayValue: 1, DelayUnit: models.DelayUnitDays}
}

func next(id string) models.Connections {
	return models.Connections{NextNodeID: id}
}

func TestEngine_SmsDelayCall(t *testing.T) {
	f := newFixture(t)

	callNode := f.node(t, models.NodeTypeMakeCall, &models.MakeCallConfig{AudioFile: "intro.mp3"}, models.Connections{})
	delayNode := f.node(t, models.NodeTypeTimeDelay, oneDay(), next(callNode.ID))
	smsNode := f.node(t, models.NodeTypeSendSMS, sms("Hi {{firstName}}"), next(delayNode.ID))

	jc := f.enroll(t, f.contact)

	smsExec := f.only(t, jc.ID, smsNode.ID)
	assert.Equal(t, models.ExecutionCompleted, smsExec.Status)
	assert.Equal(t, models.OutcomeSent, smsExec.Result.Outcome)
	assert.Equal(t, []string{"+15551110000: Hi Ada"}, f.messenger.sent)

	delayExec := f.only(t, jc.ID, delayNode.ID)
	assert.Equal(t, models.ExecutionCompleted, delayExec.Status)
	assert.True(t, start.Equal(delayExec.ScheduledAt))
	assert.Equal(t, models.OutcomeWaited, delayExec.Result.Outcome)

	callExec := f.only(t, jc.ID, callNode.ID)
	assert.Equal(t, models.ExecutionPending, callExec.Status)

	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	assert.True(t, base.Add(engine.Spread(jc.ID, 120*time.Minute)).Equal(callExec.ScheduledAt), "got %s", callExec.ScheduledAt)
	assert.False(t, callExec.ScheduledAt.Before(base))
	assert.True(t, callExec.ScheduledAt.Before(base.Add(120*time.Minute)))

	got := f.membership(t, jc.ID)
	assert.Equal(t, models.JourneyContactActive, got.Status)
	assert.Equal(t, callNode.ID, got.CurrentNodeID)
	assert.Empty(t, f.telephony.calls)
}

func TestEngine_ConditionRouting(t *testing.T) {
	tests := []struct {
		name       string
		leadStatus string
		wantSold   bool
	}{
		{name: "sold contact takes the branch", leadStatus: "SOLD", wantSold: true},
		{name: "other contact takes the default", leadStatus: "NEW", wantSold: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			sold := f.node(t, models.NodeTypeTimeDelay, oneDay(), models.Connections{})
			other := f.node(t, models.NodeTypeTimeDelay, oneDay(), models.Connections{})
			cond := f.node(t, models.NodeTypeCondition, &models.ConditionConfig{}, models.Connections{
				Branches: []models.Branch{{
					Condition:  models.Condition{Field: "contact.leadStatus", Operator: "equals", Value: "SOLD"},
					NextNodeID: sold.ID,
				}},
				DefaultBranch: &models.DefaultBranch{NextNodeID: other.ID},
			})

			f.contact.LeadStatus = tt.leadStatus
			require.NoError(t, f.store.Contacts().Save(t.Context(), f.contact))

			jc := f.enroll(t, f.contact)

			assert.Equal(t, models.ExecutionCompleted, f.only(t, jc.ID, cond.ID).Status)

			taken, skipped := sold, other
			if !tt.wantSold {
				taken, skipped = other, sold
			}

			assert.Len(t, f.executions(t, jc.ID)[taken.ID], 1)
			assert.Empty(t, f.executions(t, jc.ID)[skipped.ID])
		})
	}
}

func TestEngine_DuplicateEnrollment(t *testing.T) {
	f := newFixture(t)

	f.node(t, models.NodeTypeTimeDelay, oneDay(), models.Connections{})

	first := f.enroll(t, f.contact)

	_, err := f.engine.EnrollContact(t.Context(), tenantID, f.journey.ID, f.contact.ID, "test", nil)
	require.ErrorIs(t, err, engine.ErrDuplicateEnrollment)

	members, err := f.store.JourneyContacts().ListByJourney(t.Context(), f.journey.ID, "")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, first.ID, members[0].ID)
}

func TestEngine_EnrollRejectsInactiveJourney(t *testing.T) {
	f := newFixture(t)

	f.node(t, models.NodeTypeTimeDelay, oneDay(), models.Connections{})

	f.journey.Status = models.JourneyStatusDraft
	f.saveJourney(t)

	_, err := f.engine.EnrollContact(t.Context(), tenantID, f.journey.ID, f.contact.ID, "test", nil)
	assert.ErrorIs(t, err, engine.ErrJourneyNotActive)

	_, err = f.engine.EnrollContact(t.Context(), "other-tenant", f.journey.ID, f.contact.ID, "test", nil)
	assert.ErrorIs(t, err, persistence.ErrJourneyNotFound)
}

func TestEngine_MalformedEdgePausesContact(t *testing.T) {
	f := newFixture(t)

	smsNode := f.node(t, models.NodeTypeSendSMS, sms("hello"), next("not-a-node-id"))

	jc := f.enroll(t, f.contact)

	exec := f.only(t, jc.ID, smsNode.ID)
	assert.Equal(t, models.ExecutionFailed, exec.Status)
	assert.Equal(t, engine.ReasonRouting, exec.Result.Reason)
	assert.NotEmpty(t, exec.Result.Error)

	got := f.membership(t, jc.ID)
	assert.Equal(t, models.JourneyContactPaused, got.Status)
	assert.Equal(t, smsNode.ID, got.CurrentNodeID)
}

func TestEngine_LoopDetection(t *testing.T) {
	f := newFixture(t)

	loopID := uuid.NewString()
	f.created = f.created.Add(time.Second)

	loop := &models.JourneyNode{
		ID:          loopID,
		JourneyID:   f.journey.ID,
		Type:        models.NodeTypeUpdateContactStatus,
		Config:      &models.UpdateContactStatusConfig{Status: "QUALIFIED"},
		Connections: models.Connections{NextNodeID: loopID},
		CreatedAt:   f.created,
	}
	require.NoError(t, f.store.Nodes().Save(t.Context(), loop))

	jc := f.enroll(t, f.contact)

	execs := f.executions(t, jc.ID)[loopID]
	require.Len(t, execs, 2)

	var failed int

	for _, e := range execs {
		if e.Status == models.ExecutionFailed {
			failed++
			assert.Equal(t, engine.ReasonLoopDetected, e.Result.Reason)
		}
	}

	assert.Equal(t, 1, failed)
	assert.Equal(t, models.JourneyContactPaused, f.membership(t, jc.ID).Status)
}

func TestEngine_LoadSpreading(t *testing.T) {
	f := newFixture(t)

	smsNode := f.node(t, models.NodeTypeSendSMS, sms("day two"), models.Connections{})
	f.node(t, models.NodeTypeTimeDelay, oneDay(), next(smsNode.ID))

	base := start.AddDate(0, 0, 1)
	distinct := make(map[time.Time]bool)

	for i := range 40 {
		contact := f.addContact(t, fmt.Sprintf("+1555300%04d", i))
		jc := f.enroll(t, contact)

		exec := f.only(t, jc.ID, smsNode.ID)
		assert.Equal(t, models.ExecutionPending, exec.Status)
		assert.True(t, base.Add(engine.Spread(jc.ID, 120*time.Minute)).Equal(exec.ScheduledAt))

		distinct[exec.ScheduledAt] = true
	}

	assert.Greater(t, len(distinct), 30)
}

func TestSpread(t *testing.T) {
	window := 120 * time.Minute
	distinct := make(map[time.Duration]bool)

	for i := range 1000 {
		key := fmt.Sprintf("jc-%d", i)

		offset := engine.Spread(key, window)
		assert.GreaterOrEqual(t, offset, time.Duration(0))
		assert.Less(t, offset, window)
		assert.Equal(t, offset, engine.Spread(key, window))

		distinct[offset] = true
	}

	assert.Greater(t, len(distinct), 900)
	assert.Equal(t, time.Duration(0), engine.Spread("jc-1", 0))
}

func TestEngine_EnrollmentOutOfHours(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.store.Tenants().SaveSettings(t.Context(), &models.TenantSettings{
		TenantID: tenantID,
		BusinessHours: models.BusinessHoursRule{
			Enabled:   true,
			StartTime: "09:00",
			EndTime:   "17:00",
			Timezone:  "UTC",
		},
	}))

	smsNode := f.node(t, models.NodeTypeSendSMS, sms("hello"), models.Connections{})

	f.clock.Advance(10 * time.Hour) // 20:00

	jc := f.enroll(t, f.contact)

	exec := f.only(t, jc.ID, smsNode.ID)
	assert.Equal(t, models.ExecutionPending, exec.Status)

	opening := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	assert.True(t, opening.Add(engine.Spread(jc.ID, 120*time.Minute)).Equal(exec.ScheduledAt), "got %s", exec.ScheduledAt)
	assert.Empty(t, f.messenger.sent)
}

func TestEngine_RemovePauseResume(t *testing.T) {
	f := newFixture(t)

	smsNode := f.node(t, models.NodeTypeSendSMS, sms("later"), models.Connections{})
	delayNode := f.node(t, models.NodeTypeTimeDelay, &models.TimeDelayConfig{DelayValue: 2, DelayUnit: models.DelayUnitHours}, next(smsNode.ID))

	jc := f.enroll(t, f.contact)
	assert.Equal(t, models.ExecutionCompleted, f.only(t, jc.ID, delayNode.ID).Status)

	require.NoError(t, f.engine.RemoveContact(t.Context(), tenantID, f.journey.ID, f.contact.ID, true))

	paused := f.membership(t, jc.ID)
	assert.Equal(t, models.JourneyContactPaused, paused.Status)
	assert.Equal(t, smsNode.ID, paused.CurrentNodeID)
	assert.Equal(t, models.ExecutionSkipped, f.only(t, jc.ID, smsNode.ID).Status)

	f.clock.Advance(time.Minute)

	require.NoError(t, f.engine.ResumeContact(t.Context(), tenantID, f.journey.ID, f.contact.ID))

	smsExecs := f.executions(t, jc.ID)[smsNode.ID]
	require.Len(t, smsExecs, 2)
	assert.Equal(t, []string{"+15551110000: later"}, f.messenger.sent)

	resumed := f.membership(t, jc.ID)
	assert.Equal(t, models.JourneyContactCompleted, resumed.Status)
	assert.Nil(t, resumed.PausedAt)

	err := f.engine.ResumeContact(t.Context(), tenantID, f.journey.ID, f.contact.ID)
	assert.ErrorIs(t, err, engine.ErrNotPaused)

	require.NoError(t, f.engine.RemoveContact(t.Context(), tenantID, f.journey.ID, f.contact.ID, false))

	removed := f.membership(t, jc.ID)
	assert.Equal(t, models.JourneyContactRemoved, removed.Status)
	assert.NotNil(t, removed.RemovedAt)

	other := f.addContact(t, "+15559998888")
	err = f.engine.RemoveContact(t.Context(), tenantID, f.journey.ID, other.ID, false)
	assert.ErrorIs(t, err, engine.ErrNotEnrolled)
}

func TestEngine_ReenrollAfterRemoval(t *testing.T) {
	f := newFixture(t)

	delayNode := f.node(t, models.NodeTypeTimeDelay, oneDay(), models.Connections{})
	smsNode := f.node(t, models.NodeTypeSendSMS, sms("welcome"), next(delayNode.ID))

	jc := f.enroll(t, f.contact)
	require.NoError(t, f.engine.RemoveContact(t.Context(), tenantID, f.journey.ID, f.contact.ID, false))

	f.clock.Advance(time.Hour)

	again := f.enroll(t, f.contact)
	assert.Equal(t, jc.ID, again.ID)
	assert.Equal(t, models.JourneyContactActive, again.Status)
	assert.Nil(t, again.RemovedAt)
	assert.Len(t, f.executions(t, jc.ID)[smsNode.ID], 2)
}

func TestEngine_ReenrollWithinLoopWindow(t *testing.T) {
	tests := []struct {
		name       string
		withDelay  bool
		remove     bool
		wantStatus models.JourneyContactStatus
	}{
		{name: "after completion", wantStatus: models.JourneyContactCompleted},
		{name: "after removal", withDelay: true, remove: true, wantStatus: models.JourneyContactActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			conns := models.Connections{}
			if tt.withDelay {
				conns = next(f.node(t, models.NodeTypeTimeDelay, oneDay(), models.Connections{}).ID)
			}

			smsNode := f.node(t, models.NodeTypeSendSMS, sms("welcome"), conns)

			jc := f.enroll(t, f.contact)

			if tt.remove {
				require.NoError(t, f.engine.RemoveContact(t.Context(), tenantID, f.journey.ID, f.contact.ID, false))
			} else {
				require.Equal(t, models.JourneyContactCompleted, f.membership(t, jc.ID).Status)
			}

			// same instant: both runs of the SMS node fall in one loop window
			f.enroll(t, f.contact)

			got := f.membership(t, jc.ID)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Empty(t, got.StatusReason)
			assert.Equal(t, 2, got.Enrollment)
			assert.Len(t, f.messenger.sent, 2)

			for _, e := range f.executions(t, jc.ID)[smsNode.ID] {
				assert.Equal(t, models.ExecutionCompleted, e.Status)
			}
		})
	}
}

func TestEngine_ZeroDelayRunsInline(t *testing.T) {
	units := []models.DelayUnit{models.DelayUnitMinutes, models.DelayUnitHours, models.DelayUnitDays}

	for _, unit := range units {
		t.Run(string(unit), func(t *testing.T) {
			f := newFixture(t)

			smsNode := f.node(t, models.NodeTypeSendSMS, sms("right away"), models.Connections{})
			delayNode := f.node(t, models.NodeTypeTimeDelay, &models.TimeDelayConfig{DelayValue: 0, DelayUnit: unit}, next(smsNode.ID))

			jc := f.enroll(t, f.contact)

			assert.Equal(t, []string{"+15551110000: right away"}, f.messenger.sent)
			assert.Equal(t, models.ExecutionCompleted, f.only(t, jc.ID, delayNode.ID).Status)

			smsExec := f.only(t, jc.ID, smsNode.ID)
			assert.Equal(t, models.ExecutionCompleted, smsExec.Status)
			assert.True(t, start.Equal(smsExec.ScheduledAt), "got %s", smsExec.ScheduledAt)
			assert.Equal(t, models.JourneyContactCompleted, f.membership(t, jc.ID).Status)
		})
	}
}

func TestEngine_InboundMessageScopedToJourney(t *testing.T) {
	tests := []struct {
		name        string
		journeyID   func(f *fixture) string
		wantReplied bool
	}{
		{name: "reply in this journey", journeyID: func(f *fixture) string { return f.journey.ID }, wantReplied: true},
		{name: "reply in another journey", journeyID: func(*fixture) string { return "other-journey" }, wantReplied: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			replied := f.node(t, models.NodeTypeTimeDelay, oneDay(), models.Connections{})
			silent := f.node(t, models.NodeTypeTimeDelay, oneDay(), models.Connections{})
			cond := f.node(t, models.NodeTypeCondition, &models.ConditionConfig{}, models.Connections{
				Branches: []models.Branch{{
					Condition:  models.Condition{Field: "message.received", Operator: "equals", Value: true},
					NextNodeID: replied.ID,
				}},
				DefaultBranch: &models.DefaultBranch{NextNodeID: silent.ID},
			})

			require.NoError(t, f.store.Messages().Save(t.Context(), &models.InboundMessage{
				ID:         uuid.NewString(),
				TenantID:   tenantID,
				ContactID:  f.contact.ID,
				JourneyID:  tt.journeyID(f),
				Body:       "yes please",
				ReceivedAt: start,
			}))

			jc := f.enroll(t, f.contact)

			assert.Equal(t, models.ExecutionCompleted, f.only(t, jc.ID, cond.ID).Status)

			taken, skipped := replied, silent
			if !tt.wantReplied {
				taken, skipped = silent, replied
			}

			assert.Len(t, f.executions(t, jc.ID)[taken.ID], 1)
			assert.Empty(t, f.executions(t, jc.ID)[skipped.ID])
		})
	}
}

func TestEngine_PausedJourneyPostpones(t *testing.T) {
	f := newFixture(t)

	smsNode := f.node(t, models.NodeTypeSendSMS, sms("later"), models.Connections{})
	f.node(t, models.NodeTypeTimeDelay, &models.TimeDelayConfig{DelayValue: 30}, next(smsNode.ID))

	jc := f.enroll(t, f.contact)

	f.journey.Status = models.JourneyStatusPaused
	f.saveJourney(t)

	f.clock.Advance(time.Hour)

	exec := f.only(t, jc.ID, smsNode.ID)
	require.NoError(t, f.engine.RunExecution(t.Context(), exec.ID))

	exec = f.only(t, jc.ID, smsNode.ID)
	assert.Equal(t, models.ExecutionPending, exec.Status)
	assert.True(t, f.clock.Now().Add(15*time.Minute).Equal(exec.ScheduledAt))

	f.journey.Status = models.JourneyStatusArchived
	f.saveJourney(t)

	require.NoError(t, f.engine.RunExecution(t.Context(), exec.ID))
	assert.Equal(t, models.ExecutionSkipped, f.only(t, jc.ID, smsNode.ID).Status)
	assert.Empty(t, f.messenger.sent)
}

func TestEngine_WebhookRemovalCriteria(t *testing.T) {
	f := newFixture(t)

	f.journey.RemovalCriteria = models.RemovalCriteria{
		Conditions: []models.RemovalCondition{{Type: models.RemovalWebhookPhoneMatch, PhoneField: "lead.phone"}},
	}
	f.saveJourney(t)

	f.node(t, models.NodeTypeTimeDelay, oneDay(), models.Connections{})

	jc := f.enroll(t, f.contact)

	removed, err := f.engine.CheckRemovalCriteriaForWebhook(t.Context(), tenantID, f.journey.ID, f.contact.ID, map[string]any{
		"lead": map[string]any{"phone": "(555) 000-9999"},
	})
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = f.engine.CheckRemovalCriteriaForWebhook(t.Context(), tenantID, f.journey.ID, f.contact.ID, map[string]any{
		"lead": map[string]any{"phone": "+1 (555) 111-0000"},
	})
	require.NoError(t, err)
	assert.True(t, removed)

	got := f.membership(t, jc.ID)
	assert.Equal(t, models.JourneyContactRemoved, got.Status)
	assert.Equal(t, "removal_criteria:webhook_phone_match", got.StatusReason)
}
