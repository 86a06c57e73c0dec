package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/call-intake-service/internal/intake"
	"github.com/PratikDhanave/call-intake-service/internal/intake/intaketest"
	"github.com/PratikDhanave/call-intake-service/internal/logger"
	"github.com/PratikDhanave/call-intake-service/internal/metrics"
	"github.com/PratikDhanave/call-intake-service/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recorderStub struct {
	mu     sync.Mutex
	events []models.UnresolvedEvent
	err    error
}

func (r *recorderStub) RecordUnresolved(_ context.Context, ev models.UnresolvedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type webhookFixture struct {
	router   *gin.Engine
	store    *intaketest.Store
	recorder *recorderStub
	registry *prometheus.Registry
}

func newWebhookFixture(t *testing.T) webhookFixture {
	t.Helper()
	st := intaketest.NewStore()
	st.AddCampaign(models.Campaign{ID: 5, Name: "billboard", CityID: 2, LineNumber: "+78000"})

	gate := intake.NewGate(st, st, intake.Options{Logger: logger.Discard()})
	rec := &recorderStub{}
	reg := prometheus.NewRegistry()
	m := metrics.NewIntakeMetrics(reg)

	r := gin.New()
	RegisterWebhookRoutes(r, NewWebhookHandler(gate, rec, m, logger.Discard()))
	return webhookFixture{router: r, store: st, recorder: rec, registry: reg}
}

func (f webhookFixture) post(t *testing.T, path, payload string) models.WebhookResponse {
	t.Helper()
	form := url.Values{"json": {payload}}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, "webhook must always answer 200")
	var resp models.WebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// outcomeCount reads callintake_webhook_outcomes_total for one label.
func (f webhookFixture) outcomeCount(t *testing.T, outcome string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "callintake_webhook_outcomes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

const disconnected = `{"call_id":"c1","seq":3,"call_state":"Disconnected",` +
	`"from":{"number":"+70001"},"to":{"number":"+78000","line_number":"+78000"}}`

func TestWebhook_CreatesThenReportsDuplicate(t *testing.T) {
	f := newWebhookFixture(t)

	first := f.post(t, "/mango/webhook", disconnected)
	assert.True(t, first.OK)
	assert.NotEmpty(t, first.RequestID)
	assert.Equal(t, "first_time", first.Classification)
	assert.Equal(t, "c1", first.CallID)

	second := f.post(t, "/mango/webhook/events/summary", disconnected)
	assert.True(t, second.OK)
	assert.Empty(t, second.RequestID)
	assert.Equal(t, "duplicate_by_call_id", second.Reason)
	assert.Equal(t, first.RequestID, second.ExistingID)

	assert.Len(t, f.store.Requests(), 1)
	assert.Equal(t, float64(1), f.outcomeCount(t, "created"))
	assert.Equal(t, float64(1), f.outcomeCount(t, "duplicate_by_call_id"))
}

func TestWebhook_IntermediateStateIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	resp := f.post(t, "/mango/webhook", strings.Replace(disconnected, "Disconnected", "Connected", 1))
	assert.True(t, resp.OK)
	assert.Equal(t, "not_final", resp.Reason)
	assert.Contains(t, resp.Detail, "Connected")
	assert.Empty(t, f.store.Requests())
}

func TestWebhook_UnreadablePayloadIsIncomplete(t *testing.T) {
	f := newWebhookFixture(t)

	for _, payload := range []string{"", "not json", `{"call_id":`} {
		resp := f.post(t, "/mango/webhook", payload)
		assert.True(t, resp.OK)
		assert.Equal(t, "incomplete_event", resp.Reason)
	}
	assert.Zero(t, f.store.Calls)
}

func TestWebhook_AcceptsDoubleEncodedPayload(t *testing.T) {
	f := newWebhookFixture(t)

	resp := f.post(t, "/mango/webhook", url.QueryEscape(disconnected))
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.RequestID)
}

func TestWebhook_StoreFailureIsRecordedAndAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	f.store.Err = errors.New("connection refused")

	resp := f.post(t, "/mango/webhook", disconnected)
	assert.False(t, resp.OK)
	assert.Equal(t, "c1", resp.CallID)

	require.Len(t, f.recorder.events, 1)
	ev := f.recorder.events[0]
	assert.Equal(t, "c1", ev.CallID)
	assert.Equal(t, "+78000", ev.LineNumber)
	assert.Equal(t, "Disconnected", ev.State)
	assert.JSONEq(t, disconnected, string(ev.Payload))
	assert.Contains(t, ev.Error, "connection refused")
	assert.Equal(t, float64(1), f.outcomeCount(t, "error"))
}

func TestWebhook_LooseSeqStillCreates(t *testing.T) {
	for _, seq := range []string{`"n/a"`, `-1`, `"4"`} {
		t.Run(seq, func(t *testing.T) {
			f := newWebhookFixture(t)
			payload := strings.Replace(disconnected, `"seq":3`, `"seq":`+seq, 1)

			resp := f.post(t, "/mango/webhook", payload)
			assert.True(t, resp.OK)
			assert.Empty(t, resp.Reason)
			assert.NotEmpty(t, resp.RequestID)
			assert.Len(t, f.store.Requests(), 1)
		})
	}
}

func TestDecodePayload(t *testing.T) {
	p, ok := decodePayload(disconnected)
	require.True(t, ok)
	ev := p.Event()
	assert.Equal(t, "c1", ev.CallID)
	assert.Equal(t, int64(3), ev.Seq)
	assert.Equal(t, "+78000", ev.LineNumber)

	_, ok = decodePayload("%zz")
	assert.False(t, ok)
}
