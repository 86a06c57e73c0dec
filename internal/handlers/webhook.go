package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PratikDhanave/call-intake-service/internal/auth"
	"github.com/PratikDhanave/call-intake-service/internal/intake"
	"github.com/PratikDhanave/call-intake-service/internal/logger"
	"github.com/PratikDhanave/call-intake-service/internal/metrics"
	"github.com/PratikDhanave/call-intake-service/internal/models"
)

// Ingester is the call-event gate as seen by the webhook.
type Ingester interface {
	Ingest(ctx context.Context, ev models.CallEvent) (intake.Outcome, error)
}

// UnresolvedRecorder keeps events that failed on store errors.
type UnresolvedRecorder interface {
	RecordUnresolved(ctx context.Context, ev models.UnresolvedEvent) error
}

// WebhookHandler serves the telephony provider's call webhook.
type WebhookHandler struct {
	gate     Ingester
	recorder UnresolvedRecorder
	metrics  *metrics.IntakeMetrics
	log      *logger.Logger
}

func NewWebhookHandler(gate Ingester, recorder UnresolvedRecorder, m *metrics.IntakeMetrics, log *logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.Default()
	}
	return &WebhookHandler{gate: gate, recorder: recorder, metrics: m, log: log}
}

// RegisterWebhookRoutes registers the ingestion-path endpoints.
//
// POST /mango/webhook[/*subpath]
// - form-encoded, event JSON in the "json" field
// - always 200: the provider retries on anything else, and duplicates or
//   partial events are normal traffic
func RegisterWebhookRoutes(r gin.IRoutes, h *WebhookHandler) {
	r.POST("/mango/webhook", h.Handle)
	r.POST("/mango/webhook/*subpath", h.Handle)
}

// Handle decodes one delivery, runs it through the gate and answers 200.
func (h *WebhookHandler) Handle(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()
	raw := c.PostForm(auth.FormPayload)

	payload, ok := decodePayload(raw)
	if !ok {
		h.log.WithContext(ctx).Warn("call webhook payload unreadable", slog.Int("bytes", len(raw)))
	}
	ev := payload.Event()

	out, err := h.gate.Ingest(ctx, ev)
	if err != nil {
		h.recordUnresolved(ctx, ev, raw, err)
		h.metrics.ObserveOutcome("error", time.Since(start).Seconds())
		c.JSON(http.StatusOK, models.WebhookResponse{
			OK:     false,
			Detail: "event could not be processed, queued for follow-up",
			CallID: ev.CallID,
		})
		return
	}

	h.metrics.ObserveOutcome(out.Label(), time.Since(start).Seconds())
	c.JSON(http.StatusOK, webhookResponse(ev, out))
}

func (h *WebhookHandler) recordUnresolved(ctx context.Context, ev models.CallEvent, raw string, cause error) {
	if h.recorder == nil {
		return
	}
	// The request context may already be the reason the store failed.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	err := h.recorder.RecordUnresolved(recCtx, models.UnresolvedEvent{
		CallID:       ev.CallID,
		CallerNumber: ev.CallerNumber,
		LineNumber:   ev.LineNumber,
		State:        string(ev.State),
		Payload:      []byte(raw),
		Error:        cause.Error(),
		ReceivedAt:   time.Now().UTC(),
	})
	if err != nil {
		h.log.DatabaseError("record_unresolved", err)
	}
}

func webhookResponse(ev models.CallEvent, out intake.Outcome) models.WebhookResponse {
	if out.Created {
		return models.WebhookResponse{
			OK:             true,
			RequestID:      out.RequestID.String(),
			Classification: string(out.Classification),
			CallID:         ev.CallID,
		}
	}

	resp := models.WebhookResponse{
		OK:     true,
		Reason: string(out.Reason),
		Detail: rejectionDetail(ev, out),
		CallID: ev.CallID,
	}
	if out.ExistingID != uuid.Nil {
		resp.ExistingID = out.ExistingID.String()
	}
	return resp
}

func rejectionDetail(ev models.CallEvent, out intake.Outcome) string {
	switch out.Reason {
	case intake.ReasonIncompleteEvent:
		return "missing call data"
	case intake.ReasonNotFinal:
		return fmt.Sprintf("ignoring intermediate state: %s", ev.State)
	case intake.ReasonNoLineNumber:
		return "no line number to resolve campaign"
	case intake.ReasonDuplicateByPhone:
		return fmt.Sprintf("request already exists for this phone (id %s)", out.ExistingID)
	case intake.ReasonDuplicateByCallID:
		return fmt.Sprintf("request already exists for this call (id %s)", out.ExistingID)
	case intake.ReasonNoCampaign:
		return "no campaign for dialed line"
	case intake.ReasonCreationConflict:
		return "request created concurrently"
	default:
		return string(out.Reason)
	}
}

// decodePayload parses the "json" form field. Some senders encode it twice,
// so a second pass unescapes before giving up.
func decodePayload(raw string) (models.CallPayload, bool) {
	if raw == "" {
		return models.CallPayload{}, false
	}

	var p models.CallPayload
	if err := json.Unmarshal([]byte(raw), &p); err == nil {
		return p, true
	}

	unescaped, err := url.QueryUnescape(raw)
	if err != nil || unescaped == raw {
		return models.CallPayload{}, false
	}
	p = models.CallPayload{}
	if err := json.Unmarshal([]byte(unescaped), &p); err != nil {
		return models.CallPayload{}, false
	}
	return p, true
}
