// Package intake decides, exactly once per call, whether an inbound
// telephony event becomes a new service request.
//
// Providers deliver webhooks at least once and send several deliveries per
// call, so duplicates and partial events are steady-state traffic: every
// rejection is an Outcome, and only store failures are returned as errors.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/PratikDhanave/call-intake-service/internal/logger"
	"github.com/PratikDhanave/call-intake-service/internal/models"
	"github.com/PratikDhanave/call-intake-service/internal/phone"
)

// DefaultDedupeWindow bounds the phone-based duplicate check.
const DefaultDedupeWindow = 30 * time.Minute

// ErrConflict is returned by RequestStore.CreateRequest when the insert
// collides with an existing request for the same call or caller.
var ErrConflict = errors.New("request store: conflicting request")

// RequestStore is the persistence the gate needs. Find methods return
// (nil, nil) when nothing matches.
type RequestStore interface {
	FindUnresolvedByPhone(ctx context.Context, phone string, window time.Duration) (*models.ServiceRequest, error)
	FindByCallID(ctx context.Context, callID string) (*models.ServiceRequest, error)
	HasAnyPriorRequest(ctx context.Context, phone string) (bool, error)
	CreateRequest(ctx context.Context, req models.NewServiceRequest) (models.ServiceRequest, error)
}

// CampaignDirectory resolves a dialed line to its campaign; (nil, nil) when unknown.
type CampaignDirectory interface {
	FindCampaignByLine(ctx context.Context, line string) (*models.Campaign, error)
}

// Invalidator drops cached read models after a request is created.
type Invalidator interface {
	InvalidateReports(ctx context.Context) error
}

// Options tune a Gate. Zero values pick defaults.
type Options struct {
	DedupeWindow time.Duration
	PhoneRegion  string
	Invalidator  Invalidator
	Logger       *logger.Logger
}

// Gate is the call-event ingestion gate.
type Gate struct {
	requests    RequestStore
	campaigns   CampaignDirectory
	phones      phone.Normalizer
	validate    *validator.Validate
	window      time.Duration
	invalidator Invalidator
	log         *logger.Logger
}

func NewGate(requests RequestStore, campaigns CampaignDirectory, opts Options) *Gate {
	window := opts.DedupeWindow
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Gate{
		requests:    requests,
		campaigns:   campaigns,
		phones:      phone.NewNormalizer(opts.PhoneRegion),
		validate:    validator.New(),
		window:      window,
		invalidator: opts.Invalidator,
		log:         log,
	}
}

// NotesMarker is the idempotency marker embedded in a request's notes.
func NotesMarker(callID string) string {
	return "call_id:" + callID
}

// HasNotesMarker reports whether notes carry the marker for exactly callID.
// The marker ends at the end of notes, whitespace, ',' or ';'. Call ids may
// contain base64 bytes, so "call_id:abc+def" is not a marker for "abc".
func HasNotesMarker(notes, callID string) bool {
	if callID == "" {
		return false
	}
	marker := NotesMarker(callID)
	for rest := notes; ; {
		i := strings.Index(rest, marker)
		if i < 0 {
			return false
		}
		end := i + len(marker)
		if end == len(rest) || isMarkerEnd(rest[end]) {
			return true
		}
		rest = rest[end:]
	}
}

func isMarkerEnd(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', ',', ';':
		return true
	}
	return false
}

// Ingest classifies one call event and creates a request when it is the
// first final delivery of a call not seen before.
func (g *Gate) Ingest(ctx context.Context, ev models.CallEvent) (Outcome, error) {
	log := g.log.WithContext(ctx).With(
		slog.String("call_id", ev.CallID),
		slog.Int64("seq", ev.Seq),
		slog.String("call_state", string(ev.State)),
	)

	out, err := g.ingest(ctx, ev)
	if err != nil {
		log.Error("call event unresolved", slog.String("error", err.Error()))
		return Outcome{}, err
	}

	attrs := []any{slog.String("outcome", out.Label())}
	if out.Created {
		attrs = append(attrs,
			slog.String("request_id", out.RequestID.String()),
			slog.String("classification", string(out.Classification)))
		log.Info("call event ingested", attrs...)
	} else {
		if out.ExistingID != uuid.Nil {
			attrs = append(attrs, slog.String("existing_id", out.ExistingID.String()))
		}
		log.Info("call event skipped", attrs...)
	}
	return out, nil
}

func (g *Gate) ingest(ctx context.Context, ev models.CallEvent) (Outcome, error) {
	if err := g.validate.Struct(ev); err != nil {
		return rejected(ReasonIncompleteEvent), nil
	}
	if !ev.State.IsFinal() {
		return rejected(ReasonNotFinal), nil
	}
	if ev.LineNumber == "" {
		return rejected(ReasonNoLineNumber), nil
	}

	caller := g.phones.E164(ev.CallerNumber)
	line := g.phones.E164(ev.LineNumber)

	if out, dup, err := g.checkPhone(ctx, caller, ev.CallID); err != nil || dup {
		return out, err
	}

	existing, err := g.requests.FindByCallID(ctx, ev.CallID)
	if err != nil {
		return Outcome{}, fmt.Errorf("intake: find by call id: %w", err)
	}
	if existing != nil {
		return duplicate(ReasonDuplicateByCallID, existing.ID), nil
	}

	campaign, err := g.campaigns.FindCampaignByLine(ctx, line)
	if err != nil {
		return Outcome{}, fmt.Errorf("intake: find campaign: %w", err)
	}
	if campaign == nil {
		return rejected(ReasonNoCampaign), nil
	}

	seen, err := g.requests.HasAnyPriorRequest(ctx, caller)
	if err != nil {
		return Outcome{}, fmt.Errorf("intake: prior requests: %w", err)
	}
	class := models.FirstTime
	if seen {
		class = models.Repeat
	}

	// Narrows the check-then-insert window; CreateRequest is the real guard.
	if out, dup, err := g.checkPhone(ctx, caller, ev.CallID); err != nil || dup {
		return out, err
	}

	req, err := g.requests.CreateRequest(ctx, models.NewServiceRequest{
		CallerPhone:    caller,
		CampaignID:     campaign.ID,
		CityID:         campaign.CityID,
		Classification: class,
		LineNumber:     line,
		Status:         models.StatusNew,
		CallID:         ev.CallID,
		Notes:          NotesMarker(ev.CallID),
	})
	if errors.Is(err, ErrConflict) {
		return rejected(ReasonCreationConflict), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("intake: create request: %w", err)
	}

	if g.invalidator != nil {
		if err := g.invalidator.InvalidateReports(ctx); err != nil {
			g.log.Warn("report cache invalidation failed", slog.String("error", err.Error()))
		}
	}

	return created(req.ID, class), nil
}

// checkPhone looks for an unresolved request from caller inside the dedupe
// window. A hit that carries the same call id is reported as a call-id
// duplicate since it is the very same call.
func (g *Gate) checkPhone(ctx context.Context, caller, callID string) (Outcome, bool, error) {
	existing, err := g.requests.FindUnresolvedByPhone(ctx, caller, g.window)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("intake: find by phone: %w", err)
	}
	if existing == nil {
		return Outcome{}, false, nil
	}
	if existing.CallID == callID {
		return duplicate(ReasonDuplicateByCallID, existing.ID), true, nil
	}
	return duplicate(ReasonDuplicateByPhone, existing.ID), true, nil
}
