package intake

import (
	"github.com/google/uuid"

	"github.com/PratikDhanave/call-intake-service/internal/models"
)

// Reason explains why an event did not create a request.
type Reason string

const (
	ReasonIncompleteEvent   Reason = "incomplete_event"
	ReasonNotFinal          Reason = "not_final"
	ReasonNoLineNumber      Reason = "no_line_number"
	ReasonDuplicateByPhone  Reason = "duplicate_by_phone"
	ReasonDuplicateByCallID Reason = "duplicate_by_call_id"
	ReasonNoCampaign        Reason = "no_campaign"
	ReasonCreationConflict  Reason = "creation_conflict"
)

// Outcome is the result of ingesting one call event. Exactly one of
// Created/Reason is meaningful.
type Outcome struct {
	Created        bool
	RequestID      uuid.UUID
	Classification models.Classification

	Reason     Reason
	ExistingID uuid.UUID // set for duplicate_by_* rejections
}

func created(id uuid.UUID, c models.Classification) Outcome {
	return Outcome{Created: true, RequestID: id, Classification: c}
}

func rejected(reason Reason) Outcome {
	return Outcome{Reason: reason}
}

func duplicate(reason Reason, existing uuid.UUID) Outcome {
	return Outcome{Reason: reason, ExistingID: existing}
}

// Label is a low-cardinality name for logs and metrics.
func (o Outcome) Label() string {
	if o.Created {
		return "created"
	}
	return string(o.Reason)
}
