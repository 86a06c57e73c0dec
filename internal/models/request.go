package models

import (
	"time"

	"github.com/google/uuid"
)

// Classification tells first-time callers from repeat callers.
type Classification string

const (
	FirstTime Classification = "first_time"
	Repeat    Classification = "repeat"
)

// RequestStatus is the lifecycle state of a service request.
type RequestStatus string

const (
	StatusNew        RequestStatus = "new"
	StatusInProgress RequestStatus = "in_progress"
	StatusDone       RequestStatus = "done"
	StatusRejected   RequestStatus = "rejected"
)

// Unresolved reports whether the request still counts for phone dedupe.
func (s RequestStatus) Unresolved() bool {
	return s == StatusNew
}

// ServiceRequest is a persisted service request.
type ServiceRequest struct {
	ID             uuid.UUID      `json:"id"`
	CallerPhone    string         `json:"caller_phone"`
	CampaignID     int64          `json:"campaign_id"`
	CityID         int64          `json:"city_id"`
	Classification Classification `json:"classification"`
	LineNumber     string         `json:"line_number"`
	Status         RequestStatus  `json:"status"`
	CallID         string         `json:"call_id,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewServiceRequest holds the fields of a create command.
type NewServiceRequest struct {
	CallerPhone    string
	CampaignID     int64
	CityID         int64
	Classification Classification
	LineNumber     string
	Status         RequestStatus
	CallID         string
	Notes          string
}

// Campaign is an advertising campaign bound to a dialed line.
type Campaign struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	CityID     int64  `json:"city_id"`
	LineNumber string `json:"line_number"`
}

// UnresolvedEvent is a call event that could not be processed because the
// store was unavailable.
type UnresolvedEvent struct {
	CallID       string
	CallerNumber string
	LineNumber   string
	State        string
	Payload      []byte
	Error        string
	ReceivedAt   time.Time
}

// RequestCounts is the call-center report for a time window.
type RequestCounts struct {
	Total     int64 `json:"total"`
	FirstTime int64 `json:"first_time"`
	Repeat    int64 `json:"repeat"`
}

// StatusUpdateRequest is the PATCH /requests/:id/status payload.
type StatusUpdateRequest struct {
	Status RequestStatus `json:"status" validate:"required,oneof=new in_progress done rejected"`
}

// RequestFilter narrows a request listing. Nil fields do not filter.
// The time window is half-open, [From,To).
type RequestFilter struct {
	Status     *RequestStatus
	CampaignID *int64
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
