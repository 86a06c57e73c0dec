package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CallState is the provider's call_state value.
type CallState string

// finalCallStates are the states that mark a call as ended. Anything else
// (Appeared, Connected, OnHold...) is an intermediate delivery.
var finalCallStates = map[string]struct{}{
	"disconnected": {},
	"completed":    {},
	"finished":     {},
}

// IsFinal reports whether the call has ended. Comparison is case-insensitive.
func (s CallState) IsFinal() bool {
	_, ok := finalCallStates[strings.ToLower(strings.TrimSpace(string(s)))]
	return ok
}

// CallEvent is one webhook delivery describing the state of a call.
type CallEvent struct {
	CallID       string    `validate:"required"`
	Seq          int64
	State        CallState
	CallerNumber string `validate:"required"`
	DialedNumber string `validate:"required"`
	LineNumber   string
}

// CallPayload is the JSON document carried in the webhook's "json" form field.
type CallPayload struct {
	CallID    string          `json:"call_id"`
	Seq       json.RawMessage `json:"seq"`
	CallState string          `json:"call_state"`
	From      CallEndpoint    `json:"from"`
	To        CallEndpoint    `json:"to"`
}

// CallEndpoint is one side of the call.
type CallEndpoint struct {
	Number     string `json:"number"`
	LineNumber string `json:"line_number,omitempty"`
}

// Event converts the wire payload into a CallEvent. A seq that is not an
// integer, quoted or not, is treated as zero; the gate does not order on it.
func (p CallPayload) Event() CallEvent {
	return CallEvent{
		CallID:       strings.TrimSpace(p.CallID),
		Seq:          parseSeq(p.Seq),
		State:        CallState(p.CallState),
		CallerNumber: strings.TrimSpace(p.From.Number),
		DialedNumber: strings.TrimSpace(p.To.Number),
		LineNumber:   strings.TrimSpace(p.To.LineNumber),
	}
}

// WebhookResponse is returned for every webhook delivery with HTTP 200.
type WebhookResponse struct {
	OK             bool   `json:"ok"`
	Detail         string `json:"detail,omitempty"`
	Reason         string `json:"reason,omitempty"`
	ExistingID     string `json:"existing_id,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
	Classification string `json:"type,omitempty"`
	CallID         string `json:"call_id,omitempty"`
}

func parseSeq(raw json.RawMessage) int64 {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			return v
		}
		return 0
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
