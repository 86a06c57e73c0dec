// Package intaketest provides in-memory implementations of the intake
// store contracts for tests.
package intaketest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PratikDhanave/call-intake-service/internal/intake"
	"github.com/PratikDhanave/call-intake-service/internal/models"
)

// Store is an in-memory RequestStore and CampaignDirectory. It enforces the
// same uniqueness rules as the Postgres store inside CreateRequest.
type Store struct {
	mu        sync.Mutex
	requests  []models.ServiceRequest
	campaigns map[string]models.Campaign
	window    time.Duration
	now       func() time.Time

	// Err, when set, is returned by every store call.
	Err error

	Calls       int
	CreateCalls int
}

func NewStore() *Store {
	return &Store{
		campaigns: map[string]models.Campaign{},
		window:    intake.DefaultDedupeWindow,
		now:       time.Now,
	}
}

// SetClock overrides the store's notion of now.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddCampaign registers a campaign under its line number.
func (s *Store) AddCampaign(c models.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.LineNumber] = c
}

// Seed inserts an existing request without any checks.
func (s *Store) Seed(r models.ServiceRequest) models.ServiceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	if r.Status == "" {
		r.Status = models.StatusNew
	}
	s.requests = append(s.requests, r)
	return r
}

// Requests returns a copy of every stored request.
func (s *Store) Requests() []models.ServiceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ServiceRequest(nil), s.requests...)
}

func (s *Store) FindUnresolvedByPhone(_ context.Context, phone string, window time.Duration) (*models.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.unresolvedLocked(phone, window), nil
}

func (s *Store) unresolvedLocked(phone string, window time.Duration) *models.ServiceRequest {
	since := s.now().Add(-window)
	for i := len(s.requests) - 1; i >= 0; i-- {
		r := s.requests[i]
		if r.CallerPhone == phone && r.Status.Unresolved() && !r.CreatedAt.Before(since) {
			return &r
		}
	}
	return nil
}

func (s *Store) FindByCallID(_ context.Context, callID string) (*models.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.byCallIDLocked(callID), nil
}

func (s *Store) byCallIDLocked(callID string) *models.ServiceRequest {
	for _, r := range s.requests {
		if r.CallID == callID || intake.HasNotesMarker(r.Notes, callID) {
			r := r
			return &r
		}
	}
	return nil
}

func (s *Store) HasAnyPriorRequest(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return false, s.Err
	}
	for _, r := range s.requests {
		if r.CallerPhone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateRequest(_ context.Context, req models.NewServiceRequest) (models.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	s.CreateCalls++
	if s.Err != nil {
		return models.ServiceRequest{}, s.Err
	}
	if s.byCallIDLocked(req.CallID) != nil || s.unresolvedLocked(req.CallerPhone, s.window) != nil {
		return models.ServiceRequest{}, intake.ErrConflict
	}

	now := s.now()
	r := models.ServiceRequest{
		ID:             uuid.New(),
		CallerPhone:    req.CallerPhone,
		CampaignID:     req.CampaignID,
		CityID:         req.CityID,
		Classification: req.Classification,
		LineNumber:     req.LineNumber,
		Status:         req.Status,
		CallID:         req.CallID,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.requests = append(s.requests, r)
	return r, nil
}

func (s *Store) FindCampaignByLine(_ context.Context, line string) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	c, ok := s.campaigns[line]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
