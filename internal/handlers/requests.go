package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/PratikDhanave/call-intake-service/internal/apperr"
	"github.com/PratikDhanave/call-intake-service/internal/auth"
	"github.com/PratikDhanave/call-intake-service/internal/logger"
	"github.com/PratikDhanave/call-intake-service/internal/models"
	"github.com/PratikDhanave/call-intake-service/internal/store"
)

// RequestStore is the operator view of service requests.
type RequestStore interface {
	ListRequests(ctx context.Context, f models.RequestFilter) ([]models.ServiceRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (models.ServiceRequest, error)
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) (models.ServiceRequest, error)
}

var validate = validator.New()

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// RegisterRequestRoutes registers the operator request endpoints.
//
// GET   /requests?status=&campaign_id=&from=&to=&limit=&offset=
// GET   /requests/:id
// PATCH /requests/:id/status  {"status": "in_progress"}
func RegisterRequestRoutes(r gin.IRoutes, st RequestStore, log *logger.Logger) {
	if log == nil {
		log = logger.Default()
	}

	r.GET("/requests", func(c *gin.Context) {
		filter, err := parseRequestFilter(c)
		if handleError(c, err) {
			return
		}

		reqs, err := st.ListRequests(c.Request.Context(), filter)
		if handleError(c, storeError("list_requests", err, log)) {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"requests": reqs,
			"limit":    filter.Limit,
			"offset":   filter.Offset,
		})
	})

	r.GET("/requests/:id", func(c *gin.Context) {
		id, err := parseRequestID(c.Param("id"))
		if handleError(c, err) {
			return
		}

		req, err := st.GetRequest(c.Request.Context(), id)
		if handleError(c, storeError("get_request", err, log)) {
			return
		}
		c.JSON(http.StatusOK, req)
	})

	r.PATCH("/requests/:id/status", func(c *gin.Context) {
		id, err := parseRequestID(c.Param("id"))
		if handleError(c, err) {
			return
		}

		var body models.StatusUpdateRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			handleError(c, apperr.Validation("invalid JSON body"))
			return
		}
		if err := validate.Struct(body); err != nil {
			handleError(c, apperr.Validation("status must be one of new, in_progress, done, rejected"))
			return
		}

		req, err := st.UpdateRequestStatus(c.Request.Context(), id, body.Status)
		if handleError(c, storeError("update_request_status", err, log)) {
			return
		}

		log.WithContext(c.Request.Context()).Info("request status changed",
			slog.String("request_id", req.ID.String()),
			slog.String("status", string(req.Status)),
			slog.String("operator", auth.Operator(c)),
		)
		c.JSON(http.StatusOK, req)
	})
}

func parseRequestFilter(c *gin.Context) (models.RequestFilter, error) {
	f := models.RequestFilter{Limit: defaultListLimit}

	if raw := c.Query("status"); raw != "" {
		status := models.RequestStatus(raw)
		if err := validate.Var(raw, "oneof=new in_progress done rejected"); err != nil {
			return f, apperr.Validation("status must be one of new, in_progress, done, rejected")
		}
		f.Status = &status
	}
	if raw := c.Query("campaign_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return f, apperr.Validation("campaign_id must be a positive integer")
		}
		f.CampaignID = &id
	}
	for _, b := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := c.Query(b.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, apperr.Validation(b.name + " must be RFC3339")
		}
		t = t.UTC()
		*b.dst = &t
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return f, apperr.Validation("from must be < to")
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			return f, apperr.Validation("limit must be between 1 and 1000")
		}
		f.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, apperr.Validation("offset must be >= 0")
		}
		f.Offset = n
	}
	return f, nil
}

func parseRequestID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("id must be a UUID")
	}
	return id, nil
}

// storeError converts store failures into typed errors, logging the ones
// the caller cannot act on.
func storeError(op string, err error, log *logger.Logger) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("request not found")
	default:
		log.DatabaseError(op, err)
		return apperr.Wrap(apperr.KindInternal, "db query failed", err)
	}
}
