package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/call-intake-service/internal/cache"
	"github.com/PratikDhanave/call-intake-service/internal/logger"
	"github.com/PratikDhanave/call-intake-service/internal/models"
)

// RequestCounter aggregates requests over a time window.
type RequestCounter interface {
	CountRequests(ctx context.Context, from, to time.Time, campaignID *int64) (models.RequestCounts, error)
}

type reportResponse struct {
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	CampaignID *int64    `json:"campaign_id,omitempty"`
	models.RequestCounts
}

// RegisterReportRoutes registers the serving-path endpoint.
//
// GET /reports/requests?from=...&to=...[&campaign_id=...]
// - Requires X-API-Key
// - Returns counts for the window [from,to)
// - Results are cached until the next request is created
func RegisterReportRoutes(r gin.IRoutes, st RequestCounter, c *cache.Cache, log *logger.Logger) {
	if log == nil {
		log = logger.Default()
	}

	r.GET("/reports/requests", func(ctx *gin.Context) {
		fromStr := ctx.Query("from")
		toStr := ctx.Query("to")

		// Required query params per contract.
		if fromStr == "" || toStr == "" {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "from, to are required"})
			return
		}

		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}

		from = from.UTC()
		to = to.UTC()

		if !from.Before(to) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		var campaignID *int64
		campaignKey := "all"
		if raw := ctx.Query("campaign_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "campaign_id must be a positive integer"})
				return
			}
			campaignID = &id
			campaignKey = raw
		}

		reqCtx := ctx.Request.Context()
		key := c.ReportKey(from.Format(time.RFC3339), to.Format(time.RFC3339), campaignKey)

		var counts models.RequestCounts
		hit, err := c.GetJSON(reqCtx, key, &counts)
		if err != nil {
			log.Warn("report cache read failed", slog.String("error", err.Error()))
		}
		if !hit {
			counts, err = st.CountRequests(reqCtx, from, to, campaignID)
			if err != nil {
				log.DatabaseError("count_requests", err)
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
				return
			}
			if err := c.SetJSON(reqCtx, key, counts); err != nil {
				log.Warn("report cache write failed", slog.String("error", err.Error()))
			}
		}

		ctx.JSON(http.StatusOK, reportResponse{
			From:          from,
			To:            to,
			CampaignID:    campaignID,
			RequestCounts: counts,
		})
	})
}
