package cache

import (
	"context"
	"log/slog"

	"github.com/PratikDhanave/call-intake-service/internal/intake"
	"github.com/PratikDhanave/call-intake-service/internal/logger"
	"github.com/PratikDhanave/call-intake-service/internal/models"
)

// CampaignDirectory is a read-through cache in front of another directory.
// Unknown lines are not cached so a newly provisioned campaign shows up on
// the next call.
type CampaignDirectory struct {
	next  intake.CampaignDirectory
	cache *Cache
	log   *logger.Logger
}

func NewCampaignDirectory(next intake.CampaignDirectory, c *Cache, log *logger.Logger) *CampaignDirectory {
	if log == nil {
		log = logger.Default()
	}
	return &CampaignDirectory{next: next, cache: c, log: log}
}

func (d *CampaignDirectory) FindCampaignByLine(ctx context.Context, line string) (*models.Campaign, error) {
	key := d.cache.Key("campaign", "line", line)

	var cached models.Campaign
	hit, err := d.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		d.log.Warn("campaign cache read failed", slog.String("line", line), slog.String("error", err.Error()))
	}
	if hit {
		return &cached, nil
	}

	c, err := d.next.FindCampaignByLine(ctx, line)
	if err != nil || c == nil {
		return c, err
	}

	if err := d.cache.SetJSON(ctx, key, c); err != nil {
		d.log.Warn("campaign cache write failed", slog.String("line", line), slog.String("error", err.Error()))
	}
	return c, nil
}
