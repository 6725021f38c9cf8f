package logging

import (
	"context"
	"log/slog"
	"time"

	"listingsync/internal/core"
	"listingsync/internal/publish"
	"listingsync/internal/storage"
)

// PublisherLogger wraps a Publisher and logs all method calls
type PublisherLogger struct {
	publisher publish.Publisher
	logger    *slog.Logger
}

// NewPublisherLogger creates a new logging decorator for Publisher
func NewPublisherLogger(publisher publish.Publisher, logger *slog.Logger) publish.Publisher {
	return &PublisherLogger{
		publisher: publisher,
		logger:    logger.With("interface", "Publisher"),
	}
}

// with adds the caller's request id, when there is one
func (l *PublisherLogger) with(ctx context.Context) *slog.Logger {
	if id := RequestIDFrom(ctx); id != "" {
		return l.logger.With("request_id", id)
	}
	return l.logger
}

func (l *PublisherLogger) RequestBulkPublish(ctx context.Context, req publish.BulkRequest) (*publish.BulkResult, error) {
	start := time.Now()
	log := l.with(ctx)
	log.Info("RequestBulkPublish called",
		"user_id", req.UserID,
		"property_ids", req.PropertyIDs,
		"platforms", req.Platforms,
		"scheduled_for", req.ScheduledFor)

	result, err := l.publisher.RequestBulkPublish(ctx, req)
	duration := time.Since(start)

	if err != nil {
		log.Error("RequestBulkPublish failed",
			"user_id", req.UserID,
			"duration", duration,
			"error", err)
		return nil, err
	}

	accepted := 0
	for _, r := range result.Results {
		if r.Success {
			accepted++
		}
	}
	log.Info("RequestBulkPublish completed",
		"user_id", req.UserID,
		"job_id", result.JobID,
		"pairs", len(result.Results),
		"accepted", accepted,
		"duration", duration)

	return result, nil
}

func (l *PublisherLogger) UpdatePublication(ctx context.Context, id string, listing *core.ListingData) (*core.Publication, error) {
	start := time.Now()
	log := l.with(ctx)
	log.Info("UpdatePublication called",
		"publication_id", id,
		"rebuild_listing", listing == nil)

	pub, err := l.publisher.UpdatePublication(ctx, id, listing)
	duration := time.Since(start)

	if err != nil {
		log.Error("UpdatePublication failed",
			"publication_id", id,
			"duration", duration,
			"error", err)
		return nil, err
	}

	log.Info("UpdatePublication completed",
		"publication_id", id,
		"external_id", pub.ExternalID,
		"duration", duration)

	return pub, nil
}

func (l *PublisherLogger) Unpublish(ctx context.Context, id string) error {
	start := time.Now()
	log := l.with(ctx)
	log.Info("Unpublish called",
		"publication_id", id)

	err := l.publisher.Unpublish(ctx, id)
	duration := time.Since(start)

	if err != nil {
		log.Error("Unpublish failed",
			"publication_id", id,
			"duration", duration,
			"error", err)
		return err
	}

	log.Info("Unpublish completed",
		"publication_id", id,
		"duration", duration)

	return nil
}

func (l *PublisherLogger) Pause(ctx context.Context, id string) (*core.Publication, error) {
	return l.statusChange(ctx, "Pause", id, l.publisher.Pause)
}

func (l *PublisherLogger) Resume(ctx context.Context, id string) (*core.Publication, error) {
	return l.statusChange(ctx, "Resume", id, l.publisher.Resume)
}

func (l *PublisherLogger) SyncPublication(ctx context.Context, id string) (*core.Publication, error) {
	return l.statusChange(ctx, "SyncPublication", id, l.publisher.SyncPublication)
}

func (l *PublisherLogger) SyncStale(ctx context.Context, hoursStale int) (*publish.SyncReport, error) {
	start := time.Now()
	log := l.with(ctx)
	log.Info("SyncStale called",
		"hours_stale", hoursStale)

	report, err := l.publisher.SyncStale(ctx, hoursStale)
	duration := time.Since(start)

	if err != nil {
		log.Error("SyncStale failed",
			"hours_stale", hoursStale,
			"duration", duration,
			"error", err)
		return report, err
	}

	log.Info("SyncStale completed",
		"hours_stale", hoursStale,
		"checked", report.Checked,
		"updated", report.Updated,
		"failed", report.Failed,
		"duration", duration)

	return report, nil
}

func (l *PublisherLogger) GetPublication(ctx context.Context, id string) (*core.Publication, error) {
	start := time.Now()
	log := l.with(ctx)
	log.Debug("GetPublication called",
		"publication_id", id)

	pub, err := l.publisher.GetPublication(ctx, id)
	duration := time.Since(start)

	if err != nil {
		log.Debug("GetPublication failed",
			"publication_id", id,
			"duration", duration,
			"error", err)
		return nil, err
	}

	log.Debug("GetPublication completed",
		"publication_id", id,
		"status", pub.Status,
		"duration", duration)

	return pub, nil
}

func (l *PublisherLogger) ListPublications(ctx context.Context, filter storage.PublicationFilter) ([]*core.Publication, error) {
	start := time.Now()
	log := l.with(ctx)
	log.Debug("ListPublications called",
		"user_id", filter.UserID,
		"property_id", filter.PropertyID)

	pubs, err := l.publisher.ListPublications(ctx, filter)
	duration := time.Since(start)

	if err != nil {
		log.Error("ListPublications failed",
			"duration", duration,
			"error", err)
		return nil, err
	}

	log.Debug("ListPublications completed",
		"count", len(pubs),
		"duration", duration)

	return pubs, nil
}

func (l *PublisherLogger) statusChange(ctx context.Context, name, id string, call func(context.Context, string) (*core.Publication, error)) (*core.Publication, error) {
	start := time.Now()
	log := l.with(ctx)
	log.Info(name+" called",
		"publication_id", id)

	pub, err := call(ctx, id)
	duration := time.Since(start)

	if err != nil {
		log.Error(name+" failed",
			"publication_id", id,
			"duration", duration,
			"error", err)
		return nil, err
	}

	log.Info(name+" completed",
		"publication_id", id,
		"status", pub.Status,
		"duration", duration)

	return pub, nil
}
