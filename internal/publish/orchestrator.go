package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"listingsync/internal/clock"
	"listingsync/internal/core"
	"listingsync/internal/httpclient"
	"listingsync/internal/idgen"
	"listingsync/internal/platforms"
	"listingsync/internal/storage"
)

var (
	ErrInvalidRequest = errors.New("invalid publish request")
	ErrNotPublished   = errors.New("publication has no live listing")
)

// Adapters resolves platform adapters by key
type Adapters interface {
	Get(key string) (platforms.Adapter, error)
}

// BulkRequest asks for a set of properties to be listed on a set of platforms.
// When Listing is nil each property is transformed by the target adapter.
type BulkRequest struct {
	UserID       string
	PropertyIDs  []string
	Platforms    []string
	Listing      *core.ListingData
	ScheduledFor *time.Time
}

// PairResult is the outcome of one (property, platform) pair
type PairResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	PublicationID string `json:"publicationId,omitempty"`
}

// DuplicatePair is a pair repeated within one request. It is never claimed.
type DuplicatePair struct {
	Pair          string `json:"pair"`
	Message       string `json:"message"`
	PublicationID string `json:"publicationId,omitempty"`
}

// BulkResult is returned as soon as every pair has been claimed or rejected.
// A pair repeated within one request keeps its first result in Results and
// is listed in Duplicates.
type BulkResult struct {
	JobID       string                `json:"jobId"`
	Results     map[string]PairResult `json:"results"`
	Duplicates  []DuplicatePair       `json:"duplicates,omitempty"`
	ScheduledAt time.Time             `json:"scheduledAt"`
}

// SyncReport summarizes one stale sync pass
type SyncReport struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Options configures an Orchestrator
type Options struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Orchestrator drives adapters to publish listings and records the outcome
// of every attempt on the publication record.
type Orchestrator struct {
	store    storage.Storage
	adapters Adapters
	tokens   *TokenSource
	pool     *Pool
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates an orchestrator and starts its worker pool
func New(store storage.Storage, adapters Adapters, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Orchestrator{
		store:    store,
		adapters: adapters,
		tokens:   NewTokenSource(store, opts.Clock, opts.Logger),
		pool: NewPool(PoolConfig{
			Workers:    opts.Workers,
			QueueSize:  opts.QueueSize,
			JobTimeout: opts.JobTimeout,
			Clock:      opts.Clock,
			Logger:     opts.Logger,
		}),
		clock:  opts.Clock,
		logger: opts.Logger.With("component", "orchestrator"),
	}
}

// Tokens exposes the token source used for platform calls
func (o *Orchestrator) Tokens() *TokenSource {
	return o.tokens
}

// RequestBulkPublish claims a pending publication for every new pair and
// queues the platform calls. A failure on one pair never affects the others.
func (o *Orchestrator) RequestBulkPublish(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if len(req.PropertyIDs) == 0 || len(req.Platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one property and one platform are required", ErrInvalidRequest)
	}

	now := o.clock.Now()
	result := &BulkResult{
		JobID:       idgen.NewJob(),
		Results:     make(map[string]PairResult, len(req.PropertyIDs)*len(req.Platforms)),
		ScheduledAt: now,
	}
	if req.ScheduledFor != nil && req.ScheduledFor.After(now) {
		result.ScheduledAt = *req.ScheduledFor
	}

	properties := make(map[string]*core.Property)
	queued := 0

	for _, propertyID := range req.PropertyIDs {
		for _, platform := range req.Platforms {
			key := core.PairKey(propertyID, platform)
			if first, seen := result.Results[key]; seen {
				o.logger.Debug("Duplicate pair in bulk request", "job_id", result.JobID, "pair", key)
				result.Duplicates = append(result.Duplicates, DuplicatePair{
					Pair:          key,
					Message:       "already exists",
					PublicationID: first.PublicationID,
				})
				continue
			}

			pair := o.requestPair(ctx, req, result, propertyID, platform, properties)
			result.Results[key] = pair
			if pair.Success {
				queued++
			}
		}
	}

	o.logger.Info("Bulk publish requested",
		"job_id", result.JobID,
		"user_id", req.UserID,
		"pairs", len(result.Results),
		"queued", queued,
		"scheduled_at", result.ScheduledAt)

	return result, nil
}

// requestPair claims and queues one (property, platform) pair
func (o *Orchestrator) requestPair(ctx context.Context, req BulkRequest, result *BulkResult, propertyID, platform string, properties map[string]*core.Property) PairResult {
	adapter, err := o.adapters.Get(platform)
	if err != nil {
		return PairResult{Message: "unknown platform: " + platform}
	}

	listing, err := o.listingFor(ctx, req, propertyID, adapter, properties)
	if err != nil {
		return PairResult{Message: err.Error()}
	}

	pub, claimed, err := o.claim(ctx, req.UserID, propertyID, platform, &listing)
	if err != nil {
		o.logger.Error("Failed to claim publication",
			"job_id", result.JobID,
			"pair", core.PairKey(propertyID, platform),
			"error", err)
		return PairResult{Message: "failed to record publication"}
	}
	if !claimed {
		return PairResult{Message: "already exists", PublicationID: pub.ID}
	}

	if err := o.enqueue(ctx, pub.ID, listing, result.ScheduledAt); err != nil {
		o.recordFailure(ctx, pub, httpclient.NewError(httpclient.CodeUnknown, "publish could not be queued: "+err.Error()))
		return PairResult{Message: "publish could not be queued", PublicationID: pub.ID}
	}

	if req.ScheduledFor != nil && result.ScheduledAt.Equal(*req.ScheduledFor) {
		return PairResult{Success: true, Message: "scheduled", PublicationID: pub.ID}
	}
	return PairResult{Success: true, Message: "queued", PublicationID: pub.ID}
}

// PublishOne validates the listing, makes sure the user's tokens are usable
// and publishes it. The outcome is stored on pub; a failure is also returned.
func (o *Orchestrator) PublishOne(ctx context.Context, pub *core.Publication, listing core.ListingData) error {
	adapter, err := o.adapters.Get(pub.Platform)
	if err != nil {
		return o.recordFailure(ctx, pub, httpclient.NewError(httpclient.CodeNotFound, err.Error()))
	}

	if problems := adapter.ValidateListing(listing); len(problems) > 0 {
		return o.recordFailure(ctx, pub, httpclient.NewError(httpclient.CodeValidationError, platforms.JoinValidationErrors(problems)))
	}

	tokens, err := o.tokens.EnsureValid(ctx, pub.UserID, adapter)
	if err != nil {
		return o.recordFailure(ctx, pub, err)
	}

	published, err := adapter.Publish(ctx, tokens, listing)
	if err != nil {
		if httpclient.IsReconnectRequired(err) {
			o.tokens.Invalidate(ctx, pub.UserID, pub.Platform)
		}
		return o.recordFailure(ctx, pub, err)
	}

	pub.Snapshot(&listing)
	if err := pub.MarkActive(published.ExternalID, published.ExternalURL, o.clock.Now()); err != nil {
		return err
	}
	if err := o.store.UpdatePublication(ctx, pub); err != nil {
		return fmt.Errorf("failed to save publication %s: %w", pub.ID, err)
	}

	o.logger.Info("Listing published",
		"publication_id", pub.ID,
		"platform", pub.Platform,
		"external_id", pub.ExternalID)
	return nil
}

// UpdatePublication pushes new listing content to a live listing. A nil
// listing is rebuilt from the stored property.
func (o *Orchestrator) UpdatePublication(ctx context.Context, id string, listing *core.ListingData) (*core.Publication, error) {
	pub, adapter, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if pub.ExternalID == "" {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPublished, pub.ID, pub.Status)
	}

	if listing == nil {
		property, err := o.store.GetProperty(ctx, pub.PropertyID)
		if err != nil {
			return nil, err
		}
		transformed := adapter.TransformProperty(property)
		listing = &transformed
	}
	if problems := adapter.ValidateListing(*listing); len(problems) > 0 {
		return nil, httpclient.NewError(httpclient.CodeValidationError, platforms.JoinValidationErrors(problems))
	}

	tokens, err := o.tokens.EnsureValid(ctx, pub.UserID, adapter)
	if err != nil {
		return nil, err
	}

	updated, err := adapter.Update(ctx, tokens, pub.ExternalID, *listing)
	if err != nil {
		if httpclient.IsReconnectRequired(err) {
			o.tokens.Invalidate(ctx, pub.UserID, pub.Platform)
		}
		return nil, err
	}

	now := o.clock.Now()
	pub.Snapshot(listing)
	if updated.ExternalURL != "" {
		pub.ExternalURL = updated.ExternalURL
	}
	pub.LastSyncAt = &now
	pub.UpdatedAt = now
	if err := o.store.UpdatePublication(ctx, pub); err != nil {
		return nil, fmt.Errorf("failed to save publication %s: %w", pub.ID, err)
	}
	return pub, nil
}

// Unpublish removes the listing from the platform and deletes the record.
// The record is kept when the platform call fails.
func (o *Orchestrator) Unpublish(ctx context.Context, id string) error {
	pub, adapter, err := o.load(ctx, id)
	if err != nil {
		return err
	}

	if pub.ExternalID != "" {
		tokens, err := o.tokens.EnsureValid(ctx, pub.UserID, adapter)
		if err != nil {
			return err
		}
		if err := adapter.Delete(ctx, tokens, pub.ExternalID); err != nil {
			if httpclient.IsReconnectRequired(err) {
				o.tokens.Invalidate(ctx, pub.UserID, pub.Platform)
			}
			return err
		}
	}

	if err := o.store.DeletePublication(ctx, pub.ID); err != nil {
		return err
	}

	o.logger.Info("Listing unpublished", "publication_id", pub.ID, "platform", pub.Platform)
	return nil
}

// Pause marks an active publication paused. It does not call the platform.
func (o *Orchestrator) Pause(ctx context.Context, id string) (*core.Publication, error) {
	return o.transition(ctx, id, core.PublicationStatusPaused)
}

// Resume returns a paused publication to active
func (o *Orchestrator) Resume(ctx context.Context, id string) (*core.Publication, error) {
	return o.transition(ctx, id, core.PublicationStatusActive)
}

// FindStalePublications returns active publications not synced within hoursStale
func (o *Orchestrator) FindStalePublications(ctx context.Context, hoursStale int) ([]*core.Publication, error) {
	cutoff := o.clock.Now().Add(-time.Duration(hoursStale) * time.Hour)
	return o.store.ListStalePublications(ctx, cutoff)
}

// SyncStale polls the platform status of every stale publication
func (o *Orchestrator) SyncStale(ctx context.Context, hoursStale int) (*SyncReport, error) {
	stale, err := o.FindStalePublications(ctx, hoursStale)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale publications: %w", err)
	}

	report := &SyncReport{Checked: len(stale)}
	for _, pub := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		changed, err := o.sync(ctx, pub)
		if err != nil {
			report.Failed++
			o.logger.Warn("Status sync failed",
				"publication_id", pub.ID,
				"platform", pub.Platform,
				"code", httpclient.CodeOf(err),
				"error", err)
			continue
		}
		if changed {
			report.Updated++
		}
	}

	o.logger.Info("Stale sync finished",
		"hours_stale", hoursStale,
		"checked", report.Checked,
		"updated", report.Updated,
		"failed", report.Failed)
	return report, nil
}

// SyncPublication polls one publication's platform status now
func (o *Orchestrator) SyncPublication(ctx context.Context, id string) (*core.Publication, error) {
	pub, err := o.store.GetPublication(ctx, id)
	if err != nil {
		return nil, err
	}
	if pub.ExternalID == "" {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPublished, pub.ID, pub.Status)
	}
	if _, err := o.sync(ctx, pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// GetPublication returns one publication record
func (o *Orchestrator) GetPublication(ctx context.Context, id string) (*core.Publication, error) {
	return o.store.GetPublication(ctx, id)
}

// ListPublications returns publication records matching filter
func (o *Orchestrator) ListPublications(ctx context.Context, filter storage.PublicationFilter) ([]*core.Publication, error) {
	return o.store.ListPublications(ctx, filter)
}

// Shutdown drains queued publish work
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.pool.Shutdown(ctx)
}

// sync applies the platform's reported status to pub and stamps LastSyncAt.
// It reports whether the status changed.
func (o *Orchestrator) sync(ctx context.Context, pub *core.Publication) (bool, error) {
	adapter, err := o.adapters.Get(pub.Platform)
	if err != nil {
		return false, err
	}
	tokens, err := o.tokens.EnsureValid(ctx, pub.UserID, adapter)
	if err != nil {
		return false, err
	}

	status, err := adapter.Status(ctx, tokens, pub.ExternalID)
	if err != nil {
		if httpclient.IsReconnectRequired(err) {
			o.tokens.Invalidate(ctx, pub.UserID, pub.Platform)
		}
		return false, err
	}

	now := o.clock.Now()
	changed := false
	if status.Status != pub.Status {
		previous := pub.Status
		if err := pub.TransitionTo(status.Status, now); err != nil {
			// Platform states without a local transition (e.g. moderation) leave the record alone
			o.logger.Debug("Ignoring platform status",
				"publication_id", pub.ID,
				"status", pub.Status,
				"platform_status", status.PlatformStatus)
		} else {
			changed = true
			o.logger.Info("Publication status changed by platform",
				"publication_id", pub.ID,
				"from", previous,
				"to", pub.Status,
				"platform_status", status.PlatformStatus)
		}
	}
	if status.ExternalURL != "" {
		pub.ExternalURL = status.ExternalURL
	}
	pub.LastSyncAt = &now
	pub.UpdatedAt = now

	if err := o.store.UpdatePublication(ctx, pub); err != nil {
		return changed, fmt.Errorf("failed to save publication %s: %w", pub.ID, err)
	}
	return changed, nil
}

// claim creates the pending record for a pair. An existing record is left
// alone unless it ended in error or expired, in which case this request
// re-enters it into pending.
func (o *Orchestrator) claim(ctx context.Context, userID, propertyID, platform string, listing *core.ListingData) (*core.Publication, bool, error) {
	now := o.clock.Now()
	pub := &core.Publication{
		ID:         idgen.NewPublication(),
		UserID:     userID,
		PropertyID: propertyID,
		Platform:   platform,
		Status:     core.PublicationStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	pub.Snapshot(listing)

	err := o.store.CreatePublication(ctx, pub)
	if err == nil {
		return pub, true, nil
	}
	if !errors.Is(err, core.ErrPublicationExists) {
		return nil, false, err
	}

	existing, err := o.store.GetPublicationByPair(ctx, propertyID, platform)
	if err != nil {
		return nil, false, err
	}
	if !existing.Status.IsTerminal() {
		return existing, false, nil
	}

	if err := existing.TransitionTo(core.PublicationStatusPending, now); err != nil {
		return nil, false, err
	}
	existing.UserID = userID
	existing.ErrorCode = ""
	existing.ErrorMessage = ""
	existing.Snapshot(listing)
	if err := o.store.UpdatePublication(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

func (o *Orchestrator) enqueue(ctx context.Context, id string, listing core.ListingData, at time.Time) error {
	task := func(ctx context.Context) {
		pub, err := o.store.GetPublication(ctx, id)
		if err != nil {
			o.logger.Warn("Queued publication disappeared", "publication_id", id, "error", err)
			return
		}
		if pub.Status != core.PublicationStatusPending {
			o.logger.Debug("Skipping publication no longer pending", "publication_id", id, "status", pub.Status)
			return
		}
		if err := o.PublishOne(ctx, pub, listing); err != nil {
			o.logger.Warn("Publish failed",
				"publication_id", id,
				"platform", pub.Platform,
				"code", httpclient.CodeOf(err),
				"error", err)
		}
	}

	if at.After(o.clock.Now()) {
		return o.pool.SubmitAt(at, task)
	}
	return o.pool.Submit(ctx, task)
}

// recordFailure moves pub to error with the classified code and message and
// returns the original failure
func (o *Orchestrator) recordFailure(ctx context.Context, pub *core.Publication, cause error) error {
	code := httpclient.CodeOf(cause)
	message := cause.Error()
	if apiErr, ok := httpclient.AsAPIError(cause); ok {
		message = apiErr.Message
	}

	if err := pub.MarkError(string(code), message, o.clock.Now()); err != nil {
		o.logger.Error("Cannot record publish failure", "publication_id", pub.ID, "error", err)
		return cause
	}
	if err := o.store.UpdatePublication(ctx, pub); err != nil {
		o.logger.Error("Failed to save publish failure", "publication_id", pub.ID, "error", err)
	}
	return cause
}

func (o *Orchestrator) listingFor(ctx context.Context, req BulkRequest, propertyID string, adapter platforms.Adapter, cache map[string]*core.Property) (core.ListingData, error) {
	if req.Listing != nil {
		return *req.Listing, nil
	}

	property, ok := cache[propertyID]
	if !ok {
		p, err := o.store.GetProperty(ctx, propertyID)
		if err != nil || p.UserID != req.UserID {
			return core.ListingData{}, fmt.Errorf("property not found: %s", propertyID)
		}
		property = p
		cache[propertyID] = p
	}
	return adapter.TransformProperty(property), nil
}

func (o *Orchestrator) load(ctx context.Context, id string) (*core.Publication, platforms.Adapter, error) {
	pub, err := o.store.GetPublication(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := o.adapters.Get(pub.Platform)
	if err != nil {
		return nil, nil, err
	}
	return pub, adapter, nil
}

func (o *Orchestrator) transition(ctx context.Context, id string, next core.PublicationStatus) (*core.Publication, error) {
	pub, err := o.store.GetPublication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := pub.TransitionTo(next, o.clock.Now()); err != nil {
		return nil, err
	}
	if err := o.store.UpdatePublication(ctx, pub); err != nil {
		return nil, err
	}
	o.logger.Info("Publication status changed", "publication_id", pub.ID, "status", pub.Status)
	return pub, nil
}
