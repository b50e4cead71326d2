package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/keyxmakerx/beacon/internal/kvstore"
)

// AuditKey is the store key holding the whole event collection.
const AuditKey = "audit_log_v1"

// EventRepository defines the data access contract for the event log. The
// collection is unordered at rest; every read that feeds display or
// timestamp logic is sorted here.
type EventRepository interface {
	// Append adds events to the collection.
	Append(ctx context.Context, events []AuditEvent) error

	// ListByCampaign returns every campaign- and ad-group-typed event of the
	// campaign, sorted ascending by timestamp (stable for equal timestamps).
	ListByCampaign(ctx context.Context, campaignID string) ([]AuditEvent, error)

	// DeleteByCampaign removes all events of the campaign. Returns how many
	// events were removed.
	DeleteByCampaign(ctx context.Context, campaignID string) (int, error)

	// DeleteByEntity removes one ad group's events within a campaign.
	DeleteByEntity(ctx context.Context, campaignID, entityID string) (int, error)

	// DeleteEdits removes only the edit events of a campaign family.
	DeleteEdits(ctx context.Context, campaignID string) (int, error)

	// ReplaceCampaignFamily swaps every event of the campaign family for
	// newEvents in a single write.
	ReplaceCampaignFamily(ctx context.Context, campaignID string, newEvents []AuditEvent) error

	// RewriteCampaignFamily hands the family's current events (sorted) to
	// fn and replaces them with its result, all within one critical section.
	RewriteCampaignFamily(ctx context.Context, campaignID string, fn func(family []AuditEvent) []AuditEvent) error
}

// eventRepository implements EventRepository over a kvstore.Store. Every
// mutation rewrites the full collection; mu serializes read-modify-write
// cycles within this process. Other processes sharing the same key are not
// coordinated and the last full write wins.
type eventRepository struct {
	store kvstore.Store
	mu    sync.Mutex
}

// NewEventRepository creates a repository persisting to store under AuditKey.
func NewEventRepository(store kvstore.Store) EventRepository {
	return &eventRepository{store: store}
}

// load reads and decodes the collection. A corrupt value is logged and
// treated as empty; only backend failures are returned.
func (r *eventRepository) load(ctx context.Context) ([]AuditEvent, error) {
	raw, found, err := r.store.Get(ctx, AuditKey)
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	if !found || raw == "" {
		return nil, nil
	}

	var events []AuditEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		corruptReads.Inc()
		slog.Warn("audit log is corrupt, treating as empty",
			slog.Int("bytes", len(raw)),
			slog.Any("error", err),
		)
		return nil, nil
	}
	return events, nil
}

// save encodes and writes the whole collection.
func (r *eventRepository) save(ctx context.Context, events []AuditEvent) error {
	if events == nil {
		events = []AuditEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encoding audit log: %w", err)
	}
	if err := r.store.Set(ctx, AuditKey, string(data)); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}

// mutate runs one locked read-modify-write cycle.
func (r *eventRepository) mutate(ctx context.Context, fn func([]AuditEvent) []AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events, err := r.load(ctx)
	if err != nil {
		return err
	}
	return r.save(ctx, fn(events))
}

// Append implements EventRepository. Appending nothing skips the write.
func (r *eventRepository) Append(ctx context.Context, events []AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.mutate(ctx, func(all []AuditEvent) []AuditEvent {
		return append(all, events...)
	})
}

// ListByCampaign implements EventRepository.
func (r *eventRepository) ListByCampaign(ctx context.Context, campaignID string) ([]AuditEvent, error) {
	r.mu.Lock()
	events, err := r.load(ctx)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]AuditEvent, 0)
	for _, e := range events {
		if e.CampaignID == campaignID && e.EntityType.Valid() {
			out = append(out, e)
		}
	}
	sortByTimestamp(out)
	return out, nil
}

// DeleteByCampaign implements EventRepository.
func (r *eventRepository) DeleteByCampaign(ctx context.Context, campaignID string) (int, error) {
	return r.remove(ctx, func(e AuditEvent) bool {
		return e.CampaignID == campaignID
	})
}

// DeleteByEntity implements EventRepository. Only ad-group-typed events
// match, so the campaign's own events survive even if ids collide.
func (r *eventRepository) DeleteByEntity(ctx context.Context, campaignID, entityID string) (int, error) {
	return r.remove(ctx, func(e AuditEvent) bool {
		return e.CampaignID == campaignID && e.EntityType == EntityAdGroup && e.EntityID == entityID
	})
}

// DeleteEdits implements EventRepository.
func (r *eventRepository) DeleteEdits(ctx context.Context, campaignID string) (int, error) {
	return r.remove(ctx, func(e AuditEvent) bool {
		return e.CampaignID == campaignID && e.Action == ActionEdit
	})
}

// remove deletes every event matching drop and reports how many went.
func (r *eventRepository) remove(ctx context.Context, drop func(AuditEvent) bool) (int, error) {
	removed := 0
	err := r.mutate(ctx, func(all []AuditEvent) []AuditEvent {
		kept := all[:0:0]
		for _, e := range all {
			if drop(e) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		return kept
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ReplaceCampaignFamily implements EventRepository.
func (r *eventRepository) ReplaceCampaignFamily(ctx context.Context, campaignID string, newEvents []AuditEvent) error {
	return r.RewriteCampaignFamily(ctx, campaignID, func([]AuditEvent) []AuditEvent {
		return newEvents
	})
}

// RewriteCampaignFamily implements EventRepository. The replacement set is
// computed fully in memory before the single write, so no reader observes
// a collection holding neither the old nor the new family.
func (r *eventRepository) RewriteCampaignFamily(ctx context.Context, campaignID string, fn func([]AuditEvent) []AuditEvent) error {
	return r.mutate(ctx, func(all []AuditEvent) []AuditEvent {
		var rest, family []AuditEvent
		for _, e := range all {
			if e.CampaignID == campaignID {
				family = append(family, e)
			} else {
				rest = append(rest, e)
			}
		}
		sortByTimestamp(family)
		return append(rest, fn(family)...)
	})
}

// sortByTimestamp orders events ascending by timestamp, keeping storage
// order for ties so one call's events stay in arrival order.
func sortByTimestamp(events []AuditEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
