package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Reconciliation modes reported in ReconcileResult.Mode and metrics.
const (
	ModeFull      = "full"
	ModeEditsOnly = "edits_only"
)

// ReconcileResult summarizes one clear-edit-history request.
type ReconcileResult struct {
	Mode          string `json:"mode"`
	CampaignFound bool   `json:"campaignFound"`
	AdGroups      int    `json:"adGroups"`
	Removed       int    `json:"removed"`
	Created       int    `json:"created"`
}

// Reconciler collapses a campaign family's audit trail into one create
// snapshot per entity built from current values, keeping each entity's
// original creation time.
type Reconciler struct {
	events   EventRepository
	entities EntitySource
	catalog  *Catalog
	now      func() time.Time
	newID    func() string
	user     string
}

// NewReconciler wires a reconciler. now and newID are injected so tests can
// pin timestamps and ids.
func NewReconciler(events EventRepository, entities EntitySource, catalog *Catalog, now func() time.Time, newID func() string, user string) *Reconciler {
	return &Reconciler{
		events:   events,
		entities: entities,
		catalog:  catalog,
		now:      now,
		newID:    newID,
		user:     user,
	}
}

// ClearEdits reconciles one campaign family. If neither the campaign nor
// any of its ad groups can be found, only edit events are removed and
// create events stay as they are.
func (r *Reconciler) ClearEdits(ctx context.Context, campaignID string) (*ReconcileResult, error) {
	campaign, err := r.entities.FindCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("looking up campaign: %w", err)
	}
	adGroups, err := r.entities.ListAdGroups(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("listing ad groups: %w", err)
	}

	if campaign == nil && len(adGroups) == 0 {
		removed, err := r.events.DeleteEdits(ctx, campaignID)
		if err != nil {
			return nil, fmt.Errorf("removing edit events: %w", err)
		}
		slog.Warn("no current entities for campaign, removed edit events only",
			slog.String("campaign_id", campaignID),
			slog.Int("removed", removed),
		)
		reconciliations.WithLabelValues(ModeEditsOnly).Inc()
		return &ReconcileResult{Mode: ModeEditsOnly, Removed: removed}, nil
	}

	res := &ReconcileResult{
		Mode:          ModeFull,
		CampaignFound: campaign != nil,
		AdGroups:      len(adGroups),
	}
	now := r.now().UTC()

	err = r.events.RewriteCampaignFamily(ctx, campaignID, func(family []AuditEvent) []AuditEvent {
		next := planSnapshot(r.catalog, campaignID, family, campaign, adGroups, now, r.newID, r.user)
		res.Removed = len(family)
		res.Created = len(next)
		return next
	})
	if err != nil {
		return nil, fmt.Errorf("rewriting campaign family: %w", err)
	}

	reconciliations.WithLabelValues(ModeFull).Inc()
	eventsRecorded.WithLabelValues(string(ActionCreate)).Add(float64(res.Created))
	slog.Info("reconciled campaign audit trail",
		slog.String("campaign_id", campaignID),
		slog.Int("ad_groups", res.AdGroups),
		slog.Int("removed", res.Removed),
		slog.Int("created", res.Created),
	)
	return res, nil
}

// planSnapshot computes the replacement family. family must be sorted
// ascending by timestamp so the first create seen per entity is the
// earliest.
func planSnapshot(cat *Catalog, campaignID string, family []AuditEvent, campaign *Campaign, adGroups []AdGroup, now time.Time, newID func() string, user string) []AuditEvent {
	var campaignCreated *time.Time
	adGroupCreated := make(map[string]time.Time)
	for i := range family {
		e := family[i]
		if e.Action != ActionCreate {
			continue
		}
		switch e.EntityType {
		case EntityCampaign:
			if campaignCreated == nil {
				ts := e.Timestamp
				campaignCreated = &ts
			}
		case EntityAdGroup:
			if _, ok := adGroupCreated[e.EntityID]; !ok {
				adGroupCreated[e.EntityID] = e.Timestamp
			}
		}
	}

	var out []AuditEvent
	if campaign != nil {
		ts := now
		if campaignCreated != nil {
			ts = *campaignCreated
		}
		t := target{campaignID: campaignID, entityType: EntityCampaign, entityID: campaignID, user: user}
		out = append(out, snapshotEvents(cat, t, campaign.Projection(), ts, newID)...)
	}
	for _, ag := range adGroups {
		ts, ok := adGroupCreated[ag.ID]
		if !ok {
			ts = now
		}
		t := target{campaignID: campaignID, entityType: EntityAdGroup, entityID: ag.ID, user: user}
		out = append(out, snapshotEvents(cat, t, ag.Projection(), ts, newID)...)
	}
	return out
}

// snapshotEvents applies the create inclusion rule to an ordered projection.
func snapshotEvents(cat *Catalog, t target, projection []FieldValue, ts time.Time, newID func() string) []AuditEvent {
	var out []AuditEvent
	for _, fv := range projection {
		field := cat.Canonical(fv.Field)
		value := CleanValue(fv.Value)
		if value == "" && !cat.AlwaysRecord(field) {
			continue
		}
		out = append(out, AuditEvent{
			ID:         newID(),
			Timestamp:  ts,
			CampaignID: t.campaignID,
			EntityType: t.entityType,
			EntityID:   t.entityID,
			Action:     ActionCreate,
			Field:      field,
			NewValue:   value,
			User:       t.user,
		})
	}
	return out
}
