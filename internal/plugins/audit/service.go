package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/beacon/internal/apperror"
)

// NotesStore persists the per-campaign free-text notes shown beside the
// drawer. The notes widget service satisfies it.
type NotesStore interface {
	Load(ctx context.Context, campaignID string) (string, error)
	Save(ctx context.Context, campaignID, text string) error
	Delete(ctx context.Context, campaignID string) error
}

// AuditService is the public surface of the audit core. Input errors are
// returned as AppErrors; storage failures are logged and wrapped as
// internal errors.
type AuditService interface {
	// RecordCreate appends one create event per auditable field of a newly
	// created entity. Every event of one call shares one timestamp.
	RecordCreate(ctx context.Context, in CreateInput) ([]AuditEvent, error)

	// RecordEdit appends one edit event per changed field. It never reads
	// back the log to decide what to write.
	RecordEdit(ctx context.Context, in EditInput) ([]AuditEvent, error)

	// GetCampaignAudit returns the campaign family's events sorted by time.
	GetCampaignAudit(ctx context.Context, campaignID string) ([]AuditEvent, error)

	// ClearCampaignAudit deletes the campaign's events and its notes.
	ClearCampaignAudit(ctx context.Context, campaignID string) (int, error)

	// ClearAdGroupAudit deletes one ad group's events.
	ClearAdGroupAudit(ctx context.Context, campaignID, adGroupID string) (int, error)

	// ClearCampaignEdits collapses the family's history into a snapshot of
	// current values.
	ClearCampaignEdits(ctx context.Context, campaignID string) (*ReconcileResult, error)

	LoadNotes(ctx context.Context, campaignID string) (string, error)
	SaveNotes(ctx context.Context, campaignID, text string) error

	// ReplaceCampaignGroups and ReplaceAdGroups let the host publish the
	// current entity collections the reconciler reads.
	ReplaceCampaignGroups(ctx context.Context, groups []CampaignGroup) error
	ReplaceAdGroups(ctx context.Context, adGroups []AdGroup) error
}

// Option customizes an audit service.
type Option func(*auditService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *auditService) { s.now = now }
}

// WithIDGenerator replaces the random event id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *auditService) { s.newID = newID }
}

// WithDefaultUser sets the attribution used when a request names no user.
func WithDefaultUser(user string) Option {
	return func(s *auditService) {
		if strings.TrimSpace(user) != "" {
			s.defaultUser = user
		}
	}
}

type auditService struct {
	events      EventRepository
	entities    EntityRepository
	notes       NotesStore
	catalog     *Catalog
	reconciler  *Reconciler
	defaultUser string
	now         func() time.Time
	newID       func() string
}

// NewAuditService wires the audit core.
func NewAuditService(events EventRepository, entities EntityRepository, notes NotesStore, catalog *Catalog, opts ...Option) AuditService {
	s := &auditService{
		events:      events,
		entities:    entities,
		notes:       notes,
		catalog:     catalog,
		defaultUser: DefaultUser,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconciler = NewReconciler(events, entities, catalog,
		func() time.Time { return s.now() },
		func() string { return s.newID() },
		s.defaultUser,
	)
	return s
}

// RecordCreate implements AuditService.
func (s *auditService) RecordCreate(ctx context.Context, in CreateInput) ([]AuditEvent, error) {
	t, err := resolveTarget(in.CampaignID, in.EntityType, in.EntityID, in.User, s.defaultUser)
	if err != nil {
		return nil, toAppError(err)
	}

	events := buildCreateEvents(s.catalog, t, in.Data, s.now().UTC(), s.newID)
	if err := s.append(ctx, t, events); err != nil {
		return nil, err
	}
	return events, nil
}

// RecordEdit implements AuditService.
func (s *auditService) RecordEdit(ctx context.Context, in EditInput) ([]AuditEvent, error) {
	t, err := resolveTarget(in.CampaignID, in.EntityType, in.EntityID, in.User, s.defaultUser)
	if err != nil {
		return nil, toAppError(err)
	}

	events := buildEditEvents(s.catalog, t, in.Before, in.After, s.now().UTC(), s.newID)
	if err := s.append(ctx, t, events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *auditService) append(ctx context.Context, t target, events []AuditEvent) error {
	if err := s.events.Append(ctx, events); err != nil {
		slog.Error("failed to append audit events",
			slog.String("campaign_id", t.campaignID),
			slog.String("entity_type", string(t.entityType)),
			slog.String("entity_id", t.entityID),
			slog.Int("events", len(events)),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("appending audit events: %w", err))
	}
	countRecorded(events)
	return nil
}

// GetCampaignAudit implements AuditService.
func (s *auditService) GetCampaignAudit(ctx context.Context, campaignID string) ([]AuditEvent, error) {
	campaignID, err := requireCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing audit events: %w", err))
	}
	return events, nil
}

// ClearCampaignAudit implements AuditService.
func (s *auditService) ClearCampaignAudit(ctx context.Context, campaignID string) (int, error) {
	campaignID, err := requireCampaign(campaignID)
	if err != nil {
		return 0, err
	}
	removed, err := s.events.DeleteByCampaign(ctx, campaignID)
	if err != nil {
		slog.Error("failed to clear campaign audit",
			slog.String("campaign_id", campaignID),
			slog.Any("error", err),
		)
		return 0, apperror.NewInternal(fmt.Errorf("clearing campaign audit: %w", err))
	}
	if err := s.notes.Delete(ctx, campaignID); err != nil {
		return removed, apperror.NewInternal(fmt.Errorf("deleting campaign notes: %w", err))
	}

	clears.WithLabelValues("campaign").Inc()
	slog.Info("cleared campaign audit",
		slog.String("campaign_id", campaignID),
		slog.Int("removed", removed),
	)
	return removed, nil
}

// ClearAdGroupAudit implements AuditService.
func (s *auditService) ClearAdGroupAudit(ctx context.Context, campaignID, adGroupID string) (int, error) {
	campaignID, err := requireCampaign(campaignID)
	if err != nil {
		return 0, err
	}
	adGroupID = strings.TrimSpace(adGroupID)
	if adGroupID == "" {
		return 0, toAppError(errEntityRequired)
	}

	removed, err := s.events.DeleteByEntity(ctx, campaignID, adGroupID)
	if err != nil {
		slog.Error("failed to clear ad group audit",
			slog.String("campaign_id", campaignID),
			slog.String("ad_group_id", adGroupID),
			slog.Any("error", err),
		)
		return 0, apperror.NewInternal(fmt.Errorf("clearing ad group audit: %w", err))
	}

	clears.WithLabelValues("adgroup").Inc()
	return removed, nil
}

// ClearCampaignEdits implements AuditService.
func (s *auditService) ClearCampaignEdits(ctx context.Context, campaignID string) (*ReconcileResult, error) {
	campaignID, err := requireCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	res, err := s.reconciler.ClearEdits(ctx, campaignID)
	if err != nil {
		slog.Error("failed to reconcile campaign audit",
			slog.String("campaign_id", campaignID),
			slog.Any("error", err),
		)
		return nil, apperror.NewInternal(err)
	}
	return res, nil
}

// LoadNotes implements AuditService.
func (s *auditService) LoadNotes(ctx context.Context, campaignID string) (string, error) {
	campaignID, err := requireCampaign(campaignID)
	if err != nil {
		return "", err
	}
	text, err := s.notes.Load(ctx, campaignID)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("loading notes: %w", err))
	}
	return text, nil
}

// SaveNotes implements AuditService.
func (s *auditService) SaveNotes(ctx context.Context, campaignID, text string) error {
	campaignID, err := requireCampaign(campaignID)
	if err != nil {
		return err
	}
	if err := s.notes.Save(ctx, campaignID, text); err != nil {
		return apperror.NewInternal(fmt.Errorf("saving notes: %w", err))
	}
	return nil
}

// ReplaceCampaignGroups implements AuditService.
func (s *auditService) ReplaceCampaignGroups(ctx context.Context, groups []CampaignGroup) error {
	for _, g := range groups {
		for _, c := range g.Campaigns {
			if strings.TrimSpace(c.ID) == "" {
				return apperror.NewValidation("every campaign needs an id")
			}
		}
	}
	if err := s.entities.SaveCampaignGroups(ctx, groups); err != nil {
		return apperror.NewInternal(fmt.Errorf("saving campaign groups: %w", err))
	}
	return nil
}

// ReplaceAdGroups implements AuditService.
func (s *auditService) ReplaceAdGroups(ctx context.Context, adGroups []AdGroup) error {
	for _, ag := range adGroups {
		if strings.TrimSpace(ag.ID) == "" {
			return apperror.NewValidation("every ad group needs an id")
		}
	}
	if err := s.entities.SaveAdGroups(ctx, adGroups); err != nil {
		return apperror.NewInternal(fmt.Errorf("saving ad groups: %w", err))
	}
	return nil
}

func requireCampaign(campaignID string) (string, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return "", toAppError(errCampaignRequired)
	}
	return campaignID, nil
}
