package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/keyxmakerx/beacon/internal/kvstore"
)

// Store keys of the entity collections owned by the campaign editor.
const (
	CampaignGroupsKey = "campaign_tree_groups"
	AdGroupsKey       = "adgroups_data_v1"
)

// Value is a form value that the editor may have saved as a JSON string,
// number, boolean or null. It always decodes to its trimmed string form.
type Value string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(strings.TrimSpace(s))
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*v = Value(data)
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("unsupported field value %s", data)
		}
		*v = Value(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return nil
}

// String implements fmt.Stringer.
func (v Value) String() string { return string(v) }

// Campaign is the current state of a campaign as the editor stores it.
type Campaign struct {
	ID           string `json:"id"`
	Name         Value  `json:"name"`
	Seed         Value  `json:"seed"`
	Organization Value  `json:"organization"`
	Pacing       Value  `json:"pacing"`
	Timezone     Value  `json:"timezone"`
	StartDate    Value  `json:"startDate"`
	EndDate      Value  `json:"endDate"`
	Channel      Value  `json:"channel"`
	Budget       Value  `json:"budget"`
	KPI          Value  `json:"kpi"`
	KPITarget    Value  `json:"kpiTarget"`

	AdServerCampaignName    Value `json:"adServerCampaignName"`
	AdServerSchedule        Value `json:"adServerSchedule"`
	AdServerLandingPageName Value `json:"adServerLandingPageName"`
	AdServerLandingPageURL  Value `json:"adServerLandingPageURL"`
}

// CampaignGroup is one folder of the campaign tree.
type CampaignGroup struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name,omitempty"`
	Campaigns []Campaign `json:"campaigns"`
}

// AdGroup is the current state of an ad group. The owning campaign is
// referenced by Campaign in older records and CampaignID in newer ones.
type AdGroup struct {
	ID                   string `json:"id"`
	Campaign             string `json:"campaign,omitempty"`
	CampaignID           string `json:"campaignId,omitempty"`
	Name                 Value  `json:"name"`
	Budget               Value  `json:"budget"`
	BidStrategy          Value  `json:"bidStrategy"`
	CreativeFormat       Value  `json:"creativeFormat"`
	TargetingRefinements Value  `json:"targetingRefinements"`
	PlacementSettings    Value  `json:"placementSettings"`
	AdServerAdGroupName  Value  `json:"adServerAdGroupName"`
	AdServerPlacement    Value  `json:"adServerPlacement"`
}

// BelongsTo reports whether the ad group references the campaign.
func (a AdGroup) BelongsTo(campaignID string) bool {
	return a.Campaign == campaignID || a.CampaignID == campaignID
}

// FieldValue is one entry of an ordered projection.
type FieldValue struct {
	Field string
	Value string
}

// Projection is the canonical current-value view of the campaign used to
// synthesize create events.
func (c Campaign) Projection() []FieldValue {
	return []FieldValue{
		{"seed", c.Seed.String()},
		{"organization", c.Organization.String()},
		{"pacing", c.Pacing.String()},
		{"timezone", c.Timezone.String()},
		{"startDate", c.StartDate.String()},
		{"endDate", c.EndDate.String()},
		{"channel", c.Channel.String()},
		{"campaignName", c.Name.String()},
		{"budget", c.Budget.String()},
		{"kpi", c.KPI.String()},
		{"kpiTarget", c.KPITarget.String()},
		{"adServerCampaignName", c.AdServerCampaignName.String()},
		{"adServerSchedule", c.AdServerSchedule.String()},
		{"adServerLandingPageName", c.AdServerLandingPageName.String()},
		{"adServerLandingPageURL", c.AdServerLandingPageURL.String()},
	}
}

// Projection is the canonical current-value view of the ad group.
func (a AdGroup) Projection() []FieldValue {
	owner := a.Campaign
	if owner == "" {
		owner = a.CampaignID
	}
	return []FieldValue{
		{"adGroupNameInput", a.Name.String()},
		{"campaignName", owner},
		{"budgetAllocation", a.Budget.String()},
		{"bidStrategy", a.BidStrategy.String()},
		{"creativeFormat", a.CreativeFormat.String()},
		{"targetingRefinements", a.TargetingRefinements.String()},
		{"placementSettings", a.PlacementSettings.String()},
		{"adServerAdGroupName", a.AdServerAdGroupName.String()},
		{"adServerPlacement", a.AdServerPlacement.String()},
	}
}

// EntitySource is the read side of the campaign editor's entity store.
type EntitySource interface {
	// FindCampaign returns the campaign, or nil if no group contains it.
	FindCampaign(ctx context.Context, campaignID string) (*Campaign, error)

	// ListAdGroups returns the ad groups referencing the campaign.
	ListAdGroups(ctx context.Context, campaignID string) ([]AdGroup, error)
}

// EntityRepository is the store-backed EntitySource. The host UI replaces
// whole collections through the Save methods.
type EntityRepository interface {
	EntitySource
	SaveCampaignGroups(ctx context.Context, groups []CampaignGroup) error
	SaveAdGroups(ctx context.Context, adGroups []AdGroup) error
}

type entityRepository struct {
	store kvstore.Store
}

// NewEntityRepository reads and writes the entity collections in store.
func NewEntityRepository(store kvstore.Store) EntityRepository {
	return &entityRepository{store: store}
}

// readCollection decodes the list stored at key. Missing or corrupt values
// yield an empty list.
func readCollection[T any](ctx context.Context, store kvstore.Store, key string) ([]T, error) {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if !found || raw == "" {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("entity collection is corrupt, treating as empty",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return nil, nil
	}
	return out, nil
}

func (r *entityRepository) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := r.store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// FindCampaign implements EntitySource.
func (r *entityRepository) FindCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	groups, err := readCollection[CampaignGroup](ctx, r.store, CampaignGroupsKey)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		for i := range g.Campaigns {
			if g.Campaigns[i].ID == campaignID {
				c := g.Campaigns[i]
				return &c, nil
			}
		}
	}
	return nil, nil
}

// ListAdGroups implements EntitySource.
func (r *entityRepository) ListAdGroups(ctx context.Context, campaignID string) ([]AdGroup, error) {
	all, err := readCollection[AdGroup](ctx, r.store, AdGroupsKey)
	if err != nil {
		return nil, err
	}
	var out []AdGroup
	for _, ag := range all {
		if ag.BelongsTo(campaignID) {
			out = append(out, ag)
		}
	}
	return out, nil
}

// SaveCampaignGroups replaces the campaign tree.
func (r *entityRepository) SaveCampaignGroups(ctx context.Context, groups []CampaignGroup) error {
	if groups == nil {
		groups = []CampaignGroup{}
	}
	return r.writeJSON(ctx, CampaignGroupsKey, groups)
}

// SaveAdGroups replaces the flat ad group collection.
func (r *entityRepository) SaveAdGroups(ctx context.Context, adGroups []AdGroup) error {
	if adGroups == nil {
		adGroups = []AdGroup{}
	}
	return r.writeJSON(ctx, AdGroupsKey, adGroups)
}
