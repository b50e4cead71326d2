// Package audit records field-level create and edit events for campaigns and
// ad groups, persists them as one serialized collection in the key-value
// store, and turns them into the grouped history drawer the campaign UI
// shows. The drawer is built as a pure view model first; drawer_view.go
// binds it to HTML.
//
// Events are append-only. The only rewrite is reconciliation, which the
// user explicitly requests to collapse a campaign's edit history into a
// fresh baseline of current values.
package audit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntityType identifies which kind of entity a field belongs to.
type EntityType string

const (
	// EntityCampaign is the root of an entity family.
	EntityCampaign EntityType = "campaign"

	// EntityAdGroup belongs to exactly one campaign.
	EntityAdGroup EntityType = "adgroup"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	return t == EntityCampaign || t == EntityAdGroup
}

// Action is what happened to a field.
type Action string

const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
)

// DefaultUser is the attribution written when no identity system is wired in.
const DefaultUser = "localUser"

// AuditEvent is one recorded fact about a field's value. The JSON shape is
// the persisted format of audit_log_v1 and matches what the browser build
// wrote, so existing logs load unchanged.
type AuditEvent struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"ts"`
	CampaignID string     `json:"campaignId"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Action     Action     `json:"action"`
	Field      string     `json:"field"`

	// OldValue is nil when no prior value was known. A pointer to "" means
	// the prior value was known to be empty.
	OldValue *string `json:"oldValue,omitempty"`

	NewValue string `json:"newValue"`
	User     string `json:"user"`
}

// FieldValues maps raw field keys to whatever the entity form holds for
// them. Values are cleaned with CleanValue before comparison or storage.
type FieldValues map[string]any

// CleanValue normalizes a raw form value: nil becomes "", everything else is
// stringified and trimmed.
func CleanValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case *string:
		if val == nil {
			return ""
		}
		return strings.TrimSpace(*val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// --- Request DTOs ---

// CreateInput is a "create" action on an entity form.
type CreateInput struct {
	CampaignID string      `json:"campaignId"`
	EntityType EntityType  `json:"entityType"`
	EntityID   string      `json:"entityId"`
	Data       FieldValues `json:"data"`
	User       string      `json:"user,omitempty"`
}

// EditInput is an "edit" action: the form's values before and after.
type EditInput struct {
	CampaignID string      `json:"campaignId"`
	EntityType EntityType  `json:"entityType"`
	EntityID   string      `json:"entityId"`
	Before     FieldValues `json:"before"`
	After      FieldValues `json:"after"`
	User       string      `json:"user,omitempty"`
}

// target is the entity an input addresses, after defaults are applied.
type target struct {
	campaignID string
	entityType EntityType
	entityID   string
	user       string
}

// resolveTarget validates the addressing fields shared by both inputs. A
// campaign's entity id defaults to the campaign id.
func resolveTarget(campaignID string, et EntityType, entityID, user, defaultUser string) (target, error) {
	campaignID = strings.TrimSpace(campaignID)
	entityID = strings.TrimSpace(entityID)
	if campaignID == "" {
		return target{}, errCampaignRequired
	}
	if !et.Valid() {
		return target{}, fmt.Errorf("%w: %q", errUnknownEntityType, et)
	}
	if et == EntityCampaign && entityID == "" {
		entityID = campaignID
	}
	if entityID == "" {
		return target{}, errEntityRequired
	}
	if strings.TrimSpace(user) == "" {
		user = defaultUser
	}
	return target{campaignID: campaignID, entityType: et, entityID: entityID, user: user}, nil
}
