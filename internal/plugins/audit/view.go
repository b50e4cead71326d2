package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EmptyStateText is shown when a campaign has no displayable events.
const EmptyStateText = "No logged actions yet."

// DrawerContext identifies what a drawer is showing. Advertiser fields are
// display-only.
type DrawerContext struct {
	CampaignID        string `json:"campaignId" query:"campaignId"`
	AdvertiserName    string `json:"advertiserName" query:"advertiserName"`
	AdvertiserAccount string `json:"advertiserAccount" query:"advertiserAccount"`
}

// ContextLine is the drawer heading.
func (d DrawerContext) ContextLine() string {
	name := strings.TrimSpace(d.AdvertiserName)
	if name == "" {
		name = "Advertiser"
	}
	account := strings.TrimSpace(d.AdvertiserAccount)
	if account == "" {
		account = "Account N/A"
	}
	return fmt.Sprintf("Change Form: %s (%s)", name, account)
}

// ViewRow is one field's resolved history.
type ViewRow struct {
	Field     string `json:"field"`
	Label     string `json:"label"`
	SectionID string `json:"sectionId"`

	// Current is the latest edit's new value, or the create value.
	Current string `json:"current"`

	// Previous is only meaningful when Edited is true.
	Previous string `json:"previous,omitempty"`

	// Baseline reports whether a create event exists for the field. Fields
	// edited before anything recorded their creation have none, and their
	// first edit has no previous value.
	Baseline bool `json:"baseline"`

	Edited      bool      `json:"edited"`
	Edits       int       `json:"edits"`
	LastChanged time.Time `json:"lastChanged"`
	LastUser    string    `json:"lastUser"`
	ExpandID    string    `json:"expandId"`
}

// ViewSection is one category subsection of an entity group.
type ViewSection struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Theme string    `json:"theme"`
	Slot  Slot      `json:"slot"`
	Rows  []ViewRow `json:"rows"`
}

// ViewGroup collects the sections of one entity.
type ViewGroup struct {
	EntityType EntityType    `json:"entityType"`
	EntityID   string        `json:"entityId"`
	Title      string        `json:"title"`
	Sections   []ViewSection `json:"sections"`
}

// DrawerView is the pure view model of one campaign's history drawer.
type DrawerView struct {
	CampaignID string      `json:"campaignId"`
	Context    string      `json:"context"`
	Groups     []ViewGroup `json:"groups"`
}

// Empty reports whether the drawer shows the empty state.
func (v DrawerView) Empty() bool { return len(v.Groups) == 0 }

// Section finds a section by id.
func (v DrawerView) Section(id string) (ViewSection, bool) {
	for _, g := range v.Groups {
		for _, s := range g.Sections {
			if s.ID == id {
				return s, true
			}
		}
	}
	return ViewSection{}, false
}

// Row finds a row by section id and field.
func (v DrawerView) Row(sectionID, field string) (ViewRow, bool) {
	s, ok := v.Section(sectionID)
	if !ok {
		return ViewRow{}, false
	}
	for _, r := range s.Rows {
		if r.Field == field {
			return r, true
		}
	}
	return ViewRow{}, false
}

type fieldHistory struct {
	create *AuditEvent
	edits  []AuditEvent
}

type entityHistory struct {
	entityType EntityType
	entityID   string
	order      []string
	fields     map[string]*fieldHistory
}

// BuildView groups sorted events into the drawer view model. Legacy field
// keys merge with their canonical key; hidden and internal fields are left
// out.
func BuildView(cat *Catalog, dc DrawerContext, events []AuditEvent) DrawerView {
	view := DrawerView{CampaignID: dc.CampaignID, Context: dc.ContextLine()}

	var entities []*entityHistory
	index := make(map[string]*entityHistory)
	for i := range events {
		e := events[i]
		field := cat.Canonical(e.Field)
		if cat.IsHidden(field) || cat.IsInternal(field) {
			continue
		}

		key := string(e.EntityType) + "|" + e.EntityID
		eh, ok := index[key]
		if !ok {
			eh = &entityHistory{entityType: e.EntityType, entityID: e.EntityID, fields: make(map[string]*fieldHistory)}
			index[key] = eh
			entities = append(entities, eh)
		}
		fh, ok := eh.fields[field]
		if !ok {
			fh = &fieldHistory{}
			eh.fields[field] = fh
			eh.order = append(eh.order, field)
		}
		switch e.Action {
		case ActionCreate:
			if fh.create == nil {
				fh.create = &e
			}
		case ActionEdit:
			fh.edits = append(fh.edits, e)
		}
	}

	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].entityType == EntityCampaign && entities[j].entityType != EntityCampaign
	})

	for _, eh := range entities {
		if g, ok := buildGroup(cat, eh); ok {
			view.Groups = append(view.Groups, g)
		}
	}
	return view
}

func buildGroup(cat *Catalog, eh *entityHistory) (ViewGroup, bool) {
	g := ViewGroup{EntityType: eh.entityType, EntityID: eh.entityID, Title: groupTitle(eh.entityType, eh.entityID)}

	byCategory := make(map[string][]string)
	for _, field := range eh.order {
		c := cat.CategoryFor(eh.entityType, field)
		byCategory[c.ID] = append(byCategory[c.ID], field)
	}

	for _, c := range cat.Sections(eh.entityType) {
		fields := byCategory[c.ID]
		if len(fields) == 0 {
			continue
		}
		s := ViewSection{
			ID:    SectionID(c, eh.entityID),
			Title: c.Title,
			Theme: c.Theme,
			Slot:  c.Slot,
		}
		for _, field := range fields {
			s.Rows = append(s.Rows, buildRow(cat, s.ID, field, eh.fields[field]))
		}
		g.Sections = append(g.Sections, s)
	}
	return g, len(g.Sections) > 0
}

func buildRow(cat *Catalog, sectionID, field string, fh *fieldHistory) ViewRow {
	row := ViewRow{
		Field:     field,
		Label:     cat.Label(field),
		SectionID: sectionID,
		Edits:     len(fh.edits),
		Edited:    len(fh.edits) > 0,
		ExpandID:  ExpandID(sectionID, field),
	}

	var created string
	if fh.create != nil {
		row.Baseline = true
		created = fh.create.NewValue
		row.Current = created
		row.LastChanged = fh.create.Timestamp
		row.LastUser = fh.create.User
	}
	if !row.Edited {
		return row
	}

	latest := fh.edits[len(fh.edits)-1]
	row.Current = latest.NewValue
	row.LastChanged = latest.Timestamp
	row.LastUser = latest.User
	switch {
	case latest.OldValue != nil:
		row.Previous = *latest.OldValue
	case len(fh.edits) > 1:
		row.Previous = fh.edits[len(fh.edits)-2].NewValue
	default:
		row.Previous = created
	}
	return row
}

func groupTitle(et EntityType, id string) string {
	if et == EntityCampaign {
		return fmt.Sprintf("Campaign (%s)", id)
	}
	return fmt.Sprintf("Ad Group (%s)", id)
}

// SectionID is the id of a category subsection within one entity group.
func SectionID(c Category, entityID string) string {
	return c.Section + "_" + entityID
}

// ExpandID is the id of a row's previous-value panel.
func ExpandID(sectionID, field string) string {
	return "expand_" + sectionID + "_" + safeName(field)
}

// safeName replaces anything but ASCII letters and digits with '_'.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
