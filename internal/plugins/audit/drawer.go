package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ClearEditsPrompt is the confirmation shown before reconciliation.
const ClearEditsPrompt = "Clear edit history for this campaign? This will reset the view to show only current values."

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// NotifyKind classifies a transient notification.
type NotifyKind string

const (
	NotifySuccess NotifyKind = "success"
	NotifyError   NotifyKind = "error"
	NotifyInfo    NotifyKind = "info"
)

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string, kind NotifyKind)
}

// DrawerState is the lifecycle state of one drawer.
type DrawerState int

const (
	DrawerClosed DrawerState = iota
	DrawerOpen
)

func (s DrawerState) String() string {
	if s == DrawerOpen {
		return "open"
	}
	return "closed"
}

// SectionState is the per-section UI state captured in a snapshot.
type SectionState struct {
	Collapsed   bool
	AllChecked  bool
	ToggleLabel string
}

// DrawerSnapshot is a consistent copy of a drawer for rendering.
type DrawerSnapshot struct {
	State    DrawerState
	Context  DrawerContext
	View     DrawerView
	Notes    string
	Sections map[string]SectionState
	checked  map[string]bool
	expanded map[string]bool
}

// Checked reports whether a row's checkbox is ticked.
func (d DrawerSnapshot) Checked(sectionID, field string) bool {
	return d.checked[sectionID+"\x00"+field]
}

// Expanded reports whether a row shows its previous value.
func (d DrawerSnapshot) Expanded(expandID string) bool {
	return d.expanded[expandID]
}

// Drawer is the controller behind one history drawer. It is safe for
// concurrent use; state is never persisted.
type Drawer struct {
	mu      sync.Mutex
	service AuditService
	catalog *Catalog

	state     DrawerState
	context   DrawerContext
	view      DrawerView
	notes     string
	selection *Selection
	collapsed map[string]bool
	expanded  map[string]bool
}

// NewDrawer returns a closed drawer.
func NewDrawer(service AuditService, catalog *Catalog) *Drawer {
	return &Drawer{
		service:   service,
		catalog:   catalog,
		selection: NewSelection(),
		collapsed: make(map[string]bool),
		expanded:  make(map[string]bool),
	}
}

// Open loads and renders the campaign. Opening resets checkbox, collapse
// and expand state.
func (d *Drawer) Open(ctx context.Context, dc DrawerContext) error {
	dc.CampaignID = strings.TrimSpace(dc.CampaignID)
	if dc.CampaignID == "" {
		return toAppError(errCampaignRequired)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	view, notes, err := d.load(ctx, dc)
	if err != nil {
		return err
	}
	d.state = DrawerOpen
	d.context = dc
	d.view = view
	d.notes = notes
	d.selection = NewSelection()
	d.collapsed = make(map[string]bool)
	d.expanded = make(map[string]bool)
	return nil
}

// Close closes the drawer. Closing a closed drawer is a no-op.
func (d *Drawer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = DrawerClosed
}

// State returns the current lifecycle state.
func (d *Drawer) State() DrawerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Campaign returns the campaign the drawer shows and whether it is open.
func (d *Drawer) Campaign() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.context.CampaignID, d.state == DrawerOpen
}

// Refresh reloads the open campaign, keeping UI state for rows that still
// exist.
func (d *Drawer) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshLocked(ctx)
}

func (d *Drawer) refreshLocked(ctx context.Context) error {
	if d.state != DrawerOpen {
		return toAppError(errDrawerClosed)
	}
	view, notes, err := d.load(ctx, d.context)
	if err != nil {
		return err
	}
	d.view = view
	d.notes = notes
	return nil
}

func (d *Drawer) load(ctx context.Context, dc DrawerContext) (DrawerView, string, error) {
	events, err := d.service.GetCampaignAudit(ctx, dc.CampaignID)
	if err != nil {
		return DrawerView{}, "", err
	}
	notes, err := d.service.LoadNotes(ctx, dc.CampaignID)
	if err != nil {
		return DrawerView{}, "", err
	}
	return BuildView(d.catalog, dc, events), notes, nil
}

// ToggleSection flips every checkbox of a section.
func (d *Drawer) ToggleSection(sectionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sec, err := d.sectionLocked(sectionID)
	if err != nil {
		return err
	}
	d.selection.Toggle(sec)
	return nil
}

// SetRow sets one row's checkbox.
func (d *Drawer) SetRow(sectionID, field string, checked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.rowLocked(sectionID, field); err != nil {
		return err
	}
	d.selection.Set(sectionID, field, checked)
	return nil
}

// TogglePrevious expands or collapses an edited row's previous value. Rows
// without edits have nothing to expand.
func (d *Drawer) TogglePrevious(sectionID, field string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	row, err := d.rowLocked(sectionID, field)
	if err != nil {
		return err
	}
	if !row.Edited {
		return nil
	}
	d.expanded[row.ExpandID] = !d.expanded[row.ExpandID]
	return nil
}

// ToggleCollapsed collapses or expands a section.
func (d *Drawer) ToggleCollapsed(sectionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.sectionLocked(sectionID); err != nil {
		return err
	}
	d.collapsed[sectionID] = !d.collapsed[sectionID]
	return nil
}

// ClearEdits asks for confirmation, reconciles the campaign, re-renders and
// notifies. It reports false without touching anything when the user
// declines.
func (d *Drawer) ClearEdits(ctx context.Context, confirmer Confirmer, notifier Notifier) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != DrawerOpen {
		return false, toAppError(errDrawerClosed)
	}
	if !confirmer.Confirm(ctx, ClearEditsPrompt) {
		return false, nil
	}

	res, err := d.service.ClearCampaignEdits(ctx, d.context.CampaignID)
	if err != nil {
		notifier.Notify(ctx, "Could not clear edit history", NotifyError)
		return false, err
	}
	if err := d.refreshLocked(ctx); err != nil {
		return true, err
	}

	msg := "Edit history cleared"
	if res.Mode == ModeEditsOnly {
		msg = "Edit history cleared; campaign not found, create events kept"
	}
	notifier.Notify(ctx, msg, NotifySuccess)
	return true, nil
}

// SaveNotes stores the notes of the open campaign.
func (d *Drawer) SaveNotes(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != DrawerOpen {
		return toAppError(errDrawerClosed)
	}
	if err := d.service.SaveNotes(ctx, d.context.CampaignID, text); err != nil {
		return err
	}
	d.notes = text
	return nil
}

// Selected returns the checked rows of the open drawer.
func (d *Drawer) Selected() []SelectedRow {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != DrawerOpen {
		return nil
	}
	return d.selection.SelectedRows(d.view)
}

// CSVHeader is the first record written by ExportCSV.
var CSVHeader = []string{
	"entity_type", "entity_id", "section", "field", "label",
	"current_value", "previous_value", "last_changed",
}

// ExportCSV writes the checked rows of the open drawer as CSV.
func (d *Drawer) ExportCSV(w io.Writer) error {
	d.mu.Lock()
	open := d.state == DrawerOpen
	d.mu.Unlock()
	if !open {
		return toAppError(errDrawerClosed)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, sel := range d.Selected() {
		previous := ""
		if sel.Row.Edited {
			previous = sel.Row.Previous
		}
		lastChanged := ""
		if !sel.Row.LastChanged.IsZero() {
			lastChanged = sel.Row.LastChanged.UTC().Format(time.RFC3339)
		}
		record := []string{
			string(sel.EntityType), sel.EntityID, sel.Section, sel.Row.Field, sel.Row.Label,
			sel.Row.Current, previous, lastChanged,
		}
		for i := range record {
			record[i] = csvCell(record[i])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvCell quotes values a spreadsheet would evaluate as a formula.
func csvCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

// Snapshot copies the drawer's state for rendering.
func (d *Drawer) Snapshot() DrawerSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := DrawerSnapshot{
		State:    d.state,
		Context:  d.context,
		View:     d.view,
		Notes:    d.notes,
		Sections: make(map[string]SectionState),
		checked:  make(map[string]bool),
		expanded: make(map[string]bool, len(d.expanded)),
	}
	for _, g := range d.view.Groups {
		for _, sec := range g.Sections {
			snap.Sections[sec.ID] = SectionState{
				Collapsed:   d.collapsed[sec.ID],
				AllChecked:  d.selection.AllChecked(sec),
				ToggleLabel: d.selection.ToggleLabel(sec),
			}
			for _, r := range sec.Rows {
				snap.checked[sec.ID+"\x00"+r.Field] = d.selection.IsChecked(sec.ID, r.Field)
			}
		}
	}
	for id, open := range d.expanded {
		snap.expanded[id] = open
	}
	return snap
}

func (d *Drawer) sectionLocked(sectionID string) (ViewSection, error) {
	if d.state != DrawerOpen {
		return ViewSection{}, toAppError(errDrawerClosed)
	}
	sec, ok := d.view.Section(sectionID)
	if !ok {
		return ViewSection{}, toAppError(errUnknownSection(sectionID))
	}
	return sec, nil
}

func (d *Drawer) rowLocked(sectionID, field string) (ViewRow, error) {
	if _, err := d.sectionLocked(sectionID); err != nil {
		return ViewRow{}, err
	}
	row, ok := d.view.Row(sectionID, field)
	if !ok {
		return ViewRow{}, toAppError(errUnknownRow(sectionID, field))
	}
	return row, nil
}

// DrawerSessions holds one drawer per browser session. The least recently
// used drawer is dropped once max sessions exist.
type DrawerSessions struct {
	// mu makes Get's lookup-or-create a single step.
	mu    sync.Mutex
	max   int
	newFn func() *Drawer
	cache *lru.Cache[string, *Drawer]
}

// DefaultMaxDrawerSessions bounds DrawerSessions when no limit is given.
const DefaultMaxDrawerSessions = 1024

// NewDrawerSessions creates a registry that builds drawers with newFn.
func NewDrawerSessions(max int, newFn func() *Drawer) *DrawerSessions {
	if max <= 0 {
		max = DefaultMaxDrawerSessions
	}
	// NewWithEvict only fails for a non-positive size.
	cache, _ := lru.NewWithEvict[string, *Drawer](max, func(sessionID string, _ *Drawer) {
		slog.Debug("evicted drawer session", slog.String("session_id", sessionID))
	})
	return &DrawerSessions{max: max, newFn: newFn, cache: cache}
}

// Get returns the session's drawer, creating a closed one if needed.
func (s *DrawerSessions) Get(sessionID string) *Drawer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.cache.Get(sessionID); ok {
		return d
	}
	d := s.newFn()
	s.cache.Add(sessionID, d)
	return d
}

// Len returns the number of live sessions.
func (s *DrawerSessions) Len() int {
	return s.cache.Len()
}
