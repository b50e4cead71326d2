package audit

// Toggle labels of a section's select-all control.
const (
	LabelDeselectAll = "Deselect All"
	LabelSelectAll   = "Select All"
)

// Selection tracks row checkboxes per section. Rows start checked, so only
// unchecked rows are stored.
type Selection struct {
	unchecked map[string]map[string]bool
}

// NewSelection returns a selection with every row checked.
func NewSelection() *Selection {
	return &Selection{unchecked: make(map[string]map[string]bool)}
}

// IsChecked reports the checkbox state of one row.
func (s *Selection) IsChecked(sectionID, field string) bool {
	return !s.unchecked[sectionID][field]
}

// Set changes one row's checkbox.
func (s *Selection) Set(sectionID, field string, checked bool) {
	if checked {
		delete(s.unchecked[sectionID], field)
		if len(s.unchecked[sectionID]) == 0 {
			delete(s.unchecked, sectionID)
		}
		return
	}
	if s.unchecked[sectionID] == nil {
		s.unchecked[sectionID] = make(map[string]bool)
	}
	s.unchecked[sectionID][field] = true
}

// AllChecked reports whether every row of the section is checked. An empty
// section counts as all checked.
func (s *Selection) AllChecked(sec ViewSection) bool {
	for _, r := range sec.Rows {
		if !s.IsChecked(sec.ID, r.Field) {
			return false
		}
	}
	return true
}

// Toggle flips the whole section: all rows unchecked if all were checked,
// otherwise all rows checked.
func (s *Selection) Toggle(sec ViewSection) {
	target := !s.AllChecked(sec)
	for _, r := range sec.Rows {
		s.Set(sec.ID, r.Field, target)
	}
}

// ToggleLabel is the label the section's toggle shows for its state.
func (s *Selection) ToggleLabel(sec ViewSection) string {
	if s.AllChecked(sec) {
		return LabelDeselectAll
	}
	return LabelSelectAll
}

// SelectedRow is a checked row with the entity it belongs to.
type SelectedRow struct {
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Section    string     `json:"section"`
	Row        ViewRow    `json:"row"`
}

// SelectedRows returns the checked rows of view in display order.
func (s *Selection) SelectedRows(view DrawerView) []SelectedRow {
	var out []SelectedRow
	for _, g := range view.Groups {
		for _, sec := range g.Sections {
			for _, r := range sec.Rows {
				if s.IsChecked(sec.ID, r.Field) {
					out = append(out, SelectedRow{
						EntityType: g.EntityType,
						EntityID:   g.EntityID,
						Section:    sec.Title,
						Row:        r,
					})
				}
			}
		}
	}
	return out
}
