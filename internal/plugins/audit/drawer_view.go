package audit

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/a-h/templ"
)

// Theme colours of section headers, keyed by catalog theme name.
var themes = map[string]struct{ bg, text, border string }{
	"blue":   {"#dbeafe", "#1e40af", "#3b82f6"},
	"green":  {"#d1fae5", "#065f46", "#10b981"},
	"gray":   {"#f3f4f6", "#374151", "#6b7280"},
	"purple": {"#ede9fe", "#6b21a8", "#8b5cf6"},
}

const timestampLayout = "Jan 2, 2006 3:04 PM"

// htmlWriter accumulates the first write error so the render code can stay
// linear.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *htmlWriter) rawf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

func esc(s string) string { return templ.EscapeString(s) }

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func previousText(r ViewRow) string {
	if r.Previous == "" && !r.Baseline {
		return "No baseline recorded"
	}
	return orDash(r.Previous)
}

// DrawerComponent renders the drawer body. A closed drawer renders nothing.
func DrawerComponent(snap DrawerSnapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if snap.State != DrawerOpen {
			return nil
		}
		h := &htmlWriter{w: w}
		base := drawerBase(snap.View.CampaignID)

		h.rawf(`<div id="auditDrawerBody" data-campaign-id="%s">`, esc(snap.View.CampaignID))
		h.rawf(`<div data-audit-context class="text-sm text-gray-600">%s</div>`, esc(snap.View.Context))
		h.rawf(`<div class="flex gap-2 my-2"><button data-clear hx-post="%s/clear" hx-vals='{"confirm":"true"}' hx-confirm="%s" hx-target="#auditDrawerBody" hx-swap="outerHTML">Clear Edit History</button>`,
			esc(base), esc(ClearEditsPrompt))
		h.rawf(`<a href="%s/export.csv" class="text-xs">Export Selected</a>`, esc(base))
		h.rawf(`<button data-close-drawer hx-delete="%s" hx-target="#auditDrawerBody" hx-swap="outerHTML">Close</button></div>`, esc(base))

		h.raw(`<div data-audit-list>`)
		if snap.View.Empty() {
			h.rawf(`<p class="text-sm text-gray-500 py-2">%s</p>`, esc(EmptyStateText))
		}
		for _, g := range snap.View.Groups {
			renderGroup(h, base, snap, g)
		}
		h.raw(`</div>`)

		h.rawf(`<textarea data-audit-notes name="notes" hx-put="%s/notes" hx-trigger="input" hx-swap="none">%s</textarea>`,
			esc(base), esc(snap.Notes))
		h.raw(`</div>`)
		return h.err
	})
}

func renderGroup(h *htmlWriter, base string, snap DrawerSnapshot, g ViewGroup) {
	bg, border := "#1f2937", "border-gray-300"
	if g.EntityType == EntityAdGroup {
		bg, border = "#7c3aed", "border-purple-300"
	}
	h.rawf(`<div class="mt-4 mb-3 px-4 py-2 text-sm font-bold text-white uppercase rounded-md" style="background-color: %s;"><span>%s</span></div>`,
		bg, esc(g.Title))
	h.rawf(`<div class="ml-2 border-l-2 %s pl-2">`, border)
	for _, sec := range g.Sections {
		renderSection(h, base, snap, sec)
	}
	h.raw(`</div>`)
}

func renderSection(h *htmlWriter, base string, snap DrawerSnapshot, sec ViewSection) {
	theme, ok := themes[sec.Theme]
	if !ok {
		theme = themes["gray"]
	}
	state := snap.Sections[sec.ID]
	secPath := base + "/sections/" + url.PathEscape(sec.ID)

	opacity := "1"
	if state.Collapsed {
		opacity = "0.7"
	}
	h.rawf(`<div id="section_%s" class="mt-3 mb-2 px-4 py-2 text-xs font-semibold uppercase rounded-md flex justify-between items-center border-l-4" style="background-color: %s; color: %s; border-left-color: %s; opacity: %s;" hx-post="%s/collapse" hx-trigger="click[event.target.tagName!='BUTTON']" hx-target="#auditDrawerBody" hx-swap="outerHTML">`,
		esc(sec.ID), theme.bg, theme.text, theme.border, opacity, esc(secPath))
	h.rawf(`<span>%s</span>`, esc(sec.Title))

	toggleBG := theme.border
	if !state.AllChecked {
		toggleBG = "white"
	}
	h.rawf(`<div class="flex items-center gap-2"><span class="text-xs opacity-75">%s</span><button data-section-id="%s" hx-post="%s/toggle" hx-target="#auditDrawerBody" hx-swap="outerHTML" style="border-color: %s; background-color: %s;" title="Toggle section checkboxes"></button></div>`,
		esc(state.ToggleLabel), esc(sec.ID), esc(secPath), theme.border, toggleBG)
	h.raw(`</div>`)

	display := ""
	if state.Collapsed {
		display = ` style="display: none;"`
	}
	h.rawf(`<ul class="space-y-0.5 ml-2 pl-2"%s>`, display)
	for _, r := range sec.Rows {
		renderRow(h, base, snap, sec, r)
	}
	h.raw(`</ul>`)
}

func renderRow(h *htmlWriter, base string, snap DrawerSnapshot, sec ViewSection, r ViewRow) {
	rowPath := base + "/rows/" + url.PathEscape(sec.ID) + "/" + url.PathEscape(r.Field)

	border := "border-gray-200"
	if r.Edited {
		border = "border-red-400"
	}
	h.rawf(`<li class="border %s rounded-md px-3 py-1 bg-white">`, border)

	expand := ""
	if r.Edited {
		expand = fmt.Sprintf(` data-expand="%s" hx-post="%s" hx-trigger="click[event.target.tagName!='INPUT']" hx-vals='{"expand":"true"}' hx-target="#auditDrawerBody" hx-swap="outerHTML"`, esc(r.ExpandID), esc(rowPath))
	}
	h.rawf(`<div class="flex items-center justify-between gap-2"%s>`, expand)
	current := orDash(r.Current)
	h.rawf(`<span class="font-semibold">%s:</span><span class="truncate" title="%s">%s</span>`,
		esc(r.Label), esc(current), esc(current))
	h.rawf(`<span class="text-[10px] text-gray-400">%s</span>`, esc(formatTimestamp(r.LastChanged)))

	checked := ""
	if snap.Checked(sec.ID, r.Field) {
		checked = " checked"
	}
	h.rawf(`<input type="checkbox" name="checked" value="true"%s data-section-id="%s" hx-post="%s" hx-trigger="change" hx-target="#auditDrawerBody" hx-swap="outerHTML"/>`,
		checked, esc(sec.ID), esc(rowPath))
	h.raw(`</div>`)

	if r.Edited {
		hidden := "hidden "
		if snap.Expanded(r.ExpandID) {
			hidden = ""
		}
		h.rawf(`<div id="%s" class="%smt-1 ml-4 pl-4 border-l-2 text-xs text-gray-600"><span class="font-semibold">Previous:</span> <span>%s</span></div>`,
			esc(r.ExpandID), hidden, esc(previousText(r)))
	}
	h.raw(`</li>`)
}

func drawerBase(campaignID string) string {
	return "/campaigns/" + url.PathEscape(campaignID) + "/audit/drawer"
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(timestampLayout)
}
