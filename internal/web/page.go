package web

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	appLog "matside/internal/log"
	"matside/internal/present"
	"matside/internal/schedule"
)

const emptyMessage = "No mats found for this selection. Rest up or find another day!"

type pageData struct {
	Title    string
	Heading  string
	Days     []selectorLink
	Styles   []selectorLink
	Cards    []card
	Error    string
	Empty    string
	Warnings int
}

type selectorLink struct {
	Label  string
	Href   string
	Active bool
}

type card struct {
	present.DisplayRecord
	Buttons []button
}

type button struct {
	Icon     string
	Label    string
	Href     template.URL
	Enabled  bool
	External bool
}

var actionIcons = map[present.ActionKind]string{
	present.ActionDirections: "📍",
	present.ActionWebsite:    "🌐",
	present.ActionCall:       "📞",
	present.ActionEmail:      "✉️",
}

// handleIndex renders the schedule page. Unknown day/style values fall back
// to today and All. A source failure renders a visible error with an empty
// list rather than failing the request.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sel, err := s.parseSelection(r)
	if err != nil {
		appLog.Debug("ignoring bad selection", "err", err.Error(), "query", r.URL.RawQuery)
		day, _ := schedule.ParseWeekday(r.URL.Query().Get("day"), sel.today)
		style, _ := schedule.ParseStyleFilter(r.URL.Query().Get("style"))
		sel.day, sel.style = day, style
	}

	data := pageData{
		Title:   s.cfg.Title,
		Heading: sel.day.String() + " Schedule",
	}
	for _, slot := range sel.window {
		data.Days = append(data.Days, selectorLink{
			Label:  slot.Label,
			Href:   dayHref(slot, sel.style),
			Active: slot.Weekday == sel.day,
		})
	}
	current := sel.window[0]
	for _, slot := range sel.window {
		if slot.Weekday == sel.day {
			current = slot
		}
	}
	for _, st := range schedule.StyleFilters {
		data.Styles = append(data.Styles, selectorLink{
			Label:  string(st),
			Href:   dayHref(current, st),
			Active: st == sel.style,
		})
	}

	entries, err := s.loadQuery(r.Context(), sel)
	switch {
	case err != nil:
		data.Error = err.Error()
	case len(entries) == 0:
		data.Empty = emptyMessage
	default:
		for _, rec := range present.ToDisplayRecords(entries) {
			data.Cards = append(data.Cards, toCard(rec))
		}
		data.Warnings = len(s.repo.Warnings())
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		appLog.Error("page render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func toCard(rec present.DisplayRecord) card {
	c := card{DisplayRecord: rec}
	for _, a := range rec.Actions {
		b := button{Icon: actionIcons[a.Kind], Label: a.Label, Enabled: a.Enabled}
		if a.Enabled {
			b.Href = safeHref(a.URL)
			b.External = a.Kind == present.ActionDirections || a.Kind == present.ActionWebsite
		}
		c.Buttons = append(c.Buttons, b)
	}
	return c
}

// safeHref passes through http, https, tel and mailto links; anything else
// from the sheet becomes "#".
func safeHref(raw string) template.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return "#"
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "tel", "mailto":
		return template.URL(raw)
	}
	return "#"
}
