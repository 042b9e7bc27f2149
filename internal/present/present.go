// Package present maps joined schedule entries to display records with the
// action links a card renders. It holds no business logic.
package present

import (
	"net/url"
	"strings"

	"matside/internal/model"
)

const mapsSearchURL = "https://www.google.com/maps/search/?api=1&query="

// ActionKind identifies an action slot on a card.
type ActionKind string

const (
	ActionDirections ActionKind = "directions"
	ActionWebsite    ActionKind = "website"
	ActionCall       ActionKind = "call"
	ActionEmail      ActionKind = "email"
)

// Action is one card button. A disabled action keeps its slot with a
// placeholder label and no URL.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Label   string     `json:"label"`
	URL     string     `json:"url,omitempty"`
	Enabled bool       `json:"enabled"`
}

// DisplayRecord is the view of one open mat.
type DisplayRecord struct {
	Title      string   `json:"title"`
	TimeLabel  string   `json:"time"`
	Location   string   `json:"location"`
	Address    string   `json:"address,omitempty"`
	StyleBadge string   `json:"style"`
	Notes      string   `json:"notes,omitempty"`
	HasNotes   bool     `json:"has_notes"`
	Actions    []Action `json:"actions"`
}

// ToDisplayRecord builds the card for e. Actions always come in the order
// Directions, Website, Call, Email.
func ToDisplayRecord(e model.JoinedEntry) DisplayRecord {
	return DisplayRecord{
		Title:      e.School,
		TimeLabel:  e.StartTime,
		Location:   e.City,
		Address:    e.Address,
		StyleBadge: string(e.Style),
		Notes:      e.Notes,
		HasNotes:   e.Notes != "",
		Actions: []Action{
			{Kind: ActionDirections, Label: "Directions", URL: DirectionsURL(e), Enabled: true},
			optional(ActionWebsite, "Website", "No Link", WebsiteURL(e.Website), ""),
			optional(ActionCall, "Call", "No Phone", e.Phone, "tel:"),
			optional(ActionEmail, "Email", "No Email", e.Email, "mailto:"),
		},
	}
}

// ToDisplayRecords maps entries in order.
func ToDisplayRecords(entries []model.JoinedEntry) []DisplayRecord {
	out := make([]DisplayRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToDisplayRecord(e))
	}
	return out
}

// DirectionsURL is a map search for the school name, address and city.
func DirectionsURL(e model.JoinedEntry) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.School, e.Address, e.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return mapsSearchURL + url.QueryEscape(strings.Join(parts, " "))
}

// WebsiteURL returns raw as an absolute http(s) URL. A bare host such as
// "gym.com" or "www.gym.com/open-mat" gets an https scheme. Values that are
// not a web address yield "".
func WebsiteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return ""
	}
	candidate := raw
	if !strings.Contains(raw, "://") {
		candidate = "https://" + raw
	}
	u, err := url.Parse(candidate)
	if err != nil || u.User != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ""
	}
	if host := u.Hostname(); !strings.Contains(host, ".") {
		return ""
	}
	return candidate
}

func optional(kind ActionKind, label, placeholder, value, scheme string) Action {
	value = strings.TrimSpace(value)
	if value == "" {
		return Action{Kind: kind, Label: placeholder}
	}
	return Action{Kind: kind, Label: label, URL: scheme + value, Enabled: true}
}
