package alerts

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-assistant/internal/common"
	"github.com/i474232898/weather-assistant/internal/weather"
)

// Notification is a normalized weather alert.
type Notification struct {
	ID          string `json:"id"`
	Headline    string `json:"headline"`
	Severity    string `json:"severity"`
	Urgency     string `json:"urgency,omitempty"`
	Certainty   string `json:"certainty,omitempty"`
	Event       string `json:"event"`
	Category    string `json:"category,omitempty"`
	Areas       string `json:"areas,omitempty"`
	Effective   string `json:"effective,omitempty"`
	Expires     string `json:"expires,omitempty"`
	Description string `json:"description,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

// NotificationList is the payload of a notifications report.
type NotificationList struct {
	Location      string         `json:"location"`
	Count         int            `json:"count"`
	Notifications []Notification `json:"notifications"`
}

type upstreamAlerts struct {
	Alerts struct {
		Alert []struct {
			Headline    string `json:"headline"`
			MsgType     string `json:"msgtype"`
			Severity    string `json:"severity"`
			Urgency     string `json:"urgency"`
			Areas       string `json:"areas"`
			Category    string `json:"category"`
			Certainty   string `json:"certainty"`
			Event       string `json:"event"`
			Note        string `json:"note"`
			Effective   string `json:"effective"`
			Expires     string `json:"expires"`
			Desc        string `json:"desc"`
			Instruction string `json:"instruction"`
		} `json:"alert"`
	} `json:"alerts"`
}

// ParseAlerts normalizes an upstream alerts payload. Duplicate alerts collapse
// onto one id.
func ParseAlerts(payload json.RawMessage) ([]Notification, error) {
	var doc upstreamAlerts
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}

	out := make([]Notification, 0, len(doc.Alerts.Alert))
	seen := make(map[string]bool)
	for _, a := range doc.Alerts.Alert {
		n := Notification{
			Headline:    strings.TrimSpace(a.Headline),
			Severity:    strings.TrimSpace(a.Severity),
			Urgency:     a.Urgency,
			Certainty:   a.Certainty,
			Event:       strings.TrimSpace(a.Event),
			Category:    a.Category,
			Areas:       a.Areas,
			Effective:   a.Effective,
			Expires:     a.Expires,
			Description: strings.TrimSpace(a.Desc),
			Instruction: strings.TrimSpace(a.Instruction),
		}
		if n.Headline == "" {
			n.Headline = n.Event
		}
		n.ID = alertID(n)
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out, nil
}

// alertID is stable across fetches of the same alert.
func alertID(n Notification) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(n.Headline+"|"+n.Effective+"|"+n.Event)).String()
}

// severityRank orders severities; unknown values rank lowest.
func severityRank(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minor":
		return 1
	case "moderate":
		return 2
	case "severe":
		return 3
	case "extreme":
		return 4
	default:
		return 0
	}
}

// ValidSeverity reports whether s is an accepted severity filter.
func ValidSeverity(s string) bool {
	return s == "" || severityRank(s) > 0
}

// EffectiveTime parses the alert's effective timestamp.
func (n Notification) EffectiveTime() (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, n.Effective); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Matches reports whether n passes sub's severity and type filters.
func Matches(n Notification, sub weather.AlertSubscription) bool {
	if sub.SeverityFilter != "" && severityRank(n.Severity) < severityRank(sub.SeverityFilter) {
		return false
	}
	if len(sub.TypeFilters) == 0 {
		return true
	}
	filters := make([]string, 0, len(sub.TypeFilters))
	for _, f := range sub.TypeFilters {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			filters = append(filters, f)
		}
	}
	return common.HasAny(strings.ToLower(n.Event+" "+n.Category+" "+n.Headline), filters...)
}
