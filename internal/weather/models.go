package weather

import (
	"encoding/json"
	"strconv"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// KnownConditions is the fixed vocabulary predicted forecast days must use.
var KnownConditions = []Condition{
	ConditionClear,
	ConditionCloudy,
	ConditionRain,
	ConditionSnow,
	ConditionStorm,
	ConditionMist,
}

// IsKnown reports whether c belongs to KnownConditions.
func (c Condition) IsKnown() bool {
	for _, k := range KnownConditions {
		if c == k {
			return true
		}
	}
	return false
}

// ReportType identifies one kind of weather data and selects both the upstream
// endpoint and the freshness window of cached records.
type ReportType string

const (
	ReportCurrent            ReportType = "current"
	ReportForecast           ReportType = "forecast"
	ReportFuture             ReportType = "future"
	ReportMarine             ReportType = "marine"
	ReportAstronomy          ReportType = "astronomy"
	ReportTimezone           ReportType = "timezone"
	ReportAlerts             ReportType = "alerts"
	ReportHistory            ReportType = "history"
	ReportSevenDayForecast   ReportType = "sevenDayForecast"
	ReportNotifications      ReportType = "notifications"
	ReportNotificationDetail ReportType = "notificationDetail"
	ReportAlertSubscription  ReportType = "alertSubscription"
)

// UpstreamReports are the report types served directly by the upstream weather client.
var UpstreamReports = []ReportType{
	ReportCurrent,
	ReportForecast,
	ReportFuture,
	ReportMarine,
	ReportAstronomy,
	ReportTimezone,
	ReportAlerts,
	ReportHistory,
}

// IsUpstream reports whether rt maps onto an upstream endpoint.
func (rt ReportType) IsUpstream() bool {
	for _, u := range UpstreamReports {
		if rt == u {
			return true
		}
	}
	return false
}

var freshnessWindows = map[ReportType]time.Duration{
	ReportCurrent:            1 * time.Hour,
	ReportForecast:           3 * time.Hour,
	ReportFuture:             24 * time.Hour,
	ReportMarine:             6 * time.Hour,
	ReportAstronomy:          24 * time.Hour,
	ReportTimezone:           24 * time.Hour,
	ReportAlerts:             1 * time.Hour,
	ReportHistory:            24 * time.Hour,
	ReportSevenDayForecast:   3 * time.Hour,
	ReportNotifications:      1 * time.Hour,
	ReportNotificationDetail: 1 * time.Hour,
}

// FreshnessWindow returns how long a record of type rt may be served from the store.
// Zero means records of that type are never served from cache.
func FreshnessWindow(rt ReportType) time.Duration {
	return freshnessWindows[rt]
}

// LocationKey discriminates cached records by place. Exactly one form is populated:
// either City (a canonical geocoded name) or the Lat/Lon pair.
type LocationKey struct {
	City string   `json:"city,omitempty"`
	Lat  *float64 `json:"latitude,omitempty"`
	Lon  *float64 `json:"longitude,omitempty"`
}

// CityKey builds a name-based LocationKey.
func CityKey(name string) LocationKey {
	return LocationKey{City: name}
}

// CoordKey builds a coordinate-based LocationKey.
func CoordKey(lat, lon float64) LocationKey {
	return LocationKey{Lat: &lat, Lon: &lon}
}

// IsCoord reports whether the key uses the coordinate form.
func (k LocationKey) IsCoord() bool {
	return k.Lat != nil && k.Lon != nil
}

// IsZero reports whether neither form is populated.
func (k LocationKey) IsZero() bool {
	return k.City == "" && !k.IsCoord()
}

// String returns a canonical string key for indexing this location in stores.
func (k LocationKey) String() string {
	if k.IsCoord() {
		return FormatCoords(*k.Lat, *k.Lon)
	}
	return k.City
}

// FormatCoords renders a coordinate pair the way the upstream "q" parameter expects it.
func FormatCoords(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

// AuxKey holds the report-type specific discriminators of a cached record.
type AuxKey struct {
	Days    int    `json:"days,omitempty"`
	Date    string `json:"date,omitempty"`
	AlertID string `json:"alertId,omitempty"`
}

// WeatherRecord is one persisted snapshot of a single report type for one place/time window.
type WeatherRecord struct {
	ID         string          `json:"id"`
	ReportType ReportType      `json:"reportType"`
	Location   LocationKey     `json:"location"`
	Aux        AuxKey          `json:"aux"`
	FetchedAt  time.Time       `json:"fetchedAt"`
	Payload    json.RawMessage `json:"payload"`

	// FromCache is set on records served by Lookup; it is never persisted.
	FromCache bool `json:"fromCache"`
}

// IsFresh reports whether the record may still be served at now.
func (r WeatherRecord) IsFresh(now time.Time) bool {
	window := FreshnessWindow(r.ReportType)
	return window > 0 && now.Sub(r.FetchedAt) < window
}

// TimeSpec describes the time a question refers to.
type TimeSpec struct {
	// Type is one of current, today, tomorrow, specific, range, future, history, hourly.
	Type      string `json:"type"`
	Value     string `json:"value,omitempty"`
	Period    string `json:"period,omitempty"`
	IsHistory bool   `json:"isHistory"`
	// Date is the concrete ISO date (YYYY-MM-DD) the question resolves to, when known.
	Date string `json:"date,omitempty"`
	Hour *int   `json:"hour,omitempty"`
}

// Intent is the structured form of a free-text weather question.
type Intent struct {
	Location string     `json:"location"`
	Time     TimeSpec   `json:"time"`
	Type     ReportType `json:"type"`
	Details  []string   `json:"details"`
	Source   string     `json:"source"`
}

// IntentTypes are the report types a question may resolve to.
var IntentTypes = []ReportType{
	ReportCurrent,
	ReportForecast,
	ReportHistory,
	ReportFuture,
	ReportMarine,
	ReportAstronomy,
	ReportTimezone,
	ReportAlerts,
}

// IsIntentType reports whether rt is a valid intent type.
func IsIntentType(rt ReportType) bool {
	for _, t := range IntentTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// ChatRecord is one question/answer exchange.
type ChatRecord struct {
	ID              string                         `json:"id"`
	SessionID       string                         `json:"sessionId"`
	Question        string                         `json:"question"`
	Answer          string                         `json:"answer"`
	ResolvedIntent  Intent                         `json:"intent"`
	WeatherSnapshot map[ReportType]json.RawMessage `json:"weather"`
	CreatedAt       time.Time                      `json:"timestamp"`
}

// AlertSubscription is a device's opt-in to push notifications for a location.
type AlertSubscription struct {
	ID             string      `json:"id"`
	DeviceID       string      `json:"deviceId"`
	PushToken      string      `json:"pushToken"`
	Location       LocationKey `json:"location"`
	Query          string      `json:"query"`
	SeverityFilter string      `json:"severityFilter,omitempty"`
	TypeFilters    []string    `json:"typeFilters,omitempty"`
	Active         bool        `json:"active"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	LastCheckedAt  time.Time   `json:"lastCheckedAt"`
	// SeenAlertIDs are the matching alerts present at the last check.
	SeenAlertIDs []string `json:"-"`
}

// Place is a resolved geographic location.
type Place struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}
