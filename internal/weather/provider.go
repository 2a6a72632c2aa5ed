package weather

import (
	"context"
	"encoding/json"
	"time"
)

// Params are the caller-supplied parameters of one upstream report request.
type Params struct {
	// Query is the upstream location query: a place name or "lat,lon".
	Query string
	Days  int
	Date  string
	// Extra carries feature flags such as aqi, alerts or tides.
	Extra map[string]string
}

// Upstream abstracts the external weather provider's report endpoints.
type Upstream interface {
	Call(ctx context.Context, rt ReportType, params Params) (json.RawMessage, error)
}

// Geocoder turns a free-text place name into coordinates and a canonical name.
// It returns ErrLocationNotFound when the name matches nothing.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (Place, error)
}

// ForecastBucket is one 3-hour slot of the secondary provider's 5-day forecast.
type ForecastBucket struct {
	Time      time.Time
	TempC     float64
	TempMinC  float64
	TempMaxC  float64
	Humidity  float64
	WindMS    float64
	Condition Condition
}

// ForecastSource is the secondary provider used for the seven-day forecast.
type ForecastSource interface {
	FiveDay(ctx context.Context, lat, lon float64) ([]ForecastBucket, error)
}

// RecordStore persists weather records. FindLatest returns a nil record and a nil
// error when nothing matches.
type RecordStore interface {
	FindLatest(ctx context.Context, rt ReportType, key LocationKey, aux AuxKey, since time.Time) (*WeatherRecord, error)
	SaveRecord(ctx context.Context, rec *WeatherRecord) error
}

// ChatStore persists chat exchanges.
type ChatStore interface {
	SaveChat(ctx context.Context, rec *ChatRecord) error
	ChatHistory(ctx context.Context, sessionID string, limit int) ([]ChatRecord, error)
}

// SubscriptionStore persists alert subscriptions.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub *AlertSubscription) error
	DeactivateSubscriptions(ctx context.Context, deviceID string, key *LocationKey) (int, error)
	DeviceSubscriptions(ctx context.Context, deviceID string) ([]AlertSubscription, error)
	ActiveSubscriptions(ctx context.Context) ([]AlertSubscription, error)
	TouchSubscription(ctx context.Context, id string, checkedAt time.Time, seenAlertIDs []string) error
}
