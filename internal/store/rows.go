package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/i474232898/weather-assistant/internal/weather"
)

type weatherRecordRow struct {
	ID          string         `gorm:"primaryKey;type:uuid"`
	ReportType  string         `gorm:"not null;index:idx_weather_lookup,priority:1"`
	LocationKey string         `gorm:"not null;index:idx_weather_lookup,priority:2"`
	AuxKey      string         `gorm:"not null;default:'';index:idx_weather_lookup,priority:3"`
	FetchedAt   time.Time      `gorm:"not null;index:idx_weather_lookup,priority:4"`
	City        string         `gorm:"type:text"`
	Latitude    *float64       `gorm:"type:double precision"`
	Longitude   *float64       `gorm:"type:double precision"`
	Days        int            `gorm:"not null;default:0"`
	Date        string         `gorm:"type:varchar(10)"`
	AlertID     string         `gorm:"type:varchar(64)"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (weatherRecordRow) TableName() string { return "weather_records" }

func toRecordRow(rec *weather.WeatherRecord) weatherRecordRow {
	return weatherRecordRow{
		ID:          rec.ID,
		ReportType:  string(rec.ReportType),
		LocationKey: rec.Location.String(),
		AuxKey:      auxString(rec.Aux),
		FetchedAt:   rec.FetchedAt.UTC(),
		City:        rec.Location.City,
		Latitude:    rec.Location.Lat,
		Longitude:   rec.Location.Lon,
		Days:        rec.Aux.Days,
		Date:        rec.Aux.Date,
		AlertID:     rec.Aux.AlertID,
		Payload:     datatypes.JSON(rec.Payload),
	}
}

func (r weatherRecordRow) toRecord() *weather.WeatherRecord {
	return &weather.WeatherRecord{
		ID:         r.ID,
		ReportType: weather.ReportType(r.ReportType),
		Location:   weather.LocationKey{City: r.City, Lat: r.Latitude, Lon: r.Longitude},
		Aux:        weather.AuxKey{Days: r.Days, Date: r.Date, AlertID: r.AlertID},
		FetchedAt:  r.FetchedAt.UTC(),
		Payload:    json.RawMessage(r.Payload),
	}
}

type chatRecordRow struct {
	ID        string         `gorm:"primaryKey;type:uuid"`
	SessionID string         `gorm:"not null;index"`
	Question  string         `gorm:"type:text;not null"`
	Answer    string         `gorm:"type:text;not null"`
	Intent    datatypes.JSON `gorm:"type:jsonb"`
	Weather   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
}

func (chatRecordRow) TableName() string { return "chat_records" }

func toChatRow(rec *weather.ChatRecord) (chatRecordRow, error) {
	intent, err := json.Marshal(rec.ResolvedIntent)
	if err != nil {
		return chatRecordRow{}, err
	}
	snapshot, err := json.Marshal(rec.WeatherSnapshot)
	if err != nil {
		return chatRecordRow{}, err
	}
	return chatRecordRow{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		Question:  rec.Question,
		Answer:    rec.Answer,
		Intent:    datatypes.JSON(intent),
		Weather:   datatypes.JSON(snapshot),
		CreatedAt: rec.CreatedAt.UTC(),
	}, nil
}

func (r chatRecordRow) toChat() weather.ChatRecord {
	rec := weather.ChatRecord{
		ID:        r.ID,
		SessionID: r.SessionID,
		Question:  r.Question,
		Answer:    r.Answer,
		CreatedAt: r.CreatedAt.UTC(),
	}
	// rows written by toChatRow always decode; older rows may lack either column
	_ = json.Unmarshal(r.Intent, &rec.ResolvedIntent)
	_ = json.Unmarshal(r.Weather, &rec.WeatherSnapshot)
	return rec
}

type subscriptionRow struct {
	ID             string         `gorm:"primaryKey;type:uuid"`
	DeviceID       string         `gorm:"not null;uniqueIndex:idx_device_location,priority:1"`
	LocationKey    string         `gorm:"not null;uniqueIndex:idx_device_location,priority:2"`
	City           string         `gorm:"type:text"`
	Latitude       *float64       `gorm:"type:double precision"`
	Longitude      *float64       `gorm:"type:double precision"`
	Query          string         `gorm:"type:text;not null"`
	PushToken      string         `gorm:"type:text"`
	SeverityFilter string         `gorm:"type:varchar(16)"`
	TypeFilters    datatypes.JSON `gorm:"type:jsonb"`
	Active         bool           `gorm:"not null;default:true;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastCheckedAt  time.Time
	SeenAlertIDs   datatypes.JSON `gorm:"column:seen_alert_ids;type:jsonb"`
}

func (subscriptionRow) TableName() string { return "alert_subscriptions" }

func toSubscriptionRow(sub *weather.AlertSubscription) subscriptionRow {
	filters, _ := json.Marshal(sub.TypeFilters)
	seen, _ := json.Marshal(sub.SeenAlertIDs)
	return subscriptionRow{
		ID:             sub.ID,
		DeviceID:       sub.DeviceID,
		LocationKey:    sub.Location.String(),
		City:           sub.Location.City,
		Latitude:       sub.Location.Lat,
		Longitude:      sub.Location.Lon,
		Query:          sub.Query,
		PushToken:      sub.PushToken,
		SeverityFilter: sub.SeverityFilter,
		TypeFilters:    datatypes.JSON(filters),
		Active:         sub.Active,
		CreatedAt:      sub.CreatedAt.UTC(),
		UpdatedAt:      sub.UpdatedAt.UTC(),
		LastCheckedAt:  sub.LastCheckedAt.UTC(),
		SeenAlertIDs:   datatypes.JSON(seen),
	}
}

func (r subscriptionRow) toSubscription() weather.AlertSubscription {
	sub := weather.AlertSubscription{
		ID:             r.ID,
		DeviceID:       r.DeviceID,
		PushToken:      r.PushToken,
		Location:       weather.LocationKey{City: r.City, Lat: r.Latitude, Lon: r.Longitude},
		Query:          r.Query,
		SeverityFilter: r.SeverityFilter,
		Active:         r.Active,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		LastCheckedAt:  r.LastCheckedAt.UTC(),
	}
	if len(r.TypeFilters) > 0 {
		_ = json.Unmarshal(r.TypeFilters, &sub.TypeFilters)
	}
	if len(r.SeenAlertIDs) > 0 {
		_ = json.Unmarshal(r.SeenAlertIDs, &sub.SeenAlertIDs)
	}
	return sub
}
