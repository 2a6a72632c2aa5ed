package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-assistant/internal/weather"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is the full persistence surface used by the application.
type Store interface {
	weather.RecordStore
	weather.ChatStore
	weather.SubscriptionStore

	Ping(ctx context.Context) error
	Close() error
}

// auxString flattens an AuxKey into a stable index column value.
func auxString(aux weather.AuxKey) string {
	var parts []string
	if aux.Days > 0 {
		parts = append(parts, fmt.Sprintf("days=%d", aux.Days))
	}
	if aux.Date != "" {
		parts = append(parts, "date="+aux.Date)
	}
	if aux.AlertID != "" {
		parts = append(parts, "alert="+aux.AlertID)
	}
	return strings.Join(parts, "&")
}

func recordKey(rt weather.ReportType, key weather.LocationKey, aux weather.AuxKey) string {
	return string(rt) + "|" + key.String() + "|" + auxString(aux)
}

func subscriptionKey(deviceID string, key weather.LocationKey) string {
	return deviceID + "|" + key.String()
}

// Open returns the store selected by databaseURL: the memory store for
// memory:// URLs, PostgreSQL otherwise.
func Open(databaseURL string, maxHistory int, log logrus.FieldLogger) (Store, error) {
	if strings.HasPrefix(databaseURL, "memory://") {
		return NewMemoryStore(maxHistory), nil
	}
	return ConnectPostgres(databaseURL, log)
}
