package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// PostgresStore implements Store on PostgreSQL through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// ConnectPostgres opens a pooled connection to databaseURL and verifies it.
func ConnectPostgres(databaseURL string, log logrus.FieldLogger) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	config := &gorm.Config{
		Logger: gormlogger.New(log, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(databaseURL), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Migrate creates or updates the tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&weatherRecordRow{}, &chatRecordRow{}, &subscriptionRow{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRecord(ctx context.Context, rec *weather.WeatherRecord) error {
	row := toRecordRow(rec)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *PostgresStore) FindLatest(ctx context.Context, rt weather.ReportType, key weather.LocationKey, aux weather.AuxKey, since time.Time) (*weather.WeatherRecord, error) {
	var rows []weatherRecordRow
	err := s.db.WithContext(ctx).
		Where("report_type = ? AND location_key = ? AND aux_key = ? AND fetched_at > ?",
			string(rt), key.String(), auxString(aux), since.UTC()).
		Order("fetched_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toRecord(), nil
}

func (s *PostgresStore) SaveChat(ctx context.Context, rec *weather.ChatRecord) error {
	row, err := toChatRow(rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *PostgresStore) ChatHistory(ctx context.Context, sessionID string, limit int) ([]weather.ChatRecord, error) {
	q := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []chatRecordRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]weather.ChatRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toChat())
	}
	return out, nil
}

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub *weather.AlertSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.Active = true
	row := toSubscriptionRow(sub)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}, {Name: "location_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"query", "push_token", "severity_filter", "type_filters", "active", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return err
	}

	var stored subscriptionRow
	if err := s.db.WithContext(ctx).
		Where("device_id = ? AND location_key = ?", row.DeviceID, row.LocationKey).
		First(&stored).Error; err != nil {
		return err
	}
	*sub = stored.toSubscription()
	return nil
}

func (s *PostgresStore) DeactivateSubscriptions(ctx context.Context, deviceID string, key *weather.LocationKey) (int, error) {
	q := s.db.WithContext(ctx).Model(&subscriptionRow{}).
		Where("device_id = ? AND active = ?", deviceID, true)
	if key != nil {
		q = q.Where("location_key = ?", key.String())
	}
	res := q.Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *PostgresStore) DeviceSubscriptions(ctx context.Context, deviceID string) ([]weather.AlertSubscription, error) {
	return s.subscriptions(ctx, "device_id = ? AND active = ?", deviceID, true)
}

func (s *PostgresStore) ActiveSubscriptions(ctx context.Context) ([]weather.AlertSubscription, error) {
	return s.subscriptions(ctx, "active = ?", true)
}

func (s *PostgresStore) subscriptions(ctx context.Context, query string, args ...any) ([]weather.AlertSubscription, error) {
	var rows []subscriptionRow
	if err := s.db.WithContext(ctx).Where(query, args...).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]weather.AlertSubscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSubscription())
	}
	return out, nil
}

func (s *PostgresStore) TouchSubscription(ctx context.Context, id string, checkedAt time.Time, seenAlertIDs []string) error {
	seen, err := json.Marshal(seenAlertIDs)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&subscriptionRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_checked_at": checkedAt.UTC(),
			"seen_alert_ids":  datatypes.JSON(seen),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
