package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// Notifier delivers matched alerts to a subscribed device.
type Notifier interface {
	Notify(ctx context.Context, sub weather.AlertSubscription, alerts []Notification) error
}

// LogNotifier writes deliveries to the log. It stands in for a push gateway.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Notify(_ context.Context, sub weather.AlertSubscription, alerts []Notification) error {
	headlines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		headlines = append(headlines, a.Headline)
	}
	n.Log.WithFields(logrus.Fields{
		"device_id": sub.DeviceID,
		"location":  sub.Location.String(),
		"count":     len(alerts),
	}).Infof("push notification: %s", strings.Join(headlines, "; "))
	return nil
}

// Service lists weather alerts and manages alert subscriptions.
type Service struct {
	weather  *weather.Service
	subs     weather.SubscriptionStore
	notifier Notifier
	log      logrus.FieldLogger
}

func NewService(svc *weather.Service, subs weather.SubscriptionStore, notifier Notifier, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "alerts")
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	return &Service{weather: svc, subs: subs, notifier: notifier, log: log}
}

// List returns the active alerts for q.
func (s *Service) List(ctx context.Context, q weather.LocationQuery) (*NotificationList, error) {
	loc, err := s.weather.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, loc)
}

func (s *Service) list(ctx context.Context, loc weather.ResolvedLocation) (*NotificationList, error) {
	rec, err := s.weather.Cached(ctx, weather.ReportNotifications, loc.Key, weather.AuxKey{}, func(ctx context.Context) (json.RawMessage, error) {
		alerts, err := s.fetch(ctx, loc)
		if err != nil {
			return nil, err
		}
		return json.Marshal(NotificationList{Location: loc.Name, Count: len(alerts), Notifications: alerts})
	})
	if err != nil {
		return nil, err
	}

	var out NotificationList
	if err := json.Unmarshal(rec.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return &out, nil
}

// Detail returns one alert by id. Unknown ids fail with weather.ErrAlertNotFound.
func (s *Service) Detail(ctx context.Context, q weather.LocationQuery, id string) (*Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, weather.NewValidationError("id", "alert id is required")
	}
	loc, err := s.weather.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}

	rec, err := s.weather.Cached(ctx, weather.ReportNotificationDetail, loc.Key, weather.AuxKey{AlertID: id}, func(ctx context.Context) (json.RawMessage, error) {
		alerts, err := s.fetch(ctx, loc)
		if err != nil {
			return nil, err
		}
		for _, a := range alerts {
			if a.ID == id {
				return json.Marshal(a)
			}
		}
		return nil, weather.ErrAlertNotFound
	})
	if err != nil {
		return nil, err
	}

	var out Notification
	if err := json.Unmarshal(rec.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &out, nil
}

func (s *Service) fetch(ctx context.Context, loc weather.ResolvedLocation) ([]Notification, error) {
	payload, err := s.weather.Fetch(ctx, weather.ReportAlerts, loc, weather.AuxKey{})
	if err != nil {
		return nil, err
	}
	alerts, err := ParseAlerts(payload)
	if err != nil {
		return nil, fmt.Errorf("decode upstream alerts: %w", err)
	}
	return alerts, nil
}

// SubscribeRequest is a device's request to receive alerts for a location.
type SubscribeRequest struct {
	DeviceID       string
	PushToken      string
	Location       weather.LocationQuery
	SeverityFilter string
	TypeFilters    []string
}

// Subscribe creates or reactivates the device's subscription for the location.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (*weather.AlertSubscription, error) {
	if strings.TrimSpace(req.DeviceID) == "" {
		return nil, weather.NewValidationError("deviceId", "device id is required")
	}
	if !ValidSeverity(req.SeverityFilter) {
		return nil, weather.NewValidationError("severity", "must be one of minor, moderate, severe, extreme")
	}

	loc, err := s.weather.Resolve(ctx, req.Location)
	if err != nil {
		return nil, err
	}

	now := s.weather.Now()
	sub := &weather.AlertSubscription{
		DeviceID:       req.DeviceID,
		PushToken:      req.PushToken,
		Location:       loc.Key,
		Query:          loc.Query,
		SeverityFilter: strings.ToLower(req.SeverityFilter),
		TypeFilters:    req.TypeFilters,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.subs.UpsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subscription: %w", err)
	}
	s.log.WithFields(logrus.Fields{"device_id": sub.DeviceID, "location": loc.Name}).Info("alert subscription saved")
	return sub, nil
}

// Unsubscribe deactivates the device's subscription for q, or all of them when q
// is nil, and returns how many were deactivated.
func (s *Service) Unsubscribe(ctx context.Context, deviceID string, q *weather.LocationQuery) (int, error) {
	if strings.TrimSpace(deviceID) == "" {
		return 0, weather.NewValidationError("deviceId", "device id is required")
	}

	var key *weather.LocationKey
	if q != nil {
		loc, err := s.weather.Resolve(ctx, *q)
		if err != nil {
			return 0, err
		}
		key = &loc.Key
	}
	return s.subs.DeactivateSubscriptions(ctx, deviceID, key)
}

// Subscriptions lists the device's active subscriptions.
func (s *Service) Subscriptions(ctx context.Context, deviceID string) ([]weather.AlertSubscription, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, weather.NewValidationError("deviceId", "device id is required")
	}
	return s.subs.DeviceSubscriptions(ctx, deviceID)
}

// CheckResult summarizes one Check run.
type CheckResult struct {
	Locations     int
	Subscriptions int
	Notified      int
	Failed        int
}

// Check fetches alerts for every subscribed location and notifies each
// subscription of matching alerts it has not seen in an earlier check.
func (s *Service) Check(ctx context.Context) (CheckResult, error) {
	subs, err := s.subs.ActiveSubscriptions(ctx)
	if err != nil {
		return CheckResult{}, fmt.Errorf("load subscriptions: %w", err)
	}

	groups := make(map[string][]weather.AlertSubscription)
	var order []string
	for _, sub := range subs {
		k := sub.Location.String()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], sub)
	}

	res := CheckResult{Locations: len(groups), Subscriptions: len(subs)}
	for _, k := range order {
		group := groups[k]
		loc := weather.ResolvedLocation{Key: group[0].Location, Query: group[0].Query, Name: k}

		list, err := s.list(ctx, loc)
		if err != nil {
			s.log.WithError(err).WithField("location", k).Warn("alert check failed")
			res.Failed += len(group)
			continue
		}

		checkedAt := s.weather.Now()
		for _, sub := range group {
			fresh, seen := newAlerts(list.Notifications, sub)
			if len(fresh) > 0 {
				if err := s.notifier.Notify(ctx, sub, fresh); err != nil {
					s.log.WithError(err).WithField("device_id", sub.DeviceID).Warn("alert delivery failed")
					res.Failed++
					continue
				}
				res.Notified++
			}
			if err := s.subs.TouchSubscription(ctx, sub.ID, checkedAt, seen); err != nil {
				s.log.WithError(err).WithField("subscription_id", sub.ID).Warn("failed to record alert check")
			}
		}
	}
	return res, nil
}

// newAlerts returns the matching alerts sub has not been told about yet, and the
// ids of every matching alert in all. An alert is delivered once while it stays
// in the upstream list, whatever its effective time.
func newAlerts(all []Notification, sub weather.AlertSubscription) (fresh []Notification, seen []string) {
	known := make(map[string]bool, len(sub.SeenAlertIDs))
	for _, id := range sub.SeenAlertIDs {
		known[id] = true
	}
	seen = []string{}
	for _, n := range all {
		if !Matches(n, sub) {
			continue
		}
		seen = append(seen, n.ID)
		if !known[n.ID] {
			fresh = append(fresh, n)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		ti, iok := fresh[i].EffectiveTime()
		tj, jok := fresh[j].EffectiveTime()
		if iok != jok {
			return iok
		}
		return iok && ti.Before(tj)
	})
	return fresh, seen
}
