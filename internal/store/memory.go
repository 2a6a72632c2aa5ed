package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// recordHistory holds the records of one (report type, location, aux) key in
// insertion order.
type recordHistory struct {
	Records []weather.WeatherRecord
}

// MemoryStore is a concurrency-safe in-memory implementation of Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: recordKey, value: history
	records map[string]*recordHistory
	chats   []weather.ChatRecord
	// key: subscriptionKey
	subs map[string]*weather.AlertSubscription

	// max number of records kept per key (0 = unlimited)
	maxHistory int
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]*recordHistory),
		subs:       make(map[string]*weather.AlertSubscription),
		maxHistory: maxHistory,
	}
}

// SaveRecord appends a record and enforces retention.
func (s *MemoryStore) SaveRecord(_ context.Context, rec *weather.WeatherRecord) error {
	key := recordKey(rec.ReportType, rec.Location, rec.Aux)
	stored := *rec
	stored.FromCache = false

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.records[key]
	if !ok {
		history = &recordHistory{}
		s.records[key] = history
	}
	history.Records = append(history.Records, stored)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Records) > s.maxHistory {
		over := len(history.Records) - s.maxHistory
		history.Records = history.Records[over:]
	}
	return nil
}

// FindLatest returns the record with the greatest FetchedAt after since, or nil.
func (s *MemoryStore) FindLatest(_ context.Context, rt weather.ReportType, key weather.LocationKey, aux weather.AuxKey, since time.Time) (*weather.WeatherRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.records[recordKey(rt, key, aux)]
	if !ok {
		return nil, nil
	}

	var latest *weather.WeatherRecord
	for i := range history.Records {
		r := &history.Records[i]
		if !r.FetchedAt.After(since) {
			continue
		}
		if latest == nil || r.FetchedAt.After(latest.FetchedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (s *MemoryStore) SaveChat(_ context.Context, rec *weather.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append(s.chats, *rec)
	return nil
}

// ChatHistory returns up to limit records of sessionID, newest first.
func (s *MemoryStore) ChatHistory(_ context.Context, sessionID string, limit int) ([]weather.ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.ChatRecord, 0)
	for _, c := range s.chats {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertSubscription inserts sub or, when the device already has a subscription
// for the location, updates and reactivates it. sub receives the stored id and
// creation time.
func (s *MemoryStore) UpsertSubscription(_ context.Context, sub *weather.AlertSubscription) error {
	key := subscriptionKey(sub.DeviceID, sub.Location)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.subs[key]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		if sub.LastCheckedAt.IsZero() {
			sub.LastCheckedAt = existing.LastCheckedAt
			sub.SeenAlertIDs = existing.SeenAlertIDs
		}
	} else if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.Active = true

	stored := *sub
	stored.TypeFilters = append([]string(nil), sub.TypeFilters...)
	stored.SeenAlertIDs = append([]string(nil), sub.SeenAlertIDs...)
	s.subs[key] = &stored
	return nil
}

// DeactivateSubscriptions soft-deletes the device's active subscriptions, or only
// the one for key when key is non-nil, and returns how many changed.
func (s *MemoryStore) DeactivateSubscriptions(_ context.Context, deviceID string, key *weather.LocationKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := time.Now().UTC()
	for _, sub := range s.subs {
		if sub.DeviceID != deviceID || !sub.Active {
			continue
		}
		if key != nil && sub.Location.String() != key.String() {
			continue
		}
		sub.Active = false
		sub.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *MemoryStore) DeviceSubscriptions(_ context.Context, deviceID string) ([]weather.AlertSubscription, error) {
	return s.filterSubs(func(sub *weather.AlertSubscription) bool {
		return sub.Active && sub.DeviceID == deviceID
	}), nil
}

func (s *MemoryStore) ActiveSubscriptions(_ context.Context) ([]weather.AlertSubscription, error) {
	return s.filterSubs(func(sub *weather.AlertSubscription) bool {
		return sub.Active
	}), nil
}

func (s *MemoryStore) filterSubs(keep func(*weather.AlertSubscription) bool) []weather.AlertSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.AlertSubscription, 0)
	for _, sub := range s.subs {
		if keep(sub) {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// TouchSubscription records when alerts were last checked for id and which
// alerts that check saw.
func (s *MemoryStore) TouchSubscription(_ context.Context, id string, checkedAt time.Time, seenAlertIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if sub.ID == id {
			sub.LastCheckedAt = checkedAt
			sub.SeenAlertIDs = append([]string(nil), seenAlertIDs...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
