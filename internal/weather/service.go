package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service is the cache/lookup layer in front of the upstream weather client.
// It decides per request whether a stored record is fresh enough to serve or the
// upstream provider has to be called, and persists every new upstream response.
type Service struct {
	records  RecordStore
	upstream Upstream
	geocoder Geocoder
	log      logrus.FieldLogger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger used for cache and persistence diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
func NewService(records RecordStore, upstream Upstream, geocoder Geocoder, opts ...Option) *Service {
	s := &Service{
		records:  records,
		upstream: upstream,
		geocoder: geocoder,
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "weather_cache")
	return s
}

// Now returns the service clock's current time in UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// LocationQuery is a caller-supplied location: a free-text name or a coordinate pair.
type LocationQuery struct {
	Name string
	Lat  *float64
	Lon  *float64
}

// ResolvedLocation is a location ready for cache lookup and upstream calls.
type ResolvedLocation struct {
	Key LocationKey `json:"key"`
	// Query is the string handed to the upstream "q" parameter.
	Query string  `json:"query"`
	Name  string  `json:"name"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// Resolve turns a LocationQuery into a ResolvedLocation. Coordinates are used
// verbatim; names go through the geocoder and key records by the canonical name.
func (s *Service) Resolve(ctx context.Context, q LocationQuery) (ResolvedLocation, error) {
	if q.Lat != nil && q.Lon != nil {
		coords := FormatCoords(*q.Lat, *q.Lon)
		return ResolvedLocation{
			Key:   CoordKey(*q.Lat, *q.Lon),
			Query: coords,
			Name:  coords,
			Lat:   *q.Lat,
			Lon:   *q.Lon,
		}, nil
	}
	if q.Name == "" {
		return ResolvedLocation{}, NewValidationError("location", "location or lat/lon is required")
	}
	if s.geocoder == nil {
		return ResolvedLocation{}, fmt.Errorf("no geocoder configured")
	}

	place, err := s.geocoder.Geocode(ctx, q.Name)
	if err != nil {
		return ResolvedLocation{}, err
	}
	if place.Name == "" {
		place.Name = q.Name
	}

	return ResolvedLocation{
		Key:   CityKey(place.Name),
		Query: FormatCoords(place.Lat, place.Lon),
		Name:  place.Name,
		Lat:   place.Lat,
		Lon:   place.Lon,
	}, nil
}

// Lookup returns the newest record of type rt for key and aux fetched within the
// freshness window, or nil. Store failures are logged and reported as a miss.
func (s *Service) Lookup(ctx context.Context, rt ReportType, key LocationKey, aux AuxKey) *WeatherRecord {
	window := FreshnessWindow(rt)
	if window <= 0 || s.records == nil {
		return nil
	}

	since := s.Now().Add(-window)
	rec, err := s.records.FindLatest(ctx, rt, key, aux, since)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"report":   rt,
			"location": key.String(),
		}).Warn("cache lookup failed; falling back to upstream")
		return nil
	}
	if rec == nil {
		return nil
	}

	rec.FromCache = true
	return rec
}

// Store persists a new record stamped with the current time. The record is always
// returned; persistence failures are only logged.
func (s *Service) Store(ctx context.Context, rt ReportType, key LocationKey, aux AuxKey, payload json.RawMessage) *WeatherRecord {
	rec := &WeatherRecord{
		ID:         uuid.NewString(),
		ReportType: rt,
		Location:   key,
		Aux:        aux,
		FetchedAt:  s.Now(),
		Payload:    payload,
	}
	if s.records == nil {
		return rec
	}

	if err := s.records.SaveRecord(ctx, rec); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"report":   rt,
			"location": key.String(),
		}).Warn("failed to persist weather record")
	}
	return rec
}

// FetchFunc produces a fresh payload on a cache miss.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Cached serves a fresh record for (rt, key, aux) from the store, or calls fetch
// exactly once and stores its result.
func (s *Service) Cached(ctx context.Context, rt ReportType, key LocationKey, aux AuxKey, fetch FetchFunc) (*WeatherRecord, error) {
	if rec := s.Lookup(ctx, rt, key, aux); rec != nil {
		s.log.WithFields(logrus.Fields{"report": rt, "location": key.String()}).Debug("cache hit")
		return rec, nil
	}

	s.log.WithFields(logrus.Fields{"report": rt, "location": key.String()}).Debug("cache miss")
	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	return s.Store(ctx, rt, key, aux, payload), nil
}

// Report returns the rt report for an already resolved location.
func (s *Service) Report(ctx context.Context, rt ReportType, loc ResolvedLocation, aux AuxKey) (*WeatherRecord, error) {
	if !rt.IsUpstream() {
		return nil, fmt.Errorf("report type %q is not served by the upstream client", rt)
	}
	return s.Cached(ctx, rt, loc.Key, aux, func(ctx context.Context) (json.RawMessage, error) {
		return s.Fetch(ctx, rt, loc, aux)
	})
}

// Fetch calls the upstream provider directly, bypassing the store. Derived
// reports use it inside their own Cached fetch.
func (s *Service) Fetch(ctx context.Context, rt ReportType, loc ResolvedLocation, aux AuxKey) (json.RawMessage, error) {
	if s.upstream == nil {
		return nil, fmt.Errorf("no upstream weather client configured")
	}
	return s.upstream.Call(ctx, rt, Params{
		Query: loc.Query,
		Days:  aux.Days,
		Date:  aux.Date,
		Extra: featureFlags(rt),
	})
}

// Get resolves q and returns the rt report for it. Geocoding misses fail with
// ErrLocationNotFound before any upstream weather call.
func (s *Service) Get(ctx context.Context, rt ReportType, q LocationQuery, aux AuxKey) (*WeatherRecord, ResolvedLocation, error) {
	loc, err := s.Resolve(ctx, q)
	if err != nil {
		return nil, ResolvedLocation{}, err
	}
	rec, err := s.Report(ctx, rt, loc, aux)
	if err != nil {
		return nil, loc, err
	}
	return rec, loc, nil
}

func featureFlags(rt ReportType) map[string]string {
	switch rt {
	case ReportCurrent:
		return map[string]string{"aqi": "yes"}
	case ReportForecast:
		return map[string]string{"aqi": "yes", "alerts": "yes"}
	case ReportMarine:
		return map[string]string{"tides": "yes"}
	default:
		return nil
	}
}
