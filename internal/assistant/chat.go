package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-assistant/internal/weather"
)

const (
	// MaxHistory caps the number of chat records returned by History.
	MaxHistory = 50

	// earliestHistory is the oldest date the history report accepts.
	earliestHistory = "2010-01-01"
)

// ChatRequest is one user question.
type ChatRequest struct {
	Question  string
	City      string
	SessionID string
}

// ChatResponse is the answer to a ChatRequest together with the data behind it.
type ChatResponse struct {
	Answer    string         `json:"answer"`
	SessionID string         `json:"sessionId"`
	Intent    weather.Intent `json:"intent"`
	Location  string         `json:"location"`
	Weather   Facts          `json:"weather"`
	Timestamp time.Time      `json:"timestamp"`
}

// Chat answers weather questions: it resolves the intent, gathers the reports the
// intent needs through the cache layer, composes an answer and records the exchange.
type Chat struct {
	resolver    *Resolver
	composer    *Composer
	weather     *weather.Service
	chats       weather.ChatStore
	defaultCity string
	log         logrus.FieldLogger
}

func NewChat(resolver *Resolver, composer *Composer, svc *weather.Service, chats weather.ChatStore, defaultCity string, log logrus.FieldLogger) *Chat {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Chat{
		resolver:    resolver,
		composer:    composer,
		weather:     svc,
		chats:       chats,
		defaultCity: defaultCity,
		log:         log.WithField("component", "chat"),
	}
}

// Ask answers req. It only fails on an empty question, when no candidate place
// resolves, or when the location lookup itself errors.
func (c *Chat) Ask(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Question == "" {
		return nil, weather.NewValidationError("question", "question is required")
	}

	intent := c.resolver.Resolve(ctx, req.Question)

	loc, err := c.resolveLocation(ctx, intent.Location, req.City, c.defaultCity)
	if err != nil {
		return nil, err
	}

	facts := c.gather(ctx, loc, planReports(intent, c.weather.Now()))
	answer := c.composer.Compose(ctx, req.Question, intent, facts)

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := c.weather.Now()

	rec := &weather.ChatRecord{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Question:        req.Question,
		Answer:          answer,
		ResolvedIntent:  intent,
		WeatherSnapshot: facts,
		CreatedAt:       now,
	}
	if c.chats != nil {
		if err := c.chats.SaveChat(ctx, rec); err != nil {
			c.log.WithError(err).WithField("session_id", sessionID).Warn("failed to persist chat record")
		}
	}

	return &ChatResponse{
		Answer:    answer,
		SessionID: sessionID,
		Intent:    intent,
		Location:  loc.Name,
		Weather:   facts,
		Timestamp: now,
	}, nil
}

// History returns up to MaxHistory chat records of the session, newest first.
func (c *Chat) History(ctx context.Context, sessionID string, limit int) ([]weather.ChatRecord, error) {
	if sessionID == "" {
		return nil, weather.NewValidationError("sessionId", "session id is required")
	}
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	if c.chats == nil {
		return []weather.ChatRecord{}, nil
	}
	return c.chats.ChatHistory(ctx, sessionID, limit)
}

// resolveLocation tries each non-empty candidate in order and returns the first
// that geocodes.
func (c *Chat) resolveLocation(ctx context.Context, candidates ...string) (weather.ResolvedLocation, error) {
	tried := false
	for _, name := range candidates {
		if name == "" {
			continue
		}
		tried = true
		loc, err := c.weather.Resolve(ctx, weather.LocationQuery{Name: name})
		if err == nil {
			return loc, nil
		}
		if !errors.Is(err, weather.ErrLocationNotFound) {
			return weather.ResolvedLocation{}, err
		}
		c.log.WithField("location", name).Debug("location not found; trying next candidate")
	}
	if !tried {
		return weather.ResolvedLocation{}, weather.NewValidationError("city", "no location in question and no default city configured")
	}
	return weather.ResolvedLocation{}, weather.ErrLocationNotFound
}

type plannedReport struct {
	rt  weather.ReportType
	aux weather.AuxKey
}

// planReports lists the reports needed to answer intent. today is in UTC.
func planReports(intent weather.Intent, today time.Time) []plannedReport {
	day := dateOnly(today)
	target, hasTarget := parseISO(intent.Time.Date)

	forecastDays := 2
	if hasTarget {
		if n := int(target.Sub(day).Hours()/24) + 1; n > forecastDays {
			forecastDays = n
		}
	}
	if intent.Time.Type == "range" {
		if n := rangeDays(intent.Time); n > forecastDays {
			forecastDays = n
		}
	}
	if forecastDays > maxForecastDays {
		forecastDays = maxForecastDays
	}

	current := plannedReport{rt: weather.ReportCurrent}
	forecast := plannedReport{rt: weather.ReportForecast, aux: weather.AuxKey{Days: forecastDays}}

	switch intent.Type {
	case weather.ReportHistory:
		date := day.AddDate(0, 0, -1)
		if hasTarget && target.Before(day) {
			date = target
		}
		if earliest, _ := parseISO(earliestHistory); date.Before(earliest) {
			date = earliest
		}
		return []plannedReport{{rt: weather.ReportHistory, aux: weather.AuxKey{Date: date.Format(isoDate)}}}

	case weather.ReportFuture:
		if hasTarget && target.After(day.AddDate(0, 0, maxForecastDays)) {
			return []plannedReport{{rt: weather.ReportFuture, aux: weather.AuxKey{Date: target.Format(isoDate)}}}
		}
		return []plannedReport{current, forecast}

	case weather.ReportForecast:
		return []plannedReport{current, forecast}

	case weather.ReportMarine:
		return []plannedReport{current, {rt: weather.ReportMarine, aux: weather.AuxKey{Days: 1}}}

	case weather.ReportAstronomy:
		date := day
		if hasTarget {
			date = target
		}
		return []plannedReport{{rt: weather.ReportAstronomy, aux: weather.AuxKey{Date: date.Format(isoDate)}}}

	case weather.ReportTimezone:
		return []plannedReport{{rt: weather.ReportTimezone}}

	case weather.ReportAlerts:
		return []plannedReport{current, {rt: weather.ReportAlerts}}

	default:
		return []plannedReport{current, forecast}
	}
}

// gather fetches the planned reports concurrently. Failed reports are logged and
// left out.
func (c *Chat) gather(ctx context.Context, loc weather.ResolvedLocation, plan []plannedReport) Facts {
	facts := Facts{}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range plan {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()

			rec, err := c.weather.Report(ctx, p.rt, loc, p.aux)
			if err != nil {
				c.log.WithError(err).WithFields(logrus.Fields{
					"report":   p.rt,
					"location": loc.Name,
				}).Warn("report fetch failed")
				return
			}

			mu.Lock()
			facts[p.rt] = json.RawMessage(rec.Payload)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return facts
}

// rangeDays is the number of forecast days a range expression spans.
func rangeDays(spec weather.TimeSpec) int {
	switch spec.Period {
	case "week", "weekend":
		return 7
	}
	var n int
	if _, err := fmt.Sscanf(spec.Value, "%d", &n); err == nil && n > 0 {
		return n + 1
	}
	return 3
}

func parseISO(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
