package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-assistant/internal/weather"
)

const intentSystemPrompt = `You classify weather questions. Answer with a single JSON object and nothing else.`

const intentPromptTemplate = `Today is %s.
Extract the intent of the weather question below as JSON with exactly these fields:
{
  "location": "place name mentioned in the question, or empty string",
  "time": {"type": "current|today|tomorrow|specific|range|future|history|hourly", "value": "the time expression", "period": "optional period", "isHistory": true|false, "date": "YYYY-MM-DD when a single day is meant, else empty"},
  "type": "current|forecast|history|future|marine|astronomy|timezone|alerts",
  "details": ["requested facets such as temperature, humidity, wind, rain, uv, air_quality"]
}
Use "history" for past days, "future" for days more than 14 days ahead, "forecast" for the coming days.

Question: %s`

// Resolver turns free-text questions into structured intents. It asks the
// generative model first and falls back to RuleIntent; it never fails.
type Resolver struct {
	gen Generator
	log logrus.FieldLogger
	now func() time.Time
}

type ResolverOption func(*Resolver)

func WithResolverLogger(l logrus.FieldLogger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver. gen may be nil, in which case only rules are used.
func NewResolver(gen Generator, opts ...ResolverOption) *Resolver {
	r := &Resolver{gen: gen, log: logrus.StandardLogger(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("component", "question_resolver")
	return r
}

// Resolve returns the intent of question.
func (r *Resolver) Resolve(ctx context.Context, question string) weather.Intent {
	now := r.now().UTC()
	if r.gen == nil {
		return RuleIntent(question, now)
	}

	prompt := fmt.Sprintf(intentPromptTemplate, now.Format(isoDate), question)
	text, err := r.gen.Generate(ctx, intentSystemPrompt, prompt)
	if err != nil {
		r.log.WithError(err).Warn("intent model call failed; using rules")
		return RuleIntent(question, now)
	}

	obj, ok := decodeObject(text)
	if !ok {
		r.log.WithField("response", truncate(text, 200)).Warn("intent model returned no JSON object; using rules")
		return RuleIntent(question, now)
	}

	return intentFromObject(obj, question, now)
}

// intentFromObject maps a model-produced object onto an Intent, defaulting every
// missing or malformed field and reclassifying an unknown type.
func intentFromObject(obj map[string]any, question string, now time.Time) weather.Intent {
	intent := weather.Intent{
		Location: stringField(obj, "location"),
		Type:     weather.ReportType(strings.ToLower(stringField(obj, "type"))),
		Details:  stringsField(obj, "details"),
		Source:   "ai",
	}
	if intent.Location == "" {
		intent.Location = ruleLocation(question)
	}

	spec := weather.TimeSpec{Type: "current"}
	if tm, ok := obj["time"].(map[string]any); ok {
		if t := strings.ToLower(stringField(tm, "type")); t != "" {
			spec.Type = t
		}
		spec.Value = stringField(tm, "value")
		spec.Period = stringField(tm, "period")
		spec.IsHistory = boolField(tm, "isHistory")
		spec.Date = normalizeDate(stringField(tm, "date"))
		if spec.Date == "" {
			spec.Date = normalizeDate(spec.Value)
		}
		if h, ok := floatField(tm, "hour"); ok && h >= 0 && h < 24 {
			hour := int(h)
			spec.Hour = &hour
		}
	}
	if spec.Type == "history" {
		spec.IsHistory = true
	}
	intent.Time = spec

	if !weather.IsIntentType(intent.Type) {
		intent.Type = reclassify(spec)
	}
	if intent.Type == weather.ReportHistory && intent.Time.Date == "" {
		// the rules know how to turn "N days ago" into a date
		if fallback, ok := historySpec(strings.ToLower(question), dateOnly(now)); ok {
			intent.Time.Date = fallback.Date
		}
	}
	return intent
}

func reclassify(spec weather.TimeSpec) weather.ReportType {
	switch {
	case spec.IsHistory:
		return weather.ReportHistory
	case spec.Type == "range" || spec.Type == "future":
		return weather.ReportForecast
	default:
		return weather.ReportCurrent
	}
}

// normalizeDate accepts YYYY-MM-DD or dd/mm/yyyy and returns YYYY-MM-DD, or "".
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if t, err := time.Parse(isoDate, s); err == nil {
		return t.Format(isoDate)
	}
	if t, ok := explicitDate(s); ok {
		return t.Format(isoDate)
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
