package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-assistant/internal/retry"
	"github.com/i474232898/weather-assistant/internal/weather"
)

// Apology is the answer when neither the model nor the template can say anything.
const Apology = "Sorry, I couldn't get weather information for your question right now. Please try again in a moment."

const composeSystemPrompt = `You are a friendly weather assistant. Answer the user's question using only the weather data provided. Answer in the language of the question, in at most five sentences. Do not invent numbers.`

// Composer turns a question, its intent and the gathered weather data into a
// natural-language answer.
type Composer struct {
	gen    Generator
	policy retry.Policy
	log    logrus.FieldLogger
}

type ComposerOption func(*Composer)

func WithComposerLogger(l logrus.FieldLogger) ComposerOption {
	return func(c *Composer) { c.log = l }
}

// WithComposerPolicy replaces the model retry policy, mainly for tests.
func WithComposerPolicy(p retry.Policy) ComposerOption {
	return func(c *Composer) { c.policy = p }
}

// NewComposer creates a Composer. gen may be nil, in which case answers come
// from the template only.
func NewComposer(gen Generator, opts ...ComposerOption) *Composer {
	c := &Composer{
		gen:    gen,
		policy: retry.Exponential(3, time.Second),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "response_composer")

	if r, ok := gen.(resetter); ok {
		last := c.policy.MaxAttempts - 1
		c.policy.BeforeAttempt = func(attempt int) {
			if attempt == last {
				r.Reset()
			}
		}
	}
	return c
}

// Compose returns a non-empty answer. The model is tried under the retry policy;
// after that the template answers, and the apology covers the rest.
func (c *Composer) Compose(ctx context.Context, question string, intent weather.Intent, facts Facts) string {
	sections := factSections(facts)

	if c.gen != nil && len(sections) > 0 {
		prompt := buildComposePrompt(question, intent, sections)
		var answer string
		err := c.policy.Do(ctx, func(ctx context.Context) error {
			text, err := c.gen.Generate(ctx, composeSystemPrompt, prompt)
			if err != nil {
				return err
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return fmt.Errorf("empty answer")
			}
			answer = text
			return nil
		})
		if err == nil {
			return answer
		}
		c.log.WithError(err).Warn("answer model unavailable; using template")
	}

	if answer := TemplateAnswer(intent, facts); answer != "" {
		return answer
	}
	return Apology
}

func buildComposePrompt(question string, intent weather.Intent, sections []section) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Requested: %s", intent.Type)
	if intent.Time.Date != "" {
		fmt.Fprintf(&sb, " for %s", intent.Time.Date)
	}
	if intent.Time.Hour != nil {
		fmt.Fprintf(&sb, " at %02d:00", *intent.Time.Hour)
	}
	if len(intent.Details) > 0 {
		fmt.Fprintf(&sb, " (focus: %s)", strings.Join(intent.Details, ", "))
	}
	sb.WriteString("\n")

	for _, s := range sections {
		fmt.Fprintf(&sb, "\n## %s\n%s\n", s.title, s.body)
	}
	return sb.String()
}

// TemplateAnswer builds a plain answer from the gathered data without the model.
// It returns "" when the data holds nothing to report.
func TemplateAnswer(intent weather.Intent, facts Facts) string {
	var parts []string
	place := placeName(facts)

	if doc, ok := decodeDoc(facts[weather.ReportCurrent]); ok && doc.Current != nil && doc.Current.TempC != nil {
		line := fmt.Sprintf("Currently %.1f°C", *doc.Current.TempC)
		if place != "" {
			line = fmt.Sprintf("Currently in %s it is %.1f°C", place, *doc.Current.TempC)
		}
		if doc.Current.Condition.Text != "" {
			line += ", " + strings.ToLower(doc.Current.Condition.Text)
		}
		parts = append(parts, line+".")
	}

	if intent.Time.Hour != nil {
		if temp, cond, ok := hourReading(facts[weather.ReportForecast], intent.Time.Date, *intent.Time.Hour); ok {
			line := fmt.Sprintf("At %02d:00 expect %.1f°C", *intent.Time.Hour, temp)
			if cond != "" {
				line += ", " + strings.ToLower(cond)
			}
			parts = append(parts, line+".")
		}
	}

	if doc, ok := decodeDoc(facts[weather.ReportForecast]); ok && doc.Forecast != nil && len(doc.Forecast.Days) > 1 {
		next := doc.Forecast.Days[1]
		if next.Day.MinTempC != nil && next.Day.MaxTempC != nil {
			line := fmt.Sprintf("Tomorrow (%s): %.1f to %.1f°C", next.Date, *next.Day.MinTempC, *next.Day.MaxTempC)
			if next.Day.Condition.Text != "" {
				line += ", " + strings.ToLower(next.Day.Condition.Text)
			}
			parts = append(parts, line+".")
		}
	}

	if doc, ok := decodeDoc(facts[weather.ReportHistory]); ok && doc.Forecast != nil && len(doc.Forecast.Days) > 0 {
		d := doc.Forecast.Days[0]
		if d.Day.AvgTempC != nil {
			line := fmt.Sprintf("On %s the average was %.1f°C", d.Date, *d.Day.AvgTempC)
			if d.Day.Condition.Text != "" {
				line += ", " + strings.ToLower(d.Day.Condition.Text)
			}
			parts = append(parts, line+".")
		}
	}

	if s := summarizeAstronomy(facts[weather.ReportAstronomy]); s != "" {
		parts = append(parts, "Astronomy: "+s+".")
	}
	if s := summarizeTimezone(facts[weather.ReportTimezone]); s != "" {
		parts = append(parts, "Local "+s+".")
	}
	if doc, ok := decodeDoc(facts[weather.ReportAlerts]); ok && doc.Alerts != nil {
		if n := len(doc.Alerts.Alert); n > 0 {
			parts = append(parts, fmt.Sprintf("There are %d active weather alerts: %s.", n, doc.Alerts.Alert[0].Headline))
		} else {
			parts = append(parts, "There are no active weather alerts.")
		}
	}

	return strings.Join(parts, " ")
}
