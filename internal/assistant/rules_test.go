package assistant

import (
	"testing"

	"github.com/i474232898/weather-assistant/internal/weather"
)

func TestRuleIntent(t *testing.T) {
	cases := []struct {
		question string
		report   weather.ReportType
		location string
		timeType string
		date     string
	}{
		{"What's the weather in Hanoi?", weather.ReportCurrent, "Hanoi", "current", ""},
		{"Is it sunny in Hanoi right now?", weather.ReportCurrent, "Hanoi", "current", ""},
		{"Will it rain tomorrow in Hue?", weather.ReportForecast, "Hue", "tomorrow", "2026-10-20"},
		{"weather for tomorrow in Hue", weather.ReportForecast, "Hue", "tomorrow", "2026-10-20"},
		{"How was the weather 3 days ago in Hanoi", weather.ReportHistory, "Hanoi", "history", "2026-10-16"},
		{"thời tiết hôm qua ở Hà Nội", weather.ReportHistory, "Hà Nội", "history", "2026-10-18"},
		{"weather on 01/10/2026", weather.ReportHistory, "", "history", "2026-10-01"},
		{"weather on 25/10/2026", weather.ReportForecast, "", "specific", "2026-10-25"},
		{"weather on 25/12/2026", weather.ReportFuture, "", "future", "2026-12-25"},
		{"When is sunset in Hue?", weather.ReportAstronomy, "Hue", "current", ""},
		{"Are there any storm warnings for Da Nang?", weather.ReportAlerts, "Da Nang", "current", ""},
		{"What's the local time in Tokyo", weather.ReportTimezone, "Tokyo", "current", ""},
		{"How big are the waves in Nha Trang today?", weather.ReportMarine, "Nha Trang", "today", "2026-10-19"},
		{"dự báo thời tiết tuần tới ở Huế", weather.ReportForecast, "Huế", "range", ""},
		{"weather next week in Hanoi", weather.ReportForecast, "Hanoi", "range", ""},
		{"weather in 3 days", weather.ReportForecast, "", "range", ""},
		{"weather in 20 days", weather.ReportFuture, "", "future", "2026-11-08"},
	}

	for _, tc := range cases {
		t.Run(tc.question, func(t *testing.T) {
			got := RuleIntent(tc.question, testNow)
			if got.Type != tc.report {
				t.Errorf("type: expected %s, got %s", tc.report, got.Type)
			}
			if got.Location != tc.location {
				t.Errorf("location: expected %q, got %q", tc.location, got.Location)
			}
			if got.Time.Type != tc.timeType {
				t.Errorf("time type: expected %q, got %q", tc.timeType, got.Time.Type)
			}
			if got.Time.Date != tc.date {
				t.Errorf("date: expected %q, got %q", tc.date, got.Time.Date)
			}
			if got.Source != "rules" {
				t.Errorf("unexpected source %q", got.Source)
			}
			if got.Details == nil {
				t.Errorf("details must never be nil")
			}
		})
	}
}

func TestRuleIntentHourly(t *testing.T) {
	got := RuleIntent("temperature at 3pm tomorrow in Hue", testNow)
	if got.Time.Hour == nil || *got.Time.Hour != 15 {
		t.Fatalf("expected hour 15, got %+v", got.Time)
	}
	if got.Time.Date != "2026-10-20" || got.Time.Type != "hourly" {
		t.Fatalf("unexpected time %+v", got.Time)
	}
	if got.Location != "Hue" {
		t.Fatalf("unexpected location %q", got.Location)
	}
}

func TestRuleDetails(t *testing.T) {
	got := RuleIntent("How humid and windy is it in Hue, and what's the UV index?", testNow).Details
	want := map[string]bool{"humidity": true, "wind": true, "uv": true}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for _, d := range got {
		if !want[d] {
			t.Fatalf("unexpected detail %q in %v", d, got)
		}
	}
}

func TestExplicitDateRejectsImpossibleDates(t *testing.T) {
	if _, ok := explicitDate("31/02/2026"); ok {
		t.Fatal("31/02 must be rejected")
	}
	if d, ok := explicitDate("on 05/11/2026"); !ok || d.Format(isoDate) != "2026-11-05" {
		t.Fatalf("unexpected parse %v %v", d, ok)
	}
}

func TestExtractObject(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":                 `{"a":1}`,
		"Sure! {\"a\":{\"b\":\"}\"}} trailing {x}": `{"a":{"b":"}"}}`,
		`{"q":"say \"{hi}\""}`:                     `{"q":"say \"{hi}\""}`,
	}
	for in, want := range cases {
		got, ok := extractObject(in)
		if !ok || got != want {
			t.Errorf("extractObject(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := extractObject("no json {here"); ok {
		t.Error("unbalanced input must not match")
	}
}
