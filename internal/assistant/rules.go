package assistant

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/weather-assistant/internal/common"
	"github.com/i474232898/weather-assistant/internal/weather"
)

const isoDate = "2006-01-02"

// maxForecastDays is the furthest day ahead the forecast report covers.
const maxForecastDays = 14

var (
	daysAgoRe      = regexp.MustCompile(`(\d{1,3})\s*(?:days?|ngày)\s*(?:ago|trước)`)
	explicitDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	inDaysRe       = regexp.MustCompile(`(?:in|next|trong|sau)\s+(\d{1,2})\s*(?:days?|ngày)`)
	hourRe         = regexp.MustCompile(`(?:^|\s)(\d{1,2})(?::(\d{2}))?\s*(am|pm|h|giờ)(?:[^a-z]|$)`)
	yesterdayRe    = regexp.MustCompile(`\byesterday\b`)
	tomorrowRe     = regexp.MustCompile(`\btomorrow\b`)
	nextWeekRe     = regexp.MustCompile(`\bnext week\b`)
	weekendRe      = regexp.MustCompile(`\bweekend\b`)
	todayRe        = regexp.MustCompile(`\btoday\b|\btonight\b`)

	locationEnRe = regexp.MustCompile(`(?i)\b(?:in|at|for)\s+([\p{L}][\p{L}\s.'-]*?)\s*(?:\b(?:today|tomorrow|yesterday|now|tonight|this|next|last|on|at|in|during|over|right)\b|[?,.!;]|\d|$)`)
	locationViRe = regexp.MustCompile(`(?i)(?:^|\s)(?:ở|tại)\s+([\p{L}][\p{L}\s.'-]*?)\s*(?:(?:hôm nay|ngày mai|hôm qua|bây giờ|tuần|lúc|vào|thế nào|như thế nào|ra sao|có)(?:\s|$|[?,.!])|[?,.!;]|\d|$)`)
)

// notLocations are words the location patterns capture but that never name a place.
var notLocations = map[string]bool{
	"the": true, "a": true, "today": true, "tomorrow": true, "yesterday": true,
	"now": true, "tonight": true, "the weekend": true, "weekend": true,
	"the next": true, "next": true, "the week": true, "this week": true,
	"the morning": true, "the afternoon": true, "the evening": true,
	"morning": true, "afternoon": true, "evening": true, "noon": true,
}

type keywordCategory struct {
	report  weather.ReportType
	english *regexp.Regexp
	local   []string
}

// keywordCategories are matched in order; the first hit decides the report type.
var keywordCategories = []keywordCategory{
	{
		report:  weather.ReportForecast,
		english: regexp.MustCompile(`\b(?:forecast|tomorrow|next week|next few days|this week|weekend|coming days|upcoming)\b`),
		local:   []string{"dự báo", "ngày mai", "tuần tới", "tuần sau", "mấy ngày tới", "cuối tuần", "sắp tới"},
	},
	{
		report:  weather.ReportMarine,
		english: regexp.MustCompile(`\b(?:sea|seas|waves?|tides?|marine|surf|swell|beach|sailing)\b`),
		local:   []string{"biển", "sóng", "thủy triều", "thuỷ triều"},
	},
	{
		report:  weather.ReportAstronomy,
		english: regexp.MustCompile(`\b(?:sun|moon|sunrise|sunset|moonrise|moonset|moon phase|full moon|dawn|dusk)\b`),
		local:   []string{"mặt trời", "mặt trăng", "bình minh", "hoàng hôn", "trăng"},
	},
	{
		report:  weather.ReportAlerts,
		english: regexp.MustCompile(`\b(?:warnings?|alerts?|storms?|typhoons?|hurricanes?|dangerous|severe)\b`),
		local:   []string{"cảnh báo", "bão", "nguy hiểm", "lũ"},
	},
	{
		report:  weather.ReportTimezone,
		english: regexp.MustCompile(`\b(?:time ?zone|local time|what time)\b`),
		local:   []string{"múi giờ", "giờ địa phương", "mấy giờ"},
	},
}

var detailFacets = []struct {
	name     string
	keywords []string
}{
	{"temperature", []string{"temperature", "temp", "hot", "cold", "warm", "degrees", "nhiệt độ", "nóng", "lạnh", "độ c"}},
	{"feels_like", []string{"feels like", "feel like", "cảm giác"}},
	{"humidity", []string{"humid", "humidity", "độ ẩm", "ẩm"}},
	{"wind", []string{"wind", "windy", "gió"}},
	{"rain", []string{"rain", "raining", "precipitation", "umbrella", "shower", "mưa"}},
	{"uv", []string{"uv", "tia cực tím"}},
	{"air_quality", []string{"air quality", "aqi", "pollution", "smog", "không khí", "bụi mịn"}},
	{"visibility", []string{"visibility", "fog", "tầm nhìn", "sương mù"}},
	{"pressure", []string{"pressure", "áp suất"}},
	{"cloud", []string{"cloud", "cloudy", "mây"}},
}

// RuleIntent classifies question with keyword and pattern rules. It is the
// fallback when the generative model is unavailable or answers with garbage.
func RuleIntent(question string, now time.Time) weather.Intent {
	text := strings.ToLower(strings.TrimSpace(question))
	today := dateOnly(now)

	intent := weather.Intent{
		Location: ruleLocation(question),
		Time:     weather.TimeSpec{Type: "current"},
		Type:     weather.ReportCurrent,
		Details:  ruleDetails(text),
		Source:   "rules",
	}

	if spec, ok := historySpec(text, today); ok {
		intent.Time = spec
		intent.Type = weather.ReportHistory
		return intent
	}

	if day, ok := explicitDate(text); ok {
		switch {
		case day.Before(today):
			intent.Type = weather.ReportHistory
			intent.Time = weather.TimeSpec{Type: "history", Value: day.Format(isoDate), IsHistory: true, Date: day.Format(isoDate)}
		case day.After(today.AddDate(0, 0, maxForecastDays)):
			intent.Type = weather.ReportFuture
			intent.Time = weather.TimeSpec{Type: "future", Value: day.Format(isoDate), Date: day.Format(isoDate)}
		case day.After(today):
			intent.Type = weather.ReportForecast
			intent.Time = weather.TimeSpec{Type: "specific", Value: day.Format(isoDate), Date: day.Format(isoDate)}
		default:
			intent.Time = weather.TimeSpec{Type: "today", Date: today.Format(isoDate)}
		}
		return intent
	}

	for _, cat := range keywordCategories {
		if cat.english.MatchString(text) || common.HasAny(text, cat.local...) {
			intent.Type = cat.report
			break
		}
	}

	intent.Time = ruleTime(text, today, intent.Type)
	if intent.Type == weather.ReportCurrent {
		switch intent.Time.Type {
		case "future":
			intent.Type = weather.ReportFuture
		case "tomorrow", "range":
			intent.Type = weather.ReportForecast
		}
	}
	return intent
}

func historySpec(text string, today time.Time) (weather.TimeSpec, bool) {
	if m := daysAgoRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			d := today.AddDate(0, 0, -n).Format(isoDate)
			return weather.TimeSpec{Type: "history", Value: m[0], IsHistory: true, Date: d}, true
		}
	}
	if yesterdayRe.MatchString(text) || strings.Contains(text, "hôm qua") {
		d := today.AddDate(0, 0, -1).Format(isoDate)
		return weather.TimeSpec{Type: "history", Value: "yesterday", IsHistory: true, Date: d}, true
	}
	return weather.TimeSpec{}, false
}

// explicitDate parses the first dd/mm/yyyy date in text.
func explicitDate(text string) (time.Time, bool) {
	m := explicitDateRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// reject dates time.Date normalized, e.g. 31/02
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func ruleTime(text string, today time.Time, rt weather.ReportType) weather.TimeSpec {
	if m := hourRe.FindStringSubmatch(text); m != nil {
		if h, ok := parseHour(m[1], m[3]); ok {
			spec := weather.TimeSpec{Type: "hourly", Value: strings.TrimSpace(m[0]), Hour: &h}
			if tomorrowRe.MatchString(text) || strings.Contains(text, "ngày mai") {
				spec.Date = today.AddDate(0, 0, 1).Format(isoDate)
			} else {
				spec.Date = today.Format(isoDate)
			}
			return spec
		}
	}

	switch {
	case tomorrowRe.MatchString(text) || strings.Contains(text, "ngày mai"):
		return weather.TimeSpec{Type: "tomorrow", Value: "tomorrow", Date: today.AddDate(0, 0, 1).Format(isoDate)}
	case inDaysRe.MatchString(text):
		n, _ := strconv.Atoi(inDaysRe.FindStringSubmatch(text)[1])
		if n < 1 {
			n = 1
		}
		if n > maxForecastDays {
			return weather.TimeSpec{Type: "future", Value: strconv.Itoa(n) + " days", Date: today.AddDate(0, 0, n).Format(isoDate)}
		}
		return weather.TimeSpec{Type: "range", Value: strconv.Itoa(n) + " days", Period: "days"}
	case nextWeekRe.MatchString(text) || common.HasAny(text, "tuần tới", "tuần sau"):
		return weather.TimeSpec{Type: "range", Value: "next week", Period: "week"}
	case weekendRe.MatchString(text) || strings.Contains(text, "cuối tuần"):
		return weather.TimeSpec{Type: "range", Value: "weekend", Period: "weekend"}
	case todayRe.MatchString(text) || common.HasAny(text, "hôm nay", "tối nay"):
		return weather.TimeSpec{Type: "today", Date: today.Format(isoDate)}
	}

	if rt == weather.ReportForecast {
		return weather.TimeSpec{Type: "range", Value: "next days", Period: "days"}
	}
	return weather.TimeSpec{Type: "current"}
}

func parseHour(num, suffix string) (int, bool) {
	h, err := strconv.Atoi(num)
	if err != nil {
		return 0, false
	}
	switch suffix {
	case "am":
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 12 {
			h += 12
		}
	}
	if h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

func ruleLocation(question string) string {
	for _, re := range []*regexp.Regexp{locationViRe, locationEnRe} {
		// terminators are consumed by a match, so a rejected capture resumes the
		// search right after the captured text
		for offset := 0; offset < len(question); {
			m := re.FindStringSubmatchIndex(question[offset:])
			if m == nil {
				break
			}
			name := strings.Trim(strings.TrimSpace(question[offset+m[2]:offset+m[3]]), ".'-")
			if isPlaceName(name) {
				return name
			}
			offset += m[3]
		}
	}
	return ""
}

func isPlaceName(name string) bool {
	lower := strings.ToLower(name)
	if name == "" || notLocations[lower] {
		return false
	}
	if strings.HasPrefix(lower, "the ") {
		return !notLocations[strings.TrimPrefix(lower, "the ")]
	}
	return true
}

func ruleDetails(text string) []string {
	details := []string{}
	for _, facet := range detailFacets {
		for _, kw := range facet.keywords {
			if containsWord(text, kw) {
				details = append(details, facet.name)
				break
			}
		}
	}
	return details
}

// containsWord matches kw in text on word boundaries, so short keywords such as
// "uv" or "ô" do not fire inside longer words.
func containsWord(text, kw string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], kw)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(kw)
		if isBoundary(text, start-1) && isBoundary(text, end) {
			return true
		}
		i = start + 1
		if i >= len(text) {
			return false
		}
	}
}

func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	switch text[i] {
	case ' ', '\t', '\n', ',', '.', '?', '!', ';', ':', '(', ')', '"', '\'', '-', '/':
		return true
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
