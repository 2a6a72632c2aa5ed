package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// Facts are the report payloads gathered for one question, keyed by report type.
type Facts map[weather.ReportType]json.RawMessage

// wapiDoc is the subset of the upstream payloads the assistant reads. Every
// field is optional.
type wapiDoc struct {
	Location *struct {
		Name      string `json:"name"`
		Region    string `json:"region"`
		Country   string `json:"country"`
		TzID      string `json:"tz_id"`
		Localtime string `json:"localtime"`
	} `json:"location"`
	Current *struct {
		TempC      *float64   `json:"temp_c"`
		FeelsLikeC *float64   `json:"feelslike_c"`
		Humidity   *float64   `json:"humidity"`
		WindKph    *float64   `json:"wind_kph"`
		PrecipMM   *float64   `json:"precip_mm"`
		UV         *float64   `json:"uv"`
		Condition  wapiCond   `json:"condition"`
		AirQuality wapiAirQty `json:"air_quality"`
	} `json:"current"`
	Forecast *struct {
		Days []wapiDay `json:"forecastday"`
	} `json:"forecast"`
	Astronomy *struct {
		Astro wapiAstro `json:"astro"`
	} `json:"astronomy"`
	Alerts *struct {
		Alert []struct {
			Headline string `json:"headline"`
			Severity string `json:"severity"`
			Event    string `json:"event"`
			Expires  string `json:"expires"`
		} `json:"alert"`
	} `json:"alerts"`
}

type wapiCond struct {
	Text string `json:"text"`
}

type wapiAirQty struct {
	USEPAIndex *float64 `json:"us-epa-index"`
}

type wapiAstro struct {
	Sunrise   string `json:"sunrise"`
	Sunset    string `json:"sunset"`
	Moonrise  string `json:"moonrise"`
	Moonset   string `json:"moonset"`
	MoonPhase string `json:"moon_phase"`
}

type wapiDay struct {
	Date string `json:"date"`
	Day  struct {
		MaxTempC     *float64 `json:"maxtemp_c"`
		MinTempC     *float64 `json:"mintemp_c"`
		AvgTempC     *float64 `json:"avgtemp_c"`
		ChanceOfRain *float64 `json:"daily_chance_of_rain"`
		TotalPrecip  *float64 `json:"totalprecip_mm"`
		AvgHumidity  *float64 `json:"avghumidity"`
		MaxWindKph   *float64 `json:"maxwind_kph"`
		Condition    wapiCond `json:"condition"`
	} `json:"day"`
	Astro wapiAstro `json:"astro"`
	Hour  []struct {
		Time         string   `json:"time"`
		TempC        *float64 `json:"temp_c"`
		ChanceOfRain *float64 `json:"chance_of_rain"`
		WaveHeightM  *float64 `json:"sig_ht_mt"`
		Condition    wapiCond `json:"condition"`
	} `json:"hour"`
}

func decodeDoc(raw json.RawMessage) (wapiDoc, bool) {
	var doc wapiDoc
	if len(raw) == 0 {
		return doc, false
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, false
	}
	return doc, true
}

func placeName(f Facts) string {
	for _, rt := range []weather.ReportType{weather.ReportCurrent, weather.ReportForecast, weather.ReportHistory, weather.ReportTimezone, weather.ReportAstronomy} {
		if doc, ok := decodeDoc(f[rt]); ok && doc.Location != nil && doc.Location.Name != "" {
			if doc.Location.Country != "" {
				return doc.Location.Name + ", " + doc.Location.Country
			}
			return doc.Location.Name
		}
	}
	return ""
}

func summarizeCurrent(raw json.RawMessage) string {
	doc, ok := decodeDoc(raw)
	if !ok || doc.Current == nil || doc.Current.TempC == nil {
		return ""
	}
	c := doc.Current
	parts := []string{fmt.Sprintf("temperature %.1f°C", *c.TempC)}
	if c.Condition.Text != "" {
		parts = append(parts, "condition "+c.Condition.Text)
	}
	if c.FeelsLikeC != nil {
		parts = append(parts, fmt.Sprintf("feels like %.1f°C", *c.FeelsLikeC))
	}
	if c.Humidity != nil {
		parts = append(parts, fmt.Sprintf("humidity %.0f%%", *c.Humidity))
	}
	if c.WindKph != nil {
		parts = append(parts, fmt.Sprintf("wind %.0f km/h", *c.WindKph))
	}
	if c.PrecipMM != nil {
		parts = append(parts, fmt.Sprintf("precipitation %.1f mm", *c.PrecipMM))
	}
	if c.UV != nil {
		parts = append(parts, fmt.Sprintf("UV index %.0f", *c.UV))
	}
	if c.AirQuality.USEPAIndex != nil {
		parts = append(parts, fmt.Sprintf("US EPA air quality index %.0f", *c.AirQuality.USEPAIndex))
	}
	if doc.Location != nil && doc.Location.Localtime != "" {
		parts = append(parts, "local time "+doc.Location.Localtime)
	}
	return strings.Join(parts, ", ")
}

func summarizeDay(d wapiDay) string {
	parts := []string{d.Date + ":"}
	if d.Day.MinTempC != nil && d.Day.MaxTempC != nil {
		parts = append(parts, fmt.Sprintf("%.1f to %.1f°C", *d.Day.MinTempC, *d.Day.MaxTempC))
	}
	if d.Day.AvgTempC != nil {
		parts = append(parts, fmt.Sprintf("average %.1f°C", *d.Day.AvgTempC))
	}
	if d.Day.Condition.Text != "" {
		parts = append(parts, d.Day.Condition.Text)
	}
	if d.Day.ChanceOfRain != nil {
		parts = append(parts, fmt.Sprintf("chance of rain %.0f%%", *d.Day.ChanceOfRain))
	}
	if d.Day.TotalPrecip != nil && *d.Day.TotalPrecip > 0 {
		parts = append(parts, fmt.Sprintf("precipitation %.1f mm", *d.Day.TotalPrecip))
	}
	if d.Day.AvgHumidity != nil {
		parts = append(parts, fmt.Sprintf("humidity %.0f%%", *d.Day.AvgHumidity))
	}
	if d.Day.MaxWindKph != nil {
		parts = append(parts, fmt.Sprintf("max wind %.0f km/h", *d.Day.MaxWindKph))
	}
	return strings.Join(parts, " ")
}

func summarizeDays(raw json.RawMessage) string {
	doc, ok := decodeDoc(raw)
	if !ok || doc.Forecast == nil || len(doc.Forecast.Days) == 0 {
		return ""
	}
	lines := make([]string, 0, len(doc.Forecast.Days))
	for _, d := range doc.Forecast.Days {
		lines = append(lines, "- "+summarizeDay(d))
	}
	return strings.Join(lines, "\n")
}

func summarizeMarine(raw json.RawMessage) string {
	doc, ok := decodeDoc(raw)
	if !ok || doc.Forecast == nil || len(doc.Forecast.Days) == 0 {
		return ""
	}
	var lines []string
	for _, d := range doc.Forecast.Days {
		line := "- " + summarizeDay(d)
		maxWave := -1.0
		for _, h := range d.Hour {
			if h.WaveHeightM != nil && *h.WaveHeightM > maxWave {
				maxWave = *h.WaveHeightM
			}
		}
		if maxWave >= 0 {
			line += fmt.Sprintf(", max significant wave height %.1f m", maxWave)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func summarizeAstronomy(raw json.RawMessage) string {
	doc, ok := decodeDoc(raw)
	if !ok || doc.Astronomy == nil {
		return ""
	}
	a := doc.Astronomy.Astro
	if a.Sunrise == "" && a.Sunset == "" && a.MoonPhase == "" {
		return ""
	}
	return fmt.Sprintf("sunrise %s, sunset %s, moonrise %s, moonset %s, moon phase %s",
		a.Sunrise, a.Sunset, a.Moonrise, a.Moonset, a.MoonPhase)
}

func summarizeAlerts(raw json.RawMessage) string {
	doc, ok := decodeDoc(raw)
	if !ok {
		return ""
	}
	if doc.Alerts == nil || len(doc.Alerts.Alert) == 0 {
		if doc.Alerts != nil {
			return "no active weather alerts"
		}
		return ""
	}
	lines := make([]string, 0, len(doc.Alerts.Alert))
	for _, a := range doc.Alerts.Alert {
		lines = append(lines, fmt.Sprintf("- [%s] %s (%s, until %s)", a.Severity, a.Headline, a.Event, a.Expires))
	}
	return strings.Join(lines, "\n")
}

func summarizeTimezone(raw json.RawMessage) string {
	doc, ok := decodeDoc(raw)
	if !ok || doc.Location == nil || doc.Location.TzID == "" {
		return ""
	}
	return fmt.Sprintf("time zone %s, local time %s", doc.Location.TzID, doc.Location.Localtime)
}

// hourReading returns the forecast reading for hour on date, if present.
func hourReading(raw json.RawMessage, date string, hour int) (temp float64, condition string, ok bool) {
	doc, found := decodeDoc(raw)
	if !found || doc.Forecast == nil {
		return 0, "", false
	}
	suffix := fmt.Sprintf(" %02d:00", hour)
	for _, d := range doc.Forecast.Days {
		if date != "" && d.Date != date {
			continue
		}
		for _, h := range d.Hour {
			if strings.HasSuffix(h.Time, suffix) && h.TempC != nil {
				return *h.TempC, h.Condition.Text, true
			}
		}
	}
	return 0, "", false
}

// section is one labelled block of the composer prompt.
type section struct {
	title string
	body  string
}

func factSections(f Facts) []section {
	summaries := []struct {
		rt    weather.ReportType
		title string
		fn    func(json.RawMessage) string
	}{
		{weather.ReportCurrent, "Current conditions", summarizeCurrent},
		{weather.ReportForecast, "Forecast", summarizeDays},
		{weather.ReportHistory, "Historical weather", summarizeDays},
		{weather.ReportFuture, "Long-range forecast", summarizeDays},
		{weather.ReportMarine, "Marine forecast", summarizeMarine},
		{weather.ReportAstronomy, "Astronomy", summarizeAstronomy},
		{weather.ReportTimezone, "Time zone", summarizeTimezone},
		{weather.ReportAlerts, "Weather alerts", summarizeAlerts},
	}
	var out []section
	for _, s := range summaries {
		raw, ok := f[s.rt]
		if !ok {
			continue
		}
		if body := s.fn(raw); body != "" {
			out = append(out, section{title: s.title, body: body})
		}
	}
	return out
}
