package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/i474232898/weather-assistant/internal/weather"
)

const (
	openWeatherGeoURL      = "https://api.openweathermap.org/geo/1.0/direct"
	openWeatherForecastURL = "https://api.openweathermap.org/data/2.5/forecast"
)

// OpenWeatherProvider serves direct geocoding and the 5-day / 3-hour forecast of
// OpenWeatherMap. It implements weather.Geocoder and weather.ForecastSource.
type OpenWeatherProvider struct {
	apiKey      string
	lang        string
	geoURL      string
	forecastURL string
	caller      *httpCaller
}

func NewOpenWeatherProvider(client *http.Client, apiKey, lang string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		apiKey:      apiKey,
		lang:        lang,
		geoURL:      openWeatherGeoURL,
		forecastURL: openWeatherForecastURL,
		caller:      newHTTPCaller("openweathermap", client, parseOpenWeatherError),
	}
}

// Geocode resolves name to the best matching place. The canonical name uses the
// localized place name when the provider has one for the configured language.
func (p *OpenWeatherProvider) Geocode(ctx context.Context, name string) (weather.Place, error) {
	if p.apiKey == "" {
		return weather.Place{}, fmt.Errorf("openweather api key is not configured")
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("q", name)
	values.Set("limit", "1")

	body, err := p.caller.get(ctx, fmt.Sprintf("%s?%s", p.geoURL, values.Encode()))
	if err != nil {
		return weather.Place{}, err
	}

	var results []struct {
		Name       string            `json:"name"`
		LocalNames map[string]string `json:"local_names"`
		Lat        float64           `json:"lat"`
		Lon        float64           `json:"lon"`
		Country    string            `json:"country"`
		State      string            `json:"state"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return weather.Place{}, fmt.Errorf("openweather geocoding: %w", err)
	}
	if len(results) == 0 {
		return weather.Place{}, weather.ErrLocationNotFound
	}

	r := results[0]
	label := r.Name
	if local, ok := r.LocalNames[p.lang]; ok && local != "" {
		label = local
	}
	if country := countryName(r.Country); country != "" {
		label = label + ", " + country
	}

	return weather.Place{Name: label, Lat: r.Lat, Lon: r.Lon}, nil
}

// FiveDay returns the 3-hour forecast buckets for the next five days. Bucket times
// are expressed in the location's own UTC offset so days split at local midnight.
func (p *OpenWeatherProvider) FiveDay(ctx context.Context, lat, lon float64) ([]weather.ForecastBucket, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweather api key is not configured")
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	body, err := p.caller.get(ctx, fmt.Sprintf("%s?%s", p.forecastURL, values.Encode()))
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp     float64 `json:"temp"`
				TempMin  float64 `json:"temp_min"`
				TempMax  float64 `json:"temp_max"`
				Humidity float64 `json:"humidity"`
			} `json:"main"`
			Wind struct {
				Speed float64 `json:"speed"`
			} `json:"wind"`
			Weather []struct {
				Main string `json:"main"`
			} `json:"weather"`
		} `json:"list"`
		City struct {
			Timezone int `json:"timezone"`
		} `json:"city"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("openweather forecast: %w", err)
	}

	zone := time.FixedZone("local", payload.City.Timezone)
	buckets := make([]weather.ForecastBucket, 0, len(payload.List))
	for _, item := range payload.List {
		main := ""
		if len(item.Weather) > 0 {
			main = item.Weather[0].Main
		}
		buckets = append(buckets, weather.ForecastBucket{
			Time:      time.Unix(item.Dt, 0).In(zone),
			TempC:     item.Main.Temp,
			TempMinC:  item.Main.TempMin,
			TempMaxC:  item.Main.TempMax,
			Humidity:  item.Main.Humidity,
			WindMS:    item.Wind.Speed,
			Condition: mapOpenWeatherCondition(main),
		})
	}
	return buckets, nil
}

func mapOpenWeatherCondition(main string) weather.Condition {
	switch main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionCloudy
	case "Rain", "Drizzle":
		return weather.ConditionRain
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm", "Squall", "Tornado":
		return weather.ConditionStorm
	case "Mist", "Fog", "Haze", "Smoke", "Dust", "Sand", "Ash":
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}

// countryName turns an ISO 3166 region code into its English display name.
func countryName(code string) string {
	if code == "" {
		return ""
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return code
}

func parseOpenWeatherError(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}
