package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/i474232898/weather-assistant/internal/weather"
)

const weatherAPIBaseURL = "https://api.weatherapi.com/v1"

var weatherAPIEndpoints = map[weather.ReportType]string{
	weather.ReportCurrent:   "current.json",
	weather.ReportForecast:  "forecast.json",
	weather.ReportFuture:    "future.json",
	weather.ReportMarine:    "marine.json",
	weather.ReportAstronomy: "astronomy.json",
	weather.ReportTimezone:  "timezone.json",
	weather.ReportAlerts:    "alerts.json",
	weather.ReportHistory:   "history.json",
}

// WeatherAPIProvider is the upstream weather client for WeatherAPI.com. It
// implements weather.Upstream over the eight report endpoints.
type WeatherAPIProvider struct {
	apiKey  string
	lang    string
	baseURL string
	caller  *httpCaller
}

func NewWeatherAPIProvider(client *http.Client, apiKey, lang string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		apiKey:  apiKey,
		lang:    lang,
		baseURL: weatherAPIBaseURL,
		caller:  newHTTPCaller("weatherapi", client, parseWeatherAPIError),
	}
}

// Call issues one report request. The API key and language tag are attached to
// every request; caller parameters are merged on top.
func (p *WeatherAPIProvider) Call(ctx context.Context, rt weather.ReportType, params weather.Params) (json.RawMessage, error) {
	endpoint, ok := weatherAPIEndpoints[rt]
	if !ok {
		return nil, fmt.Errorf("weatherapi: unsupported report type %q", rt)
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi api key is not configured")
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	if p.lang != "" {
		values.Set("lang", p.lang)
	}
	values.Set("q", params.Query)
	if params.Days > 0 {
		values.Set("days", strconv.Itoa(params.Days))
	}
	if params.Date != "" {
		values.Set("dt", params.Date)
	}
	for k, v := range params.Extra {
		values.Set(k, v)
	}

	u := fmt.Sprintf("%s/%s?%s", p.baseURL, endpoint, values.Encode())
	body, err := p.caller.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &weather.UpstreamError{
			Provider:   "weatherapi",
			StatusCode: http.StatusBadGateway,
			Message:    "response is not valid JSON",
		}
	}
	return json.RawMessage(body), nil
}

func parseWeatherAPIError(body []byte) string {
	var payload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error.Message
}
