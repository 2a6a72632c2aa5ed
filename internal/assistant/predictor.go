package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/i474232898/weather-assistant/internal/weather"
)

const predictSystemPrompt = `You are a meteorological forecasting model. Answer with a single JSON object and nothing else.`

// ForecastPredictor extrapolates forecast days with the generative model.
type ForecastPredictor struct {
	gen Generator
}

func NewForecastPredictor(gen Generator) *ForecastPredictor {
	return &ForecastPredictor{gen: gen}
}

// PredictDays asks the model for n days following observed. The answer is only
// decoded here; plausibility checks belong to the caller.
func (p *ForecastPredictor) PredictDays(ctx context.Context, observed []weather.DailyForecast, ranges weather.PlausibleRanges, n int) ([]weather.DailyForecast, error) {
	history, err := json.Marshal(observed)
	if err != nil {
		return nil, err
	}

	conditions := make([]string, 0, len(weather.KnownConditions))
	for _, c := range weather.KnownConditions {
		conditions = append(conditions, string(c))
	}

	prompt := fmt.Sprintf(`Observed daily forecast (JSON):
%s

Predict the next %d days. Keep values within these plausible ranges:
temperature %.1f to %.1f °C, humidity %.0f to %.0f %%, wind %.1f to %.1f m/s.
Condition must be one of: %s.
Answer as {"days":[{"tempMinC":0,"tempMaxC":0,"tempAvgC":0,"humidityPercent":0,"windSpeedMs":0,"condition":""}]}`,
		history, n,
		ranges.TempC.Min, ranges.TempC.Max,
		ranges.Humidity.Min, ranges.Humidity.Max,
		ranges.WindMS.Min, ranges.WindMS.Max,
		strings.Join(conditions, ", "))

	text, err := p.gen.Generate(ctx, predictSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	obj, ok := decodeObject(text)
	if !ok {
		return nil, fmt.Errorf("prediction is not a JSON object")
	}
	items, ok := obj["days"].([]any)
	if !ok {
		return nil, fmt.Errorf("prediction has no days array")
	}

	days := make([]weather.DailyForecast, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("predicted day %d is not an object", i)
		}
		day := weather.DailyForecast{
			Condition: weather.Condition(strings.ToLower(stringField(m, "condition"))),
		}
		fields := []struct {
			key string
			dst *float64
		}{
			{"tempMinC", &day.TempMinC},
			{"tempMaxC", &day.TempMaxC},
			{"tempAvgC", &day.TempAvgC},
			{"humidityPercent", &day.Humidity},
			{"windSpeedMs", &day.WindMS},
		}
		for _, f := range fields {
			v, ok := floatField(m, f.key)
			if !ok {
				return nil, fmt.Errorf("predicted day %d is missing %s", i, f.key)
			}
			*f.dst = v
		}
		days = append(days, day)
	}
	return days, nil
}
