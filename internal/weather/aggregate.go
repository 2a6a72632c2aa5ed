package weather

import (
	"math"
	"sort"
)

// DailyForecast summarizes one calendar day of forecast data.
type DailyForecast struct {
	Date      string    `json:"date"`
	TempMinC  float64   `json:"tempMinC"`
	TempMaxC  float64   `json:"tempMaxC"`
	TempAvgC  float64   `json:"tempAvgC"`
	Humidity  float64   `json:"humidityPercent"`
	WindMS    float64   `json:"windSpeedMs"`
	Condition Condition `json:"condition"`
	Predicted bool      `json:"predicted"`
}

// AggregateDaily groups 3-hour buckets by calendar day (in each bucket's own time
// zone) and returns at most maxDays days in date order. Temperatures keep the
// daily extremes and mean; humidity and wind are averaged; the condition is
// selected by majority, ties going to the earliest seen.
func AggregateDaily(buckets []ForecastBucket, maxDays int) []DailyForecast {
	type acc struct {
		day        DailyForecast
		sumTemp    float64
		sumHum     float64
		sumWind    float64
		n          int
		condCounts map[Condition]int
		condOrder  []Condition
	}

	days := make(map[string]*acc)
	for _, b := range buckets {
		key := b.Time.Format("2006-01-02")
		a, ok := days[key]
		if !ok {
			a = &acc{
				day: DailyForecast{
					Date:     key,
					TempMinC: math.Inf(1),
					TempMaxC: math.Inf(-1),
				},
				condCounts: make(map[Condition]int),
			}
			days[key] = a
		}

		lo, hi := b.TempMinC, b.TempMaxC
		if lo == 0 && hi == 0 {
			lo, hi = b.TempC, b.TempC
		}
		a.day.TempMinC = math.Min(a.day.TempMinC, math.Min(lo, b.TempC))
		a.day.TempMaxC = math.Max(a.day.TempMaxC, math.Max(hi, b.TempC))
		a.sumTemp += b.TempC
		a.sumHum += b.Humidity
		a.sumWind += b.WindMS
		a.n++

		if _, seen := a.condCounts[b.Condition]; !seen {
			a.condOrder = append(a.condOrder, b.Condition)
		}
		a.condCounts[b.Condition]++
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if maxDays > 0 && len(keys) > maxDays {
		keys = keys[:maxDays]
	}

	result := make([]DailyForecast, 0, len(keys))
	for _, k := range keys {
		a := days[k]
		n := float64(a.n)
		a.day.TempAvgC = round1(a.sumTemp / n)
		a.day.Humidity = round1(a.sumHum / n)
		a.day.WindMS = round1(a.sumWind / n)
		a.day.TempMinC = round1(a.day.TempMinC)
		a.day.TempMaxC = round1(a.day.TempMaxC)

		best, bestCount := ConditionUnknown, 0
		for _, c := range a.condOrder {
			if a.condCounts[c] > bestCount {
				best, bestCount = c, a.condCounts[c]
			}
		}
		a.day.Condition = best

		result = append(result, a.day)
	}
	return result
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func meanStddev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		stddev += (v - mean) * (v - mean)
	}
	stddev = math.Sqrt(stddev / float64(len(values)))
	return mean, stddev
}
